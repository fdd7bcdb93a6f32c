package alert

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"tickler/internal/tickler"
)

const bell = "\a"

// Terminal prints change alerts to a terminal, optionally ringing the bell
// on every repeat. Colors are dropped automatically when w is not a TTY.
type Terminal struct {
	w    io.Writer
	bell bool
	mu   sync.Mutex

	changed lipgloss.Style
	hint    lipgloss.Style
	done    lipgloss.Style
}

// NewTerminal creates a Terminal alerter writing to w.
func NewTerminal(w io.Writer, bell bool) *Terminal {
	r := lipgloss.NewRenderer(w)
	return &Terminal{
		w:    w,
		bell: bell,
		changed: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#C0392B")).
			Padding(0, 1),
		hint: r.NewStyle().
			Foreground(lipgloss.Color("241")),
		done: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#27AE60")),
	}
}

func (t *Terminal) Alert(_ context.Context, a tickler.Alarm) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	line := t.changed.Render(fmt.Sprintf("Ticket %s has changed!", a.Ticket)) +
		" " + t.hint.Render("(Ctrl-C to update and continue)")
	if t.bell {
		line += bell
	}
	_, err := fmt.Fprintln(t.w, line)
	return err
}

func (t *Terminal) Acknowledged(_ context.Context, ticket string, fp tickler.Fingerprint) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, err := fmt.Fprintln(t.w, t.done.Render(fmt.Sprintf("Baseline for %s updated", ticket))+
		" "+t.hint.Render(fp.Short()))
	return err
}

var _ tickler.Alerter = (*Terminal)(nil)
