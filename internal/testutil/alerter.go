package testutil

import (
	"context"
	"sync"

	"tickler/internal/tickler"
)

// Acknowledgement is one recorded Acknowledged call.
type Acknowledgement struct {
	Ticket      string
	Fingerprint tickler.Fingerprint
}

// RecordingAlerter records every call. OnAlert, when set, runs
// synchronously inside Alert, which lets a test drive the alert loop
// from the watcher's own goroutine.
type RecordingAlerter struct {
	mu      sync.Mutex
	alarms  []tickler.Alarm
	acks    []Acknowledgement
	OnAlert func(a tickler.Alarm)
	Err     error
}

func (r *RecordingAlerter) Alert(_ context.Context, a tickler.Alarm) error {
	r.mu.Lock()
	r.alarms = append(r.alarms, a)
	hook := r.OnAlert
	r.mu.Unlock()

	if hook != nil {
		hook(a)
	}
	return r.Err
}

func (r *RecordingAlerter) Acknowledged(_ context.Context, ticket string, fp tickler.Fingerprint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acks = append(r.acks, Acknowledgement{Ticket: ticket, Fingerprint: fp})
	return r.Err
}

// Alarms returns a copy of the recorded alarms.
func (r *RecordingAlerter) Alarms() []tickler.Alarm {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tickler.Alarm(nil), r.alarms...)
}

// Acks returns a copy of the recorded acknowledgements.
func (r *RecordingAlerter) Acks() []Acknowledgement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Acknowledgement(nil), r.acks...)
}

var _ tickler.Alerter = (*RecordingAlerter)(nil)
