package alert

import (
	"os"
	"os/signal"
	"sync"

	"tickler/internal/tickler"
)

// SignalAckSource treats an OS signal as the operator's acknowledgement.
// The signal is only intercepted between Listen and stop; outside that
// window it keeps its default behavior, so Ctrl-C still exits the program.
type SignalAckSource struct {
	signals []os.Signal
}

// NewSignalAckSource listens for sigs, or os.Interrupt when none are given.
func NewSignalAckSource(sigs ...os.Signal) *SignalAckSource {
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt}
	}
	return &SignalAckSource{signals: sigs}
}

func (s *SignalAckSource) Listen() (<-chan struct{}, func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, s.signals...)

	ack := make(chan struct{})
	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			close(ack)
		case <-done:
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			signal.Stop(sigCh)
			close(done)
		})
	}
	return ack, stop
}

var _ tickler.AckSource = (*SignalAckSource)(nil)
