package testutil

import (
	"sync"

	"tickler/internal/tickler"
)

// ChannelAckSource delivers acknowledgements sent with Ack. An Ack sent
// while nobody is listening is dropped, like a signal outside Alerting.
type ChannelAckSource struct {
	mu        sync.Mutex
	ch        chan struct{}
	listening bool
	listens   int
}

func NewChannelAckSource() *ChannelAckSource {
	return &ChannelAckSource{}
}

func (s *ChannelAckSource) Listen() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ch = make(chan struct{}, 1)
	s.listening = true
	s.listens++
	return s.ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.listening = false
	}
}

// Ack acknowledges the current alert. It reports whether anyone was listening.
func (s *ChannelAckSource) Ack() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.listening {
		return false
	}
	select {
	case s.ch <- struct{}{}:
	default:
	}
	return true
}

// Listening reports whether a Listen is active.
func (s *ChannelAckSource) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

// Listens returns how many times Listen has been called.
func (s *ChannelAckSource) Listens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listens
}

var _ tickler.AckSource = (*ChannelAckSource)(nil)
