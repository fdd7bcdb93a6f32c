package testutil

import (
	"fmt"
	"sync"
	"time"

	"tickler/internal/tickler"
)

// StubClock returns a fixed time and hands out manually driven tickers.
// Safe for concurrent use.
type StubClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*StubTicker
}

// NewStubClock creates a StubClock set to the given time.
func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a StubClock set to 2024-01-15 10:30:00 UTC.
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// NewTicker returns a StubTicker that only fires when Tick is called.
func (c *StubClock) NewTicker(d time.Duration) tickler.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &StubTicker{clock: c, Interval: d, ch: make(chan time.Time, 1)}
	c.tickers = append(c.tickers, t)
	return t
}

// LastTicker returns the most recently created ticker, or nil.
func (c *StubClock) LastTicker() *StubTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tickers) == 0 {
		return nil
	}
	return c.tickers[len(c.tickers)-1]
}

// TickerCount returns how many tickers have been created.
func (c *StubClock) TickerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

// StubTicker is a tickler.Ticker driven by Tick.
type StubTicker struct {
	clock    *StubClock
	Interval time.Duration
	ch       chan time.Time

	mu      sync.Mutex
	stopped bool
}

func (t *StubTicker) C() <-chan time.Time { return t.ch }

func (t *StubTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

// Stopped reports whether Stop has been called.
func (t *StubTicker) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Tick advances the clock by one interval and fires the ticker. A pending
// unread tick is not doubled, matching time.Ticker. Ticks after Stop are
// dropped.
func (t *StubTicker) Tick() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.clock.Advance(t.Interval)
	select {
	case t.ch <- t.clock.Now():
	default:
	}
}

// StubIDGenerator returns sequential IDs: "id-1", "id-2", etc.
type StubIDGenerator struct {
	mu      sync.Mutex
	counter int
}

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return fmt.Sprintf("id-%d", g.counter)
}
