package testutil

import (
	"context"
	"fmt"
	"sync"

	"tickler/internal/tickler"
)

// FakeFetcher serves ticket snapshots from memory. Safe for concurrent use.
type FakeFetcher struct {
	mu        sync.Mutex
	snapshots map[string]*tickler.TicketSnapshot
	errs      map[string]error
	calls     map[string]int
}

// NewFakeFetcher creates a FakeFetcher with no tickets.
func NewFakeFetcher() *FakeFetcher {
	return &FakeFetcher{
		snapshots: make(map[string]*tickler.TicketSnapshot),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
	}
}

// Set stores the snapshot returned for id and clears any injected error.
func (f *FakeFetcher) Set(id string, s *tickler.TicketSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[id] = s
	delete(f.errs, id)
}

// SetError makes every fetch of id fail with err.
func (f *FakeFetcher) SetError(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[id] = err
}

// Calls returns how many times id has been fetched.
func (f *FakeFetcher) Calls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *FakeFetcher) FetchSnapshot(_ context.Context, id string) (*tickler.TicketSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	if err, ok := f.errs[id]; ok {
		return nil, err
	}
	s, ok := f.snapshots[id]
	if !ok {
		return nil, &tickler.TransportError{Ticket: id, Err: fmt.Errorf("no such ticket")}
	}
	cp := *s
	cp.Comments = append([]tickler.Comment(nil), s.Comments...)
	return &cp, nil
}

// Snapshot returns a snapshot with the given status and description and
// no comments. The remaining fields are fixed.
func Snapshot(id, status, description string) *tickler.TicketSnapshot {
	return &tickler.TicketSnapshot{
		ID:          id,
		Server:      "https://jira.example.com",
		Created:     "2024-01-15T10:30:00.000+0000",
		Status:      status,
		Description: description,
	}
}

var _ tickler.SnapshotFetcher = (*FakeFetcher)(nil)
