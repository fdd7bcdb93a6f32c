package testutil

import (
	"fmt"
	"sync"

	"tickler/internal/tickler"
)

// MemoryStore is a map-backed tickler.BaselineStore that records every
// mutating call. Safe for concurrent use.
type MemoryStore struct {
	mu     sync.Mutex
	data   map[string]tickler.Fingerprint
	Writes []string // "insert:<id>", "upsert:<id>", "reset"
	Err    error    // returned by every call when set
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]tickler.Fingerprint)}
}

// Seed sets a baseline without recording a write.
func (s *MemoryStore) Seed(id string, fp tickler.Fingerprint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = fp
}

// Len returns the number of stored baselines.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// WriteLog returns a copy of the recorded writes.
func (s *MemoryStore) WriteLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Writes...)
}

func (s *MemoryStore) Get(id string) (tickler.Fingerprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	fp, ok := s.data[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", tickler.ErrNotFound, id)
	}
	return fp, nil
}

func (s *MemoryStore) Insert(id string, fp tickler.Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.data[id]; ok {
		return fmt.Errorf("%w: %s", tickler.ErrDuplicateKey, id)
	}
	s.data[id] = fp
	s.Writes = append(s.Writes, "insert:"+id)
	return nil
}

func (s *MemoryStore) Upsert(id string, fp tickler.Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.data[id] = fp
	s.Writes = append(s.Writes, "upsert:"+id)
	return nil
}

func (s *MemoryStore) ResetAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.data = make(map[string]tickler.Fingerprint)
	s.Writes = append(s.Writes, "reset")
	return nil
}

var _ tickler.BaselineStore = (*MemoryStore)(nil)
