package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryVault keeps backups in memory. It is used by tests and by the
// "memory" vault type. Safe for concurrent use.
type MemoryVault struct {
	backups  map[string][]byte
	versions map[string]int64
	mu       sync.RWMutex
}

// NewMemoryVault creates an empty in-memory vault.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{
		backups:  make(map[string][]byte),
		versions: make(map[string]int64),
	}
}

// PutBackup stores a named copy, replacing any previous one.
func (m *MemoryVault) PutBackup(_ context.Context, name string, r io.Reader, size int64, version int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read backup: %w", err)
	}

	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.backups[name] = data
	m.versions[name] = version
	return nil
}

// GetBackup writes the named copy to w.
func (m *MemoryVault) GetBackup(_ context.Context, name string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.backups[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrBackupNotFound, name)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}
	return nil
}

// GetBackupVersion returns the stored version, or 0 when name is unknown.
func (m *MemoryVault) GetBackupVersion(_ context.Context, name string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.versions[name], nil
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup(context.Context) error {
	return nil
}

var _ Vault = (*MemoryVault)(nil)
