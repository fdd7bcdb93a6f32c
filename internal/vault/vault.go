package vault

import (
	"context"
	"errors"
	"io"
)

// ErrBackupNotFound is returned when no copy has been stored under a name.
var ErrBackupNotFound = errors.New("backup not found")

// Vault is an off-host destination for copies of the baseline database.
// Copies are streamed so the database is never loaded into memory whole.
type Vault interface {
	// PutBackup stores a named copy. size is the number of bytes that will
	// be read from r. version is stored alongside the copy; tickler uses the
	// id of the run that produced it.
	PutBackup(ctx context.Context, name string, r io.Reader, size int64, version int64) error

	// GetBackup writes the named copy to w.
	GetBackup(ctx context.Context, name string, w io.Writer) error

	// GetBackupVersion returns the version stored with a copy.
	// Returns 0 if nothing has been stored under name.
	GetBackupVersion(ctx context.Context, name string) (int64, error)

	// ValidateSetup verifies that the vault is reachable and writable.
	ValidateSetup(ctx context.Context) error
}
