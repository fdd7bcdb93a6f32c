package tickler

import "context"

// BaselineStore maps ticket identifiers to their last acknowledged
// fingerprint. Each method runs in its own transaction; at most one
// baseline exists per identifier.
type BaselineStore interface {
	// Get returns the stored fingerprint, or ErrNotFound.
	Get(id string) (Fingerprint, error)

	// Insert adds a baseline. Returns ErrDuplicateKey if one exists.
	Insert(id string, fp Fingerprint) error

	// Upsert inserts or overwrites a baseline.
	Upsert(id string, fp Fingerprint) error

	// ResetAll drops and recreates the baseline table, empty. All or nothing.
	ResetAll() error
}

// SnapshotFetcher retrieves the current state of a ticket, including every
// comment in the service's retrieval order. Failures are *TransportError or
// *AuthError.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context, id string) (*TicketSnapshot, error)
}
