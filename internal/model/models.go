package model

import (
	"database/sql"
	"time"
)

// Baseline is the stored fingerprint for one ticket. Only the digest is
// kept; ticket content never reaches disk.
type Baseline struct {
	TicketID    string    // Unique key
	Fingerprint string    // Hex BLAKE3 digest
	UpdatedAt   time.Time // Last insert or acknowledgement
}

// Run records one invocation of the watcher (a check pass or a bootstrap).
type Run struct {
	ID         int64 // Auto-increment
	Operation  string
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Status     string // "running", "success" or "error"
	Tickets    int64  // Tickets processed
}
