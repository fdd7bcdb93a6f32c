package tickler

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means no baseline exists for a ticket. Expected; drives
	// the New classification.
	ErrNotFound = errors.New("baseline not found")

	// ErrDuplicateKey is returned by Insert when a baseline already exists.
	ErrDuplicateKey = errors.New("baseline already exists")

	// ErrStoreCorruption means the baseline file cannot be read or written.
	ErrStoreCorruption = errors.New("baseline store corrupt or unreadable")
)

// TransportError reports a connectivity failure talking to the ticket service.
type TransportError struct {
	Ticket string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fetching %s: transport: %v", e.Ticket, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError reports rejected credentials.
type AuthError struct {
	Ticket     string
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("fetching %s: authentication rejected (HTTP %d)", e.Ticket, e.StatusCode)
}
