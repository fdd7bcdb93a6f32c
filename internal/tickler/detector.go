package tickler

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the outcome of comparing a ticket against its baseline.
type Kind int

const (
	New Kind = iota
	Unchanged
	Changed
)

func (k Kind) String() string {
	switch k {
	case New:
		return "new"
	case Unchanged:
		return "unchanged"
	case Changed:
		return "changed"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Classification is the result of Detector.Classify. Fingerprint is the
// freshly computed one for every kind.
type Classification struct {
	Kind        Kind
	Fingerprint Fingerprint
}

// Detector compares a ticket's current fingerprint against its baseline.
type Detector struct {
	store   BaselineStore
	fetcher SnapshotFetcher
	logger  Logger
}

// NewDetector creates a Detector.
func NewDetector(store BaselineStore, fetcher SnapshotFetcher, logger Logger) *Detector {
	return &Detector{store: store, fetcher: fetcher, logger: logger}
}

// Fingerprint fetches the ticket and fingerprints it.
func (d *Detector) Fingerprint(ctx context.Context, id string) (Fingerprint, error) {
	snap, err := d.fetcher.FetchSnapshot(ctx, id)
	if err != nil {
		return "", err
	}
	fp := BuildFingerprint(snap)
	d.logger.Debug("ticket fingerprinted", "ticket", id, "fingerprint", fp.String())
	return fp, nil
}

// Classify fetches the ticket and compares it against the stored baseline.
//
// A ticket with no baseline is adopted: its fingerprint is inserted and New
// is returned. A Changed result never touches the store; the baseline moves
// only on acknowledgement.
func (d *Detector) Classify(ctx context.Context, id string) (Classification, error) {
	current, err := d.Fingerprint(ctx, id)
	if err != nil {
		return Classification{}, err
	}

	stored, err := d.store.Get(id)
	if errors.Is(err, ErrNotFound) {
		if err := d.store.Insert(id, current); err != nil {
			return Classification{}, fmt.Errorf("adopting new ticket %s: %w", id, err)
		}
		d.logger.Info("new ticket adopted", "ticket", id, "fingerprint", current.String())
		return Classification{Kind: New, Fingerprint: current}, nil
	}
	if err != nil {
		return Classification{}, fmt.Errorf("reading baseline for %s: %w", id, err)
	}

	d.logger.Debug("comparing fingerprints", "ticket", id, "current", current.String(), "stored", stored.String())

	if stored == current {
		return Classification{Kind: Unchanged, Fingerprint: current}, nil
	}
	return Classification{Kind: Changed, Fingerprint: current}, nil
}
