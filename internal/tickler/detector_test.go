package tickler_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"tickler/internal/testutil"
	"tickler/internal/tickler"
)

func TestDetector_Classify(t *testing.T) {
	snapA := testutil.Snapshot("OPS-1", "Open", "a")
	snapB := testutil.Snapshot("OPS-1", "Open", "b")
	fpA := tickler.BuildFingerprint(snapA)
	fpB := tickler.BuildFingerprint(snapB)

	tests := []struct {
		name       string
		seed       tickler.Fingerprint // empty means no baseline
		current    *tickler.TicketSnapshot
		wantKind   tickler.Kind
		wantFP     tickler.Fingerprint
		wantWrites []string
		wantStored tickler.Fingerprint
	}{
		{
			name:       "new ticket is adopted",
			current:    snapA,
			wantKind:   tickler.New,
			wantFP:     fpA,
			wantWrites: []string{"insert:OPS-1"},
			wantStored: fpA,
		},
		{
			name:       "unchanged ticket",
			seed:       fpA,
			current:    snapA,
			wantKind:   tickler.Unchanged,
			wantFP:     fpA,
			wantStored: fpA,
		},
		{
			name:       "changed ticket keeps old baseline",
			seed:       fpA,
			current:    snapB,
			wantKind:   tickler.Changed,
			wantFP:     fpB,
			wantStored: fpA,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewMemoryStore()
			if tt.seed != "" {
				store.Seed("OPS-1", tt.seed)
			}
			fetcher := testutil.NewFakeFetcher()
			fetcher.Set("OPS-1", tt.current)

			d := tickler.NewDetector(store, fetcher, tickler.NewNopLogger())
			got, err := d.Classify(context.Background(), "OPS-1")
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if got.Fingerprint != tt.wantFP {
				t.Errorf("Fingerprint = %s, want %s", got.Fingerprint, tt.wantFP)
			}
			if writes := store.WriteLog(); !reflect.DeepEqual(writes, tt.wantWrites) {
				t.Errorf("writes = %v, want %v", writes, tt.wantWrites)
			}
			stored, err := store.Get("OPS-1")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if stored != tt.wantStored {
				t.Errorf("stored = %s, want %s", stored, tt.wantStored)
			}
		})
	}
}

func TestDetector_NewThenUnchanged(t *testing.T) {
	store := testutil.NewMemoryStore()
	fetcher := testutil.NewFakeFetcher()
	fetcher.Set("OPS-1", testutil.Snapshot("OPS-1", "Open", "a"))
	d := tickler.NewDetector(store, fetcher, tickler.NewNopLogger())
	ctx := context.Background()

	first, err := d.Classify(ctx, "OPS-1")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	second, err := d.Classify(ctx, "OPS-1")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}

	if first.Kind != tickler.New || second.Kind != tickler.Unchanged {
		t.Errorf("kinds = %v, %v, want new, unchanged", first.Kind, second.Kind)
	}
	if writes := store.WriteLog(); len(writes) != 1 {
		t.Errorf("writes = %v, want exactly one insert", writes)
	}
}

func TestDetector_Errors(t *testing.T) {
	t.Run("fetch failure leaves store untouched", func(t *testing.T) {
		store := testutil.NewMemoryStore()
		fetcher := testutil.NewFakeFetcher()
		fetcher.SetError("OPS-1", &tickler.AuthError{Ticket: "OPS-1", StatusCode: 401})

		d := tickler.NewDetector(store, fetcher, tickler.NewNopLogger())
		_, err := d.Classify(context.Background(), "OPS-1")

		var authErr *tickler.AuthError
		if !errors.As(err, &authErr) {
			t.Fatalf("Classify() error = %v, want AuthError", err)
		}
		if len(store.WriteLog()) != 0 {
			t.Errorf("writes = %v, want none", store.WriteLog())
		}
	})

	t.Run("store failure is propagated", func(t *testing.T) {
		store := testutil.NewMemoryStore()
		store.Err = tickler.ErrStoreCorruption
		fetcher := testutil.NewFakeFetcher()
		fetcher.Set("OPS-1", testutil.Snapshot("OPS-1", "Open", "a"))

		d := tickler.NewDetector(store, fetcher, tickler.NewNopLogger())
		if _, err := d.Classify(context.Background(), "OPS-1"); !errors.Is(err, tickler.ErrStoreCorruption) {
			t.Errorf("Classify() error = %v, want ErrStoreCorruption", err)
		}
	})
}

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind tickler.Kind
		want string
	}{
		{tickler.New, "new"},
		{tickler.Unchanged, "unchanged"},
		{tickler.Changed, "changed"},
		{tickler.Kind(9), "Kind(9)"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", int(tt.kind), got, tt.want)
		}
	}
}
