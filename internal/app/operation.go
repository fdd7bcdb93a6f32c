package app

// Operations a TicklerApp is opened for. Only check and bootstrap are
// recorded in the runs table.
const (
	OpCheck     = "Check"
	OpBootstrap = "Bootstrap"
	OpStatus    = "Status"
	OpHistory   = "History"
)

// RunRecord tracks a CLI invocation that may mutate the baseline store.
// Records are created in memory with ID=0. Only check and bootstrap runs
// persist them (giving them an auto-increment ID from the database).
type RunRecord struct {
	ID        int64
	Operation string
	Status    string // "success" or "error"
	Tickets   int
	// Mutated is set once the baseline store has been written; only then
	// is the database copied to the vault on Close.
	Mutated bool
}

// NewRunRecord creates a new in-memory run record.
func NewRunRecord(operation string) *RunRecord {
	return &RunRecord{
		Operation: operation,
		Status:    "success",
	}
}

// Persisted returns true if this run has been saved to the database.
func (r *RunRecord) Persisted() bool {
	return r.ID != 0
}
