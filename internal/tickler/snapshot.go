package tickler

// None is the textual marker for a field the ticket service did not return.
// It keeps "absent" distinguishable from an empty string in the fingerprint.
const None = "None"

// TicketSnapshot is the observable state of a ticket at fetch time.
// It is transient: only its Fingerprint is ever persisted.
type TicketSnapshot struct {
	ID          string
	Server      string
	Created     string
	Status      string
	Description string
	Comments    []Comment // retrieval order, never re-sorted
}

// Comment is a single comment on a ticket.
type Comment struct {
	Created string
	Updated string
	Author  string
	Body    string
}

// Text returns s, or None when s is nil.
func Text(s *string) string {
	if s == nil {
		return None
	}
	return *s
}
