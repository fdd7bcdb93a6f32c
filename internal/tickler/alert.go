package tickler

import "context"

// Alarm describes one emission of a change alert.
type Alarm struct {
	Ticket      string
	Fingerprint Fingerprint
	// Repeat counts prior emissions for the same change; 0 on entry to Alerting.
	Repeat int
}

// Alerter presents change alerts to the operator.
type Alerter interface {
	// Alert is called on entry to Alerting and once per interval after.
	Alert(ctx context.Context, a Alarm) error

	// Acknowledged is called after the new baseline has been stored.
	Acknowledged(ctx context.Context, ticket string, fp Fingerprint) error
}

// AckSource delivers the operator's acknowledgement. Listen subscribes;
// the returned stop func must be called when leaving Alerting so the signal
// is ignored outside it.
type AckSource interface {
	Listen() (ack <-chan struct{}, stop func())
}
