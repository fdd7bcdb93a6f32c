package alert

import (
	"context"
	"errors"

	"tickler/internal/tickler"
)

// Multi fans every call out to each alerter in order. All alerters are
// called even if one fails; the errors are joined.
type Multi []tickler.Alerter

func (m Multi) Alert(ctx context.Context, a tickler.Alarm) error {
	var errs []error
	for _, al := range m {
		if err := al.Alert(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Acknowledged(ctx context.Context, ticket string, fp tickler.Fingerprint) error {
	var errs []error
	for _, al := range m {
		if err := al.Acknowledged(ctx, ticket, fp); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ tickler.Alerter = Multi(nil)
