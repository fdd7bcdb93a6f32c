package tickler

import (
	"context"
	"fmt"
	"time"
)

// DefaultAlertInterval is how often an unacknowledged change is re-announced.
const DefaultAlertInterval = time.Second

// PassResult summarizes one pass over the watch list.
type PassResult struct {
	Checked   int
	New       []string
	Unchanged []string
	Changed   []string // acknowledged during this pass
}

// Watcher drives the Detector over the watch list and runs the
// alert/acknowledge protocol for changed tickets. It is strictly
// sequential: a changed ticket blocks the rest of the pass until the
// operator acknowledges it.
type Watcher struct {
	watchList []string
	store     BaselineStore
	detector  *Detector
	alerter   Alerter
	acks      AckSource
	logger    Logger
	clock     Clock
	interval  time.Duration
}

// NewWatcher creates a Watcher for the given watch list. A non-positive
// interval uses DefaultAlertInterval.
func NewWatcher(watchList []string, store BaselineStore, fetcher SnapshotFetcher, alerter Alerter, acks AckSource, logger Logger, clock Clock, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultAlertInterval
	}
	return &Watcher{
		watchList: append([]string(nil), watchList...),
		store:     store,
		detector:  NewDetector(store, fetcher, logger),
		alerter:   alerter,
		acks:      acks,
		logger:    logger,
		clock:     clock,
		interval:  interval,
	}
}

// RunPass checks every watched ticket once, in order. Any fetch or store
// error aborts the pass; there is no retry.
func (w *Watcher) RunPass(ctx context.Context) (*PassResult, error) {
	result := &PassResult{}

	for _, id := range w.watchList {
		w.logger.Debug("checking ticket", "ticket", id)

		c, err := w.detector.Classify(ctx, id)
		if err != nil {
			return result, fmt.Errorf("checking %s: %w", id, err)
		}
		result.Checked++

		switch c.Kind {
		case New:
			result.New = append(result.New, id)
		case Unchanged:
			result.Unchanged = append(result.Unchanged, id)
		case Changed:
			w.logger.Warn("ticket changed", "ticket", id, "fingerprint", c.Fingerprint.String())
			if err := w.awaitAck(ctx, id, c.Fingerprint); err != nil {
				return result, fmt.Errorf("alerting on %s: %w", id, err)
			}
			if _, err := w.Acknowledge(ctx, id); err != nil {
				return result, err
			}
			result.Changed = append(result.Changed, id)
		}
	}

	w.logger.Info("pass complete", "checked", result.Checked, "new", len(result.New), "changed", len(result.Changed))
	return result, nil
}

// awaitAck holds the Alerting state: the alert repeats every interval until
// the operator acknowledges. There is no timeout.
func (w *Watcher) awaitAck(ctx context.Context, id string, fp Fingerprint) error {
	ack, stop := w.acks.Listen()
	defer stop()

	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	alarm := Alarm{Ticket: id, Fingerprint: fp}
	start := w.clock.Now()
	w.emit(ctx, alarm)

	for {
		select {
		case <-ack:
			w.logger.Info("change acknowledged", "ticket", id, "repeats", alarm.Repeat, "waited", w.clock.Now().Sub(start))
			return nil
		case <-ticker.C():
			alarm.Repeat++
			w.emit(ctx, alarm)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// emit presents one alarm. A failing alert sink must not end Alerting, so
// the error is logged and the loop keeps going.
func (w *Watcher) emit(ctx context.Context, a Alarm) {
	if err := w.alerter.Alert(ctx, a); err != nil {
		w.logger.Error("alert failed", "ticket", a.Ticket, "error", err)
	}
}

// Acknowledge re-fetches the ticket and stores its fingerprint as the new
// baseline. The fingerprint is recomputed rather than reusing the one that
// raised the alert, so drift during the wait is absorbed.
func (w *Watcher) Acknowledge(ctx context.Context, id string) (Fingerprint, error) {
	fp, err := w.detector.Fingerprint(ctx, id)
	if err != nil {
		return "", fmt.Errorf("re-fetching %s after acknowledgement: %w", id, err)
	}
	if err := w.store.Upsert(id, fp); err != nil {
		return "", fmt.Errorf("updating baseline for %s: %w", id, err)
	}
	w.logger.Info("baseline updated", "ticket", id, "fingerprint", fp.String())

	if err := w.alerter.Acknowledged(ctx, id, fp); err != nil {
		w.logger.Error("acknowledgement notice failed", "ticket", id, "error", err)
	}
	return fp, nil
}

// Bootstrap rebuilds the baseline store from scratch for the whole watch
// list. progress, if non-nil, is called after each ticket is stored.
func (w *Watcher) Bootstrap(ctx context.Context, progress func(id string, fp Fingerprint)) (int, error) {
	if err := w.store.ResetAll(); err != nil {
		return 0, fmt.Errorf("resetting baseline store: %w", err)
	}

	count := 0
	for _, id := range w.watchList {
		fp, err := w.detector.Fingerprint(ctx, id)
		if err != nil {
			return count, fmt.Errorf("baselining %s: %w", id, err)
		}
		if err := w.store.Upsert(id, fp); err != nil {
			return count, fmt.Errorf("storing baseline for %s: %w", id, err)
		}
		count++
		w.logger.Info("ticket baselined", "ticket", id, "fingerprint", fp.String())
		if progress != nil {
			progress(id, fp)
		}
	}
	return count, nil
}
