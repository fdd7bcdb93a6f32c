package alert

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/slack-go/slack"

	"tickler/internal/tickler"
)

const (
	changedReaction = "rotating_light"
	ackedReaction   = "white_check_mark"

	// DefaultSlackTimeout bounds every Slack API call.
	DefaultSlackTimeout = 10 * time.Second
)

// slackAPI is the subset of *slack.Client the notifier calls.
type slackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	AddReactionContext(ctx context.Context, name string, item slack.ItemRef) error
}

// Slack posts one message per detected change and a threaded reply when it
// is acknowledged. Repeats of the same alarm are not posted; the channel
// would otherwise get one message per second.
//
// The alert message is posted in the background so a slow Slack never
// holds up the terminal alert or the acknowledgement. Post failures are
// logged.
type Slack struct {
	client  slackAPI
	channel string
	logger  tickler.Logger
	timeout time.Duration

	mu      sync.Mutex
	threads map[string]*slackThread
}

// slackThread is the alert message of one Alerting episode. done is closed
// once the post has finished, successfully or not.
type slackThread struct {
	done    chan struct{}
	channel string
	ts      string
}

// NewSlack creates a Slack notifier posting to channel with a bot token.
// Every API call is bounded by timeout; a non-positive timeout uses
// DefaultSlackTimeout.
func NewSlack(token, channel string, timeout time.Duration, logger tickler.Logger, opts ...slack.Option) *Slack {
	if timeout <= 0 {
		timeout = DefaultSlackTimeout
	}
	opts = append([]slack.Option{slack.OptionHTTPClient(&http.Client{Timeout: timeout})}, opts...)
	s := newSlack(slack.New(token, opts...), channel, logger)
	s.timeout = timeout
	return s
}

func newSlack(client slackAPI, channel string, logger tickler.Logger) *Slack {
	return &Slack{
		client:  client,
		channel: channel,
		logger:  logger,
		timeout: DefaultSlackTimeout,
		threads: make(map[string]*slackThread),
	}
}

func (s *Slack) Alert(ctx context.Context, a tickler.Alarm) error {
	if a.Repeat > 0 {
		return nil
	}

	t := &slackThread{done: make(chan struct{})}
	s.mu.Lock()
	s.threads[a.Ticket] = t
	s.mu.Unlock()

	go s.postAlert(ctx, a, t)
	return nil
}

func (s *Slack) postAlert(ctx context.Context, a tickler.Alarm, t *slackThread) {
	defer close(t.done)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	text := fmt.Sprintf(":rotating_light: *%s* has changed (fingerprint `%s`). Waiting for acknowledgement.", a.Ticket, a.Fingerprint.Short())
	channel, ts, err := s.client.PostMessageContext(ctx, s.channel, slack.MsgOptionText(text, false))
	if err != nil {
		s.logger.Error("posting slack alert failed", "ticket", a.Ticket, "error", err)
		return
	}
	t.channel, t.ts = channel, ts

	if err := s.client.AddReactionContext(ctx, changedReaction, slack.NewRefToMessage(channel, ts)); err != nil {
		s.logger.Warn("failed to add reaction", "ticket", a.Ticket, "error", err)
	}
}

// Acknowledged waits for the pending alert post, at most one timeout, and
// replies in its thread.
func (s *Slack) Acknowledged(ctx context.Context, ticket string, fp tickler.Fingerprint) error {
	s.mu.Lock()
	t := s.threads[ticket]
	delete(s.threads, ticket)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var channel, ts string
	if t != nil {
		select {
		case <-t.done:
			channel, ts = t.channel, t.ts
		case <-ctx.Done():
		}
	}

	opts := []slack.MsgOption{
		slack.MsgOptionText(fmt.Sprintf(":white_check_mark: *%s* acknowledged, baseline is now `%s`.", ticket, fp.Short()), false),
	}
	if ts != "" {
		opts = append(opts, slack.MsgOptionTS(ts))
	}

	if _, _, err := s.client.PostMessageContext(ctx, s.channel, opts...); err != nil {
		return fmt.Errorf("posting acknowledgement for %s: %w", ticket, err)
	}

	if ts != "" {
		if err := s.client.AddReactionContext(ctx, ackedReaction, slack.NewRefToMessage(channel, ts)); err != nil {
			s.logger.Warn("failed to add reaction", "ticket", ticket, "error", err)
		}
	}
	return nil
}

var _ tickler.Alerter = (*Slack)(nil)
