package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/slack-go/slack"

	"tickler/internal/alert"
	"tickler/internal/config"
	"tickler/internal/credentials"
	"tickler/internal/database"
	"tickler/internal/jira"
	"tickler/internal/model"
	"tickler/internal/tickler"
	"tickler/internal/vault"
)

// BackupName is the vault name of the baseline database copy.
const BackupName = "baselines"

// Options carries per-invocation settings that do not belong in the config file.
type Options struct {
	Operation string
	Verbose   bool
	Stdout    io.Writer // alerts and progress
	Stderr    io.Writer // verbose logs and prompts

	// Acks overrides the interrupt-signal acknowledgement source.
	Acks tickler.AckSource
	// Fetcher overrides the Jira client.
	Fetcher tickler.SnapshotFetcher
	// IDs generates the run ID written on every log line.
	IDs tickler.IDGenerator
	// SlackOptions are passed to the Slack client, e.g. a different API URL.
	SlackOptions []slack.Option
}

// TicklerApp is the application layer between the CLI and the Watcher.
// It constructs all dependencies from config, records runs, and manages
// the DB lifecycle on Close.
type TicklerApp struct {
	cfg     *config.Config
	opts    Options
	db      *database.SQLiteDatabase
	vault   vault.Vault
	logger  tickler.Logger
	run     *RunRecord
	logFile *os.File
}

// NewTicklerApp creates a fully wired TicklerApp from the given config.
// The caller must call Close when done.
func NewTicklerApp(ctx context.Context, cfg *config.Config, opts Options) (*TicklerApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.IDs == nil {
		opts.IDs = tickler.UUIDGenerator{}
	}

	v, err := vault.NewVaultFromConfig(ctx, cfg.Vault)
	if err != nil {
		return nil, fmt.Errorf("creating vault: %w", err)
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening baseline store: %w", err)
	}

	if v != nil && checksRemote(opts.Operation) {
		if err := checkRemoteVersion(ctx, v, db); err != nil {
			db.Close()
			return nil, err
		}
	}

	runID := opts.IDs.New()
	slogger, logFile, err := newLogger(cfg.LogDir, runID, opts.Verbose, opts.Stderr)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	return &TicklerApp{
		cfg:     cfg,
		opts:    opts,
		db:      db,
		vault:   v,
		logger:  &slogAdapter{l: slogger},
		run:     NewRunRecord(opts.Operation),
		logFile: logFile,
	}, nil
}

// checksRemote reports whether operation must refuse to run on baselines
// older than the vault copy. A bootstrap rebuilds everything, and the
// read-only commands work offline.
func checksRemote(operation string) bool {
	switch operation {
	case OpBootstrap, OpStatus, OpHistory:
		return false
	}
	return true
}

func checkRemoteVersion(ctx context.Context, v vault.Vault, db *database.SQLiteDatabase) error {
	remoteVersion, err := v.GetBackupVersion(ctx, BackupName)
	if err != nil {
		return fmt.Errorf("checking remote backup version: %w", err)
	}

	localMax, err := db.MaxRunID()
	if err != nil {
		return fmt.Errorf("checking local run history: %w", err)
	}

	if remoteVersion > localMax {
		return fmt.Errorf("local baselines are behind the vault copy (local=%d, remote=%d): run 'tickler restore' or --init", localMax, remoteVersion)
	}
	return nil
}

// persistRun saves the run record to the database, giving it an auto-increment ID.
func (a *TicklerApp) persistRun() error {
	if a.run.Persisted() {
		return nil
	}
	r, err := a.db.CreateRun(a.run.Operation)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	a.run.ID = r.ID
	return nil
}

func (a *TicklerApp) newWatcher() (*tickler.Watcher, error) {
	fetcher := a.opts.Fetcher
	if fetcher == nil {
		token, err := a.jiraToken()
		if err != nil {
			return nil, err
		}
		client, err := jira.NewClient(a.cfg.Server, a.cfg.Username, token, nil)
		if err != nil {
			return nil, fmt.Errorf("creating jira client: %w", err)
		}
		fetcher = client
	}

	acks := a.opts.Acks
	if acks == nil {
		acks = alert.NewSignalAckSource()
	}

	interval, err := a.cfg.AlertInterval()
	if err != nil {
		return nil, err
	}

	return tickler.NewWatcher(a.cfg.Tickets, a.db, fetcher, a.alerter(), acks, a.logger, tickler.RealClock{}, interval), nil
}

func (a *TicklerApp) alerter() tickler.Alerter {
	alerters := alert.Multi{alert.NewTerminal(a.opts.Stdout, a.cfg.Alert.Bell)}
	if s := a.cfg.Alert.Slack; s.Token != "" && s.Channel != "" {
		// Validate has already parsed the timeout.
		timeout, _ := a.cfg.SlackTimeout()
		alerters = append(alerters, alert.NewSlack(s.Token, s.Channel, timeout, a.logger, a.opts.SlackOptions...))
	}
	return alerters
}

// jiraToken returns the plaintext token from config or environment, or
// unlocks token_file with TICKLER_TOKEN_PASSPHRASE or an interactive prompt.
func (a *TicklerApp) jiraToken() (string, error) {
	if a.cfg.Token != "" {
		return a.cfg.Token, nil
	}
	if a.cfg.TokenFile == "" {
		return "", fmt.Errorf("no jira token configured: set %s or token_file", config.EnvJiraToken)
	}

	tf := credentials.NewTokenFile(a.cfg.TokenFile)
	if !tf.Exists() {
		return "", fmt.Errorf("%w at %s: run 'tickler credentials setup' or set %s", credentials.ErrNoToken, tf.Path(), config.EnvJiraToken)
	}

	passphrase := os.Getenv(config.EnvTokenPassphrase)
	if passphrase == "" {
		var err error
		passphrase, err = credentials.ReadSecret(fmt.Sprintf("Passphrase for %s: ", tf.Path()), a.opts.Stderr)
		if err != nil {
			return "", fmt.Errorf("unlocking jira token (set %s for non-interactive use): %w", config.EnvTokenPassphrase, err)
		}
	}
	return tf.Open(passphrase)
}

// Check runs one pass over the watch list. A changed ticket blocks until
// the operator acknowledges it.
func (a *TicklerApp) Check(ctx context.Context) (*tickler.PassResult, error) {
	if err := a.persistRun(); err != nil {
		return nil, err
	}

	w, err := a.newWatcher()
	if err != nil {
		a.run.Status = "error"
		return nil, err
	}

	result, err := w.RunPass(ctx)
	if result != nil {
		a.run.Tickets = result.Checked
		if len(result.New) > 0 || len(result.Changed) > 0 {
			a.run.Mutated = true
		}
	}
	if err != nil {
		a.run.Status = "error"
		a.logger.Error("check failed", "error", err)
		return result, err
	}
	return result, nil
}

// Bootstrap discards all baselines and records the current fingerprint of
// every watched ticket. progress, if non-nil, is called per ticket.
func (a *TicklerApp) Bootstrap(ctx context.Context, progress func(id string, fp tickler.Fingerprint)) (int, error) {
	if err := a.persistRun(); err != nil {
		return 0, err
	}

	w, err := a.newWatcher()
	if err != nil {
		a.run.Status = "error"
		return 0, err
	}

	n, err := w.Bootstrap(ctx, progress)
	a.run.Tickets = n
	a.run.Mutated = true
	if err != nil {
		a.run.Status = "error"
		a.logger.Error("bootstrap failed", "error", err)
		return n, err
	}
	return n, nil
}

// Baselines lists the stored baselines without contacting Jira.
func (a *TicklerApp) Baselines() ([]*model.Baseline, error) {
	return a.db.ListBaselines()
}

// History returns the most recent runs.
func (a *TicklerApp) History(limit int) ([]*model.Run, error) {
	return a.db.ListRuns(limit)
}

// Close finalizes the run and closes all resources.
// For runs that wrote baselines: backs up the DB and uploads it to the vault.
func (a *TicklerApp) Close() error {
	var errs []error

	if a.run.Persisted() {
		if err := a.db.FinishRun(a.run.ID, a.run.Status, a.run.Tickets); err != nil {
			errs = append(errs, fmt.Errorf("finishing run: %w", err))
		}
	}

	if a.run.Mutated && a.vault != nil {
		if err := a.backupToVault(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return errors.Join(errs...)
}

// backupToVault snapshots the DB to a temp file and uploads it with
// version = run ID.
func (a *TicklerApp) backupToVault() error {
	tmpFile, err := os.CreateTemp("", "tickler-db-backup-*.sqlite")
	if err != nil {
		return fmt.Errorf("creating temp file for db backup: %w", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	if err := a.db.BackupTo(tmpPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("opening db backup for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat db backup: %w", err)
	}

	// Close may run after the pass context is cancelled.
	if err := a.vault.PutBackup(context.Background(), BackupName, f, info.Size(), a.run.ID); err != nil {
		return fmt.Errorf("uploading db backup to vault: %w", err)
	}
	a.logger.Info("baselines copied to vault", "version", a.run.ID, "bytes", info.Size())
	return nil
}
