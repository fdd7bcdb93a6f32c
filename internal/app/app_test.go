package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/slack-go/slack"

	"tickler/internal/config"
	"tickler/internal/credentials"
	"tickler/internal/testutil"
	"tickler/internal/tickler"
	"tickler/internal/vault"
)

// readyAck acknowledges as soon as Alerting is entered.
type readyAck struct {
	listens int
}

func (r *readyAck) Listen() (<-chan struct{}, func()) {
	r.listens++
	ch := make(chan struct{})
	close(ch)
	return ch, func() {}
}

// delayedAck acknowledges after a fixed delay in Alerting.
type delayedAck struct {
	delay time.Duration
}

func (d delayedAck) Listen() (<-chan struct{}, func()) {
	ch := make(chan struct{})
	timer := time.AfterFunc(d.delay, func() { close(ch) })
	return ch, func() { timer.Stop() }
}

func newTestConfig(t *testing.T, tickets ...string) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.NewConfig("https://jira.example.com", base)
	cfg.Username = "me"
	cfg.Token = "secret"
	cfg.Tickets = tickets
	cfg.Alert.Bell = false
	cfg.Vault = config.VaultConfig{Type: "filesystem", FSVaultRoot: filepath.Join(base, "vault")}
	return cfg
}

func openTestApp(t *testing.T, cfg *config.Config, operation string, fetcher tickler.SnapshotFetcher, stdout *bytes.Buffer) *TicklerApp {
	t.Helper()
	a, err := NewTicklerApp(context.Background(), cfg, Options{
		Operation: operation,
		Stdout:    stdout,
		Stderr:    &bytes.Buffer{},
		Acks:      &readyAck{},
		Fetcher:   fetcher,
	})
	if err != nil {
		t.Fatalf("NewTicklerApp() error = %v", err)
	}
	return a
}

func TestTicklerApp_BootstrapThenCheck(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t, "OPS-1", "OPS-2")
	fetcher := testutil.NewFakeFetcher()
	fetcher.Set("OPS-1", testutil.Snapshot("OPS-1", "Open", "a"))
	fetcher.Set("OPS-2", testutil.Snapshot("OPS-2", "Open", "b"))

	var stdout bytes.Buffer
	a := openTestApp(t, cfg, OpBootstrap, fetcher, &stdout)
	n, err := a.Bootstrap(ctx, nil)
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Bootstrap() = %d, want 2", n)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	fsVault, err := vault.NewFileSystemVault(cfg.Vault.FSVaultRoot)
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}
	version, err := fsVault.GetBackupVersion(ctx, BackupName)
	if err != nil {
		t.Fatalf("GetBackupVersion() error = %v", err)
	}
	if version != 1 {
		t.Errorf("vault version after bootstrap = %d, want 1", version)
	}

	a = openTestApp(t, cfg, OpCheck, fetcher, &stdout)
	result, err := a.Check(ctx)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if len(result.Unchanged) != 2 {
		t.Errorf("Unchanged = %v, want both tickets", result.Unchanged)
	}
	if stdout.Len() != 0 {
		t.Errorf("unexpected alert output: %q", stdout.String())
	}

	runs, err := a.History(10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(runs) != 2 || runs[0].Operation != OpCheck || runs[1].Operation != OpBootstrap {
		t.Errorf("runs = %+v, want check then bootstrap", runs)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Unchanged pass leaves the vault copy alone.
	version, _ = fsVault.GetBackupVersion(ctx, BackupName)
	if version != 1 {
		t.Errorf("vault version after unchanged check = %d, want 1", version)
	}
}

func TestTicklerApp_CheckChangedTicket(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t, "OPS-1")
	fetcher := testutil.NewFakeFetcher()
	fetcher.Set("OPS-1", testutil.Snapshot("OPS-1", "Open", "a"))

	var stdout bytes.Buffer
	a := openTestApp(t, cfg, OpBootstrap, fetcher, &stdout)
	if _, err := a.Bootstrap(ctx, nil); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	a.Close()

	changed := testutil.Snapshot("OPS-1", "Resolved", "a")
	fetcher.Set("OPS-1", changed)

	a = openTestApp(t, cfg, OpCheck, fetcher, &stdout)
	result, err := a.Check(ctx)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if len(result.Changed) != 1 {
		t.Errorf("Changed = %v, want [OPS-1]", result.Changed)
	}
	if !strings.Contains(stdout.String(), "Ticket OPS-1 has changed!") {
		t.Errorf("stdout = %q, want change alert", stdout.String())
	}

	baselines, err := a.Baselines()
	if err != nil {
		t.Fatalf("Baselines() error = %v", err)
	}
	if len(baselines) != 1 || baselines[0].Fingerprint != string(tickler.BuildFingerprint(changed)) {
		t.Errorf("baselines = %+v, want acknowledged fingerprint", baselines)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	fsVault, _ := vault.NewFileSystemVault(cfg.Vault.FSVaultRoot)
	if version, _ := fsVault.GetBackupVersion(ctx, BackupName); version != 2 {
		t.Errorf("vault version = %d, want 2", version)
	}
}

func TestTicklerApp_CheckFailureRecordsError(t *testing.T) {
	cfg := newTestConfig(t, "OPS-1")
	fetcher := testutil.NewFakeFetcher()
	fetcher.SetError("OPS-1", &tickler.AuthError{Ticket: "OPS-1", StatusCode: 401})

	a := openTestApp(t, cfg, OpCheck, fetcher, &bytes.Buffer{})
	_, err := a.Check(context.Background())
	var authErr *tickler.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Check() error = %v, want AuthError", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	a = openTestApp(t, cfg, OpCheck, fetcher, &bytes.Buffer{})
	defer a.Close()
	runs, err := a.History(1)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(runs) != 1 || runs[0].Status != "error" {
		t.Errorf("runs = %+v, want one errored run", runs)
	}
}

func TestNewTicklerApp_RemoteAhead(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t, "OPS-1")

	fsVault, err := vault.NewFileSystemVault(cfg.Vault.FSVaultRoot)
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}
	if err := fsVault.PutBackup(ctx, BackupName, strings.NewReader("x"), 1, 42); err != nil {
		t.Fatalf("PutBackup() error = %v", err)
	}

	_, err = NewTicklerApp(ctx, cfg, Options{Operation: OpCheck, Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}})
	if err == nil || !strings.Contains(err.Error(), "behind") {
		t.Errorf("NewTicklerApp(check) error = %v, want behind-remote error", err)
	}

	for _, op := range []string{OpBootstrap, OpStatus, OpHistory} {
		a, err := NewTicklerApp(ctx, cfg, Options{Operation: op, Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}})
		if err != nil {
			t.Fatalf("NewTicklerApp(%s) error = %v", op, err)
		}
		a.Close()
	}
}

func TestTicklerApp_LogsRunID(t *testing.T) {
	cfg := newTestConfig(t, "OPS-1")
	fetcher := testutil.NewFakeFetcher()
	fetcher.Set("OPS-1", testutil.Snapshot("OPS-1", "Open", "a"))

	a, err := NewTicklerApp(context.Background(), cfg, Options{
		Operation: OpCheck,
		Stdout:    &bytes.Buffer{},
		Stderr:    &bytes.Buffer{},
		Acks:      &readyAck{},
		Fetcher:   fetcher,
		IDs:       testutil.NewStubIDGenerator(),
	})
	if err != nil {
		t.Fatalf("NewTicklerApp() error = %v", err)
	}
	if _, err := a.Check(context.Background()); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	a.Close()

	data, err := os.ReadFile(filepath.Join(cfg.LogDir, LogFileName))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "\tid-1\tnew ticket adopted\tticket=OPS-1") {
		t.Errorf("log file = %q, want adoption line tagged with run id", data)
	}
}

func TestNewTicklerApp_InvalidConfig(t *testing.T) {
	cfg := newTestConfig(t, "OPS-1", "OPS-1")
	if _, err := NewTicklerApp(context.Background(), cfg, Options{Operation: OpCheck}); err == nil {
		t.Error("NewTicklerApp() expected error for duplicate tickets")
	}
}

func TestTicklerApp_CheckAgainstJira(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/2/issue/OPS-1", func(w http.ResponseWriter, r *http.Request) {
		if user, pass, ok := r.BasicAuth(); !ok || user != "me" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"fields":{"created":"2024-01-15T10:30:00.000+0000","status":{"name":"Open"},"description":null}}`)
	})
	mux.HandleFunc("/rest/api/2/issue/OPS-1/comment", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"startAt":0,"maxResults":100,"total":0,"comments":[]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := newTestConfig(t, "OPS-1")
	cfg.Server = srv.URL

	a := openTestApp(t, cfg, OpCheck, nil, &bytes.Buffer{})
	defer a.Close()

	result, err := a.Check(context.Background())
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if len(result.New) != 1 {
		t.Errorf("New = %v, want [OPS-1]", result.New)
	}
}

func TestTicklerApp_JiraToken(t *testing.T) {
	t.Run("plaintext token wins", func(t *testing.T) {
		cfg := newTestConfig(t)
		a := &TicklerApp{cfg: cfg}
		got, err := a.jiraToken()
		if err != nil || got != "secret" {
			t.Errorf("jiraToken() = %q, %v, want secret", got, err)
		}
	})

	t.Run("missing token file", func(t *testing.T) {
		cfg := newTestConfig(t)
		cfg.Token = ""
		a := &TicklerApp{cfg: cfg}
		if _, err := a.jiraToken(); !errors.Is(err, credentials.ErrNoToken) {
			t.Errorf("jiraToken() error = %v, want ErrNoToken", err)
		}
	})

	t.Run("encrypted token file with env passphrase", func(t *testing.T) {
		cfg := newTestConfig(t)
		cfg.Token = ""
		if err := credentials.NewTokenFile(cfg.TokenFile).Seal("from-file", "hunter2"); err != nil {
			t.Fatalf("Seal() error = %v", err)
		}
		t.Setenv(config.EnvTokenPassphrase, "hunter2")

		a := &TicklerApp{cfg: cfg}
		got, err := a.jiraToken()
		if err != nil {
			t.Fatalf("jiraToken() error = %v", err)
		}
		if got != "from-file" {
			t.Errorf("jiraToken() = %q, want %q", got, "from-file")
		}
	})
}

func TestTicklerApp_CheckWithHangingSlack(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx := context.Background()
	cfg := newTestConfig(t, "OPS-1")
	cfg.Vault = config.VaultConfig{}
	cfg.Alert.Interval = "20ms"
	cfg.Alert.Slack = config.SlackConfig{Token: "xoxb-test", Channel: "C123", Timeout: "200ms"}

	fetcher := testutil.NewFakeFetcher()
	fetcher.Set("OPS-1", testutil.Snapshot("OPS-1", "Open", "a"))
	a := openTestApp(t, cfg, OpBootstrap, fetcher, &bytes.Buffer{})
	if _, err := a.Bootstrap(ctx, nil); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	a.Close()

	fetcher.Set("OPS-1", testutil.Snapshot("OPS-1", "Resolved", "a"))
	var stdout bytes.Buffer
	a, err := NewTicklerApp(ctx, cfg, Options{
		Operation:    OpCheck,
		Stdout:       &stdout,
		Stderr:       &bytes.Buffer{},
		Acks:         delayedAck{delay: 300 * time.Millisecond},
		Fetcher:      fetcher,
		SlackOptions: []slack.Option{slack.OptionAPIURL(srv.URL + "/")},
	})
	if err != nil {
		t.Fatalf("NewTicklerApp() error = %v", err)
	}
	defer a.Close()

	type checkResult struct {
		result *tickler.PassResult
		err    error
	}
	done := make(chan checkResult, 1)
	go func() {
		r, err := a.Check(ctx)
		done <- checkResult{r, err}
	}()

	var got checkResult
	select {
	case got = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Check() still blocked after acknowledgement")
	}
	if got.err != nil {
		t.Fatalf("Check() error = %v", got.err)
	}
	if len(got.result.Changed) != 1 {
		t.Errorf("Changed = %v, want [OPS-1]", got.result.Changed)
	}
	// 300ms of Alerting at a 20ms interval; Slack must not hold up the repeats.
	if n := strings.Count(stdout.String(), "Ticket OPS-1 has changed!"); n < 5 {
		t.Errorf("terminal alerts = %d, want the alert repeated while Slack hangs", n)
	}
}
