package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Environment variables that override credentials from the config file.
const (
	EnvJiraUsername = "TICKLER_JIRA_USERNAME"
	EnvJiraToken    = "TICKLER_JIRA_TOKEN"
	EnvSlackToken   = "TICKLER_SLACK_TOKEN"

	// EnvTokenPassphrase unlocks token_file without a prompt.
	EnvTokenPassphrase = "TICKLER_TOKEN_PASSPHRASE"
)

// Config represents the main configuration for tickler.
type Config struct {
	Server    string   `toml:"server"`
	Username  string   `toml:"username"`
	Token     string   `toml:"token,omitempty"`      // plaintext API token; prefer token_file
	TokenFile string   `toml:"token_file,omitempty"` // age-encrypted API token
	Tickets   []string `toml:"tickets"`              // watch list, checked in this order

	BaseDir  string         `toml:"base_dir"`
	LogDir   string         `toml:"log_dir"`
	Database DatabaseConfig `toml:"database"`
	Alert    AlertConfig    `toml:"alert"`
	Vault    VaultConfig    `toml:"vault"`
}

// DatabaseConfig represents configuration for the baseline database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// AlertConfig controls how a detected change is announced.
type AlertConfig struct {
	Interval string      `toml:"interval"` // Go duration, defaults to "1s"
	Bell     bool        `toml:"bell"`
	Slack    SlackConfig `toml:"slack"`
}

// SlackConfig enables a Slack message per detected change. Empty Token disables it.
type SlackConfig struct {
	Token   string `toml:"token,omitempty"`
	Channel string `toml:"channel,omitempty"`
	Timeout string `toml:"timeout,omitempty"` // Go duration per API call, defaults to "10s"
}

// VaultConfig represents an off-host destination for baseline database copies.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type,omitempty"` // "", "memory", "filesystem" or "s3"; empty disables copies

	// S3-specific fields (only used when Type == "s3")
	S3Bucket string `toml:"s3_bucket,omitempty"`
	S3Prefix string `toml:"s3_prefix,omitempty"`
	S3Region string `toml:"s3_region,omitempty"`

	// Static credentials and a custom endpoint are for S3-compatible stores.
	// Without them the default AWS credential chain applies.
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// NewConfig creates a Config with defaults rooted at baseDir.
func NewConfig(server, baseDir string) *Config {
	return &Config{
		Server:    server,
		BaseDir:   baseDir,
		LogDir:    filepath.Join(baseDir, "log"),
		TokenFile: filepath.Join(baseDir, "keys", "jira-token.age"),
		Tickets:   []string{},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Alert: AlertConfig{
			Interval: "1s",
			Bell:     true,
		},
	}
}

// AlertInterval parses Alert.Interval. Empty means one second.
func (c *Config) AlertInterval() (time.Duration, error) {
	if c.Alert.Interval == "" {
		return time.Second, nil
	}
	d, err := time.ParseDuration(c.Alert.Interval)
	if err != nil {
		return 0, fmt.Errorf("invalid alert interval %q: %w", c.Alert.Interval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("alert interval must be positive, got %s", d)
	}
	return d, nil
}

// SlackTimeout parses Alert.Slack.Timeout. Zero means the alerter default.
func (c *Config) SlackTimeout() (time.Duration, error) {
	if c.Alert.Slack.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Alert.Slack.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid slack timeout %q: %w", c.Alert.Slack.Timeout, err)
	}
	return d, nil
}

// Validate checks the fields every run needs.
func (c *Config) Validate() error {
	if c.Server == "" {
		return errors.New("server is required")
	}
	if c.Username == "" {
		return errors.New("username is required")
	}
	seen := make(map[string]bool, len(c.Tickets))
	for _, id := range c.Tickets {
		if id == "" {
			return errors.New("tickets contains an empty identifier")
		}
		if seen[id] {
			return fmt.Errorf("ticket %s is listed twice", id)
		}
		seen[id] = true
	}
	if _, err := c.AlertInterval(); err != nil {
		return err
	}
	if _, err := c.SlackTimeout(); err != nil {
		return err
	}
	return nil
}

// ApplyEnv loads envFile (if it exists) into the process environment and
// lets the TICKLER_* variables override credentials.
func (c *Config) ApplyEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", envFile, err)
		}
	}
	if v := os.Getenv(EnvJiraUsername); v != "" {
		c.Username = v
	}
	if v := os.Getenv(EnvJiraToken); v != "" {
		c.Token = v
	}
	if v := os.Getenv(EnvSlackToken); v != "" {
		c.Alert.Slack.Token = v
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The file may hold credentials.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to path, refusing to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
