package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tickler/internal/app"
	"tickler/internal/config"
	"tickler/internal/credentials"
	"tickler/internal/tickler"
	"tickler/internal/vault"
)

func main() {
	// SIGINT is left alone: while a change alert is showing it is the
	// acknowledgement, and otherwise it ends the process as usual.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and overlays the .env file and
// environment.
func loadConfig() (*config.Config, map[string]string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, nil, fmt.Errorf("reading config: %w", err)
	}
	if err := cfg.ApplyEnv(defaults["env_file"]); err != nil {
		return nil, nil, err
	}
	if cfg.LogDir == "" {
		cfg.LogDir = defaults["log_dir"]
	}
	return cfg, defaults, nil
}

// newApp reads the config and creates a TicklerApp. The caller must defer app.Close().
func newApp(cmd *cobra.Command, operation string) (*app.TicklerApp, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	a, err := app.NewTicklerApp(cmd.Context(), cfg, app.Options{
		Operation: operation,
		Verbose:   verbose,
		Stdout:    cmd.OutOrStdout(),
		Stderr:    cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// closeApp closes a and reports a close failure unless err is already set.
func closeApp(a *app.TicklerApp, err *error) {
	if cerr := a.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}

var rootCmd = &cobra.Command{
	Use:           "tickler",
	Short:         "Watch Jira tickets and alert until changes are acknowledged",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		initialize, _ := cmd.Flags().GetBool("init")
		if initialize {
			return runBootstrap(cmd)
		}
		return runCheck(cmd)
	},
}

func runCheck(cmd *cobra.Command) (err error) {
	a, err := newApp(cmd, app.OpCheck)
	if err != nil {
		return err
	}
	defer closeApp(a, &err)

	result, err := a.Check(cmd.Context())
	if err != nil {
		return err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	if verbose {
		fmt.Fprintf(cmd.OutOrStdout(), "Done checking %d tickets (%d new, %d changed). Exiting...\n",
			result.Checked, len(result.New), len(result.Changed))
	}
	return nil
}

func runBootstrap(cmd *cobra.Command) (err error) {
	a, err := newApp(cmd, app.OpBootstrap)
	if err != nil {
		return err
	}
	defer closeApp(a, &err)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Initializing baseline store")
	n, err := a.Bootstrap(cmd.Context(), func(id string, fp tickler.Fingerprint) {
		fmt.Fprintf(out, "Added %s (%s)\n", id, fp.Short())
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Done. %d tickets baselined; tickets added to the config later are adopted automatically.\n", n)
	return nil
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List stored baselines",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, app.OpStatus)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		baselines, err := a.Baselines()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(baselines) == 0 {
			fmt.Fprintln(out, "No baselines stored. Run 'tickler --init' first.")
			return nil
		}
		for _, b := range baselines {
			fmt.Fprintf(out, "%-20s  %s  %s\n",
				b.TicketID,
				tickler.Fingerprint(b.Fingerprint).Short(),
				b.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
			)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View run history",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, app.OpHistory)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		runs, err := a.History(limit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(runs) == 0 {
			fmt.Fprintln(out, "No runs recorded.")
			return nil
		}

		for _, r := range runs {
			duration := ""
			if r.FinishedAt.Valid {
				d := r.FinishedAt.Time.Sub(r.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Fprintf(out, "#%d  %-10s  %s  %-8s  %3d tickets  %s\n",
				r.ID,
				r.Operation,
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				r.Status,
				r.Tickets,
				duration,
			)
		}
		return nil
	},
}

// restore command
var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Replace the local baselines with the vault copy",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		force, _ := cmd.Flags().GetBool("force")
		verbose, _ := cmd.Flags().GetBool("verbose")
		version, err := app.Restore(cmd.Context(), cfg, app.Options{
			Verbose: verbose,
			Stderr:  cmd.ErrOrStderr(),
		}, force)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Restored baselines from the vault copy of run #%d\n", version)
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		server, _ := cmd.Flags().GetString("server")
		username, _ := cmd.Flags().GetString("username")
		tickets, _ := cmd.Flags().GetStringSlice("ticket")

		cfg := config.NewConfig(server, defaults["base_dir"])
		cfg.Username = username
		if len(tickets) > 0 {
			cfg.Tickets = tickets
		}

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Configuration initialized at %s\n", defaults["config_path"])
		fmt.Fprintf(out, "Base Dir: %s\n", defaults["base_dir"])
		if server == "" || username == "" {
			fmt.Fprintln(out, "Edit the file to set server and username before the first run.")
		}
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, defaults, err := loadConfig()
		if err != nil {
			return err
		}

		token := "(not set)"
		if cfg.Token != "" {
			token = "(set)"
		}
		vaultType := cfg.Vault.Type
		if vaultType == "" {
			vaultType = "(disabled)"
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Configuration from %s:\n\n", defaults["config_path"])
		fmt.Fprintf(out, "Server:     %s\n", cfg.Server)
		fmt.Fprintf(out, "Username:   %s\n", cfg.Username)
		fmt.Fprintf(out, "Token:      %s\n", token)
		fmt.Fprintf(out, "Token File: %s\n", cfg.TokenFile)
		fmt.Fprintf(out, "Base Dir:   %s\n", cfg.BaseDir)
		fmt.Fprintf(out, "Log Dir:    %s\n", cfg.LogDir)
		fmt.Fprintf(out, "Database:   %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Fprintf(out, "Alert:      every %s, bell=%v, slack=%v\n", cfg.Alert.Interval, cfg.Alert.Bell, cfg.Alert.Slack.Channel != "")
		fmt.Fprintf(out, "Vault:      %s\n", vaultType)
		fmt.Fprintf(out, "Tickets:\n")
		for _, id := range cfg.Tickets {
			fmt.Fprintf(out, "  %s\n", id)
		}
		return nil
	},
}

var configVaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Manage vault",
}

var configVaultCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the configured vault is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		v, err := vault.NewVaultFromConfig(cmd.Context(), cfg.Vault)
		if err != nil {
			return fmt.Errorf("creating vault: %w", err)
		}
		if v == nil {
			return errors.New("no vault configured")
		}
		if err := v.ValidateSetup(cmd.Context()); err != nil {
			return err
		}

		version, err := v.GetBackupVersion(cmd.Context(), app.BackupName)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Vault %s is reachable; latest baseline copy is from run #%d\n", cfg.Vault.Type, version)
		return nil
	},
}

// credentials command
var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage the Jira API token",
}

var credentialsSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Store the Jira API token encrypted under a passphrase",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.TokenFile == "" {
			return errors.New("token_file is not set in the config")
		}

		stderr := cmd.ErrOrStderr()
		token, err := credentials.ReadSecret("Jira API token: ", stderr)
		if err != nil {
			return err
		}
		passphrase, err := credentials.ReadSecret("Passphrase: ", stderr)
		if err != nil {
			return err
		}
		confirm, err := credentials.ReadSecret("Confirm passphrase: ", stderr)
		if err != nil {
			return err
		}
		if passphrase != confirm {
			return errors.New("passphrases do not match")
		}

		tf := credentials.NewTokenFile(cfg.TokenFile)
		if err := tf.Seal(token, passphrase); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Token stored at %s\n", tf.Path())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log progress to stderr")
	rootCmd.Flags().Bool("init", false, "Discard all baselines and record every watched ticket as it is now")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().String("server", "", "Jira base URL")
	configInitCmd.Flags().String("username", "", "Jira username")
	configInitCmd.Flags().StringSlice("ticket", nil, "Ticket to watch (repeatable)")
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configVaultCmd)
	configVaultCmd.AddCommand(configVaultCheckCmd)

	credentialsCmd.AddCommand(credentialsSetupCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(credentialsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(restoreCmd)
	restoreCmd.Flags().Bool("force", false, "Overwrite local baselines even when they are newer than the vault copy")
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of runs to show")
}
