package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"tickler/internal/config"
	"tickler/internal/database"
	"tickler/internal/tickler"
	"tickler/internal/vault"
)

// Restore replaces the local baseline database with the vault copy and
// returns the version (run ID) of the restored copy. A local database with
// newer runs than the copy is only overwritten when force is set.
func Restore(ctx context.Context, cfg *config.Config, opts Options, force bool) (int64, error) {
	if cfg.Database.Type != "sqlite" && cfg.Database.Type != "" {
		return 0, fmt.Errorf("cannot restore into a %s database", cfg.Database.Type)
	}
	if cfg.Database.DataDir == "" {
		return 0, fmt.Errorf("data_dir required for sqlite database")
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.IDs == nil {
		opts.IDs = tickler.UUIDGenerator{}
	}

	v, err := vault.NewVaultFromConfig(ctx, cfg.Vault)
	if err != nil {
		return 0, fmt.Errorf("creating vault: %w", err)
	}
	if v == nil {
		return 0, errors.New("no vault configured")
	}

	slogger, logFile, err := newLogger(cfg.LogDir, opts.IDs.New(), opts.Verbose, opts.Stderr)
	if err != nil {
		return 0, fmt.Errorf("creating logger: %w", err)
	}
	defer logFile.Close()
	logger := &slogAdapter{l: slogger}

	remote, err := v.GetBackupVersion(ctx, BackupName)
	if err != nil {
		return 0, fmt.Errorf("checking remote backup version: %w", err)
	}
	if remote == 0 {
		return 0, fmt.Errorf("%w: %s", vault.ErrBackupNotFound, BackupName)
	}

	dbPath := filepath.Join(cfg.Database.DataDir, database.DatabaseFileName)
	if !force {
		if err := checkLocalNotNewer(dbPath, remote); err != nil {
			return 0, err
		}
	}

	if err := os.MkdirAll(cfg.Database.DataDir, 0700); err != nil {
		return 0, fmt.Errorf("creating data directory: %w", err)
	}
	tmpFile, err := os.CreateTemp(cfg.Database.DataDir, "tickler-restore-*.sqlite")
	if err != nil {
		return 0, fmt.Errorf("creating temp file for restore: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	err = v.GetBackup(ctx, BackupName, tmpFile)
	if cerr := tmpFile.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("downloading db backup from vault: %w", err)
	}

	if err := verifyBackup(tmpPath); err != nil {
		return 0, fmt.Errorf("vault copy is unusable: %w", err)
	}

	if err := os.Rename(tmpPath, dbPath); err != nil {
		return 0, fmt.Errorf("replacing baseline database: %w", err)
	}
	logger.Info("baselines restored from vault", "version", remote, "path", dbPath, "forced", force)
	return remote, nil
}

// checkLocalNotNewer refuses to overwrite a database holding runs the vault
// copy does not have. A missing database is fine.
func checkLocalNotNewer(dbPath string, remote int64) error {
	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	db, err := database.NewSQLiteDatabase(dbPath)
	if err != nil {
		return fmt.Errorf("opening local baselines (use --force to overwrite): %w", err)
	}
	defer db.Close()

	local, err := db.MaxRunID()
	if err != nil {
		return fmt.Errorf("checking local run history (use --force to overwrite): %w", err)
	}
	if local > remote {
		return fmt.Errorf("local baselines are newer than the vault copy (local=%d, remote=%d): use --force to overwrite", local, remote)
	}
	return nil
}

// verifyBackup opens a downloaded copy and checks its schema.
func verifyBackup(path string) error {
	db, err := database.NewSQLiteDatabase(path)
	if err != nil {
		return err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return err
	}
	return db.Close()
}
