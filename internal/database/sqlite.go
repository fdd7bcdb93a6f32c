package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"tickler/internal/database/migrations"
	"tickler/internal/model"
	"tickler/internal/tickler"
)

// baselinesDDL must match migration 000001; ResetAll recreates the table
// with it.
const baselinesDDL = `CREATE TABLE baselines (
    ticket_id   TEXT PRIMARY KEY NOT NULL,
    fingerprint TEXT NOT NULL,
    updated_at  DATETIME NOT NULL
)`

// SQLiteDatabase implements tickler.BaselineStore and the run history on a
// single SQLite file.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewSQLiteDatabase opens the database at path, or ":memory:".
// Call Migrate before use on a fresh file.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteDatabase{db: db, path: path, now: time.Now}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing connection.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db, now: time.Now}
}

// OpenConnection opens and configures a SQLite connection.
//
// The pool is limited to one connection: a ":memory:" database exists per
// connection, and a single connection serializes every transaction.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, storeError("configuring database", err)
	}

	// Forces SQLite to read the header, so a non-database file fails here.
	var n int
	if err := db.QueryRow("SELECT count(*) FROM sqlite_master").Scan(&n); err != nil {
		db.Close()
		return nil, storeError("reading database "+path, err)
	}

	return db, nil
}

// storeError wraps err with tickler.ErrStoreCorruption when SQLite reports
// that the file itself is unusable.
func storeError(op string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrCorrupt, sqlite3.ErrNotADB, sqlite3.ErrCantOpen,
			sqlite3.ErrIoErr, sqlite3.ErrReadonly, sqlite3.ErrPerm:
			return fmt.Errorf("%s: %w: %w", op, tickler.ErrStoreCorruption, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isDuplicateKey(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// Baseline operations

func (s *SQLiteDatabase) Get(id string) (tickler.Fingerprint, error) {
	ctx := context.Background()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", storeError("starting transaction", err)
	}
	defer tx.Rollback()

	var fp string
	err = tx.QueryRowContext(ctx, "SELECT fingerprint FROM baselines WHERE ticket_id = ?", id).Scan(&fp)
	if errors.Is(err, sql.ErrNoRows) {
		return "", tickler.ErrNotFound
	}
	if err != nil {
		return "", storeError("reading baseline", err)
	}

	if err := tx.Commit(); err != nil {
		return "", storeError("committing transaction", err)
	}
	return tickler.Fingerprint(fp), nil
}

func (s *SQLiteDatabase) Insert(id string, fp tickler.Fingerprint) error {
	ctx := context.Background()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("starting transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO baselines (ticket_id, fingerprint, updated_at) VALUES (?, ?, ?)",
		id, string(fp), s.now().UTC())
	if isDuplicateKey(err) {
		return fmt.Errorf("inserting baseline for %s: %w", id, tickler.ErrDuplicateKey)
	}
	if err != nil {
		return storeError("inserting baseline", err)
	}

	if err := tx.Commit(); err != nil {
		return storeError("committing transaction", err)
	}
	return nil
}

func (s *SQLiteDatabase) Upsert(id string, fp tickler.Fingerprint) error {
	ctx := context.Background()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("starting transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO baselines (ticket_id, fingerprint, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (ticket_id) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			updated_at  = excluded.updated_at`,
		id, string(fp), s.now().UTC())
	if err != nil {
		return storeError("upserting baseline", err)
	}

	if err := tx.Commit(); err != nil {
		return storeError("committing transaction", err)
	}
	return nil
}

// ResetAll drops and recreates the baselines table in one transaction.
// SQLite DDL is transactional, so a crash leaves either the old table or
// the new empty one.
func (s *SQLiteDatabase) ResetAll() error {
	ctx := context.Background()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("starting transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS baselines"); err != nil {
		return storeError("dropping baselines", err)
	}
	if _, err := tx.ExecContext(ctx, baselinesDDL); err != nil {
		return storeError("creating baselines", err)
	}

	if err := tx.Commit(); err != nil {
		return storeError("committing transaction", err)
	}
	return nil
}

// ListBaselines returns every stored baseline ordered by ticket ID.
func (s *SQLiteDatabase) ListBaselines() ([]*model.Baseline, error) {
	rows, err := s.db.Query("SELECT ticket_id, fingerprint, updated_at FROM baselines ORDER BY ticket_id")
	if err != nil {
		return nil, storeError("listing baselines", err)
	}
	defer rows.Close()

	var result []*model.Baseline
	for rows.Next() {
		b := &model.Baseline{}
		if err := rows.Scan(&b.TicketID, &b.Fingerprint, &b.UpdatedAt); err != nil {
			return nil, storeError("scanning baseline", err)
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("listing baselines", err)
	}
	return result, nil
}

// Run tracking

func (s *SQLiteDatabase) CreateRun(operation string) (*model.Run, error) {
	run := &model.Run{
		Operation: operation,
		StartedAt: s.now().UTC(),
		Status:    "running",
	}
	res, err := s.db.Exec("INSERT INTO runs (operation, started_at, status) VALUES (?, ?, ?)",
		run.Operation, run.StartedAt, run.Status)
	if err != nil {
		return nil, storeError("creating run", err)
	}
	run.ID, err = res.LastInsertId()
	if err != nil {
		return nil, storeError("reading run id", err)
	}
	return run, nil
}

func (s *SQLiteDatabase) FinishRun(id int64, status string, tickets int) error {
	_, err := s.db.Exec("UPDATE runs SET finished_at = ?, status = ?, tickets = ? WHERE id = ?",
		s.now().UTC(), status, tickets, id)
	if err != nil {
		return storeError("finishing run", err)
	}
	return nil
}

// MaxRunID returns the highest run id, or 0 when no run has been recorded.
func (s *SQLiteDatabase) MaxRunID() (int64, error) {
	var id int64
	if err := s.db.QueryRow("SELECT COALESCE(MAX(id), 0) FROM runs").Scan(&id); err != nil {
		return 0, storeError("reading max run id", err)
	}
	return id, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteDatabase) ListRuns(limit int) ([]*model.Run, error) {
	rows, err := s.db.Query(
		"SELECT id, operation, started_at, finished_at, status, tickets FROM runs ORDER BY id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, storeError("listing runs", err)
	}
	defer rows.Close()

	var result []*model.Run
	for rows.Next() {
		r := &model.Run{}
		if err := rows.Scan(&r.ID, &r.Operation, &r.StartedAt, &r.FinishedAt, &r.Status, &r.Tickets); err != nil {
			return nil, storeError("scanning run", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("listing runs", err)
	}
	return result, nil
}

// Path returns the database file path (or ":memory:").
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// Migrate brings the schema up to date and verifies it. Any failure means
// the file cannot be trusted and is reported as store corruption.
func (s *SQLiteDatabase) Migrate() error {
	if err := migrations.MigrateUp(s.db); err != nil {
		return fmt.Errorf("%w: %w", tickler.ErrStoreCorruption, err)
	}
	if err := migrations.CheckDBMigrationStatus(s.db); err != nil {
		return fmt.Errorf("%w: %w", tickler.ErrStoreCorruption, err)
	}
	return nil
}

// BackupTo writes a consistent copy of the database to destPath.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return storeError("backing up database", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ tickler.BaselineStore = (*SQLiteDatabase)(nil)
