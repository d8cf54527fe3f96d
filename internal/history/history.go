// Package history keeps an optional sqlite journal of backup and cleanup runs.
//
// The journal is write-only from the point of view of a run: nothing in it
// influences which files are copied or evicted.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	OutcomeDeleted = "deleted"
	OutcomeFailed  = "failed"
)

// Run is one recorded backup and cleanup pass.
type Run struct {
	ID             string
	StartedAt      time.Time
	FinishedAt     time.Time
	Source         string
	Destination    string
	BudgetBytes    int64
	Copied         int
	CopyFailures   int
	CopiedBytes    int64
	InitialSize    int64
	FinalSize      int64
	Deleted        int
	DeletedBytes   int64
	DeleteFailures int
	DryRun         bool
	Evictions      []Eviction
}

// Eviction is the outcome of one eviction candidate.
type Eviction struct {
	Path    string
	Size    int64
	ModTime time.Time
	Outcome string
	Error   string
}

// DB represents the journal connection.
type DB struct {
	db *sql.DB
}

// Open opens or creates the journal at path and applies pending migrations.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set database pragmas: %w", err)
	}

	if err := runMigrations(db, path); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// RecordRun stores a run and its evictions in a single transaction.
func (d *DB) RecordRun(ctx context.Context, run Run) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, started_at, finished_at, source, destination, budget_bytes,
			copied, copy_failures, copied_bytes, initial_size, final_size,
			deleted, deleted_bytes, delete_failures, dry_run
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UnixNano(), run.FinishedAt.UnixNano(), run.Source, run.Destination, run.BudgetBytes,
		run.Copied, run.CopyFailures, run.CopiedBytes, run.InitialSize, run.FinalSize,
		run.Deleted, run.DeletedBytes, run.DeleteFailures, run.DryRun,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	if len(run.Evictions) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO evictions (run_id, seq, path, size, mod_time, outcome, error)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for i, e := range run.Evictions {
			if _, err := stmt.ExecContext(ctx, run.ID, i, e.Path, e.Size, e.ModTime.UnixNano(), e.Outcome, e.Error); err != nil {
				return fmt.Errorf("failed to insert eviction %s: %w", e.Path, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListRuns returns up to limit runs, newest first. Evictions are not loaded.
func (d *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, source, destination, budget_bytes,
			copied, copy_failures, copied_bytes, initial_size, final_size,
			deleted, deleted_bytes, delete_failures, dry_run
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished int64
		if err := rows.Scan(
			&r.ID, &started, &finished, &r.Source, &r.Destination, &r.BudgetBytes,
			&r.Copied, &r.CopyFailures, &r.CopiedBytes, &r.InitialSize, &r.FinalSize,
			&r.Deleted, &r.DeletedBytes, &r.DeleteFailures, &r.DryRun,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = time.Unix(0, started)
		r.FinishedAt = time.Unix(0, finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Evictions returns the eviction outcomes of a run in visiting order.
func (d *DB) Evictions(ctx context.Context, runID string) ([]Eviction, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT path, size, mod_time, outcome, error
		FROM evictions
		WHERE run_id = ?
		ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get evictions for run %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Eviction
	for rows.Next() {
		var e Eviction
		var modTime int64
		if err := rows.Scan(&e.Path, &e.Size, &modTime, &e.Outcome, &e.Error); err != nil {
			return nil, fmt.Errorf("failed to scan eviction: %w", err)
		}
		e.ModTime = time.Unix(0, modTime)
		out = append(out, e)
	}
	return out, rows.Err()
}
