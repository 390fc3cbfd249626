// Package store persists finished runs and their reports in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/automation-stack/ctrace/internal/aggregate"
	"github.com/automation-stack/ctrace/internal/procmeta"
)

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

// Run is the summary of one trace session.
type Run struct {
	ID        string
	Target    string
	Platform  string
	StartedAt time.Time
	EndedAt   time.Time
	Calls     int
	Errors    int
	Elapsed   float64
}

// SQLiteStore implements run persistence using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (and creates if needed) the database at dsn.
func Open(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// :memory: databases are per connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			target TEXT NOT NULL,
			platform TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			ended_at DATETIME NOT NULL,
			calls INTEGER NOT NULL,
			errors INTEGER NOT NULL,
			elapsed REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
		`CREATE TABLE IF NOT EXISTS report_rows (
			run_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			percent REAL NOT NULL,
			elapsed REAL NOT NULL,
			calls INTEGER NOT NULL,
			description TEXT NOT NULL,
			PRIMARY KEY (run_id, position),
			FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS row_errors (
			run_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			code TEXT NOT NULL,
			count INTEGER NOT NULL,
			PRIMARY KEY (run_id, position, seq),
			FOREIGN KEY (run_id, position) REFERENCES report_rows(run_id, position) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS processes (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			tag TEXT NOT NULL,
			pid INTEGER NOT NULL,
			calls INTEGER NOT NULL,
			errors INTEGER NOT NULL,
			PRIMARY KEY (run_id, seq),
			FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun stores run with its report rows and processes in one transaction.
// An empty run ID is replaced by a new UUID. Returns the run ID.
func (s *SQLiteStore) SaveRun(ctx context.Context, run Run, report *aggregate.Report, procs []procmeta.Process) (string, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if report != nil {
		run.Calls = report.Totals.Calls
		run.Errors = report.Totals.Errors
		run.Elapsed = report.Totals.Elapsed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, target, platform, started_at, ended_at, calls, errors, elapsed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Target, run.Platform, run.StartedAt.UTC(), run.EndedAt.UTC(),
		run.Calls, run.Errors, run.Elapsed); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	if report != nil {
		for pos, row := range report.Rows {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO report_rows (run_id, position, name, percent, elapsed, calls, description)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				run.ID, pos, row.Name, row.Percent, row.Elapsed, row.Calls, row.Description); err != nil {
				return "", fmt.Errorf("insert row %s: %w", row.Name, err)
			}
			for seq, e := range row.Errors {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO row_errors (run_id, position, seq, code, count) VALUES (?, ?, ?, ?, ?)`,
					run.ID, pos, seq, e.Code, e.Count); err != nil {
					return "", fmt.Errorf("insert error %s for %s: %w", e.Code, row.Name, err)
				}
			}
		}
	}

	for seq, p := range procs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO processes (run_id, seq, tag, pid, calls, errors) VALUES (?, ?, ?, ?, ?, ?)`,
			run.ID, seq, p.Tag, p.PID, p.Calls, p.Errors); err != nil {
			return "", fmt.Errorf("insert process %q: %w", p.Tag, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return run.ID, nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	var run Run
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, target, platform, started_at, ended_at, calls, errors, elapsed
		FROM runs WHERE run_id = ?`, runID).
		Scan(&run.ID, &run.Target, &run.Platform, &run.StartedAt, &run.EndedAt, &run.Calls, &run.Errors, &run.Elapsed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Runs lists stored runs, most recent first.
func (s *SQLiteStore) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, target, platform, started_at, ended_at, calls, errors, elapsed
		FROM runs ORDER BY started_at DESC, run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.Target, &run.Platform, &run.StartedAt, &run.EndedAt,
			&run.Calls, &run.Errors, &run.Elapsed); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Rows returns the report rows of a run in report order, with their errors.
func (s *SQLiteStore) Rows(ctx context.Context, runID string) ([]aggregate.Row, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, percent, elapsed, calls, description
		FROM report_rows WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, err
	}

	var result []aggregate.Row
	for rows.Next() {
		var row aggregate.Row
		if err := rows.Scan(&row.Name, &row.Percent, &row.Elapsed, &row.Calls, &row.Description); err != nil {
			rows.Close()
			return nil, err
		}
		row.DisplayName = aggregate.DisplayName(row.Name)
		result = append(result, row)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	errRows, err := s.db.QueryContext(ctx,
		`SELECT position, code, count FROM row_errors WHERE run_id = ? ORDER BY position, seq`, runID)
	if err != nil {
		return nil, err
	}
	defer errRows.Close()

	for errRows.Next() {
		var pos int
		var e aggregate.ErrorCount
		if err := errRows.Scan(&pos, &e.Code, &e.Count); err != nil {
			return nil, err
		}
		if pos >= 0 && pos < len(result) {
			result[pos].Errors = append(result[pos].Errors, e)
		}
	}
	return result, errRows.Err()
}

// Processes returns the processes recorded for a run.
func (s *SQLiteStore) Processes(ctx context.Context, runID string) ([]procmeta.Process, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tag, pid, calls, errors FROM processes WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var procs []procmeta.Process
	for rows.Next() {
		var p procmeta.Process
		if err := rows.Scan(&p.Tag, &p.PID, &p.Calls, &p.Errors); err != nil {
			return nil, err
		}
		procs = append(procs, p)
	}
	return procs, rows.Err()
}
