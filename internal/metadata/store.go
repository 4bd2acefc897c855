// Package metadata persists the durable (project, branch) → engine-state
// row spec.md §4.5 describes in SQLite: the action in flight, whether it
// was cancelled, the command, its exit code, and its start time. Every
// branch-engine state transition upserts this row; engine startup seeds
// from it.
package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Record is the in-memory shape of one metadata_store row. Column name
// convention: underscores on disk, hyphens in the in-memory record
// (spec.md §4.5) — Record's Go fields follow the disk names; callers that
// surface this to the HTTP layer rename at that boundary.
type Record struct {
	ProjectName string
	BranchName  string
	Action      string
	Cancelled   bool
	Command     string
	ExitCode    int
	// ExitCodeResolved distinguishes "no run has happened yet" (false) from
	// "exit code zero" (true, ExitCode 0), since the column itself can't.
	ExitCodeResolved bool
	StartTime        time.Time
}

// Store is a modernc.org/sqlite-backed store for Records.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the sqlite database at dsn and runs its
// migration.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS metadata_store (
			project_name TEXT NOT NULL,
			branch_name  TEXT NOT NULL,
			action       TEXT NOT NULL DEFAULT '',
			cancelled    INTEGER NOT NULL DEFAULT 0,
			command      TEXT NOT NULL DEFAULT '',
			exit_code    INTEGER,
			start_time   TEXT,
			PRIMARY KEY (project_name, branch_name)
		);
	`)
	return err
}

// Upsert writes r's state as the (project, branch)'s row, called on every
// state transition of a branch engine (spec.md §4.5).
func (s *Store) Upsert(ctx context.Context, r Record) error {
	var exitCode sql.NullInt64
	if r.ExitCodeResolved {
		exitCode = sql.NullInt64{Int64: int64(r.ExitCode), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metadata_store (project_name, branch_name, action, cancelled, command, exit_code, start_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_name, branch_name) DO UPDATE SET
			action = excluded.action,
			cancelled = excluded.cancelled,
			command = excluded.command,
			exit_code = excluded.exit_code,
			start_time = excluded.start_time
	`, r.ProjectName, r.BranchName, r.Action, r.Cancelled, r.Command, exitCode, formatTime(r.StartTime))
	return err
}

// Get returns the row for (project, branch), or (Record{}, false, nil) if
// none exists yet — the state an engine seeds from on first instantiation.
func (s *Store) Get(ctx context.Context, project, branch string) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT project_name, branch_name, action, cancelled, command, exit_code, start_time
		FROM metadata_store WHERE project_name = ? AND branch_name = ?
	`, project, branch)

	var r Record
	var cancelled int
	var exitCode sql.NullInt64
	var startTime string

	err := row.Scan(&r.ProjectName, &r.BranchName, &r.Action, &cancelled, &r.Command, &exitCode, &startTime)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}

	r.Cancelled = cancelled != 0
	r.StartTime = parseTime(startTime)
	if exitCode.Valid {
		r.ExitCode = int(exitCode.Int64)
		r.ExitCodeResolved = true
	}
	return r, true, nil
}

// ListProject returns every persisted row for a project, used by the
// registry to seed all of a project's engines at startup in one query.
func (s *Store) ListProject(ctx context.Context, project string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_name, branch_name, action, cancelled, command, exit_code, start_time
		FROM metadata_store WHERE project_name = ?
	`, project)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var cancelled int
		var exitCode sql.NullInt64
		var startTime string
		if err := rows.Scan(&r.ProjectName, &r.BranchName, &r.Action, &cancelled, &r.Command, &exitCode, &startTime); err != nil {
			return nil, err
		}
		r.Cancelled = cancelled != 0
		r.StartTime = parseTime(startTime)
		if exitCode.Valid {
			r.ExitCode = int(exitCode.Int64)
			r.ExitCodeResolved = true
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Delete removes a (project, branch) row. Not called by delete-local
// itself — spec.md §2 item 7 retains the metadata row across branch
// deletion — but kept as an administrative operation for callers that
// need to purge a row outright (e.g. a project being decommissioned).
func (s *Store) Delete(ctx context.Context, project, branch string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM metadata_store WHERE project_name = ? AND branch_name = ?`, project, branch)
	return err
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
