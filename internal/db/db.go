// Package db persists the history of pipeline runs in SQLite so operators
// can inspect what the server did after the MCP response is gone.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	StatusRunning     = "running"
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
	StatusTimedOut    = "timed_out"
	StatusInterrupted = "interrupted"
)

// DB wraps a sql.DB connection to the SQLite database.
type DB struct {
	conn *sql.DB
}

// Run is one pipeline invocation.
type Run struct {
	ID             int64
	UUID           string
	Repository     string
	Folder         string
	Request        string
	Status         string
	Mode           string
	ModelID        *string
	Branch         *string
	Pushed         bool
	PullRequestURL *string
	ErrorKind      *string
	Output         *string // text returned to the caller, redacted
	Summary        *string
	StartedAt      string
	EndedAt        *string
	DurationMs     *int64
}

// RunResult holds the fields written when a run finishes.
type RunResult struct {
	Status         string
	ModelID        string
	Branch         string
	Pushed         bool
	PullRequestURL string
	ErrorKind      string
	Output         string
	EndedAt        time.Time
	Duration       time.Duration
}

// Open creates a new DB connection and applies pending migrations.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	d := &DB{conn: conn}
	if err := d.migrate(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, d.conn, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// SchemaVersion returns the latest applied migration version.
func (d *DB) SchemaVersion(ctx context.Context) (int64, error) {
	fsys, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		return 0, err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, d.conn, fsys)
	if err != nil {
		return 0, err
	}
	return provider.GetDBVersion(ctx)
}

const runColumns = `id, uuid, repository, folder, request, status, mode, model_id, branch, pushed,
	pull_request_url, error_kind, output, summary, started_at, ended_at, duration_ms`

func scanRun(scanner interface{ Scan(...any) error }, r *Run) error {
	var pushed int
	if err := scanner.Scan(&r.ID, &r.UUID, &r.Repository, &r.Folder, &r.Request, &r.Status, &r.Mode,
		&r.ModelID, &r.Branch, &pushed, &r.PullRequestURL, &r.ErrorKind, &r.Output, &r.Summary,
		&r.StartedAt, &r.EndedAt, &r.DurationMs); err != nil {
		return err
	}
	r.Pushed = pushed != 0
	return nil
}

// InsertRun records a run as it starts and returns its ID.
func (d *DB) InsertRun(r *Run) (int64, error) {
	if r.Status == "" {
		r.Status = StatusRunning
	}
	if r.StartedAt == "" {
		r.StartedAt = time.Now().UTC().Format(time.RFC3339)
	}
	res, err := d.conn.Exec(
		`INSERT INTO runs (uuid, repository, folder, request, status, mode, started_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.UUID, r.Repository, r.Folder, r.Request, r.Status, r.Mode, r.StartedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	return res.LastInsertId()
}

// FinishRun writes the outcome of a run.
func (d *DB) FinishRun(id int64, res RunResult) error {
	ended := res.EndedAt
	if ended.IsZero() {
		ended = time.Now()
	}
	_, err := d.conn.Exec(
		`UPDATE runs SET status = ?, model_id = ?, branch = ?, pushed = ?, pull_request_url = ?,
			error_kind = ?, output = ?, ended_at = ?, duration_ms = ? WHERE id = ?`,
		res.Status, nullString(res.ModelID), nullString(res.Branch), boolToInt(res.Pushed),
		nullString(res.PullRequestURL), nullString(res.ErrorKind), res.Output,
		ended.UTC().Format(time.RFC3339), res.Duration.Milliseconds(), id,
	)
	if err != nil {
		return fmt.Errorf("finish run %d: %w", id, err)
	}
	return nil
}

// UpdateRunSummary stores an LLM-generated summary of the run output.
func (d *DB) UpdateRunSummary(id int64, summary string) error {
	_, err := d.conn.Exec(`UPDATE runs SET summary = ? WHERE id = ?`, summary, id)
	return err
}

// GetRun returns the run with id, or nil if none exists.
func (d *DB) GetRun(id int64) (*Run, error) {
	row := d.conn.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	var r Run
	if err := scanRun(row, &r); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get run %d: %w", id, err)
	}
	return &r, nil
}

// ListRuns returns runs newest first.
func (d *DB) ListRuns(limit, offset int) ([]Run, error) {
	rows, err := d.conn.Query(`SELECT `+runColumns+` FROM runs ORDER BY id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var runs []Run
	for rows.Next() {
		var r Run
		if err := scanRun(rows, &r); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// MarkInterrupted flags runs left in the running state by a previous
// process and returns how many were updated.
func (d *DB) MarkInterrupted() (int64, error) {
	res, err := d.conn.Exec(
		`UPDATE runs SET status = ?, ended_at = ? WHERE status = ?`,
		StatusInterrupted, time.Now().UTC().Format(time.RFC3339), StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("mark interrupted: %w", err)
	}
	return res.RowsAffected()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
