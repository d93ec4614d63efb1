// Package jobstore journals job and page unit state to SQLite so finished and
// interrupted jobs can be inspected after the process exits.
package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned by LoadJob for an unknown job.
var ErrNotFound = errors.New("job not found")

// Job is one row of the jobs table.
type Job struct {
	ID        string
	State     string
	Pages     int
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Unit is one row of the units table.
type Unit struct {
	JobID           string
	Page            int
	Name            string
	State           string
	Kind            string
	Error           string
	AlignmentScore  float64
	ChangesDetected bool
	ChangeCount     int
	OverlayKey      string
	UpdatedAt       time.Time
}

// SQLiteStore is safe for concurrent use.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	state TEXT NOT NULL,
	pages INTEGER NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS units (
	job_id TEXT NOT NULL,
	page INTEGER NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL,
	kind TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	alignment_score REAL NOT NULL DEFAULT 0,
	changes_detected INTEGER NOT NULL DEFAULT 0,
	change_count INTEGER NOT NULL DEFAULT 0,
	overlay_key TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (job_id, page)
);
`

// OpenSQLite opens (creating if needed) the database at path. ":memory:"
// gives a private in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open job store: %w", err)
	}
	// One connection serialises writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create job store schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// SaveJob inserts or updates a job row. CreatedAt is kept from the first save.
func (s *SQLiteStore) SaveJob(ctx context.Context, j Job) error {
	now := time.Now().UTC()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	if j.UpdatedAt.IsZero() {
		j.UpdatedAt = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, state, pages, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			pages = excluded.pages,
			error = excluded.error,
			updated_at = excluded.updated_at`,
		j.ID, j.State, j.Pages, j.Error, j.CreatedAt.UTC(), j.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", j.ID, err)
	}
	return nil
}

// SaveUnit inserts or updates a unit row.
func (s *SQLiteStore) SaveUnit(ctx context.Context, u Unit) error {
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO units (job_id, page, name, state, kind, error, alignment_score,
			changes_detected, change_count, overlay_key, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id, page) DO UPDATE SET
			name = excluded.name,
			state = excluded.state,
			kind = excluded.kind,
			error = excluded.error,
			alignment_score = excluded.alignment_score,
			changes_detected = excluded.changes_detected,
			change_count = excluded.change_count,
			overlay_key = excluded.overlay_key,
			updated_at = excluded.updated_at`,
		u.JobID, u.Page, u.Name, u.State, u.Kind, u.Error, u.AlignmentScore,
		u.ChangesDetected, u.ChangeCount, u.OverlayKey, u.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save unit %s/%d: %w", u.JobID, u.Page, err)
	}
	return nil
}

// LoadJob returns a job and its units ordered by page.
func (s *SQLiteStore) LoadJob(ctx context.Context, id string) (Job, []Unit, error) {
	var j Job
	err := s.db.QueryRowContext(ctx,
		`SELECT id, state, pages, error, created_at, updated_at FROM jobs WHERE id = ?`, id).
		Scan(&j.ID, &j.State, &j.Pages, &j.Error, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Job{}, nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, page, name, state, kind, error, alignment_score,
			changes_detected, change_count, overlay_key, updated_at
		FROM units WHERE job_id = ? ORDER BY page`, id)
	if err != nil {
		return Job{}, nil, fmt.Errorf("failed to load units of %s: %w", id, err)
	}
	defer rows.Close()

	var units []Unit
	for rows.Next() {
		var u Unit
		if err := rows.Scan(&u.JobID, &u.Page, &u.Name, &u.State, &u.Kind, &u.Error,
			&u.AlignmentScore, &u.ChangesDetected, &u.ChangeCount, &u.OverlayKey, &u.UpdatedAt); err != nil {
			return Job{}, nil, fmt.Errorf("failed to scan unit: %w", err)
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return Job{}, nil, fmt.Errorf("failed to load units of %s: %w", id, err)
	}
	return j, units, nil
}

// ListJobs returns the most recently updated jobs first.
func (s *SQLiteStore) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, state, pages, error, created_at, updated_at FROM jobs ORDER BY updated_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.State, &j.Pages, &j.Error, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
