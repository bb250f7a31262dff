// Package ledger keeps a local sqlite record of every suite dispatch: which
// suite ran, where its results go, the scheduler job ids of cluster runs and
// the exit status of each local task.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver (pure Go)

	"github.com/daryltucker/suite-runner/internal/model"
)

var ErrRunNotFound = errors.New("run not found")

// Store is a ledger backed by one sqlite file.
type Store struct {
	db *sql.DB
}

// DefaultPath is ~/.suite-runner/runs.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".suite-runner", "runs.db"), nil
}

// Open opens (and creates if needed) the ledger at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer at a time; sqlite serializes anyway.
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init ledger schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	const createRuns = `
CREATE TABLE IF NOT EXISTS runs (
  id               TEXT PRIMARY KEY,
  suite            TEXT,
  backend          TEXT,
  config_path      TEXT,
  results_dir      TEXT,
  run_dir          TEXT,
  timestamp        TEXT,
  task_count       INTEGER,
  array_job_id     TEXT,
  aggregate_job_id TEXT,
  status           TEXT,
  error            TEXT,
  created_at       TEXT,
  completed_at     TEXT
);`
	const createTasks = `
CREATE TABLE IF NOT EXISTS tasks (
  run_id      TEXT NOT NULL REFERENCES runs(id),
  task_id     INTEGER NOT NULL,
  exit_code   INTEGER,
  started_at  TEXT,
  duration_ms INTEGER,
  error       TEXT,
  PRIMARY KEY (run_id, task_id)
);`
	for _, stmt := range []string{createRuns, createTasks} {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// CreateRun inserts a new run row.
func (s *Store) CreateRun(ctx context.Context, r model.RunRecord) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO runs (id, suite, backend, config_path, results_dir, run_dir, timestamp, task_count,
                  array_job_id, aggregate_job_id, status, error, created_at, completed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Suite, r.Backend, r.ConfigPath, r.ResultsDir, r.RunDir, r.Timestamp, r.TaskCount,
		r.ArrayJobID, r.AggregateJobID, r.Status, r.Error, formatTime(r.CreatedAt), formatTime(r.CompletedAt))
	return err
}

// RecordTask stores the outcome of one local task, replacing any earlier
// outcome for the same task.
func (s *Store) RecordTask(ctx context.Context, o model.TaskOutcome) error {
	_, err := s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO tasks (run_id, task_id, exit_code, started_at, duration_ms, error)
VALUES (?, ?, ?, ?, ?, ?)`,
		o.RunID, o.TaskID, o.ExitCode, formatTime(o.StartedAt), o.Duration.Milliseconds(), o.Error)
	return err
}

// RecordSubmission stores the scheduler job ids of a cluster run.
func (s *Store) RecordSubmission(ctx context.Context, runID, arrayJobID, aggregateJobID string) error {
	return s.update(ctx, `UPDATE runs SET array_job_id = ?, aggregate_job_id = ? WHERE id = ?`,
		arrayJobID, aggregateJobID, runID)
}

// FinishRun sets the final status of a run.
func (s *Store) FinishRun(ctx context.Context, runID, status, errMsg string) error {
	return s.update(ctx, `UPDATE runs SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		status, errMsg, formatTime(time.Now().UTC()), runID)
}

// UpdateStatus sets the status of a run without marking it complete.
func (s *Store) UpdateStatus(ctx context.Context, runID, status string) error {
	return s.update(ctx, `UPDATE runs SET status = ? WHERE id = ?`, status, runID)
}

func (s *Store) update(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %v", ErrRunNotFound, args[len(args)-1])
	}
	return nil
}

const runColumns = `id, suite, backend, config_path, results_dir, run_dir, timestamp, task_count,
       array_job_id, aggregate_job_id, status, error, created_at, completed_at`

// GetRun loads a run by id. A unique id prefix is accepted as well.
func (s *Store) GetRun(ctx context.Context, id string) (*model.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ? OR id LIKE ? ORDER BY id LIMIT 2`,
		id, stripWildcards(id)+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var found []*model.RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		if r.ID == id {
			return r, nil
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("run id prefix %q is ambiguous", id)
	}
}

// ListRuns returns the most recent runs first. limit <= 0 means all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC, id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// Tasks returns the recorded task outcomes of a run ordered by task id.
func (s *Store) Tasks(ctx context.Context, runID string) ([]model.TaskOutcome, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT run_id, task_id, exit_code, started_at, duration_ms, error
FROM tasks WHERE run_id = ? ORDER BY task_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TaskOutcome
	for rows.Next() {
		var o model.TaskOutcome
		var started sql.NullString
		var durationMS sql.NullInt64
		var errMsg sql.NullString
		if err := rows.Scan(&o.RunID, &o.TaskID, &o.ExitCode, &started, &durationMS, &errMsg); err != nil {
			return nil, err
		}
		o.StartedAt = parseTime(started)
		o.Duration = time.Duration(durationMS.Int64) * time.Millisecond
		o.Error = errMsg.String
		out = append(out, o)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*model.RunRecord, error) {
	var r model.RunRecord
	var arrayJob, aggJob, errMsg, created, completed sql.NullString
	if err := row.Scan(
		&r.ID,
		&r.Suite,
		&r.Backend,
		&r.ConfigPath,
		&r.ResultsDir,
		&r.RunDir,
		&r.Timestamp,
		&r.TaskCount,
		&arrayJob,
		&aggJob,
		&r.Status,
		&errMsg,
		&created,
		&completed,
	); err != nil {
		return nil, err
	}
	r.ArrayJobID = arrayJob.String
	r.AggregateJobID = aggJob.String
	r.Error = errMsg.String
	r.CreatedAt = parseTime(created)
	r.CompletedAt = parseTime(completed)
	return &r, nil
}

// timeLayout is fixed width so stored times sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

func stripWildcards(s string) string {
	return strings.NewReplacer(`%`, ``, `_`, ``).Replace(s)
}
