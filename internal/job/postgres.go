package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of *pgxpool.Pool the Postgres store needs.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS merge_jobs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	completed   INTEGER NOT NULL DEFAULT 0,
	total       INTEGER NOT NULL DEFAULT 0,
	message     TEXT NOT NULL DEFAULT '',
	result_name TEXT NOT NULL DEFAULT '',
	result_path TEXT NOT NULL DEFAULT '',
	work_dir    TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	started_at  TIMESTAMPTZ,
	finished_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS merge_jobs_finished_at_idx ON merge_jobs (finished_at);
`

const jobColumns = `id, status, completed, total, message, result_name, result_path, work_dir, created_at, started_at, finished_at`

// PostgresStore keeps jobs in the merge_jobs table so several server
// instances behind one database can answer progress polls.
type PostgresStore struct {
	db DBTX
}

// NewPostgresStore wraps db. Call EnsureSchema once before use.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the merge_jobs table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create merge_jobs: %w", err)
	}
	return nil
}

func scanJob(row pgx.Row) (*Job, error) {
	var (
		j                 Job
		status            string
		started, finished *time.Time
	)
	err := row.Scan(&j.ID, &status, &j.Completed, &j.Total, &j.Message, &j.ResultName,
		&j.ResultPath, &j.WorkDir, &j.CreatedAt, &started, &finished)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	j.Status = Status(status)
	j.StartedAt = started
	j.FinishedAt = finished
	return &j, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Job, error) {
	return scanJob(s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM merge_jobs WHERE id = $1`, id))
}

func (s *PostgresStore) Put(ctx context.Context, j *Job) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO merge_jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			completed = EXCLUDED.completed,
			total = EXCLUDED.total,
			message = EXCLUDED.message,
			result_name = EXCLUDED.result_name,
			result_path = EXCLUDED.result_path,
			work_dir = EXCLUDED.work_dir,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at`,
		j.ID, string(j.Status), j.Completed, j.Total, j.Message, j.ResultName,
		j.ResultPath, j.WorkDir, j.CreatedAt, j.StartedAt, j.FinishedAt)
	if err != nil {
		return fmt.Errorf("put job %s: %w", j.ID, err)
	}
	return nil
}

// Update locks the row for the duration of fn so concurrent updates from
// other instances cannot be lost.
func (s *PostgresStore) Update(ctx context.Context, id string, fn func(*Job) error) (*Job, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	j, err := scanJob(tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM merge_jobs WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if err := fn(j); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE merge_jobs SET status = $2, completed = $3, total = $4, message = $5,
			result_name = $6, result_path = $7, work_dir = $8, started_at = $9, finished_at = $10
		WHERE id = $1`,
		j.ID, string(j.Status), j.Completed, j.Total, j.Message, j.ResultName,
		j.ResultPath, j.WorkDir, j.StartedAt, j.FinishedAt)
	if err != nil {
		return nil, fmt.Errorf("update job %s: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM merge_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *PostgresStore) Expired(ctx context.Context, cutoff time.Time) ([]*Job, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+jobColumns+` FROM merge_jobs
		WHERE status IN ($1, $2) AND finished_at < $3
		ORDER BY finished_at`,
		string(StatusSucceeded), string(StatusFailed), cutoff)
	if err != nil {
		return nil, fmt.Errorf("query expired jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
