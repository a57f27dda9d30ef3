package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/delist-labs/delist/pkg/contracts"
)

// PostgresJobStore implements JobStore on Postgres, for deployments running
// several worker instances against one queue. The claim uses
// FOR UPDATE SKIP LOCKED so overlapping pollers partition the due set
// instead of colliding on it.
type PostgresJobStore struct {
	db *sql.DB
}

// NewPostgresJobStore wraps db and runs migrations.
func NewPostgresJobStore(db *sql.DB) (*PostgresJobStore, error) {
	s := &PostgresJobStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresJobStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS webform_jobs (
		id TEXT PRIMARY KEY,
		action_id TEXT NOT NULL,
		subject_id TEXT,
		target_url TEXT NOT NULL,
		payload JSONB,
		status TEXT NOT NULL,
		attempt INTEGER NOT NULL DEFAULT 0,
		max_attempts INTEGER NOT NULL,
		scheduled_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ,
		result JSONB,
		last_error TEXT,
		created_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_due ON webform_jobs(status, scheduled_at);`
	_, err := s.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("store: migrate postgres: %w", err)
	}
	return nil
}

const pgJobColumns = `id, action_id, subject_id, target_url, payload, status, attempt, max_attempts,
	scheduled_at, completed_at, result, last_error, created_at, updated_at`

func (s *PostgresJobStore) EnqueueJob(ctx context.Context, job *contracts.WebformJob) error {
	payloadJSON, _ := json.Marshal(job.Payload)
	query := `INSERT INTO webform_jobs (` + pgJobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := s.db.ExecContext(ctx, query,
		job.ID, job.ActionID, job.SubjectID, job.TargetURL, payloadJSON,
		string(job.Status), job.Attempt, job.MaxAttempts,
		job.ScheduledAt, job.CompletedAt, nil, job.LastError,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: enqueue job: %w", err)
	}
	return nil
}

func (s *PostgresJobStore) GetJob(ctx context.Context, id string) (*contracts.WebformJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pgJobColumns+` FROM webform_jobs WHERE id = $1`, id)
	return scanPgJob(row)
}

func (s *PostgresJobStore) ListJobs(ctx context.Context, limit int) ([]*contracts.WebformJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pgJobColumns+` FROM webform_jobs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*contracts.WebformJob
	for rows.Next() {
		j, err := scanPgJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *PostgresJobStore) ClaimDue(ctx context.Context, limit int, now time.Time) ([]*contracts.WebformJob, error) {
	query := `
		UPDATE webform_jobs SET status = $1, attempt = attempt + 1, updated_at = $2
		WHERE id IN (
			SELECT id FROM webform_jobs
			WHERE status = $3 AND scheduled_at <= $2
			ORDER BY scheduled_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + pgJobColumns
	rows, err := s.db.QueryContext(ctx, query,
		string(contracts.JobRunning), now, string(contracts.JobQueued), limit)
	if err != nil {
		return nil, fmt.Errorf("store: claim due jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var claimed []*contracts.WebformJob
	for rows.Next() {
		j, err := scanPgJob(rows)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, j)
	}
	return claimed, rows.Err()
}

func (s *PostgresJobStore) RescheduleJob(ctx context.Context, id string, scheduledAt time.Time, lastError string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE webform_jobs SET status = $1, scheduled_at = $2, last_error = $3, updated_at = $4
		 WHERE id = $5 AND status = $6`,
		string(contracts.JobQueued), scheduledAt, lastError, time.Now(),
		id, string(contracts.JobRunning))
	if err != nil {
		return fmt.Errorf("store: reschedule job: %w", err)
	}
	return nil
}

func (s *PostgresJobStore) CompleteJob(ctx context.Context, id string, result *contracts.JobResult, completedAt time.Time) error {
	resultJSON, _ := json.Marshal(result)
	_, err := s.db.ExecContext(ctx,
		`UPDATE webform_jobs SET status = $1, result = $2, completed_at = $3, updated_at = $3
		 WHERE id = $4 AND status = $5`,
		string(contracts.JobSucceeded), resultJSON, completedAt,
		id, string(contracts.JobRunning))
	if err != nil {
		return fmt.Errorf("store: complete job: %w", err)
	}
	return nil
}

func (s *PostgresJobStore) FailJob(ctx context.Context, id string, lastError string, completedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE webform_jobs SET status = $1, last_error = $2, completed_at = $3, updated_at = $3
		 WHERE id = $4 AND status = $5`,
		string(contracts.JobFailed), lastError, completedAt,
		id, string(contracts.JobRunning))
	if err != nil {
		return fmt.Errorf("store: fail job: %w", err)
	}
	return nil
}

func (s *PostgresJobStore) RearmJob(ctx context.Context, id string, scheduledAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE webform_jobs SET status = $1, attempt = 0, scheduled_at = $2, completed_at = NULL,
			last_error = '', updated_at = $3
		 WHERE id = $4 AND status = $5`,
		string(contracts.JobQueued), scheduledAt, time.Now(),
		id, string(contracts.JobFailed))
	if err != nil {
		return false, fmt.Errorf("store: rearm job: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (s *PostgresJobStore) CancelJob(ctx context.Context, id string, reason string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE webform_jobs SET status = $1, last_error = $2, completed_at = $3, updated_at = $3
		 WHERE id = $4 AND status IN ($5, $6)`,
		string(contracts.JobFailed), reason, now,
		id, string(contracts.JobQueued), string(contracts.JobRunning))
	if err != nil {
		return fmt.Errorf("store: cancel job: %w", err)
	}
	return nil
}

func (s *PostgresJobStore) FailedSince(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT target_url FROM webform_jobs WHERE status = $1 AND updated_at >= $2`,
		string(contracts.JobFailed), since)
	if err != nil {
		return nil, fmt.Errorf("store: failed since: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

func scanPgJob(row rowScanner) (*contracts.WebformJob, error) {
	var j contracts.WebformJob
	var payloadJSON, resultJSON []byte
	var subjectID, lastError, status sql.NullString
	var completedAt, createdAt, updatedAt sql.NullTime

	err := row.Scan(
		&j.ID, &j.ActionID, &subjectID, &j.TargetURL, &payloadJSON,
		&status, &j.Attempt, &j.MaxAttempts,
		&j.ScheduledAt, &completedAt, &resultJSON, &lastError, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: scan job: %w", err)
	}

	j.SubjectID = subjectID.String
	j.Status = contracts.JobStatus(status.String)
	j.LastError = lastError.String
	if len(payloadJSON) > 0 {
		_ = json.Unmarshal(payloadJSON, &j.Payload)
	}
	if len(resultJSON) > 0 {
		var res contracts.JobResult
		_ = json.Unmarshal(resultJSON, &res)
		j.Result = &res
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	j.CreatedAt = createdAt.Time
	j.UpdatedAt = updatedAt.Time
	return &j, nil
}
