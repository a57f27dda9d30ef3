package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/delist-labs/delist/pkg/contracts"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements ActionStore, JobStore, and ProofStore on a single
// SQLite database. The default backend for single-instance deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps db and runs migrations.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSQLite opens (or creates) the database at path and migrates it.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite %s: %w", path, err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// under the worker's claim updates.
	db.SetMaxOpenConns(1)
	return NewSQLiteStore(db)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS actions (
		id TEXT PRIMARY KEY,
		controller_id TEXT NOT NULL,
		controller_name TEXT,
		category TEXT,
		identity JSON,
		evidence JSON,
		subject TEXT,
		body TEXT,
		fields JSON,
		reply_channel TEXT,
		reply_preview TEXT,
		status TEXT NOT NULL,
		channel TEXT,
		provider_id TEXT,
		proof_hash TEXT NOT NULL DEFAULT '',
		proof_signature TEXT,
		proof_key_id TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		next_attempt_at DATETIME
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_actions_proof
		ON actions(controller_id, proof_hash) WHERE proof_hash != '';

	CREATE TABLE IF NOT EXISTS webform_jobs (
		id TEXT PRIMARY KEY,
		action_id TEXT NOT NULL,
		subject_id TEXT,
		target_url TEXT NOT NULL,
		payload JSON,
		status TEXT NOT NULL,
		attempt INTEGER NOT NULL DEFAULT 0,
		max_attempts INTEGER NOT NULL,
		scheduled_at DATETIME NOT NULL,
		completed_at DATETIME,
		result JSON,
		last_error TEXT,
		created_at DATETIME,
		updated_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_due ON webform_jobs(status, scheduled_at);

	CREATE TABLE IF NOT EXISTS proof_records (
		hash TEXT NOT NULL,
		signature TEXT,
		key_id TEXT,
		algo TEXT NOT NULL,
		signed_at DATETIME NOT NULL,
		evidence_count INTEGER NOT NULL DEFAULT 0
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

const actionColumns = `id, controller_id, controller_name, category, identity, evidence, subject, body,
	fields, reply_channel, reply_preview, status, channel, provider_id,
	proof_hash, proof_signature, proof_key_id, created_at, updated_at, next_attempt_at`

func (s *SQLiteStore) InsertAction(ctx context.Context, e *contracts.ActionEnvelope) error {
	identityJSON, _ := json.Marshal(e.Identity)
	evidenceJSON, _ := json.Marshal(e.EvidenceURLs)
	fieldsJSON, _ := json.Marshal(e.Fields)

	query := `INSERT INTO actions (` + actionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.ControllerID, e.ControllerName, e.Category,
		string(identityJSON), string(evidenceJSON), e.Subject, e.Body,
		string(fieldsJSON), string(e.ReplyChannel), e.ReplyPreview,
		string(e.Status), string(e.Channel), e.ProviderID,
		e.ProofHash, e.ProofSignature, e.ProofKeyID,
		fmtTime(e.CreatedAt), fmtTime(e.UpdatedAt), fmtTimePtr(e.NextAttemptAt),
	)
	if err != nil {
		return fmt.Errorf("store: insert action: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAction(ctx context.Context, id string) (*contracts.ActionEnvelope, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE id = ?`, id)
	return scanAction(row)
}

func (s *SQLiteStore) ListActions(ctx context.Context, limit int) ([]*contracts.ActionEnvelope, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+actionColumns+` FROM actions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list actions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var actions []*contracts.ActionEnvelope
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

func (s *SQLiteStore) FindByProof(ctx context.Context, controllerID, hash string) (*contracts.ActionEnvelope, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+actionColumns+` FROM actions WHERE controller_id = ? AND proof_hash = ?`,
		controllerID, hash)
	a, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (s *SQLiteStore) TransitionAction(ctx context.Context, id string, from, to contracts.ActionStatus, nextAttemptAt *time.Time) (bool, error) {
	if !from.CanTransition(to) {
		return false, fmt.Errorf("store: illegal action transition %s -> %s", from, to)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE actions SET status = ?, next_attempt_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), fmtTimePtr(nextAttemptAt), fmtTime(time.Now()), id, string(from))
	if err != nil {
		return false, fmt.Errorf("store: transition action: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (s *SQLiteStore) SetActionSent(ctx context.Context, id string, channel contracts.Channel, providerID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE actions SET status = ?, channel = ?, provider_id = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(contracts.ActionSent), string(channel), providerID, fmtTime(time.Now()),
		id, string(contracts.ActionPrepared))
	if err != nil {
		return false, fmt.Errorf("store: mark action sent: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

const jobColumns = `id, action_id, subject_id, target_url, payload, status, attempt, max_attempts,
	scheduled_at, completed_at, result, last_error, created_at, updated_at`

func (s *SQLiteStore) EnqueueJob(ctx context.Context, job *contracts.WebformJob) error {
	payloadJSON, _ := json.Marshal(job.Payload)
	query := `INSERT INTO webform_jobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		job.ID, job.ActionID, job.SubjectID, job.TargetURL, string(payloadJSON),
		string(job.Status), job.Attempt, job.MaxAttempts,
		fmtTime(job.ScheduledAt), fmtTimePtr(job.CompletedAt), nil, job.LastError,
		fmtTime(job.CreatedAt), fmtTime(job.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("store: enqueue job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*contracts.WebformJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM webform_jobs WHERE id = ?`, id)
	return scanJob(row)
}

func (s *SQLiteStore) ListJobs(ctx context.Context, limit int) ([]*contracts.WebformJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM webform_jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*contracts.WebformJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *SQLiteStore) ClaimDue(ctx context.Context, limit int, now time.Time) ([]*contracts.WebformJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM webform_jobs
		 WHERE status = ? AND scheduled_at <= ?
		 ORDER BY scheduled_at ASC LIMIT ?`,
		string(contracts.JobQueued), fmtTime(now), limit)
	if err != nil {
		return nil, fmt.Errorf("store: select due jobs: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var claimed []*contracts.WebformJob
	for _, id := range ids {
		// The conditional update is the claim: only one worker can move
		// the row out of queued.
		res, err := s.db.ExecContext(ctx,
			`UPDATE webform_jobs SET status = ?, attempt = attempt + 1, updated_at = ?
			 WHERE id = ? AND status = ?`,
			string(contracts.JobRunning), fmtTime(now), id, string(contracts.JobQueued))
		if err != nil {
			return nil, fmt.Errorf("store: claim job %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			continue // claimed by a concurrent worker
		}
		job, err := s.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, job)
	}
	return claimed, nil
}

func (s *SQLiteStore) RescheduleJob(ctx context.Context, id string, scheduledAt time.Time, lastError string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE webform_jobs SET status = ?, scheduled_at = ?, last_error = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(contracts.JobQueued), fmtTime(scheduledAt), lastError, fmtTime(time.Now()),
		id, string(contracts.JobRunning))
	if err != nil {
		return fmt.Errorf("store: reschedule job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CompleteJob(ctx context.Context, id string, result *contracts.JobResult, completedAt time.Time) error {
	resultJSON, _ := json.Marshal(result)
	_, err := s.db.ExecContext(ctx,
		`UPDATE webform_jobs SET status = ?, result = ?, completed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(contracts.JobSucceeded), string(resultJSON), fmtTime(completedAt), fmtTime(completedAt),
		id, string(contracts.JobRunning))
	if err != nil {
		return fmt.Errorf("store: complete job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FailJob(ctx context.Context, id string, lastError string, completedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE webform_jobs SET status = ?, last_error = ?, completed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(contracts.JobFailed), lastError, fmtTime(completedAt), fmtTime(completedAt),
		id, string(contracts.JobRunning))
	if err != nil {
		return fmt.Errorf("store: fail job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RearmJob(ctx context.Context, id string, scheduledAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE webform_jobs SET status = ?, attempt = 0, scheduled_at = ?, completed_at = NULL,
			last_error = '', updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(contracts.JobQueued), fmtTime(scheduledAt), fmtTime(time.Now()),
		id, string(contracts.JobFailed))
	if err != nil {
		return false, fmt.Errorf("store: rearm job: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (s *SQLiteStore) CancelJob(ctx context.Context, id string, reason string, now time.Time) error {
	// No status guard beyond "not already terminal": cancelling a finished
	// job is a no-op, not an error.
	_, err := s.db.ExecContext(ctx,
		`UPDATE webform_jobs SET status = ?, last_error = ?, completed_at = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		string(contracts.JobFailed), reason, fmtTime(now), fmtTime(now),
		id, string(contracts.JobQueued), string(contracts.JobRunning))
	if err != nil {
		return fmt.Errorf("store: cancel job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FailedSince(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT target_url FROM webform_jobs WHERE status = ? AND updated_at >= ?`,
		string(contracts.JobFailed), fmtTime(since))
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

func (s *SQLiteStore) AppendProof(ctx context.Context, rec *contracts.ProofRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO proof_records (hash, signature, key_id, algo, signed_at, evidence_count)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Hash, rec.Signature, rec.KeyID, rec.Algo, fmtTime(rec.SignedAt), rec.EvidenceCount)
	if err != nil {
		return fmt.Errorf("store: append proof: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListProofs(ctx context.Context, limit int) ([]*contracts.ProofRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT hash, signature, key_id, algo, signed_at, evidence_count
		 FROM proof_records ORDER BY signed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list proofs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []*contracts.ProofRecord
	for rows.Next() {
		var rec contracts.ProofRecord
		var signedAt string
		if err := rows.Scan(&rec.Hash, &rec.Signature, &rec.KeyID, &rec.Algo, &signedAt, &rec.EvidenceCount); err != nil {
			return nil, err
		}
		rec.SignedAt = parseTime(signedAt)
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(row rowScanner) (*contracts.ActionEnvelope, error) {
	var a contracts.ActionEnvelope
	var identityJSON, evidenceJSON, fieldsJSON sql.NullString
	var replyChannel, channel, status sql.NullString
	var controllerName, category, replyPreview, providerID sql.NullString
	var proofSig, proofKey sql.NullString
	var createdAt, updatedAt, nextAttemptAt sql.NullString

	err := row.Scan(
		&a.ID, &a.ControllerID, &controllerName, &category,
		&identityJSON, &evidenceJSON, &a.Subject, &a.Body,
		&fieldsJSON, &replyChannel, &replyPreview, &status, &channel, &providerID,
		&a.ProofHash, &proofSig, &proofKey, &createdAt, &updatedAt, &nextAttemptAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: scan action: %w", err)
	}

	a.ControllerName = controllerName.String
	a.Category = category.String
	a.ReplyPreview = replyPreview.String
	a.ReplyChannel = contracts.Channel(replyChannel.String)
	a.Status = contracts.ActionStatus(status.String)
	a.Channel = contracts.Channel(channel.String)
	a.ProviderID = providerID.String
	a.ProofSignature = proofSig.String
	a.ProofKeyID = proofKey.String

	if identityJSON.Valid {
		_ = json.Unmarshal([]byte(identityJSON.String), &a.Identity)
	}
	if evidenceJSON.Valid {
		_ = json.Unmarshal([]byte(evidenceJSON.String), &a.EvidenceURLs)
	}
	if fieldsJSON.Valid {
		_ = json.Unmarshal([]byte(fieldsJSON.String), &a.Fields)
	}
	a.CreatedAt = parseTime(createdAt.String)
	a.UpdatedAt = parseTime(updatedAt.String)
	if nextAttemptAt.Valid && nextAttemptAt.String != "" {
		t := parseTime(nextAttemptAt.String)
		a.NextAttemptAt = &t
	}
	return &a, nil
}

func scanJob(row rowScanner) (*contracts.WebformJob, error) {
	var j contracts.WebformJob
	var payloadJSON, resultJSON sql.NullString
	var subjectID, lastError, status sql.NullString
	var scheduledAt, completedAt, createdAt, updatedAt sql.NullString

	err := row.Scan(
		&j.ID, &j.ActionID, &subjectID, &j.TargetURL, &payloadJSON,
		&status, &j.Attempt, &j.MaxAttempts,
		&scheduledAt, &completedAt, &resultJSON, &lastError, &createdAt, &updatedAt,
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
	if payloadJSON.Valid {
		_ = json.Unmarshal([]byte(payloadJSON.String), &j.Payload)
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var res contracts.JobResult
		_ = json.Unmarshal([]byte(resultJSON.String), &res)
		j.Result = &res
	}
	j.ScheduledAt = parseTime(scheduledAt.String)
	j.CreatedAt = parseTime(createdAt.String)
	j.UpdatedAt = parseTime(updatedAt.String)
	if completedAt.Valid && completedAt.String != "" {
		t := parseTime(completedAt.String)
		j.CompletedAt = &t
	}
	return &j, nil
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
