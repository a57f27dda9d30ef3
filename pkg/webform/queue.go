package webform

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/delist-labs/delist/pkg/contracts"
	"github.com/delist-labs/delist/pkg/store"
)

// Queue is the enqueue side of the webform path. The dispatch router calls
// Enqueue and returns immediately; the worker drains independently.
type Queue struct {
	jobs        store.JobStore
	maxAttempts int
	clock       func() time.Time
}

// NewQueue builds a queue over the given job store.
func NewQueue(jobs store.JobStore, maxAttempts int) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = DefaultBackoffPolicy().MaxAttempts
	}
	return &Queue{jobs: jobs, maxAttempts: maxAttempts, clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (q *Queue) WithClock(clock func() time.Time) *Queue {
	q.clock = clock
	return q
}

// Enqueue creates one queued job for an action. scheduled_at is now: a
// freshly queued job is immediately due.
func (q *Queue) Enqueue(ctx context.Context, action *contracts.ActionEnvelope, subjectID, targetURL string, payload contracts.JobPayload) (*contracts.WebformJob, error) {
	if action == nil || action.ID == "" {
		return nil, fmt.Errorf("%w: job requires a persisted action", contracts.ErrInvalidInput)
	}
	if targetURL == "" {
		return nil, fmt.Errorf("%w: job requires a target URL", contracts.ErrInvalidInput)
	}

	now := q.clock()
	job := &contracts.WebformJob{
		ID:          uuid.New().String(),
		ActionID:    action.ID,
		SubjectID:   subjectID,
		TargetURL:   targetURL,
		Payload:     payload,
		Status:      contracts.JobQueued,
		Attempt:     0,
		MaxAttempts: q.maxAttempts,
		ScheduledAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := q.jobs.EnqueueJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Retry re-arms a terminally failed job for another round of attempts.
// Returns false when the job was not in a failed state.
func (q *Queue) Retry(ctx context.Context, jobID string) (bool, error) {
	return q.jobs.RearmJob(ctx, jobID, q.clock())
}

// Cancel marks a job failed with the operator's reason. Idempotent:
// cancelling an already-terminal job is a no-op.
func (q *Queue) Cancel(ctx context.Context, jobID, reason string) error {
	return q.jobs.CancelJob(ctx, jobID, "cancelled: "+reason, q.clock())
}

// Domain extracts the host of a target URL for grouping and throttling,
// tolerating bare hosts without a scheme.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err == nil && u.Host != "" {
		return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	}
	trimmed := strings.ToLower(rawURL)
	trimmed = strings.TrimPrefix(trimmed, "www.")
	if i := strings.IndexAny(trimmed, "/?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return trimmed
}
