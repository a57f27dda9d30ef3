// Package store persists actions, webform jobs, and proof records. SQLite is
// the default backend; a Postgres variant covers multi-instance deployments.
package store

import (
	"context"
	"time"

	"github.com/delist-labs/delist/pkg/contracts"
)

// ActionStore persists ActionEnvelopes. Envelopes are never deleted.
type ActionStore interface {
	InsertAction(ctx context.Context, e *contracts.ActionEnvelope) error
	GetAction(ctx context.Context, id string) (*contracts.ActionEnvelope, error)
	ListActions(ctx context.Context, limit int) ([]*contracts.ActionEnvelope, error)
	// TransitionAction moves an action from one status to another. It is a
	// conditional update: rows move only when the current status matches,
	// so repeated polling cannot double-apply a transition.
	TransitionAction(ctx context.Context, id string, from, to contracts.ActionStatus, nextAttemptAt *time.Time) (bool, error)
	// SetActionSent records the carrying channel and provider id together
	// with the prepared→sent transition.
	SetActionSent(ctx context.Context, id string, channel contracts.Channel, providerID string) (bool, error)
	// FindByProof implements the (controller, hash) idempotency key.
	FindByProof(ctx context.Context, controllerID, hash string) (*contracts.ActionEnvelope, error)
}

// JobStore persists WebformJobs and implements the worker's claim protocol.
type JobStore interface {
	EnqueueJob(ctx context.Context, job *contracts.WebformJob) error
	GetJob(ctx context.Context, id string) (*contracts.WebformJob, error)
	ListJobs(ctx context.Context, limit int) ([]*contracts.WebformJob, error)
	// ClaimDue atomically claims up to limit jobs whose scheduled_at has
	// passed: status queued→running plus attempt increment in a single
	// conditional update per row. Two overlapping workers never claim the
	// same job.
	ClaimDue(ctx context.Context, limit int, now time.Time) ([]*contracts.WebformJob, error)
	// RescheduleJob returns a running job to queued with a new
	// scheduled_at.
	RescheduleJob(ctx context.Context, id string, scheduledAt time.Time, lastError string) error
	// CompleteJob marks a running job succeeded and stores the result.
	CompleteJob(ctx context.Context, id string, result *contracts.JobResult, completedAt time.Time) error
	// FailJob marks a running job terminally failed.
	FailJob(ctx context.Context, id string, lastError string, completedAt time.Time) error
	// RearmJob re-arms a terminal failed job (operator retry):
	// failed→queued with the attempt counter reset.
	RearmJob(ctx context.Context, id string, scheduledAt time.Time) (bool, error)
	// CancelJob marks a job failed with the operator's reason. Idempotent:
	// cancelling an already-terminal job reports ok without touching it.
	CancelJob(ctx context.Context, id string, reason string, now time.Time) error
	// FailedSince returns the target URLs of jobs that failed within the
	// rolling window, for spike detection.
	FailedSince(ctx context.Context, since time.Time) ([]string, error)
}

// ProofStore appends proof records. Append-only, no updates.
type ProofStore interface {
	AppendProof(ctx context.Context, rec *contracts.ProofRecord) error
	ListProofs(ctx context.Context, limit int) ([]*contracts.ProofRecord, error)
}
