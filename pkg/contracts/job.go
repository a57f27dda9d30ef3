package contracts

import "time"

// JobStatus is the lifecycle state of a WebformJob.
//
// queued → running → {succeeded | queued (retry) | failed}. A retry mutates
// the same row — attempt counter plus a new scheduled_at — it never creates
// a second row for the same attempt cycle.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// JobPayload is the redacted, minimal form data submitted to the target.
type JobPayload struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Message string `json:"message,omitempty"`
}

// JobResult captures what the automation run produced: confirmation text,
// content-addressed artifact references, or the last error.
type JobResult struct {
	Confirmation   string `json:"confirmation,omitempty"`
	TicketID       string `json:"ticket_id,omitempty"`
	PageHash       string `json:"page_hash,omitempty"`       // artifact store hash of captured HTML
	ScreenshotHash string `json:"screenshot_hash,omitempty"` // artifact store hash of the screenshot
	Error          string `json:"error,omitempty"`
}

// WebformJob is one durable automation assignment. The worker claims jobs
// whose scheduled_at has passed, runs the matched handler, and either
// completes, reschedules, or dead-letters the row.
type WebformJob struct {
	ID          string     `json:"id"`
	ActionID    string     `json:"action_id"`
	SubjectID   string     `json:"subject_id,omitempty"`
	TargetURL   string     `json:"target_url"`
	Payload     JobPayload `json:"payload"`
	Status      JobStatus  `json:"status"`
	Attempt     int        `json:"attempt"`
	MaxAttempts int        `json:"max_attempts"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      *JobResult `json:"result,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
