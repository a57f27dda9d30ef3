package webform

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delist-labs/delist/pkg/artifacts"
	"github.com/delist-labs/delist/pkg/automation"
	"github.com/delist-labs/delist/pkg/contracts"
	"github.com/delist-labs/delist/pkg/handlers"
	"github.com/delist-labs/delist/pkg/store"
)

const confirmationHTML = `<html><body>
<p>Thank you, we have received your request.</p>
<p>Your Ticket ID: JD-48121</p>
</body></html>`

type countingMetrics struct {
	outcomes []string
}

func (m *countingMetrics) JobProcessed(_ context.Context, outcome string) {
	m.outcomes = append(m.outcomes, outcome)
}

type workerFixture struct {
	store   *store.SQLiteStore
	session *automation.FakeSession
	metrics *countingMetrics
	worker  *Worker
	now     time.Time
}

func newWorkerFixture(t *testing.T, html string) *workerFixture {
	t.Helper()
	s := newJobStore(t)

	blobStore, err := artifacts.NewFileStore(t.TempDir())
	require.NoError(t, err)

	f := &workerFixture{
		store:   s,
		session: automation.NewFakeSession(html),
		metrics: &countingMetrics{},
		now:     time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	cfg := WorkerConfig{
		BatchSize:    5,
		PollInterval: time.Second,
		Backoff:      BackoffPolicy{Base: time.Minute, Cap: 30 * time.Minute, Jitter: func() float64 { return 1.0 }},
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	f.worker = NewWorker(cfg, s, s, handlers.NewRegistry(), handlers.NewProfileStore(),
		&automation.FakeEngine{Session: f.session}, blobStore, nil, nil, f.metrics, logger).
		WithClock(func() time.Time { return f.now })
	return f
}

func (f *workerFixture) seed(t *testing.T, status contracts.ActionStatus) *contracts.WebformJob {
	return f.seedController(t, status, "justdial", "https://www.justdial.com/report")
}

func (f *workerFixture) seedController(t *testing.T, status contracts.ActionStatus, controllerID, targetURL string) *contracts.WebformJob {
	t.Helper()
	ctx := context.Background()
	action := &contracts.ActionEnvelope{
		ID:           "act-1",
		ControllerID: controllerID,
		Subject:      "Removal request",
		Body:         "please remove",
		Status:       status,
		CreatedAt:    f.now,
		UpdatedAt:    f.now,
	}
	require.NoError(t, f.store.InsertAction(ctx, action))

	q := NewQueue(f.store, 6).WithClock(func() time.Time { return f.now })
	job, err := q.Enqueue(ctx, action, "subj-1", targetURL,
		contracts.JobPayload{Name: "A. Person", Email: "a@example.com", Message: "please remove"})
	require.NoError(t, err)
	return job
}

func TestWorkerSuccessPath(t *testing.T) {
	f := newWorkerFixture(t, confirmationHTML)
	job := f.seed(t, contracts.ActionPrepared)
	ctx := context.Background()

	n, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.JobSucceeded, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, "JD-48121", got.Result.TicketID)
	assert.NotEmpty(t, got.Result.PageHash)
	assert.NotEmpty(t, got.Result.ScreenshotHash)

	action, err := f.store.GetAction(ctx, job.ActionID)
	require.NoError(t, err)
	assert.Equal(t, contracts.ActionSent, action.Status)
	assert.Equal(t, contracts.ChannelWebform, action.Channel)

	assert.NotEmpty(t, f.session.NavigatedURLs)
	assert.Equal(t, []string{"succeeded"}, f.metrics.outcomes)
}

func TestWorkerLeavesSentActionAlone(t *testing.T) {
	f := newWorkerFixture(t, confirmationHTML)
	job := f.seed(t, contracts.ActionSent)
	ctx := context.Background()

	_, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)

	action, err := f.store.GetAction(ctx, job.ActionID)
	require.NoError(t, err)
	assert.Equal(t, contracts.ActionSent, action.Status, "already sent; no second transition")
}

func TestWorkerReschedulesTransientFailure(t *testing.T) {
	f := newWorkerFixture(t, confirmationHTML)
	f.session.FailOn = "navigate"
	f.session.FailMessage = "net::ERR_TIMED_OUT"
	job := f.seed(t, contracts.ActionSent)
	ctx := context.Background()

	_, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)

	got, err := f.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.JobQueued, got.Status)
	assert.Equal(t, 1, got.Attempt)
	assert.Contains(t, got.LastError, "navigate")
	// Attempt 1 with unit jitter: exactly one base interval out.
	assert.True(t, got.ScheduledAt.Equal(f.now.Add(time.Minute)),
		"scheduled %s, want %s", got.ScheduledAt, f.now.Add(time.Minute))
	assert.Equal(t, []string{"rescheduled"}, f.metrics.outcomes)
}

func TestWorkerDeadLettersAndEscalates(t *testing.T) {
	f := newWorkerFixture(t, confirmationHTML)
	f.session.FailOn = "navigate"
	job := f.seed(t, contracts.ActionSent)
	ctx := context.Background()

	// Drive through the whole retry ladder. Each pass advances the clock
	// past the next scheduled attempt.
	for i := 0; i < job.MaxAttempts+1; i++ {
		_, err := f.worker.RunOnce(ctx)
		require.NoError(t, err)
		f.now = f.now.Add(time.Hour)
	}

	got, err := f.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.JobFailed, got.Status)
	assert.Equal(t, job.MaxAttempts, got.Attempt)

	action, err := f.store.GetAction(ctx, job.ActionID)
	require.NoError(t, err)
	assert.Equal(t, contracts.ActionEscalatePending, action.Status)
	require.NotNil(t, action.NextAttemptAt)

	last := f.metrics.outcomes[len(f.metrics.outcomes)-1]
	assert.Equal(t, "failed", last)
}

func TestWorkerCaptchaFailsPermanently(t *testing.T) {
	f := newWorkerFixture(t, confirmationHTML)
	job := f.seedController(t, contracts.ActionSent, "generic", "https://acme.example/remove")
	ctx := context.Background()

	// The generic handler refuses CAPTCHA-gated forms outright.
	profiles := handlers.NewProfileStore()
	profiles.Put(&contracts.ControllerProfile{
		ControllerID: "generic",
		Domains:      []string{"acme.example"},
		CaptchaKind:  "recaptcha",
	})
	f.worker.profiles = profiles

	_, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)

	got, err := f.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.JobFailed, got.Status)
	assert.Equal(t, 1, got.Attempt, "no retry ladder for permanent failures")
	assert.Contains(t, got.LastError, "captcha")
}

func TestWorkerNoHandlerDeadLetters(t *testing.T) {
	f := newWorkerFixture(t, confirmationHTML)
	job := f.seedController(t, contracts.ActionSent, "unknown-controller", "https://nowhere.example/form")
	ctx := context.Background()

	_, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)

	got, err := f.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.JobFailed, got.Status)
	assert.Contains(t, got.LastError, "no handler")
}

func TestWorkerSessionOpenFailureRetries(t *testing.T) {
	f := newWorkerFixture(t, confirmationHTML)
	job := f.seed(t, contracts.ActionSent)
	ctx := context.Background()

	f.worker.engine = &automation.FakeEngine{NewSessionErr: context.DeadlineExceeded}

	_, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)

	got, err := f.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.JobQueued, got.Status)
	assert.Contains(t, got.LastError, "open session")
}

func TestTicketPattern(t *testing.T) {
	cases := map[string]string{
		"Your Ticket ID: JD-48121":     "JD-48121",
		"reference number #REF-2201":   "REF-2201",
		"Case No. 881234":              "881234",
		"Complaint: CMP-17 registered": "CMP-17",
		"ticket id TKT99231 assigned":  "TKT99231",
		"thanks for contacting us":     "",
	}
	for in, want := range cases {
		m := ticketPattern.FindStringSubmatch(in)
		if want == "" {
			assert.Nil(t, m, in)
			continue
		}
		require.NotNil(t, m, in)
		assert.Equal(t, want, m[1], in)
	}
}
