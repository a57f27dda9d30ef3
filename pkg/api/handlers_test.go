package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delist-labs/delist/pkg/api"
	"github.com/delist-labs/delist/pkg/contracts"
	"github.com/delist-labs/delist/pkg/store"
	"github.com/delist-labs/delist/pkg/webform"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.SQLiteStore, *webform.Queue) {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	queue := webform.NewQueue(s, 6)
	srv := httptest.NewServer(api.NewServer(s, s, s, queue, nil).Routes())
	t.Cleanup(srv.Close)
	return srv, s, queue
}

func seedJob(t *testing.T, s *store.SQLiteStore, status contracts.JobStatus) *contracts.WebformJob {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	action := &contracts.ActionEnvelope{
		ID:           "act-1",
		ControllerID: "justdial",
		Category:     "listing",
		Identity:     contracts.IdentityPreview{Name: "A. Person", City: "Pune"},
		EvidenceURLs: []string{"https://justdial.com/x"},
		Subject:      "Removal request",
		Body:         "Please remove this listing.",
		Status:       contracts.ActionPrepared,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, s.InsertAction(ctx, action))

	job := &contracts.WebformJob{
		ID:          "job-1",
		ActionID:    action.ID,
		SubjectID:   "subj-1",
		TargetURL:   "https://www.justdial.com/Feedback",
		Status:      contracts.JobQueued,
		Attempt:     3,
		MaxAttempts: 6,
		ScheduledAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, s.EnqueueJob(ctx, job))

	// Drive the row through the claim protocol to reach the desired state.
	switch status {
	case contracts.JobFailed:
		claimed, err := s.ClaimDue(ctx, 1, now.Add(time.Minute))
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		require.NoError(t, s.FailJob(ctx, job.ID, "boom", now))
	case contracts.JobSucceeded:
		claimed, err := s.ClaimDue(ctx, 1, now.Add(time.Minute))
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		require.NoError(t, s.CompleteJob(ctx, job.ID, &contracts.JobResult{Confirmation: "ok"}, now))
	}
	return job
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGetJobNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/jobs/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
}

func TestRetryFailedJob(t *testing.T) {
	srv, s, _ := newTestServer(t)
	job := seedJob(t, s, contracts.JobFailed)

	resp, err := http.Post(srv.URL+"/jobs/"+job.ID+"/retry", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	got, err := s.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.JobQueued, got.Status)
	assert.Equal(t, 0, got.Attempt)
}

func TestRetryNonFailedJobConflicts(t *testing.T) {
	srv, s, _ := newTestServer(t)
	job := seedJob(t, s, contracts.JobQueued)

	resp, err := http.Post(srv.URL+"/jobs/"+job.ID+"/retry", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCancelJob(t *testing.T) {
	srv, s, _ := newTestServer(t)
	job := seedJob(t, s, contracts.JobQueued)

	resp, err := http.Post(srv.URL+"/jobs/"+job.ID+"/cancel", "application/json",
		strings.NewReader(`{"reason":"duplicate request"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	got, err := s.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.JobFailed, got.Status)
	assert.Contains(t, got.LastError, "duplicate request")
}

func TestCancelIsIdempotent(t *testing.T) {
	srv, s, _ := newTestServer(t)
	job := seedJob(t, s, contracts.JobSucceeded)

	resp, err := http.Post(srv.URL+"/jobs/"+job.ID+"/cancel", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	got, err := s.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.JobSucceeded, got.Status)
}

func TestListActions(t *testing.T) {
	srv, s, _ := newTestServer(t)
	seedJob(t, s, contracts.JobQueued)

	resp, err := http.Get(srv.URL + "/actions?limit=10")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
