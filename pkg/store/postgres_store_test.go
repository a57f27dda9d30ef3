package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delist-labs/delist/pkg/contracts"
)

func newPgStore(t *testing.T) (*PostgresJobStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS webform_jobs").
		WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := NewPostgresJobStore(db)
	require.NoError(t, err)
	return s, mock
}

func pgJobRow(id string, status contracts.JobStatus, attempt int, now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "action_id", "subject_id", "target_url", "payload", "status",
		"attempt", "max_attempts", "scheduled_at", "completed_at", "result",
		"last_error", "created_at", "updated_at",
	}).AddRow(
		id, "act-1", "subj-1", "https://justdial.com/report",
		[]byte(`{"name":"A. Person"}`), string(status),
		attempt, 6, now, nil, nil, "", now, now,
	)
}

func TestPostgresClaimDueUsesSkipLocked(t *testing.T) {
	s, mock := newPgStore(t)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)UPDATE webform_jobs SET status = \$1, attempt = attempt \+ 1.*FOR UPDATE SKIP LOCKED.*RETURNING`).
		WithArgs(string(contracts.JobRunning), now, string(contracts.JobQueued), 5).
		WillReturnRows(pgJobRow("job-1", contracts.JobRunning, 1, now))

	claimed, err := s.ClaimDue(context.Background(), 5, now)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "job-1", claimed[0].ID)
	assert.Equal(t, contracts.JobRunning, claimed[0].Status)
	assert.Equal(t, 1, claimed[0].Attempt)
	assert.Equal(t, "A. Person", claimed[0].Payload.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresEnqueueJob(t *testing.T) {
	s, mock := newPgStore(t)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	job := &contracts.WebformJob{
		ID:          "job-1",
		ActionID:    "act-1",
		TargetURL:   "https://justdial.com/report",
		Status:      contracts.JobQueued,
		MaxAttempts: 6,
		ScheduledAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	mock.ExpectExec("INSERT INTO webform_jobs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.EnqueueJob(context.Background(), job))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCompleteJobGuardsOnRunning(t *testing.T) {
	s, mock := newPgStore(t)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE webform_jobs SET status = \$1, result = \$2`).
		WithArgs(string(contracts.JobSucceeded), sqlmock.AnyArg(), now, "job-1", string(contracts.JobRunning)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.CompleteJob(context.Background(), "job-1",
		&contracts.JobResult{TicketID: "TKT-1"}, now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRearmReportsMiss(t *testing.T) {
	s, mock := newPgStore(t)

	mock.ExpectExec(`UPDATE webform_jobs SET status = \$1, attempt = 0`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.RearmJob(context.Background(), "job-1", time.Now())
	require.NoError(t, err)
	assert.False(t, ok, "nothing in failed state to re-arm")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFailedSince(t *testing.T) {
	s, mock := newPgStore(t)
	since := time.Date(2026, 5, 1, 8, 45, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT target_url FROM webform_jobs WHERE status = \$1 AND updated_at >= \$2`).
		WithArgs(string(contracts.JobFailed), since).
		WillReturnRows(sqlmock.NewRows([]string{"target_url"}).
			AddRow("https://justdial.com/a").
			AddRow("https://sulekha.com/b"))

	urls, err := s.FailedSince(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://justdial.com/a", "https://sulekha.com/b"}, urls)
	assert.NoError(t, mock.ExpectationsWereMet())
}
