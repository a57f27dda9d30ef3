package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delist-labs/delist/pkg/automation"
	"github.com/delist-labs/delist/pkg/contracts"
)

func TestJustdialRun(t *testing.T) {
	session := automation.NewFakeSession(`<p>Thank you! Ticket ID: JD-1001</p>`)
	job := &contracts.WebformJob{
		TargetURL: "https://www.justdial.com/Feedback",
		Payload: contracts.JobPayload{
			Name:    "A. Person",
			Email:   "a@example.com",
			Phone:   "9800000000",
			Message: "remove my listing",
		},
	}

	res := NewJustdialHandler().Run(context.Background(), session, job, nil)
	require.True(t, res.OK, res.Error)
	assert.Contains(t, res.Confirmation, "Thank you")

	assert.Equal(t, "A. Person", session.Filled[`#name`])
	assert.Equal(t, "9800000000", session.Filled[`#mobile`])
	assert.Equal(t, "remove my listing", session.Filled[`#feedback`])
	assert.Equal(t, []string{`#submitbtn`}, session.Clicked)
}

func TestJustdialDefaultURL(t *testing.T) {
	h := NewJustdialHandler()
	assert.Equal(t, "https://www.justdial.com/Feedback", h.ResolveURL(&contracts.WebformJob{}, nil))
}

func TestJustdialFieldFailureIsRetryable(t *testing.T) {
	session := automation.NewFakeSession("")
	session.FailOn = "fill"
	session.FailMessage = "detached frame"

	job := &contracts.WebformJob{
		TargetURL: "https://www.justdial.com/Feedback",
		Payload:   contracts.JobPayload{Name: "A. Person"},
	}
	res := NewJustdialHandler().Run(context.Background(), session, job, nil)
	assert.False(t, res.OK)
	assert.False(t, res.Permanent)
	assert.Contains(t, res.Error, "fill name")
}

func TestSulekhaRun(t *testing.T) {
	session := automation.NewFakeSession(`<p>request submitted successfully</p>`)
	job := &contracts.WebformJob{
		TargetURL: "https://www.sulekha.com/grievance",
		Payload: contracts.JobPayload{
			Name:    "A. Person",
			Email:   "a@example.com",
			Message: "remove my listing",
		},
	}

	res := NewSulekhaHandler().Run(context.Background(), session, job, nil)
	require.True(t, res.OK, res.Error)
	assert.Contains(t, res.Confirmation, "request submitted")

	assert.Equal(t, "A. Person", session.Filled[`input[name="username"]`])
	assert.Equal(t, "a@example.com", session.Filled[`input[name="emailid"]`])
	assert.Equal(t, "remove my listing", session.Filled[`textarea[name="grievance"]`])
	assert.Equal(t, []string{`button.submit-grievance`}, session.Clicked)
}

func TestSulekhaPhoneIsOptional(t *testing.T) {
	session := automation.NewFakeSession(`<p>thank you</p>`)
	// Phone selectors missing; everything else present.
	session.KnownSelectors = []string{
		`input[name="username"]`, `input[name="emailid"]`,
		`textarea[name="grievance"]`, `button.submit-grievance`,
	}
	job := &contracts.WebformJob{
		TargetURL: "https://www.sulekha.com/grievance",
		Payload: contracts.JobPayload{
			Name:    "A. Person",
			Email:   "a@example.com",
			Phone:   "9800000000",
			Message: "remove my listing",
		},
	}

	res := NewSulekhaHandler().Run(context.Background(), session, job, nil)
	require.True(t, res.OK, res.Error)
	_, phoneFilled := session.Filled[`input[name="mobileno"]`]
	assert.False(t, phoneFilled)
}
