package contracts

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestActionStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to ActionStatus
		ok       bool
	}{
		{ActionDraft, ActionPrepared, true},
		{ActionDraft, ActionFailed, true},
		{ActionDraft, ActionSent, false},
		{ActionPrepared, ActionSent, true},
		{ActionPrepared, ActionFailed, true},
		{ActionPrepared, ActionDraft, false},
		{ActionSent, ActionEscalatePending, true},
		{ActionSent, ActionFailed, false},
		{ActionSent, ActionDraft, false},
		{ActionEscalatePending, ActionSent, false},
		{ActionEscalatePending, ActionFailed, false},
		{ActionFailed, ActionPrepared, false},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s_to_%s", tc.from, tc.to), func(t *testing.T) {
			assert.Equal(t, tc.ok, tc.from.CanTransition(tc.to))
		})
	}
}

func TestEnvelopeValidate(t *testing.T) {
	valid := ActionEnvelope{
		ControllerID: "justdial",
		Subject:      "Removal request",
		Body:         "Please remove this listing.",
		Fields:       StructuredFields{Action: "remove"},
	}
	assert.NoError(t, valid.Validate())

	noController := valid
	noController.ControllerID = ""
	assert.ErrorIs(t, noController.Validate(), ErrInvalidInput)

	noContent := valid
	noContent.Subject = ""
	noContent.Body = ""
	assert.ErrorIs(t, noContent.Validate(), ErrInvalidInput)

	noAction := valid
	noAction.Fields.Action = ""
	assert.ErrorIs(t, noAction.Validate(), ErrInvalidInput)
}

func TestRetryableTaxonomy(t *testing.T) {
	assert.True(t, Retryable(fmt.Errorf("wrapped: %w", ErrRateLimited)))
	assert.True(t, Retryable(ErrAutomationFailed))
	assert.False(t, Retryable(ErrInvalidInput))
	assert.False(t, Retryable(ErrChannelUnavailable))
	assert.False(t, Retryable(errors.New("something else")))
}

func TestPolicyErrorCarriesReason(t *testing.T) {
	err := PolicyError("below-min:0.80<0.84")
	assert.ErrorIs(t, err, ErrPolicyViolation)
	assert.Contains(t, err.Error(), "below-min:0.80<0.84")
}

func TestJobStatusTerminal(t *testing.T) {
	assert.False(t, JobQueued.Terminal())
	assert.False(t, JobRunning.Terminal())
	assert.True(t, JobSucceeded.Terminal())
	assert.True(t, JobFailed.Terminal())
}

func TestEffectivePolicyFallback(t *testing.T) {
	p := EffectivePolicy{
		PreferredChannel: ChannelWebform,
		AllowedChannels:  []Channel{ChannelWebform, ChannelEmail},
	}
	assert.Equal(t, ChannelEmail, p.Fallback())
	assert.True(t, p.Allows(ChannelWebform))
	assert.False(t, p.Allows(ChannelAPI))

	only := EffectivePolicy{
		PreferredChannel: ChannelEmail,
		AllowedChannels:  []Channel{ChannelEmail},
	}
	assert.Equal(t, Channel(""), only.Fallback())
}

func TestNextFollowupAt(t *testing.T) {
	from := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	p := EffectivePolicy{FollowupEveryDays: 14}
	assert.Equal(t, from.AddDate(0, 0, 14), p.NextFollowupAt(from))

	none := EffectivePolicy{}
	assert.True(t, none.NextFollowupAt(from).IsZero())
}
