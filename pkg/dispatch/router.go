package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/delist-labs/delist/pkg/contracts"
	"github.com/delist-labs/delist/pkg/policy"
	"github.com/delist-labs/delist/pkg/store"
	"github.com/delist-labs/delist/pkg/webform"
)

// State is the router's view of one dispatch attempt.
type State string

const (
	StateUnsent State = "unsent"
	StateSent   State = "sent"
	StateFailed State = "failed"
)

// Request carries one prepared action into the router.
type Request struct {
	Action *contracts.ActionEnvelope
	// Preferred is the drafted channel. Empty means the resolved policy's
	// preference.
	Preferred contracts.Channel
	Region    string
	// Webform enqueue inputs.
	SubjectID string
	TargetURL string
	Payload   contracts.JobPayload
}

// Outcome reports where the action ended up.
type Outcome struct {
	State      State
	Channel    contracts.Channel
	ProviderID string
	JobID      string
	// Hint describes which paths were attempted, for operators.
	Hint string
}

// Router is the channel-selection state machine. For the webform channel an
// "attempt" is a successful enqueue: the router returns immediately and the
// worker completes the submission asynchronously.
type Router struct {
	resolver *policy.Resolver
	email    EmailSender
	queue    *webform.Queue
	actions  store.ActionStore
	logger   *slog.Logger
}

// NewRouter wires a router. email may be nil when no provider is
// configured; the email channel then reports ChannelUnavailable.
func NewRouter(resolver *policy.Resolver, email EmailSender, queue *webform.Queue, actions store.ActionStore, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		resolver: resolver,
		email:    email,
		queue:    queue,
		actions:  actions,
		logger:   logger,
	}
}

// Dispatch routes one prepared action: preferred channel first, then the
// policy's fallback, then failed. Each failed attempt is recorded in the
// outcome hint.
func (r *Router) Dispatch(ctx context.Context, req Request) (Outcome, error) {
	action := req.Action
	if action == nil {
		return Outcome{State: StateFailed}, fmt.Errorf("%w: nil action", contracts.ErrInvalidInput)
	}
	if err := action.Validate(); err != nil {
		return Outcome{State: StateFailed}, err
	}
	if action.Status != contracts.ActionPrepared {
		return Outcome{State: StateFailed},
			fmt.Errorf("%w: action %s is %s, want %s", contracts.ErrInvalidInput, action.ID, action.Status, contracts.ActionPrepared)
	}

	pol := r.resolver.Resolve(action.ControllerID, req.Region, nil)

	var attempted []string

	preferred := req.Preferred
	if preferred == "" {
		preferred = pol.PreferredChannel
	}
	if !pol.Allows(preferred) {
		// A disallowed request degrades to the policy's own preference,
		// which the resolver guarantees is allowed.
		attempted = append(attempted, string(preferred)+": disallowed by policy")
		preferred = pol.PreferredChannel
	}

	if pol.Allows(preferred) {
		outcome, err := r.attempt(ctx, preferred, req)
		if err == nil {
			outcome.Hint = joinHint(attempted)
			return outcome, nil
		}
		attempted = append(attempted, fmt.Sprintf("%s: %v", preferred, err))
		r.logger.Warn("preferred channel failed", "action_id", action.ID, "channel", preferred, "error", err)
	}

	// One automatic fallback.
	if fb := pol.Fallback(); fb != "" && fb != preferred && pol.Allows(fb) {
		outcome, err := r.attempt(ctx, fb, req)
		if err == nil {
			outcome.Hint = joinHint(attempted)
			return outcome, nil
		}
		attempted = append(attempted, fmt.Sprintf("%s: %v", fb, err))
		r.logger.Warn("fallback channel failed", "action_id", action.ID, "channel", fb, "error", err)
	}

	hint := joinHint(attempted)
	if _, err := r.actions.TransitionAction(ctx, action.ID, contracts.ActionPrepared, contracts.ActionFailed, nil); err != nil {
		r.logger.Error("mark action failed errored", "action_id", action.ID, "error", err)
	}
	return Outcome{State: StateFailed, Hint: hint},
		fmt.Errorf("%w: %s", contracts.ErrChannelUnavailable, hint)
}

func joinHint(attempted []string) string {
	if len(attempted) == 0 {
		return ""
	}
	return "attempted " + strings.Join(attempted, "; ")
}

func (r *Router) attempt(ctx context.Context, ch contracts.Channel, req Request) (Outcome, error) {
	switch ch {
	case contracts.ChannelEmail:
		if r.email == nil {
			return Outcome{}, fmt.Errorf("%w: email sender not configured", contracts.ErrChannelUnavailable)
		}
		providerID, err := r.email.Send(ctx, req.Action)
		if err != nil {
			return Outcome{}, err
		}
		if _, err := r.actions.SetActionSent(ctx, req.Action.ID, contracts.ChannelEmail, providerID); err != nil {
			return Outcome{}, err
		}
		req.Action.Status = contracts.ActionSent
		return Outcome{State: StateSent, Channel: contracts.ChannelEmail, ProviderID: providerID}, nil

	case contracts.ChannelWebform:
		if r.queue == nil {
			return Outcome{}, fmt.Errorf("%w: webform queue not configured", contracts.ErrChannelUnavailable)
		}
		job, err := r.queue.Enqueue(ctx, req.Action, req.SubjectID, req.TargetURL, req.Payload)
		if err != nil {
			return Outcome{}, err
		}
		// Enqueue is the send at this layer; the worker owns completion
		// and will escalate the action if the job dead-letters.
		if _, err := r.actions.SetActionSent(ctx, req.Action.ID, contracts.ChannelWebform, job.ID); err != nil {
			return Outcome{}, err
		}
		req.Action.Status = contracts.ActionSent
		return Outcome{State: StateSent, Channel: contracts.ChannelWebform, JobID: job.ID}, nil

	default:
		return Outcome{}, fmt.Errorf("%w: channel %q not implemented", contracts.ErrChannelUnavailable, ch)
	}
}
