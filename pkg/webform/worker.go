package webform

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/delist-labs/delist/pkg/artifacts"
	"github.com/delist-labs/delist/pkg/automation"
	"github.com/delist-labs/delist/pkg/contracts"
	"github.com/delist-labs/delist/pkg/handlers"
	"github.com/delist-labs/delist/pkg/store"
	"github.com/delist-labs/delist/pkg/throttle"
)

// EscalationDelay is how far in the future the manual follow-up anchor is
// set when a job dead-letters.
const EscalationDelay = 6 * time.Hour

// ticketPattern tolerantly matches "ticket/reference/case/complaint" tokens
// followed by an identifier in confirmation text.
var ticketPattern = regexp.MustCompile(`(?i)\b(?:ticket|reference|case|complaint)\b(?:\s*(?:id|no|number))?\.?[\s:#]{0,3}([A-Za-z0-9][A-Za-z0-9-]{3,})`)

// Metrics receives worker outcome counts. Implementations live in the
// observability package; a nil Metrics disables reporting.
type Metrics interface {
	JobProcessed(ctx context.Context, outcome string)
}

// WorkerConfig bounds one worker instance.
type WorkerConfig struct {
	BatchSize    int
	PollInterval time.Duration
	Backoff      BackoffPolicy
}

// DefaultWorkerConfig returns the production defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		BatchSize:    5,
		PollInterval: 30 * time.Second,
		Backoff:      DefaultBackoffPolicy(),
	}
}

// Worker drains the webform queue: claim, run handler, capture artifacts,
// retry or dead-letter. Batches run sequentially; parallel automation
// sessions would contend on the browser engine.
type Worker struct {
	cfg       WorkerConfig
	jobs      store.JobStore
	actions   store.ActionStore
	registry  *handlers.Registry
	profiles  *handlers.ProfileStore
	engine    automation.Engine
	artifacts artifacts.Store
	limiter   throttle.Limiter
	monitor   *Monitor
	metrics   Metrics
	logger    *slog.Logger
	clock     func() time.Time
}

// NewWorker wires a worker. artifacts, limiter, monitor, and metrics may be
// nil; the corresponding steps are skipped.
func NewWorker(
	cfg WorkerConfig,
	jobs store.JobStore,
	actions store.ActionStore,
	registry *handlers.Registry,
	profiles *handlers.ProfileStore,
	engine automation.Engine,
	artifactStore artifacts.Store,
	limiter throttle.Limiter,
	monitor *Monitor,
	metrics Metrics,
	logger *slog.Logger,
) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultWorkerConfig().BatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultWorkerConfig().PollInterval
	}
	if cfg.Backoff.Base <= 0 {
		cfg.Backoff = DefaultBackoffPolicy()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		cfg:       cfg,
		jobs:      jobs,
		actions:   actions,
		registry:  registry,
		profiles:  profiles,
		engine:    engine,
		artifacts: artifactStore,
		limiter:   limiter,
		monitor:   monitor,
		metrics:   metrics,
		logger:    logger,
		clock:     time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (w *Worker) WithClock(clock func() time.Time) *Worker {
	w.clock = clock
	return w
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil {
			w.logger.Error("worker batch failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce claims and processes one batch sequentially, then runs the
// failure-spike check. Returns the number of jobs processed.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	claimed, err := w.jobs.ClaimDue(ctx, w.cfg.BatchSize, w.clock())
	if err != nil {
		return 0, fmt.Errorf("webform: claim batch: %w", err)
	}

	for _, job := range claimed {
		w.processJob(ctx, job)
	}

	if w.monitor != nil && len(claimed) > 0 {
		if _, err := w.monitor.Check(ctx); err != nil {
			w.logger.Error("failure-spike check failed", "error", err)
		}
	}
	return len(claimed), nil
}

func (w *Worker) processJob(ctx context.Context, job *contracts.WebformJob) {
	logger := w.logger.With("job_id", job.ID, "action_id", job.ActionID, "attempt", job.Attempt)

	action, err := w.actions.GetAction(ctx, job.ActionID)
	if err != nil {
		logger.Error("parent action not loadable", "error", err)
		w.handleFailure(ctx, job, nil, fmt.Sprintf("load parent action: %v", err), false, logger)
		return
	}

	handler := w.registry.Match(action.ControllerID, job.TargetURL)
	if handler == nil {
		// No strategy for this controller: retrying cannot help.
		w.handleFailure(ctx, job, action, "no handler for controller "+action.ControllerID, true, logger)
		return
	}

	var profile *contracts.ControllerProfile
	if w.profiles != nil {
		profile = w.profiles.Lookup(action.ControllerID, job.TargetURL)
	}

	if w.limiter != nil {
		interval := time.Duration(0)
		if profile != nil && profile.ThrottleMs > 0 {
			interval = time.Duration(profile.ThrottleMs) * time.Millisecond
		}
		if err := w.limiter.Wait(ctx, Domain(job.TargetURL), interval); err != nil {
			w.handleFailure(ctx, job, action, fmt.Sprintf("throttle wait: %v", err), false, logger)
			return
		}
	}

	session, err := w.engine.NewSession(ctx)
	if err != nil {
		w.handleFailure(ctx, job, action, fmt.Sprintf("open session: %v", err), false, logger)
		return
	}
	defer func() { _ = session.Close() }()

	res := handler.Run(ctx, session, job, profile)
	if !res.OK {
		w.handleFailure(ctx, job, action, res.Error, res.Permanent, logger)
		return
	}

	w.handleSuccess(ctx, job, action, session, res, logger)
}

func (w *Worker) handleSuccess(ctx context.Context, job *contracts.WebformJob, action *contracts.ActionEnvelope, session automation.Session, res handlers.Result, logger *slog.Logger) {
	result := &contracts.JobResult{Confirmation: res.Confirmation}

	html, err := session.Content(ctx)
	if err == nil && html != "" {
		if m := ticketPattern.FindStringSubmatch(html); m != nil {
			result.TicketID = m[1]
		}
		if w.artifacts != nil {
			if hash, err := w.artifacts.Store(ctx, []byte(html)); err == nil {
				result.PageHash = hash
			} else {
				logger.Warn("page artifact capture failed", "error", err)
			}
		}
	}
	if w.artifacts != nil {
		if shot, err := session.Screenshot(ctx); err == nil && len(shot) > 0 {
			if hash, err := w.artifacts.Store(ctx, shot); err == nil {
				result.ScreenshotHash = hash
			}
		}
	}
	if result.TicketID == "" && res.Confirmation != "" {
		if m := ticketPattern.FindStringSubmatch(res.Confirmation); m != nil {
			result.TicketID = m[1]
		}
	}

	now := w.clock()
	if err := w.jobs.CompleteJob(ctx, job.ID, result, now); err != nil {
		logger.Error("complete job failed", "error", err)
		return
	}

	// The router marks actions sent at enqueue time; this covers the path
	// where that write was lost.
	if action.Status == contracts.ActionPrepared {
		if _, err := w.actions.SetActionSent(ctx, action.ID, contracts.ChannelWebform, result.TicketID); err != nil {
			logger.Error("advance action to sent failed", "error", err)
		}
	}

	w.count(ctx, "succeeded")
	logger.Info("webform job succeeded", "ticket_id", result.TicketID)
}

// handleFailure applies the retry/dead-letter decision for a running job.
func (w *Worker) handleFailure(ctx context.Context, job *contracts.WebformJob, action *contracts.ActionEnvelope, reason string, permanent bool, logger *slog.Logger) {
	now := w.clock()

	if !permanent && job.Attempt < job.MaxAttempts {
		delay := w.cfg.Backoff.Delay(job.Attempt)
		next := now.Add(delay)
		if err := w.jobs.RescheduleJob(ctx, job.ID, next, reason); err != nil {
			logger.Error("reschedule failed", "error", err)
			return
		}
		w.count(ctx, "rescheduled")
		logger.Warn("webform job rescheduled", "reason", reason, "next_attempt", next)
		return
	}

	if err := w.jobs.FailJob(ctx, job.ID, reason, now); err != nil {
		logger.Error("dead-letter failed", "error", err)
		return
	}

	if action != nil {
		next := now.Add(EscalationDelay)
		moved, err := w.actions.TransitionAction(ctx, action.ID,
			contracts.ActionSent, contracts.ActionEscalatePending, &next)
		if err != nil {
			logger.Error("escalate transition failed", "error", err)
		} else if !moved {
			// Already escalated by an earlier poll, or the action never
			// reached sent. Either way the transition fired at most once.
			logger.Debug("escalate transition not applied", "status", action.Status)
		}
	}

	w.count(ctx, "failed")
	logger.Error("webform job dead-lettered", "reason", reason)
}

func (w *Worker) count(ctx context.Context, outcome string) {
	if w.metrics != nil {
		w.metrics.JobProcessed(ctx, outcome)
	}
}
