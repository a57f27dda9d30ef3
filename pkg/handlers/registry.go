// Package handlers holds the per-controller automation strategies. Each
// handler knows how to resolve the submission URL for a target and how to
// drive an automation session through that controller's removal form.
//
// Handlers are compiled-in and statically registered; selection is exact key
// first, then domain substring against the job's target URL.
package handlers

import (
	"context"
	"strings"

	"github.com/delist-labs/delist/pkg/automation"
	"github.com/delist-labs/delist/pkg/contracts"
)

// Result is the typed outcome of one handler run. Run never panics and
// never returns a Go error: all failures land here so the worker's retry
// logic stays uniform across controllers.
type Result struct {
	OK           bool   `json:"ok"`
	Confirmation string `json:"confirmation,omitempty"`
	// Permanent marks a failure as not worth retrying (e.g. the form no
	// longer exists). The worker dead-letters immediately.
	Permanent bool   `json:"permanent,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Failure builds a retryable failed Result.
func Failure(msg string) Result {
	return Result{Error: msg}
}

// PermanentFailure builds a non-retryable failed Result.
func PermanentFailure(msg string) Result {
	return Result{Error: msg, Permanent: true}
}

// Handler is one controller automation strategy.
type Handler interface {
	// Key is the controller id this handler serves.
	Key() string
	// Domains lists URL substrings that also select this handler.
	Domains() []string
	// ResolveURL picks the page to drive. Precedence: explicit job URL,
	// then the profile's first candidate form URL, then the handler
	// default.
	ResolveURL(job *contracts.WebformJob, profile *contracts.ControllerProfile) string
	// Run drives the session through the submission.
	Run(ctx context.Context, session automation.Session, job *contracts.WebformJob, profile *contracts.ControllerProfile) Result
}

// Registry selects handlers for jobs.
type Registry struct {
	byKey []Handler // ordered: registration order is the domain-match order
}

// NewRegistry returns a registry with the built-in handlers.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Register(NewJustdialHandler())
	r.Register(NewSulekhaHandler())
	r.Register(NewGenericHandler())
	return r
}

// Register appends a handler.
func (r *Registry) Register(h Handler) {
	r.byKey = append(r.byKey, h)
}

// Match picks the handler for a controller id and target URL: exact key
// match first, else first domain substring match, else nil. A nil handler
// means the job cannot proceed and is permanent-failure-eligible.
func (r *Registry) Match(controllerID, targetURL string) Handler {
	for _, h := range r.byKey {
		if h.Key() == controllerID {
			return h
		}
	}
	lower := strings.ToLower(targetURL)
	for _, h := range r.byKey {
		for _, d := range h.Domains() {
			if d != "" && strings.Contains(lower, strings.ToLower(d)) {
				return h
			}
		}
	}
	return nil
}

// resolveURL implements the shared URL precedence for all handlers.
func resolveURL(job *contracts.WebformJob, profile *contracts.ControllerProfile, fallback string) string {
	if job != nil && job.TargetURL != "" {
		return job.TargetURL
	}
	if profile != nil && len(profile.CandidateFormURLs) > 0 {
		return profile.CandidateFormURLs[0]
	}
	return fallback
}
