// Package webform owns the durable automation queue: enqueueing jobs for
// the dispatch router, the polling worker that drives them through controller
// handlers, retry backoff, and the failure-spike monitor.
package webform

import (
	"math/rand"
	"time"
)

// BackoffPolicy bounds retry scheduling for automation jobs.
type BackoffPolicy struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
	// Jitter returns a scale factor in [0.8, 1.2]. Nil means the default
	// random source; tests inject a fixed one.
	Jitter func() float64
}

// DefaultBackoffPolicy mirrors the production configuration: one minute
// base, thirty minute cap, six attempts.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		Base:        time.Minute,
		Cap:         30 * time.Minute,
		MaxAttempts: 6,
	}
}

// Delay computes the backoff before the next try after attempt (1-based):
// min(base * 2^(attempt-1), cap) scaled by jitter in [0.8, 1.2]. The
// jitter-free expectation is non-decreasing in attempt and never exceeds
// the cap.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	base := p.ExpectedDelay(attempt)

	jitter := p.Jitter
	if jitter == nil {
		jitter = func() float64 { return 0.8 + rand.Float64()*0.4 }
	}
	return time.Duration(float64(base) * jitter())
}

// ExpectedDelay is the jitter-free delay for an attempt.
func (p BackoffPolicy) ExpectedDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > 30 {
		shift = 30 // cap the exponent, the Cap clamp below dominates anyway
	}
	d := p.Base << shift
	if d > p.Cap || d < 0 {
		d = p.Cap
	}
	return d
}
