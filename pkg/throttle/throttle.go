// Package throttle paces webform submissions per target domain so the
// automation engine never hammers a single controller. Two backends: a Redis
// token bucket shared across worker instances, and an in-process limiter for
// single-instance deployments.
package throttle

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter gates submissions by domain.
type Limiter interface {
	// Wait blocks until a submission against domain may proceed, or ctx
	// is done. minInterval is the controller's declared pacing; zero
	// means the limiter's default.
	Wait(ctx context.Context, domain string, minInterval time.Duration) error
}

// LocalLimiter keeps one rate.Limiter per domain in process.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	fallback time.Duration
}

// NewLocalLimiter builds a limiter with the given default interval between
// submissions to the same domain.
func NewLocalLimiter(defaultInterval time.Duration) *LocalLimiter {
	if defaultInterval <= 0 {
		defaultInterval = 5 * time.Second
	}
	return &LocalLimiter{
		limiters: make(map[string]*rate.Limiter),
		fallback: defaultInterval,
	}
}

func (l *LocalLimiter) Wait(ctx context.Context, domain string, minInterval time.Duration) error {
	if minInterval <= 0 {
		minInterval = l.fallback
	}

	l.mu.Lock()
	lim, ok := l.limiters[domain]
	if !ok {
		lim = rate.NewLimiter(rate.Every(minInterval), 1)
		l.limiters[domain] = lim
	} else {
		// Controllers can tighten their pacing at runtime via profile
		// reloads.
		want := rate.Every(minInterval)
		if lim.Limit() != want {
			lim.SetLimit(want)
		}
	}
	l.mu.Unlock()

	return lim.Wait(ctx)
}
