// Package automation abstracts the browser-automation engine behind a small
// session interface so controller handlers stay unit-testable and the engine
// itself is swappable.
package automation

import (
	"context"
	"time"
)

// Session is one automation context against a single page. Every method is
// individually timeout-bounded by the implementation so a hung page cannot
// block a worker indefinitely.
type Session interface {
	// Navigate loads the URL and waits for the page to settle.
	Navigate(ctx context.Context, url string) error
	// Content returns the current page HTML.
	Content(ctx context.Context) (string, error)
	// Screenshot captures the current viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)
	// Fill writes value into the first element matched by any of the
	// selector candidates, in order.
	Fill(ctx context.Context, selectors []string, value string) error
	// Click clicks the first element matched by any of the selector
	// candidates, then waits for the page to settle.
	Click(ctx context.Context, selectors []string) error
	// Close releases the page.
	Close() error
}

// Engine opens sessions. Implemented by the rod-backed ChromeEngine and by
// test fakes.
type Engine interface {
	NewSession(ctx context.Context) (Session, error)
	Close() error
}

// Timeouts bound the individual automation steps.
type Timeouts struct {
	Navigation time.Duration
	Idle       time.Duration
	Step       time.Duration
}

// DefaultTimeouts returns the bounds used in production: tens of seconds per
// step, never minutes.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Navigation: 30 * time.Second,
		Idle:       10 * time.Second,
		Step:       15 * time.Second,
	}
}
