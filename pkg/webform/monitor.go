package webform

import (
	"context"
	"fmt"
	"time"

	"github.com/delist-labs/delist/pkg/alert"
	"github.com/delist-labs/delist/pkg/store"
)

// Monitor watches for failure spikes over a rolling window. Stateless per
// invocation: it queries, groups, and either emits one event or nothing.
// Safe to call after every worker batch.
type Monitor struct {
	jobs          store.JobStore
	sink          alert.Sink
	windowMinutes int
	threshold     int
	clock         func() time.Time
}

// NewMonitor builds a monitor. threshold is the total failed-job count in
// the window that triggers an alert.
func NewMonitor(jobs store.JobStore, sink alert.Sink, windowMinutes, threshold int) *Monitor {
	if windowMinutes <= 0 {
		windowMinutes = 60
	}
	if threshold <= 0 {
		threshold = 5
	}
	return &Monitor{
		jobs:          jobs,
		sink:          sink,
		windowMinutes: windowMinutes,
		threshold:     threshold,
		clock:         time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (m *Monitor) WithClock(clock func() time.Time) *Monitor {
	m.clock = clock
	return m
}

// Check queries failures inside the window and emits a single
// WEBFORM_FAILURE_SPIKE event when the total crosses the threshold. Returns
// whether an alert was emitted.
func (m *Monitor) Check(ctx context.Context) (bool, error) {
	now := m.clock()
	since := now.Add(-time.Duration(m.windowMinutes) * time.Minute)

	urls, err := m.jobs.FailedSince(ctx, since)
	if err != nil {
		return false, fmt.Errorf("webform: failure window query: %w", err)
	}
	if len(urls) < m.threshold {
		return false, nil
	}

	byDomain := make(map[string]int, len(urls))
	for _, u := range urls {
		byDomain[Domain(u)]++
	}

	event := alert.Event{
		Type:          alert.EventTypeFailureSpike,
		WindowMinutes: m.windowMinutes,
		TotalFailed:   len(urls),
		ByDomain:      byDomain,
		At:            now,
	}
	if err := m.sink.Emit(ctx, event); err != nil {
		return false, fmt.Errorf("webform: emit spike alert: %w", err)
	}
	return true, nil
}
