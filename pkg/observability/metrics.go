package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the service counters. It satisfies the worker's Metrics
// interface and is also fed by the dispatch router.
type Metrics struct {
	jobsProcessed metric.Int64Counter
	dispatches    metric.Int64Counter
	alertsEmitted metric.Int64Counter
}

// NewMetrics registers the counters on the provider's meter.
func NewMetrics(p *Provider) (*Metrics, error) {
	meter := p.Meter()
	m := &Metrics{}

	var err error
	m.jobsProcessed, err = meter.Int64Counter("delist.webform.jobs.processed",
		metric.WithDescription("Webform jobs processed, by outcome"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return nil, fmt.Errorf("register jobs counter: %w", err)
	}
	m.dispatches, err = meter.Int64Counter("delist.dispatch.total",
		metric.WithDescription("Dispatch attempts, by channel and state"),
		metric.WithUnit("{dispatch}"),
	)
	if err != nil {
		return nil, fmt.Errorf("register dispatch counter: %w", err)
	}
	m.alertsEmitted, err = meter.Int64Counter("delist.alerts.emitted",
		metric.WithDescription("Failure-spike alerts emitted"),
		metric.WithUnit("{alert}"),
	)
	if err != nil {
		return nil, fmt.Errorf("register alert counter: %w", err)
	}
	return m, nil
}

// JobProcessed counts one drained job. outcome is succeeded, rescheduled,
// or failed.
func (m *Metrics) JobProcessed(ctx context.Context, outcome string) {
	if m == nil || m.jobsProcessed == nil {
		return
	}
	m.jobsProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// DispatchRouted counts one router decision.
func (m *Metrics) DispatchRouted(ctx context.Context, channel, state string) {
	if m == nil || m.dispatches == nil {
		return
	}
	m.dispatches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("state", state),
	))
}

// AlertEmitted counts one spike alert.
func (m *Metrics) AlertEmitted(ctx context.Context, eventType string) {
	if m == nil || m.alertsEmitted == nil {
		return
	}
	m.alertsEmitted.Add(ctx, 1, metric.WithAttributes(attribute.String("event", eventType)))
}
