// Package alert delivers operational alert events to an external sink.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// EventTypeFailureSpike is emitted when webform failures in the rolling
// window cross the configured threshold.
const EventTypeFailureSpike = "WEBFORM_FAILURE_SPIKE"

// Event is the JSON payload delivered to the sink.
type Event struct {
	Type          string         `json:"type"`
	WindowMinutes int            `json:"windowMinutes"`
	TotalFailed   int            `json:"totalFailed"`
	ByDomain      map[string]int `json:"byDomain"`
	At            time.Time      `json:"at"`
}

// Sink receives alert events.
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// WebhookSink POSTs events as JSON to a configured URL.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink builds a sink. client may be nil for a default with a short
// timeout.
func NewWebhookSink(url string, client *http.Client) *WebhookSink {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookSink{url: url, client: client}
}

func (s *WebhookSink) Emit(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("alert: marshal event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("alert: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("alert: deliver event: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("alert: sink returned %d", resp.StatusCode)
	}
	return nil
}

// NoopSink drops events. Used when no webhook is configured.
type NoopSink struct{}

func (NoopSink) Emit(context.Context, Event) error { return nil }

// CaptureSink records events in memory, for tests.
type CaptureSink struct {
	Events []Event
}

func (s *CaptureSink) Emit(_ context.Context, event Event) error {
	s.Events = append(s.Events, event)
	return nil
}
