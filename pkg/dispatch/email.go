// Package dispatch routes prepared actions onto a channel: direct email
// send or webform enqueue, with one automatic fallback between them.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/delist-labs/delist/pkg/contracts"
)

// EmailSender delivers a drafted envelope over email and returns the
// provider-side message id. The transport itself is external; only the retry
// contract around it lives here.
type EmailSender interface {
	Send(ctx context.Context, e *contracts.ActionEnvelope) (string, error)
}

// emailRetryAttempts bounds the email path. A send that is still failing
// after this many tries falls through to the router's channel fallback, not
// into more retries.
const emailRetryAttempts = 3

// HTTPEmailClient talks to an HTTP email provider API.
type HTTPEmailClient struct {
	endpoint string
	apiKey   string
	from     string
	client   *http.Client
	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

// NewHTTPEmailClient builds a client. httpClient may be nil.
func NewHTTPEmailClient(endpoint, apiKey, from string, httpClient *http.Client) *HTTPEmailClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPEmailClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		from:     from,
		client:   httpClient,
		sleep:    time.Sleep,
	}
}

type emailRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	ReplyTo string `json:"reply_to,omitempty"`
}

type emailResponse struct {
	ID string `json:"id"`
}

// Send posts the message, retrying 429 and 5xx responses with exponential
// backoff. Other 4xx responses are not retried.
func (c *HTTPEmailClient) Send(ctx context.Context, e *contracts.ActionEnvelope) (string, error) {
	if c.endpoint == "" {
		return "", fmt.Errorf("%w: email provider not configured", contracts.ErrChannelUnavailable)
	}

	payload := emailRequest{
		From:    c.from,
		To:      e.Identity.Email,
		Subject: e.Subject,
		Body:    e.Body,
		ReplyTo: e.Fields.ReplyToHint,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("dispatch: marshal email: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= emailRetryAttempts; attempt++ {
		if attempt > 1 {
			c.sleep(time.Duration(1<<(attempt-2)) * 500 * time.Millisecond)
		}

		id, retryable, err := c.post(ctx, body)
		if err == nil {
			return id, nil
		}
		lastErr = err
		if !retryable {
			return "", err
		}
	}
	return "", fmt.Errorf("dispatch: email send exhausted %d attempts: %w", emailRetryAttempts, lastErr)
}

func (c *HTTPEmailClient) post(ctx context.Context, body []byte) (id string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("dispatch: build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// Transport-level failures are worth another try.
		return "", true, fmt.Errorf("dispatch: email transport: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode < 300:
		var er emailResponse
		if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
			return "", false, fmt.Errorf("dispatch: decode email response: %w", err)
		}
		return er.ID, false, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		return "", true, fmt.Errorf("%w: email provider throttling", contracts.ErrRateLimited)

	case resp.StatusCode >= 500:
		return "", true, fmt.Errorf("dispatch: email provider returned %d", resp.StatusCode)

	default:
		// 4xx other than 429: the request itself is bad, retrying cannot
		// help.
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", false, fmt.Errorf("dispatch: email provider rejected request (%d): %s", resp.StatusCode, detail)
	}
}
