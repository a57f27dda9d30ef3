package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delist-labs/delist/pkg/contracts"
)

func emailEnvelope() *contracts.ActionEnvelope {
	return &contracts.ActionEnvelope{
		ID:           "act-1",
		ControllerID: "truecaller",
		Identity:     contracts.IdentityPreview{Name: "A. Person", Email: "subject@example.com"},
		Subject:      "Removal request",
		Body:         "Please remove my entry.",
		Fields:       contracts.StructuredFields{Action: "remove", ReplyToHint: "case-77@relay.example"},
		Status:       contracts.ActionPrepared,
	}
}

func noSleep(c *HTTPEmailClient) { c.sleep = func(time.Duration) {} }

func TestEmailSendSuccess(t *testing.T) {
	var got emailRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(emailResponse{ID: "msg-42"})
	}))
	defer srv.Close()

	c := NewHTTPEmailClient(srv.URL, "secret", "requests@delist.example", nil)
	noSleep(c)

	id, err := c.Send(context.Background(), emailEnvelope())
	require.NoError(t, err)
	assert.Equal(t, "msg-42", id)
	assert.Equal(t, "requests@delist.example", got.From)
	assert.Equal(t, "subject@example.com", got.To)
	assert.Equal(t, "case-77@relay.example", got.ReplyTo)
}

func TestEmailRetriesThrottling(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(emailResponse{ID: "msg-1"})
	}))
	defer srv.Close()

	c := NewHTTPEmailClient(srv.URL, "", "from@x", nil)
	noSleep(c)

	id, err := c.Send(context.Background(), emailEnvelope())
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
	assert.Equal(t, 3, calls)
}

func TestEmailRetriesServerErrorsThenExhausts(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPEmailClient(srv.URL, "", "from@x", nil)
	noSleep(c)

	_, err := c.Send(context.Background(), emailEnvelope())
	require.Error(t, err)
	assert.Equal(t, emailRetryAttempts, calls)
	assert.Contains(t, err.Error(), "exhausted")
}

func TestEmailDoesNotRetryRejection(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewHTTPEmailClient(srv.URL, "", "from@x", nil)
	noSleep(c)

	_, err := c.Send(context.Background(), emailEnvelope())
	require.Error(t, err)
	assert.Equal(t, 1, calls, "4xx other than 429 is permanent")
}

func TestEmailUnconfigured(t *testing.T) {
	c := NewHTTPEmailClient("", "", "", nil)
	_, err := c.Send(context.Background(), emailEnvelope())
	assert.ErrorIs(t, err, contracts.ErrChannelUnavailable)
}
