package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLimiterPacesPerDomain(t *testing.T) {
	l := NewLocalLimiter(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "justdial.com", 0))
	require.NoError(t, l.Wait(ctx, "justdial.com", 0))
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond, "second call waits for the interval")
}

func TestLocalLimiterDomainsAreIndependent(t *testing.T) {
	l := NewLocalLimiter(time.Hour)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "justdial.com", 0))
	require.NoError(t, l.Wait(ctx, "sulekha.com", 0))
	assert.Less(t, time.Since(start), time.Second, "first token per domain is immediate")
}

func TestLocalLimiterHonorsProfileInterval(t *testing.T) {
	l := NewLocalLimiter(time.Hour)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "acme.example", 30*time.Millisecond))
	require.NoError(t, l.Wait(ctx, "acme.example", 30*time.Millisecond))
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
	assert.Less(t, elapsed, time.Second, "profile interval overrides the hour-long default")
}

func TestLocalLimiterContextCancel(t *testing.T) {
	l := NewLocalLimiter(time.Hour)
	ctx := context.Background()
	require.NoError(t, l.Wait(ctx, "slow.example", 0))

	cancelled, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := l.Wait(cancelled, "slow.example", 0)
	assert.Error(t, err, "waiting an hour gets cut off by the context")
}
