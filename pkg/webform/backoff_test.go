package webform

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestExpectedDelayDoubling(t *testing.T) {
	p := DefaultBackoffPolicy()

	assert.Equal(t, time.Minute, p.ExpectedDelay(1))
	assert.Equal(t, 2*time.Minute, p.ExpectedDelay(2))
	assert.Equal(t, 4*time.Minute, p.ExpectedDelay(3))
	assert.Equal(t, 16*time.Minute, p.ExpectedDelay(5))
	// 2^5 minutes = 32m clamps to the 30m cap.
	assert.Equal(t, 30*time.Minute, p.ExpectedDelay(6))
	assert.Equal(t, 30*time.Minute, p.ExpectedDelay(40))
}

func TestExpectedDelayClampsBadAttempt(t *testing.T) {
	p := DefaultBackoffPolicy()
	assert.Equal(t, p.ExpectedDelay(1), p.ExpectedDelay(0))
	assert.Equal(t, p.ExpectedDelay(1), p.ExpectedDelay(-3))
}

func TestDelayJitterBounds(t *testing.T) {
	p := BackoffPolicy{Base: 60 * time.Second, Cap: 30 * time.Minute}

	p.Jitter = func() float64 { return 0.8 }
	assert.Equal(t, 192*time.Second, p.Delay(3))

	p.Jitter = func() float64 { return 1.2 }
	assert.Equal(t, 288*time.Second, p.Delay(3))
}

func TestBackoffProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	p := DefaultBackoffPolicy()

	properties.Property("expected delay is non-decreasing", prop.ForAll(
		func(attempt int) bool {
			return p.ExpectedDelay(attempt+1) >= p.ExpectedDelay(attempt)
		},
		gen.IntRange(1, 100),
	))

	properties.Property("expected delay never exceeds cap", prop.ForAll(
		func(attempt int) bool {
			d := p.ExpectedDelay(attempt)
			return d > 0 && d <= p.Cap
		},
		gen.IntRange(1, 1_000_000),
	))

	properties.Property("jittered delay stays within 0.8x..1.2x", prop.ForAll(
		func(attempt int, scale float64) bool {
			q := p
			q.Jitter = func() float64 { return scale }
			d := q.Delay(attempt)
			base := p.ExpectedDelay(attempt)
			lo := time.Duration(float64(base) * 0.8)
			hi := time.Duration(float64(base) * 1.2)
			return d >= lo && d <= hi
		},
		gen.IntRange(1, 50),
		gen.Float64Range(0.8, 1.2),
	))

	properties.TestingRun(t)
}
