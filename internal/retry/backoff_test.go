package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestExponentialBackoff_NoJitter(t *testing.T) {
	b := NewExponentialBackoff(WithMaxJitter(0))

	assert.Equal(t, 2*time.Millisecond, b.NextDelay(1, time.Minute))
	assert.Equal(t, 4*time.Millisecond, b.NextDelay(2, time.Minute))
	assert.Equal(t, 1024*time.Millisecond, b.NextDelay(10, time.Minute))
	assert.Equal(t, 15*time.Second, b.NextDelay(20, 15*time.Second))
}

func TestExponentialBackoff_Jitter(t *testing.T) {
	b := NewExponentialBackoff(WithJitterFunc(func() float64 { return 0.5 }))

	assert.Equal(t, 502*time.Millisecond, b.NextDelay(1, time.Minute))
	assert.Equal(t, 100*time.Millisecond, b.NextDelay(1, 100*time.Millisecond))
}

func TestExponentialBackoff_CustomBase(t *testing.T) {
	b := NewExponentialBackoff(WithBaseDelay(50*time.Millisecond), WithMaxJitter(0))

	assert.Equal(t, 100*time.Millisecond, b.NextDelay(1, time.Minute))
	assert.Equal(t, 200*time.Millisecond, b.NextDelay(2, time.Minute))
}

func TestExponentialBackoff_ZeroLimitDisablesSleep(t *testing.T) {
	b := NewExponentialBackoff()
	for attempt := 0; attempt < 10; attempt++ {
		assert.Zero(t, b.NextDelay(attempt, 0))
		assert.Zero(t, b.NextDelay(attempt, -time.Second))
	}
}

func TestExponentialBackoff_WithinBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		attempt := rapid.IntRange(0, 1000).Draw(t, "attempt")
		limit := time.Duration(rapid.Int64Range(1, int64(time.Hour)).Draw(t, "limit"))
		r := rapid.Float64Range(0, 0.999999).Draw(t, "random")

		b := NewExponentialBackoff(WithJitterFunc(func() float64 { return r }))
		d := b.NextDelay(attempt, limit)

		if d < 0 || d > limit {
			t.Fatalf("NextDelay(%d, %v) = %v out of [0, limit]", attempt, limit, d)
		}
	})
}

func TestGeometricBackoff(t *testing.T) {
	b := NewGeometricBackoff()

	assert.Equal(t, 150*time.Millisecond, b.NextDelay(1, time.Minute))
	assert.Equal(t, 225*time.Millisecond, b.NextDelay(2, time.Minute))
	assert.Equal(t, 337500*time.Microsecond, b.NextDelay(3, time.Minute))
	assert.Equal(t, 5*time.Second, b.NextDelay(30, time.Minute))
	assert.Equal(t, time.Second, b.NextDelay(30, time.Second))
	assert.Zero(t, b.NextDelay(1, 0))
}

func TestGeometricBackoff_Monotonic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		attempt := rapid.IntRange(1, 200).Draw(t, "attempt")
		limit := time.Duration(rapid.Int64Range(1, int64(time.Minute)).Draw(t, "limit"))

		b := NewGeometricBackoff()
		cur := b.NextDelay(attempt, limit)
		next := b.NextDelay(attempt+1, limit)
		if next < cur {
			t.Fatalf("delay decreased: %v -> %v", cur, next)
		}
		if next > limit || next > 5*time.Second {
			t.Fatalf("delay %v exceeds cap", next)
		}
	})
}

func TestGeometricBackoff_MultiplierClamped(t *testing.T) {
	b := NewGeometricBackoffWith(10*time.Millisecond, 0.5, time.Second)
	assert.Equal(t, 10*time.Millisecond, b.NextDelay(5, time.Minute))
}

func TestContextSleep(t *testing.T) {
	assert.NoError(t, ContextSleep(context.Background(), 0))
	assert.NoError(t, ContextSleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.ErrorIs(t, ContextSleep(ctx, time.Hour), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
