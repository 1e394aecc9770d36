package retry

import (
	"math"
	"math/rand"
	"time"
)

// maxExponent keeps 2^attempt well inside float64 and time.Duration range.
const maxExponent = 40

// ExponentialBackoff grows as base * 2^attempt plus a uniform random jitter,
// capped at the limit passed to NextDelay. With the defaults this yields
// min(2^attempt ms + rand[0,1000) ms, limit).
type ExponentialBackoff struct {
	// baseDelay is the unit multiplied by 2^attempt
	baseDelay time.Duration

	// maxJitter is the upper bound (exclusive) of the random offset added to each delay
	maxJitter time.Duration

	// jitterFunc provides random values [0, 1) for jitter calculation (defaults to rand.Float64)
	jitterFunc func() float64
}

// BackoffOption is a functional option for configuring ExponentialBackoff.
type BackoffOption func(*ExponentialBackoff)

// WithBaseDelay sets the unit that is doubled on every attempt.
func WithBaseDelay(d time.Duration) BackoffOption {
	return func(b *ExponentialBackoff) {
		b.baseDelay = d
	}
}

// WithMaxJitter sets the upper bound of the random offset. Zero disables jitter.
func WithMaxJitter(d time.Duration) BackoffOption {
	return func(b *ExponentialBackoff) {
		b.maxJitter = d
	}
}

// WithJitterFunc sets a custom function for generating random jitter values.
func WithJitterFunc(f func() float64) BackoffOption {
	return func(b *ExponentialBackoff) {
		b.jitterFunc = f
	}
}

// NewExponentialBackoff creates the outer coordinator's default strategy.
//
// Example:
//
//	backoff := retry.NewExponentialBackoff(
//	    retry.WithBaseDelay(10 * time.Millisecond),
//	    retry.WithMaxJitter(250 * time.Millisecond),
//	)
func NewExponentialBackoff(opts ...BackoffOption) *ExponentialBackoff {
	b := &ExponentialBackoff{
		baseDelay: time.Millisecond,
		maxJitter: time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NextDelay returns the delay after the given failed attempt (1-based).
func (b *ExponentialBackoff) NextDelay(attempt int, limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxExponent {
		attempt = maxExponent
	}

	delay := float64(b.baseDelay) * math.Pow(2, float64(attempt))

	if b.maxJitter > 0 {
		jitterFunc := b.jitterFunc
		if jitterFunc == nil {
			jitterFunc = rand.Float64
		}
		delay += jitterFunc() * float64(b.maxJitter)
	}

	if delay >= float64(limit) {
		return limit
	}
	return time.Duration(delay)
}

// GeometricBackoff starts at an initial delay and multiplies it on each
// attempt, capped at a ceiling and at the limit passed to NextDelay.
// It carries no jitter.
type GeometricBackoff struct {
	initialDelay time.Duration
	multiplier   float64
	maxDelay     time.Duration
}

// NewGeometricBackoff creates the savepoint coordinator's default strategy:
// 150ms growing by 1.5x per attempt, never above 5s.
func NewGeometricBackoff() *GeometricBackoff {
	return NewGeometricBackoffWith(150*time.Millisecond, 1.5, 5*time.Second)
}

// NewGeometricBackoffWith creates a geometric strategy with explicit parameters.
// A multiplier below 1 is treated as 1.
func NewGeometricBackoffWith(initial time.Duration, multiplier float64, maxDelay time.Duration) *GeometricBackoff {
	if multiplier < 1 {
		multiplier = 1
	}
	return &GeometricBackoff{
		initialDelay: initial,
		multiplier:   multiplier,
		maxDelay:     maxDelay,
	}
}

// NextDelay returns initial * multiplier^(attempt-1), capped.
func (b *GeometricBackoff) NextDelay(attempt int, limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	ceiling := b.maxDelay
	if ceiling <= 0 || limit < ceiling {
		ceiling = limit
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > maxExponent {
		attempt = maxExponent
	}

	delay := float64(b.initialDelay) * math.Pow(b.multiplier, float64(attempt-1))
	if delay >= float64(ceiling) {
		return ceiling
	}
	if delay < 0 {
		return 0
	}
	return time.Duration(delay)
}
