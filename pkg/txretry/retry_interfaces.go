package txretry

import "time"

// ErrorClassifier determines whether an error is transient (retryable) or fatal.
type ErrorClassifier interface {
	// Classify inspects err and its wrapped chain.
	Classify(err error) Classification

	// IsTransient returns true if the error is temporary and the operation should be retried.
	IsTransient(err error) bool
}

// BackoffStrategy calculates the delay before the next retry attempt.
type BackoffStrategy interface {
	// NextDelay returns the duration to wait after the given failed attempt
	// (1-based). The result never exceeds limit; limit <= 0 yields 0.
	NextDelay(attempt int, limit time.Duration) time.Duration
}

// EventSink receives retry telemetry. Implementations must be safe for
// concurrent use and must not block.
type EventSink interface {
	OnRetryEvent(event RetryEvent)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(event RetryEvent)

func (f EventSinkFunc) OnRetryEvent(event RetryEvent) {
	f(event)
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) OnRetryEvent(RetryEvent) {}
