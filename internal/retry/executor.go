package retry

import (
	"context"
	"time"

	"github.com/vvka-141/txretry/pkg/txretry"
)

// Executor retries a plain operation (no transaction) with backoff and error
// classification. internal/db uses it to dial the database.
//
// Thread Safety:
// The Executor itself is safe for concurrent use when calling Execute().
// WithOnRetry() returns a NEW instance with the callback configured.
// The original Executor remains unchanged.
type Executor struct {
	classifier txretry.ErrorClassifier
	strategy   txretry.BackoffStrategy
	policy     txretry.RetryPolicy
	sleep      Sleeper
	onRetry    func(attempt int, err error, delay time.Duration)
}

// NewExecutor creates a new retry executor.
// Panics if classifier or strategy is nil.
func NewExecutor(
	classifier txretry.ErrorClassifier,
	strategy txretry.BackoffStrategy,
	policy txretry.RetryPolicy,
) *Executor {
	if classifier == nil {
		panic("classifier cannot be nil")
	}
	if strategy == nil {
		panic("strategy cannot be nil")
	}
	return &Executor{
		classifier: classifier,
		strategy:   strategy,
		policy:     policy,
		sleep:      ContextSleep,
	}
}

// WithOnRetry returns a new Executor with the specified retry callback.
//
// Example:
//
//	executor := retry.NewExecutor(classifier, strategy, policy)
//	logged := executor.WithOnRetry(func(attempt int, err error, delay time.Duration) {
//	    logger.Verbose("attempt %d failed: %v, retrying in %v", attempt, err, delay)
//	})
func (e *Executor) WithOnRetry(callback func(attempt int, err error, delay time.Duration)) *Executor {
	clone := *e
	clone.onRetry = callback
	return &clone
}

// WithSleeper returns a new Executor that waits with s.
func (e *Executor) WithSleeper(s Sleeper) *Executor {
	clone := *e
	clone.sleep = s
	return &clone
}

// Execute runs operation until it succeeds, fails fatally, or the policy's
// attempt budget is used up. The last error is returned unchanged.
func (e *Executor) Execute(ctx context.Context, operation func(ctx context.Context) error) error {
	maxAttempts := e.policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation(ctx)
		if lastErr == nil {
			return nil
		}
		if !e.classifier.IsTransient(lastErr) || attempt == maxAttempts {
			return lastErr
		}

		delay := e.strategy.NextDelay(attempt, e.policy.MaxBackoff)
		if e.onRetry != nil {
			e.onRetry(attempt, lastErr, delay)
		}
		if err := e.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}
