package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/vvka-141/txretry/pkg/txretry"
)

// SavepointRetrier retries a segment of an already open transaction by
// rolling back to a savepoint instead of restarting the transaction, which
// keeps the work done before the segment.
//
// Safe for concurrent use; each call works on the transaction found in its context.
type SavepointRetrier struct {
	classifier txretry.ErrorClassifier
	backoff    txretry.BackoffStrategy
	sleep      Sleeper
	sink       txretry.EventSink
	logger     txretry.Logger
	now        func() time.Time
	name       string
}

// NewSavepointRetrier creates an inner coordinator. The default backoff is
// NewGeometricBackoff.
func NewSavepointRetrier(opts ...Option) *SavepointRetrier {
	s := buildSettings(NewGeometricBackoff(), opts)
	if s.savepointName == "" {
		s.savepointName = txretry.DefaultSavepointName
	}
	return &SavepointRetrier{
		classifier: s.classifier,
		backoff:    s.backoff,
		sleep:      s.sleep,
		sink:       s.sink,
		logger:     s.logger,
		now:        s.now,
		name:       s.savepointName,
	}
}

// Name returns the savepoint name used by this retrier.
func (s *SavepointRetrier) Name() string {
	return s.name
}

// Execute is RunInSavepoint for operations without a result.
func (s *SavepointRetrier) Execute(ctx context.Context, policy txretry.RetryPolicy, op func(ctx context.Context, tx txretry.Tx) error) error {
	_, err := RunInSavepoint(ctx, s, policy, func(ctx context.Context, tx txretry.Tx) (struct{}, error) {
		return struct{}{}, op(ctx, tx)
	})
	return err
}

// RunInSavepoint runs op between SAVEPOINT and RELEASE SAVEPOINT on the
// transaction carried by ctx. On a serialization failure it rolls back to the
// savepoint, backs off and runs op again.
//
// The attempt budget is shared with an enclosing Run: the current outer
// attempt counts as the first invocation and each savepoint retry consumes
// one more, so the total never exceeds policy.MaxAttempts. When the budget is
// spent, or op fails fatally, the whole transaction is rolled back.
//
// A transient failure of RELEASE SAVEPOINT itself is returned unchanged so an
// enclosing Run restarts the full transaction. When nested in Run, the
// RetryEvent for the call is left to Run.
func RunInSavepoint[T any](ctx context.Context, s *SavepointRetrier, policy txretry.RetryPolicy, op txretry.TxFunc[T]) (T, error) {
	var zero T
	tx, ok := txretry.TxFromContext(ctx)
	if !ok {
		return zero, fmt.Errorf("savepoint %q for operation %q: %w", s.name, policy.Operation(), txretry.ErrNoTransaction)
	}
	if err := policy.Validate(); err != nil {
		return zero, err
	}

	state, nested := txretry.AttemptFromContext(ctx)
	if !nested {
		state = &txretry.AttemptState{Attempt: 1, Started: s.now()}
		ctx = txretry.ContextWithAttempt(ctx, state)
	} else if state.Attempt < 1 {
		state.Attempt = 1
	}

	if err := tx.Savepoint(ctx, s.name); err != nil {
		rollback(ctx, tx, s.logger)
		return zero, err
	}

	started := s.now()
	retries := 0
	for {
		result, err := op(ctx, tx)
		if err == nil {
			if err := tx.ReleaseSavepoint(ctx, s.name); err != nil {
				if !s.classifier.IsTransient(err) {
					rollback(ctx, tx, s.logger)
				}
				return zero, err
			}
			if retries > 0 {
				if nested {
					state.Retried = true
					s.logger.Verbose("Savepoint %q of %q succeeded after %d retries", s.name, policy.Operation(), retries)
				} else {
					s.recovered(policy, state, retries, started)
				}
			}
			return result, nil
		}

		c := s.classifier.Classify(err)
		if c.Kind != txretry.Transient {
			rollback(ctx, tx, s.logger)
			return zero, err
		}
		state.Errors = append(state.Errors, c.Transient)

		if state.Attempt >= policy.MaxAttempts {
			rollback(ctx, tx, s.logger)
			if nested {
				state.Exhausted = true
				return zero, exhaustedError(policy, state, s.now())
			}
			return zero, exhaust(s.sink, s.logger, policy, state, s.now())
		}

		if err := tx.RollbackToSavepoint(ctx, s.name); err != nil {
			rollback(ctx, tx, s.logger)
			return zero, err
		}

		retries++
		delay := s.backoff.NextDelay(retries, policy.MaxBackoff)
		state.Backoff += delay
		s.logger.Verbose("Serialization failure in savepoint %q of %q (attempt %d/%d), retrying in %v: %s",
			s.name, policy.Operation(), state.Attempt, policy.MaxAttempts, delay, c.Transient.Message)
		if err := s.sleep(ctx, delay); err != nil {
			rollback(ctx, tx, s.logger)
			return zero, err
		}
		state.Attempt++
	}
}

func (s *SavepointRetrier) recovered(policy txretry.RetryPolicy, state *txretry.AttemptState, retries int, started time.Time) {
	elapsed := s.now().Sub(started)
	s.logger.Info("Savepoint %q of %q succeeded after %d retries (%v)", s.name, policy.Operation(), retries, elapsed)
	s.sink.OnRetryEvent(txretry.RetryEvent{
		Operation:       policy.Operation(),
		Message:         fmt.Sprintf("savepoint %s recovered after %d retries", s.name, retries),
		Outcome:         txretry.OutcomeRecovered,
		Attempts:        retries + 1,
		Elapsed:         elapsed,
		TransientErrors: cloneErrors(state.Errors),
	})
}
