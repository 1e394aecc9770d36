package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vvka-141/txretry/internal/logging"
	"github.com/vvka-141/txretry/pkg/txretry"
)

// BeginHook runs right after a transaction is opened and before the
// operation. A hook error aborts the attempt and is classified like any other.
type BeginHook func(ctx context.Context, tx txretry.Tx) error

// TxRetrier runs operations in fresh transactions and restarts the whole
// transaction on serialization failures.
//
// A TxRetrier is immutable after construction and safe for concurrent use.
// Every call owns its own transaction and AttemptState.
type TxRetrier struct {
	manager    txretry.TxManager
	classifier txretry.ErrorClassifier
	backoff    txretry.BackoffStrategy
	sleep      Sleeper
	sink       txretry.EventSink
	logger     txretry.Logger
	hooks      []BeginHook
	now        func() time.Time
}

// Option configures a TxRetrier or SavepointRetrier.
type Option func(*settings)

type settings struct {
	classifier    txretry.ErrorClassifier
	backoff       txretry.BackoffStrategy
	sleep         Sleeper
	sink          txretry.EventSink
	logger        txretry.Logger
	hooks         []BeginHook
	now           func() time.Time
	savepointName string
}

// WithClassifier replaces the default SerializationFailureClassifier.
func WithClassifier(c txretry.ErrorClassifier) Option {
	return func(s *settings) { s.classifier = c }
}

// WithBackoff replaces the default backoff strategy.
func WithBackoff(b txretry.BackoffStrategy) Option {
	return func(s *settings) { s.backoff = b }
}

// WithSleeper replaces ContextSleep, e.g. with a recording fake in tests.
func WithSleeper(fn Sleeper) Option {
	return func(s *settings) { s.sleep = fn }
}

// WithEventSink sets the telemetry sink. Defaults to txretry.NopSink.
func WithEventSink(sink txretry.EventSink) Option {
	return func(s *settings) { s.sink = sink }
}

// WithLogger sets the logger. Defaults to a logger that discards output.
func WithLogger(l txretry.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithBeginHook appends a hook run after every BEGIN. Ignored by SavepointRetrier.
func WithBeginHook(h BeginHook) Option {
	return func(s *settings) { s.hooks = append(s.hooks, h) }
}

// WithClock overrides time.Now for elapsed-time reporting.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// WithSavepointName overrides DefaultSavepointName. Ignored by TxRetrier.
func WithSavepointName(name string) Option {
	return func(s *settings) { s.savepointName = name }
}

func buildSettings(defaultBackoff txretry.BackoffStrategy, opts []Option) settings {
	s := settings{
		classifier:    NewSerializationFailureClassifier(),
		backoff:       defaultBackoff,
		sleep:         ContextSleep,
		sink:          txretry.NopSink{},
		logger:        logging.NewNullLogger(),
		now:           time.Now,
		savepointName: txretry.DefaultSavepointName,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.classifier == nil {
		panic("classifier cannot be nil")
	}
	if s.backoff == nil {
		panic("backoff cannot be nil")
	}
	if s.sleep == nil {
		s.sleep = ContextSleep
	}
	if s.sink == nil {
		s.sink = txretry.NopSink{}
	}
	if s.logger == nil {
		s.logger = logging.NewNullLogger()
	}
	return s
}

// NewTxRetrier creates an outer coordinator over manager.
// Panics if manager is nil.
func NewTxRetrier(manager txretry.TxManager, opts ...Option) *TxRetrier {
	if manager == nil {
		panic("manager cannot be nil")
	}
	s := buildSettings(NewExponentialBackoff(), opts)
	return &TxRetrier{
		manager:    manager,
		classifier: s.classifier,
		backoff:    s.backoff,
		sleep:      s.sleep,
		sink:       s.sink,
		logger:     s.logger,
		hooks:      s.hooks,
		now:        s.now,
	}
}

// Execute is Run for operations without a result.
func (r *TxRetrier) Execute(ctx context.Context, policy txretry.RetryPolicy, op func(ctx context.Context, tx txretry.Tx) error) error {
	_, err := Run(ctx, r, policy, func(ctx context.Context, tx txretry.Tx) (struct{}, error) {
		return struct{}{}, op(ctx, tx)
	})
	return err
}

// Run executes op in a new transaction, restarting the transaction from
// BEGIN whenever op or COMMIT fails with a serialization failure.
//
// It must be called outside any transaction; if ctx already carries one,
// ErrTransactionActive is returned and op is never invoked. Fatal errors are
// returned unchanged after the transaction is rolled back. When every attempt
// allowed by policy fails transiently, a *txretry.RetryExhaustedError is returned.
//
// op receives a context carrying the transaction and the call's AttemptState,
// so a nested RunInSavepoint shares the same attempt budget.
func Run[T any](ctx context.Context, r *TxRetrier, policy txretry.RetryPolicy, op txretry.TxFunc[T]) (T, error) {
	var zero T
	if err := policy.Validate(); err != nil {
		return zero, err
	}
	if _, active := txretry.TxFromContext(ctx); active {
		return zero, fmt.Errorf("operation %q: %w", policy.Operation(), txretry.ErrTransactionActive)
	}

	state := &txretry.AttemptState{Started: r.now()}
	restarted := false
	for state.Attempt < policy.MaxAttempts {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		state.Attempt++

		result, err := runAttempt(ctx, r, state, op)
		if err == nil {
			if restarted || state.Retried {
				r.recovered(policy, state)
			}
			return result, nil
		}

		c := r.classifier.Classify(err)
		if c.Kind != txretry.Transient {
			var exhausted *txretry.RetryExhaustedError
			if state.Exhausted && errors.As(err, &exhausted) {
				reportExhausted(r.sink, r.logger, exhausted)
				return zero, err
			}
			if code := SQLState(err); code != "" {
				r.logger.Warn("Operation %q failed with non-retryable SQLSTATE %s: %v", policy.Operation(), code, err)
			}
			return zero, err
		}
		state.Errors = append(state.Errors, c.Transient)
		if state.Attempt >= policy.MaxAttempts {
			break
		}

		delay := r.backoff.NextDelay(state.Attempt, policy.MaxBackoff)
		state.Backoff += delay
		if len(state.Errors) == 1 {
			r.logger.Warn("Serialization failure in %q (attempt %d/%d), retrying in %v: %s",
				policy.Operation(), state.Attempt, policy.MaxAttempts, delay, c.Transient.Message)
		} else {
			r.logger.Verbose("Serialization failure in %q (attempt %d/%d), retrying in %v: %s",
				policy.Operation(), state.Attempt, policy.MaxAttempts, delay, c.Transient.Message)
		}
		if err := r.sleep(ctx, delay); err != nil {
			return zero, err
		}
		restarted = true
	}

	return zero, exhaust(r.sink, r.logger, policy, state, r.now())
}

// runAttempt is one BEGIN..COMMIT cycle. The transaction is rolled back on
// any error or panic.
func runAttempt[T any](ctx context.Context, r *TxRetrier, state *txretry.AttemptState, op txretry.TxFunc[T]) (result T, err error) {
	tx, err := r.manager.Begin(ctx)
	if err != nil {
		return result, err
	}

	defer func() {
		if p := recover(); p != nil {
			rollback(ctx, tx, r.logger)
			panic(p)
		}
		if err != nil {
			rollback(ctx, tx, r.logger)
		}
	}()

	txCtx := txretry.ContextWithTx(txretry.ContextWithAttempt(ctx, state), tx)
	for _, hook := range r.hooks {
		if err = hook(txCtx, tx); err != nil {
			return result, err
		}
	}

	result, err = op(txCtx, tx)
	if err != nil {
		return result, err
	}
	if err = tx.Commit(ctx); err != nil {
		return result, err
	}
	return result, nil
}

func (r *TxRetrier) recovered(policy txretry.RetryPolicy, state *txretry.AttemptState) {
	elapsed := r.now().Sub(state.Started)
	r.logger.Info("Operation %q succeeded after %d attempts (%v)", policy.Operation(), state.Attempt, elapsed)
	r.sink.OnRetryEvent(txretry.RetryEvent{
		Operation:       policy.Operation(),
		Message:         fmt.Sprintf("recovered after %d attempts", state.Attempt),
		Outcome:         txretry.OutcomeRecovered,
		Attempts:        state.Attempt,
		Elapsed:         elapsed,
		TransientErrors: cloneErrors(state.Errors),
	})
}

// exhaust builds the exhaustion error and reports it.
func exhaust(sink txretry.EventSink, logger txretry.Logger, policy txretry.RetryPolicy, state *txretry.AttemptState, now time.Time) error {
	err := exhaustedError(policy, state, now)
	reportExhausted(sink, logger, err)
	return err
}

func exhaustedError(policy txretry.RetryPolicy, state *txretry.AttemptState, now time.Time) *txretry.RetryExhaustedError {
	return &txretry.RetryExhaustedError{
		Operation: policy.Operation(),
		Attempts:  state.Attempt,
		Elapsed:   now.Sub(state.Started),
		Errors:    cloneErrors(state.Errors),
	}
}

func reportExhausted(sink txretry.EventSink, logger txretry.Logger, err *txretry.RetryExhaustedError) {
	logger.Error("%v", err)
	sink.OnRetryEvent(txretry.RetryEvent{
		Operation:       err.Operation,
		Message:         err.Error(),
		Outcome:         txretry.OutcomeExhausted,
		Attempts:        err.Attempts,
		Elapsed:         err.Elapsed,
		TransientErrors: err.Errors,
	})
}

// rollback aborts tx even if ctx is already cancelled.
func rollback(ctx context.Context, tx txretry.Tx, logger txretry.Logger) {
	if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil {
		logger.Verbose("Rollback failed: %v", err)
	}
}

func cloneErrors(errs []*txretry.TransientError) []*txretry.TransientError {
	if len(errs) == 0 {
		return nil
	}
	out := make([]*txretry.TransientError, len(errs))
	copy(out, errs)
	return out
}
