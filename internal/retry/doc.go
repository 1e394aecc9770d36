// Package retry makes transactional work resilient to serialization
// failures (SQLSTATE 40001) raised by CockroachDB, or PostgreSQL under
// SERIALIZABLE isolation.
//
// # Example Usage
//
//	retrier := retry.NewTxRetrier(manager, retry.WithLogger(logger))
//	policy := txretry.DefaultRetryPolicy("transfer")
//
//	id, err := retry.Run(ctx, retrier, policy, func(ctx context.Context, tx txretry.Tx) (uuid.UUID, error) {
//	    return insertTransfer(ctx, tx, req)
//	})
//
// # Coordinators
//
// TxRetrier (via Run) opens a fresh transaction per attempt and restarts it
// from BEGIN on a serialization failure. It refuses to start inside an
// existing transaction.
//
// SavepointRetrier (via RunInSavepoint) works inside a transaction that is
// already open and retries only the segment after a SAVEPOINT. Nested in Run,
// both share one attempt budget through the AttemptState in the context.
//
// # Error Classification
//
// SerializationFailureClassifier decides transactional retries and accepts
// only 40001. ConnectErrorClassifier is broader (connection, resource and
// operator-intervention classes, network errors) and is meant for Executor
// while dialing.
//
// # Backoff Strategies
//
// ExponentialBackoff (outer default) yields min(2^n ms + jitter, limit).
// GeometricBackoff (savepoint default) starts at 150ms and grows 1.5x up to 5s.
// A non-positive limit disables sleeping.
//
// # Thread Safety
//
// TxRetrier, SavepointRetrier and Executor are immutable after construction
// and safe for concurrent use.
package retry
