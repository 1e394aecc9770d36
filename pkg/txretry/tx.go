package txretry

import "context"

// Execer runs statements that return no rows.
type Execer interface {
	// Exec executes sql and returns the number of rows affected.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
}

// Row is the result of QueryRow. Errors are deferred until Scan.
type Row interface {
	Scan(dest ...any) error
}

// Rows iterates over a query result. Close must be called when done.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Tx is an open database transaction.
//
// Thread-Safety: a Tx belongs to the goroutine that began it and must not be
// shared.
type Tx interface {
	Execer

	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) Row

	Commit(ctx context.Context) error

	// Rollback aborts the transaction. Calling it after Commit or a previous
	// Rollback is a no-op and returns nil.
	Rollback(ctx context.Context) error

	Savepoint(ctx context.Context, name string) error
	RollbackToSavepoint(ctx context.Context, name string) error
	ReleaseSavepoint(ctx context.Context, name string) error
}

// TxManager opens transactions. Implementations must be safe for concurrent use.
type TxManager interface {
	Begin(ctx context.Context) (Tx, error)
}

// TxFunc is a unit of work executed inside a transaction. It may be invoked
// several times, so it must not have side effects outside tx unless they are
// idempotent.
type TxFunc[T any] func(ctx context.Context, tx Tx) (T, error)

type txKey struct{}

type attemptKey struct{}

// ContextWithTx marks tx as the active transaction of ctx.
func ContextWithTx(ctx context.Context, tx Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the active transaction, if any.
func TxFromContext(ctx context.Context) (Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(Tx)
	return tx, ok && tx != nil
}

// ContextWithAttempt attaches the attempt state of the enclosing retry loop.
func ContextWithAttempt(ctx context.Context, state *AttemptState) context.Context {
	return context.WithValue(ctx, attemptKey{}, state)
}

// AttemptFromContext returns the attempt state of the enclosing retry loop.
func AttemptFromContext(ctx context.Context) (*AttemptState, bool) {
	state, ok := ctx.Value(attemptKey{}).(*AttemptState)
	return state, ok && state != nil
}
