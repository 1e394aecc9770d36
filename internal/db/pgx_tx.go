package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vvka-141/txretry/pkg/txretry"
)

// PoolTxManager opens SERIALIZABLE transactions on a pgx pool.
//
// Thread-Safety: Safe for concurrent use (pgxpool.Pool is thread-safe).
type PoolTxManager struct {
	pool *pgxpool.Pool
}

// NewPoolTxManager wraps pool.
// Panics if pool is nil.
func NewPoolTxManager(pool *pgxpool.Pool) *PoolTxManager {
	if pool == nil {
		panic("pool cannot be nil")
	}
	return &PoolTxManager{pool: pool}
}

// Begin opens a new SERIALIZABLE read-write transaction.
func (m *PoolTxManager) Begin(ctx context.Context) (txretry.Tx, error) {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, err
	}
	return &pgxTx{tx: tx}, nil
}

// Exec runs sql outside any transaction, on a pooled connection.
func (m *PoolTxManager) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := m.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// QueryRow runs a single-row query outside any transaction.
func (m *PoolTxManager) QueryRow(ctx context.Context, sql string, args ...any) txretry.Row {
	return m.pool.QueryRow(ctx, sql, args...)
}

// pgxTx adapts pgx.Tx to txretry.Tx.
type pgxTx struct {
	tx pgx.Tx
}

func (t *pgxTx) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *pgxTx) Query(ctx context.Context, sql string, args ...any) (txretry.Rows, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (t *pgxTx) QueryRow(ctx context.Context, sql string, args ...any) txretry.Row {
	return t.tx.QueryRow(ctx, sql, args...)
}

func (t *pgxTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *pgxTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

func (t *pgxTx) Savepoint(ctx context.Context, name string) error {
	_, err := t.tx.Exec(ctx, "SAVEPOINT "+pgx.Identifier{name}.Sanitize())
	return err
}

func (t *pgxTx) RollbackToSavepoint(ctx context.Context, name string) error {
	_, err := t.tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+pgx.Identifier{name}.Sanitize())
	return err
}

func (t *pgxTx) ReleaseSavepoint(ctx context.Context, name string) error {
	_, err := t.tx.Exec(ctx, "RELEASE SAVEPOINT "+pgx.Identifier{name}.Sanitize())
	return err
}
