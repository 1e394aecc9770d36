package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // registers the "postgres" database/sql driver

	"github.com/vvka-141/txretry/pkg/txretry"
)

// Driver names accepted by OpenSQL.
const (
	DriverPQ  = "postgres"
	DriverPGX = "pgx"
)

// OpenSQL opens a database/sql handle through sqlx and verifies it with a ping.
func OpenSQL(ctx context.Context, driver string, config *ConnectionConfig) (*sqlx.DB, error) {
	switch driver {
	case DriverPQ, DriverPGX:
	default:
		return nil, fmt.Errorf("unsupported driver %q: %w", driver, txretry.ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	db, err := sqlx.ConnectContext(ctx, driver, config.ConnString())
	if err != nil {
		host, port, database := config.Target()
		return nil, wrapConnectionError(err, host, port, database)
	}
	maxConns := int(config.MaxConns)
	if maxConns <= 0 {
		maxConns = DefaultMaxConns
	}
	db.SetMaxOpenConns(maxConns)
	db.SetConnMaxIdleTime(DefaultMaxConnIdleTime)
	return db, nil
}

// SQLTxManager opens SERIALIZABLE transactions on a database/sql handle.
// It satisfies the same contract as PoolTxManager, so the coordinators work
// unchanged on lib/pq.
type SQLTxManager struct {
	db *sqlx.DB
}

// NewSQLTxManager wraps db.
// Panics if db is nil.
func NewSQLTxManager(db *sqlx.DB) *SQLTxManager {
	if db == nil {
		panic("db cannot be nil")
	}
	return &SQLTxManager{db: db}
}

// Begin opens a new SERIALIZABLE transaction.
func (m *SQLTxManager) Begin(ctx context.Context) (txretry.Tx, error) {
	tx, err := m.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	return &sqlTx{tx: tx}, nil
}

// sqlTx adapts *sqlx.Tx to txretry.Tx.
type sqlTx struct {
	tx *sqlx.Tx
}

func (t *sqlTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t *sqlTx) Query(ctx context.Context, query string, args ...any) (txretry.Rows, error) {
	rows, err := t.tx.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &sqlRows{rows: rows}, nil
}

func (t *sqlTx) QueryRow(ctx context.Context, query string, args ...any) txretry.Row {
	return t.tx.QueryRowxContext(ctx, query, args...)
}

func (t *sqlTx) Commit(ctx context.Context) error {
	return t.tx.Commit()
}

func (t *sqlTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

func (t *sqlTx) Savepoint(ctx context.Context, name string) error {
	_, err := t.tx.ExecContext(ctx, "SAVEPOINT "+pgx.Identifier{name}.Sanitize())
	return err
}

func (t *sqlTx) RollbackToSavepoint(ctx context.Context, name string) error {
	_, err := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+pgx.Identifier{name}.Sanitize())
	return err
}

func (t *sqlTx) ReleaseSavepoint(ctx context.Context, name string) error {
	_, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+pgx.Identifier{name}.Sanitize())
	return err
}

// sqlRows adapts *sqlx.Rows to txretry.Rows.
type sqlRows struct {
	rows *sqlx.Rows
}

func (r *sqlRows) Next() bool             { return r.rows.Next() }
func (r *sqlRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r *sqlRows) Err() error             { return r.rows.Err() }
func (r *sqlRows) Close()                 { _ = r.rows.Close() }
