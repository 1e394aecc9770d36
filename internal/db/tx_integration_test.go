package db_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/txretry/internal/db"
	testhelpers "github.com/vvka-141/txretry/internal/testing"
	"github.com/vvka-141/txretry/pkg/txretry"
)

func exerciseManager(t *testing.T, manager txretry.TxManager) {
	t.Helper()
	ctx := context.Background()

	tx, err := manager.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, "CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY, v INT)")
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	assert.NoError(t, tx.Rollback(ctx), "rollback after commit is a no-op")

	tx, err = manager.Begin(ctx)
	require.NoError(t, err)
	n, err := tx.Exec(ctx, "INSERT INTO kv (k, v) VALUES ($1, $2)", "w", 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, tx.Savepoint(ctx, "txretry_savepoint"))
	_, err = tx.Exec(ctx, "INSERT INTO kv (k, v) VALUES ($1, $2)", "s", 2)
	require.NoError(t, err)
	require.NoError(t, tx.RollbackToSavepoint(ctx, "txretry_savepoint"))
	require.NoError(t, tx.ReleaseSavepoint(ctx, "txretry_savepoint"))
	require.NoError(t, tx.Commit(ctx))

	tx, err = manager.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := tx.Query(ctx, "SELECT k FROM kv ORDER BY k")
	require.NoError(t, err)
	var keys []string
	for rows.Next() {
		var k string
		require.NoError(t, rows.Scan(&k))
		keys = append(keys, k)
	}
	require.NoError(t, rows.Err())
	rows.Close()
	assert.Equal(t, []string{"w"}, keys, "work after the savepoint was undone, earlier work kept")

	var v int
	require.NoError(t, tx.QueryRow(ctx, "SELECT v FROM kv WHERE k = $1", "w").Scan(&v))
	assert.Equal(t, 1, v)
}

func TestPoolTxManager(t *testing.T) {
	pool, _ := testhelpers.NewTestPool(t)
	exerciseManager(t, db.NewPoolTxManager(pool))
}

func TestSQLTxManager(t *testing.T) {
	for _, driver := range []string{db.DriverPQ, db.DriverPGX} {
		t.Run(driver, func(t *testing.T) {
			config := testhelpers.NewTestDatabase(t)
			sqlDB, err := db.OpenSQL(context.Background(), driver, config)
			require.NoError(t, err)
			t.Cleanup(func() { sqlDB.Close() })

			exerciseManager(t, db.NewSQLTxManager(sqlDB))
		})
	}
}

func TestOpenSQL_UnknownDriver(t *testing.T) {
	_, err := db.OpenSQL(context.Background(), "mysql", db.DefaultConnectionConfig())
	assert.ErrorIs(t, err, txretry.ErrInvalidConfig)
}
