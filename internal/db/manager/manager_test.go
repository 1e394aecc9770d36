package manager_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vvka-141/txretry/internal/db/manager"
)

// mockConn is a test double for manager.Conn
type mockConn struct {
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	executed     []string
}

func (m *mockConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.executed = append(m.executed, sql)
	if m.execFunc != nil {
		return m.execFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

func (m *mockConn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFunc != nil {
		return m.queryRowFunc(ctx, sql, args...)
	}
	return &mockRow{}
}

// mockRow is a test double for pgx.Row
type mockRow struct {
	exists bool
	err    error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) > 0 {
		if b, ok := dest[0].(*bool); ok {
			*b = m.exists
		}
	}
	return nil
}

func existsConn(exists bool) *mockConn {
	return &mockConn{
		queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return &mockRow{exists: exists}
		},
	}
}

func TestManager_Create_WithSpecialCharsInName(t *testing.T) {
	testCases := []struct {
		name   string
		dbName string
		want   string
	}{
		{"Database with spaces", "my database", `CREATE DATABASE "my database"`},
		{"Database with quotes", `my"database`, `CREATE DATABASE "my""database"`},
		{"Database with semicolon", "my;database", `CREATE DATABASE "my;database"`},
		{"Database with dash", "my-database", `CREATE DATABASE "my-database"`},
		{"Mixed case", "Bank", `CREATE DATABASE "Bank"`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			conn := &mockConn{}
			if err := manager.New().Create(context.Background(), conn, tc.dbName); err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			if len(conn.executed) != 1 || conn.executed[0] != tc.want {
				t.Errorf("Expected %q, got %v", tc.want, conn.executed)
			}
		})
	}
}

func TestManager_Create_SQLInjectionAttempt(t *testing.T) {
	conn := &mockConn{}
	dbName := `bank"; DROP DATABASE defaultdb; --`
	if err := manager.New().Create(context.Background(), conn, dbName); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	sql := conn.executed[0]
	if strings.Count(sql, "DROP DATABASE") != 1 || !strings.HasPrefix(sql, `CREATE DATABASE "bank""; DROP`) {
		t.Errorf("Identifier not quoted safely: %s", sql)
	}
}

func TestManager_Create_ExecError(t *testing.T) {
	boom := errors.New("permission denied")
	conn := &mockConn{execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, boom
	}}
	err := manager.New().Create(context.Background(), conn, "bank")
	if !errors.Is(err, boom) {
		t.Fatalf("Expected wrapped exec error, got: %v", err)
	}
}

func TestManager_Drop(t *testing.T) {
	conn := &mockConn{}
	if err := manager.New().Drop(context.Background(), conn, "bank"); err != nil {
		t.Fatalf("Drop failed: %v", err)
	}
	if conn.executed[0] != `DROP DATABASE "bank"` {
		t.Errorf("Unexpected SQL: %s", conn.executed[0])
	}
}

func TestManager_Exists(t *testing.T) {
	for _, want := range []bool{true, false} {
		got, err := manager.New().Exists(context.Background(), existsConn(want), "bank")
		if err != nil {
			t.Fatalf("Exists failed: %v", err)
		}
		if got != want {
			t.Errorf("Expected %v, got %v", want, got)
		}
	}
}

func TestManager_Exists_QueryError(t *testing.T) {
	boom := errors.New("connection lost")
	conn := &mockConn{queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
		return &mockRow{err: boom}
	}}
	_, err := manager.New().Exists(context.Background(), conn, "bank")
	if !errors.Is(err, boom) {
		t.Fatalf("Expected wrapped query error, got: %v", err)
	}
}

func TestManager_Ensure(t *testing.T) {
	conn := existsConn(true)
	created, err := manager.New().Ensure(context.Background(), conn, "bank")
	if err != nil || created {
		t.Fatalf("Expected no-op for existing database, got created=%v err=%v", created, err)
	}
	if len(conn.executed) != 0 {
		t.Errorf("Expected no statements, got %v", conn.executed)
	}

	conn = existsConn(false)
	created, err = manager.New().Ensure(context.Background(), conn, "bank")
	if err != nil || !created {
		t.Fatalf("Expected database to be created, got created=%v err=%v", created, err)
	}
	if len(conn.executed) != 1 {
		t.Errorf("Expected one CREATE, got %v", conn.executed)
	}
}
