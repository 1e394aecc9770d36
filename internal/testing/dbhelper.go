package testing

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vvka-141/txretry/internal/db"
	"github.com/vvka-141/txretry/internal/db/manager"
	"github.com/vvka-141/txretry/internal/logging"
	"github.com/vvka-141/txretry/internal/testinfra"
)

// Environment variables read by the helpers.
const (
	// EnvTestConn points the tests at an existing server instead of a container.
	EnvTestConn = "TXRETRY_TEST_CONN"
	// EnvTestEngine selects the container image: "cockroachdb" (default) or "postgres".
	EnvTestEngine = "TXRETRY_TEST_ENGINE"
)

var (
	testContainerOnce sync.Once
	testContainerConn string
	testContainerErr  error
)

func getOrStartTestContainer() (string, error) {
	testContainerOnce.Do(func() {
		ctx := context.Background()
		start := testinfra.StartCockroach
		if strings.EqualFold(os.Getenv(EnvTestEngine), "postgres") {
			start = testinfra.StartPostgres
		}
		container, err := start(ctx)
		if err != nil {
			testContainerErr = err
			return
		}
		testContainerConn = container.ConnString
	})
	return testContainerConn, testContainerErr
}

// GetTestConnectionString returns the test database connection string.
// Priority: TXRETRY_TEST_CONN env var > auto-started testcontainer > skip test.
func GetTestConnectionString(t *testing.T) string {
	t.Helper()

	if connString := os.Getenv(EnvTestConn); connString != "" {
		return connString
	}

	connString, err := getOrStartTestContainer()
	if err != nil {
		t.Skipf("%s not set and Docker unavailable: %v", EnvTestConn, err)
	}
	return connString
}

// SkipIfShort skips the test if running in short mode (-short flag).
func SkipIfShort(t *testing.T) {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// RequireDatabase combines SkipIfShort and GetTestConnectionString for convenience.
// Returns the test connection string if available, otherwise skips the test.
func RequireDatabase(t *testing.T) string {
	t.Helper()

	SkipIfShort(t)
	return GetTestConnectionString(t)
}

// NewTestDatabase creates a uniquely named database and returns a
// connection config pointing at it. The database is dropped on cleanup.
func NewTestDatabase(t *testing.T) *db.ConnectionConfig {
	t.Helper()

	connString := RequireDatabase(t)
	admin, err := db.ParseConnectionString(connString)
	if err != nil {
		t.Fatalf("Failed to parse %s: %v", connString, err)
	}

	dbName := "txretry_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		t.Fatalf("Failed to connect for test DB creation: %v", err)
	}
	defer pool.Close()

	if err := manager.New().Create(ctx, pool, dbName); err != nil {
		t.Fatalf("Failed to create test database %s: %v", dbName, err)
	}
	t.Logf("Created test database %s", dbName)

	t.Cleanup(func() {
		CleanupTestDB(t, connString, dbName)
	})

	config := *admin
	config.URL = ""
	config.Database = dbName
	return &config
}

// NewTestPool connects to a fresh test database.
func NewTestPool(t *testing.T) (*pgxpool.Pool, *db.ConnectionConfig) {
	t.Helper()

	config := NewTestDatabase(t)
	pool, err := db.Connect(context.Background(), config, logging.NewNullLogger())
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool, config
}

// CleanupTestDB drops the test database.
// Safe to call multiple times.
func CleanupTestDB(t *testing.T, connString, dbName string) {
	t.Helper()

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		t.Logf("Warning: Failed to connect for cleanup: %v", err)
		return
	}
	defer pool.Close()

	mgr := manager.New()
	exists, err := mgr.Exists(ctx, pool, dbName)
	if err != nil || !exists {
		return
	}
	if err := mgr.Drop(ctx, pool, dbName); err != nil {
		t.Logf("Warning: Failed to drop test database %s: %v", dbName, err)
	}
}
