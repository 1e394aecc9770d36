package testinfra

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	CockroachImage = "cockroachdb/cockroach:v24.3.5"
	cockroachSQL   = "26257/tcp"
	cockroachHTTP  = "8080/tcp"

	PostgresImage    = "postgres:17-alpine"
	PostgresUser     = "postgres"
	PostgresPassword = "postgres"
	PostgresDB       = "postgres"
)

// Container is a running database with a ready-to-use connection string.
type Container struct {
	testcontainers.Container
	ConnString string
	// Engine is "cockroachdb" or "postgres".
	Engine string
}

// StartCockroach starts an insecure single-node CockroachDB cluster.
func StartCockroach(ctx context.Context) (*Container, error) {
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        CockroachImage,
			ExposedPorts: []string{cockroachSQL, cockroachHTTP},
			Cmd:          []string{"start-single-node", "--insecure"},
			WaitingFor: wait.ForHTTP("/health?ready=1").
				WithPort(cockroachHTTP).
				WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("start cockroachdb: %w", err)
	}

	host, err := ctr.Host(ctx)
	if err != nil {
		ctr.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get container host: %w", err)
	}
	port, err := ctr.MappedPort(ctx, cockroachSQL)
	if err != nil {
		ctr.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get mapped port: %w", err)
	}

	connStr := fmt.Sprintf("postgresql://root@%s:%s/defaultdb?sslmode=disable", host, port.Port())
	return &Container{Container: ctr, ConnString: connStr, Engine: "cockroachdb"}, nil
}

// StartPostgres starts a plain PostgreSQL server. Transactions opened by
// the txretry managers run SERIALIZABLE, so 40001 failures occur there too.
func StartPostgres(ctx context.Context) (*Container, error) {
	ctr, err := postgres.Run(ctx,
		PostgresImage,
		postgres.WithUsername(PostgresUser),
		postgres.WithPassword(PostgresPassword),
		postgres.WithDatabase(PostgresDB),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres: %w", err)
	}

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		ctr.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get connection string: %w", err)
	}

	return &Container{Container: ctr, ConnString: connStr, Engine: "postgres"}, nil
}
