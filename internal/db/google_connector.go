package db

import (
	"context"
	"fmt"
	"net"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// useCloudSQLDialer routes every pool connection through the Cloud SQL Go
// connector with IAM database authentication. The connector handles TLS,
// so the pgx-level TLS settings are cleared. The returned func closes the
// dialer and must run after the pool is closed.
func useCloudSQLDialer(ctx context.Context, poolConfig *pgxpool.Config, instance string) (func(), error) {
	dialer, err := cloudsqlconn.NewDialer(ctx, cloudsqlconn.WithIAMAuthN())
	if err != nil {
		return nil, fmt.Errorf("failed to create Cloud SQL dialer: %w", err)
	}

	poolConfig.ConnConfig.TLSConfig = nil
	poolConfig.ConnConfig.Fallbacks = nil
	poolConfig.ConnConfig.DialFunc = func(ctx context.Context, _, _ string) (net.Conn, error) {
		return dialer.Dial(ctx, instance)
	}
	return func() { _ = dialer.Close() }, nil
}
