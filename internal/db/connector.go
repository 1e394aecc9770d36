package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vvka-141/txretry/internal/retry"
	"github.com/vvka-141/txretry/pkg/txretry"
)

func configurePool(poolConfig *pgxpool.Config, config *ConnectionConfig, logger txretry.Logger) {
	poolConfig.MaxConns = DefaultMaxConns
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	poolConfig.MinConns = DefaultMinConns
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	poolConfig.MaxConnIdleTime = DefaultMaxConnIdleTime
	poolConfig.ConnConfig.OnNotice = func(_ *pgconn.PgConn, notice *pgconn.Notice) {
		logger.Verbose("NOTICE: %s", notice.Message)
	}
}

// connectPolicy governs dialing only; it is unrelated to transaction retries.
func connectPolicy() txretry.RetryPolicy {
	return txretry.RetryPolicy{
		Name:        "connect",
		MaxAttempts: txretry.DefaultConnectMaxAttempts,
		MaxBackoff:  txretry.DefaultConnectMaxDelay,
	}
}

// Connector opens pgx pools with automatic retry on transient dial failures.
type Connector struct {
	config   *ConnectionConfig
	logger   txretry.Logger
	executor *retry.Executor
	release  func()
}

// NewConnector creates a Connector.
// Panics if config or logger is nil.
func NewConnector(config *ConnectionConfig, logger txretry.Logger) *Connector {
	if config == nil {
		panic("config cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	executor := retry.NewExecutor(
		retry.NewConnectErrorClassifier(),
		retry.NewExponentialBackoff(
			retry.WithBaseDelay(txretry.DefaultConnectInitialDelay/2),
			retry.WithMaxJitter(txretry.DefaultConnectInitialDelay),
		),
		connectPolicy(),
	).WithOnRetry(func(attempt int, err error, delay time.Duration) {
		logger.Warn("Connection attempt %d failed, retrying in %v: %v", attempt, delay, err)
	})
	return &Connector{config: config, logger: logger, executor: executor}
}

// Connect establishes a connection pool and verifies it with a ping.
func (c *Connector) Connect(ctx context.Context) (*pgxpool.Pool, error) {
	if err := c.config.Validate(); err != nil {
		return nil, err
	}
	poolConfig, err := pgxpool.ParseConfig(c.config.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection config: %w: %w", err, txretry.ErrInvalidConfig)
	}
	configurePool(poolConfig, c.config, c.logger)
	if err := c.configureAuth(ctx, poolConfig); err != nil {
		return nil, err
	}

	host, port, database := c.config.Target()
	var pool *pgxpool.Pool
	err = c.executor.Execute(ctx, func(ctx context.Context) error {
		p, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		c.Close()
		return nil, wrapConnectionError(err, host, port, database)
	}

	c.logger.Verbose("Connected to %s:%d/%s (max %d connections)", host, port, database, poolConfig.MaxConns)
	return pool, nil
}

func (c *Connector) configureAuth(ctx context.Context, poolConfig *pgxpool.Config) error {
	switch c.config.Auth.Method {
	case AuthGoogleIAM:
		release, err := useCloudSQLDialer(ctx, poolConfig, c.config.Auth.GoogleInstance)
		if err != nil {
			return err
		}
		c.release = release
		c.logger.Verbose("Dialing Cloud SQL instance %s with IAM authentication", c.config.Auth.GoogleInstance)
	case AuthAWSIAM, AuthAzureEntraID:
		provider, err := NewTokenProvider(c.config)
		if err != nil {
			return err
		}
		useTokenAuth(poolConfig, provider, c.logger)
		c.logger.Verbose("Authenticating with %s", provider)
	}
	return nil
}

// Close releases resources held for the pool's lifetime, such as the Cloud
// SQL dialer. Call it after closing the pool.
func (c *Connector) Close() {
	if c.release != nil {
		c.release()
		c.release = nil
	}
}

// Connect is a shorthand for NewConnector(config, logger).Connect(ctx).
// Use a Connector directly with AuthGoogleIAM so the dialer can be closed.
func Connect(ctx context.Context, config *ConnectionConfig, logger txretry.Logger) (*pgxpool.Pool, error) {
	return NewConnector(config, logger).Connect(ctx)
}

// wrapConnectionError wraps raw connection errors with actionable guidance.
// The result always matches txretry.ErrConnectionFailed.
func wrapConnectionError(err error, host string, port int, database string) error {
	errStr := strings.ToLower(err.Error())
	addr := fmt.Sprintf("%s:%d", host, port)

	switch {
	case strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "actively refused"):
		return fmt.Errorf(`%w: connection refused to %s

Possible causes:
  - The database node is not running (check: cockroach node status --insecure --host=%s)
  - Wrong host or port (CockroachDB listens on %d by default)
  - Firewall blocking the connection

Original error: %w`, txretry.ErrConnectionFailed, addr, addr, txretry.DefaultCockroachPort, err)

	case strings.Contains(errStr, "no such host"):
		return fmt.Errorf(`%w: cannot resolve host "%s"

Possible causes:
  - Hostname is misspelled
  - DNS is not configured or reachable

Original error: %w`, txretry.ErrConnectionFailed, host, err)

	case strings.Contains(errStr, "password authentication failed"):
		return fmt.Errorf(`%w: password authentication failed for database "%s"

Possible causes:
  - Wrong password or username
  - Insecure cluster expects user root without a password

Original error: %w`, txretry.ErrConnectionFailed, database, err)

	case strings.Contains(errStr, "does not exist"):
		return fmt.Errorf(`%w: database "%s" does not exist

To create it:
  cockroach sql --insecure -e 'CREATE DATABASE %s'

Original error: %w`, txretry.ErrConnectionFailed, database, database, err)

	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "timed out"):
		return fmt.Errorf(`%w: connection timed out to %s

Possible causes:
  - Server is overloaded or unresponsive
  - Firewall silently dropping packets

Original error: %w`, txretry.ErrConnectionFailed, addr, err)

	case strings.Contains(errStr, "ssl") || strings.Contains(errStr, "tls"):
		return fmt.Errorf(`%w: SSL/TLS connection error

Possible causes:
  - Insecure cluster but sslmode requires TLS (try sslmode=disable)
  - Certificate verification failed

Original error: %w`, txretry.ErrConnectionFailed, err)

	default:
		return fmt.Errorf("%w: failed to connect to database: %w", txretry.ErrConnectionFailed, err)
	}
}
