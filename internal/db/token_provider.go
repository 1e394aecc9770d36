package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vvka-141/txretry/pkg/txretry"
)

// TokenProvider abstracts cloud token acquisition for database authentication.
// The token is used as the password when connecting to cloud-hosted PostgreSQL.
type TokenProvider interface {
	// GetToken returns a token and its expiry time.
	GetToken(ctx context.Context) (token string, expiresOn time.Time, err error)

	// String describes the provider for logging. It must not include secrets.
	String() string
}

// AzurePostgreSQLScope is the OAuth scope for Azure Database for PostgreSQL.
const AzurePostgreSQLScope = "https://ossrdbms-aad.database.windows.net/.default"

// tokenExpiryWarning is how close to expiry a fresh token must be before
// the connector warns about it.
const tokenExpiryWarning = 5 * time.Minute

// NewTokenProvider builds the provider for config.Auth.Method.
// Returns nil for methods that do not use tokens.
func NewTokenProvider(config *ConnectionConfig) (TokenProvider, error) {
	host, port, _ := config.Target()
	auth := config.Auth

	switch auth.Method {
	case AuthAWSIAM:
		return NewAWSIAMTokenProvider(fmt.Sprintf("%s:%d", host, port), auth.AWSRegion, config.Username)
	case AuthAzureEntraID:
		if auth.AzureClientSecret != "" {
			return NewAzureServicePrincipalProvider(auth.AzureTenantID, auth.AzureClientID, auth.AzureClientSecret)
		}
		return NewAzureDefaultCredentialProvider()
	default:
		return nil, nil
	}
}

// useTokenAuth makes every new pool connection authenticate with a fresh
// token. Tokens expire after minutes, so fetching one per connection keeps
// long workloads connected after the first token lapses.
func useTokenAuth(poolConfig *pgxpool.Config, provider TokenProvider, logger txretry.Logger) {
	poolConfig.BeforeConnect = func(ctx context.Context, cc *pgx.ConnConfig) error {
		token, expiresOn, err := provider.GetToken(ctx)
		if err != nil {
			return fmt.Errorf("failed to acquire token from %s: %w", provider, err)
		}
		if left := time.Until(expiresOn); left < tokenExpiryWarning {
			logger.Warn("Token from %s expires in %v", provider, left.Round(time.Second))
		}
		cc.Password = token
		return nil
	}
}
