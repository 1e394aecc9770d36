package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/vvka-141/txretry/pkg/txretry"
)

// Connection pool defaults. The bank workload runs many concurrent
// transfers, so the pool is larger than a single-session tool would need.
const (
	DefaultMaxConns        = 16
	DefaultMinConns        = 1
	DefaultMaxConnIdleTime = 5 * time.Minute
)

// AuthMethod selects how the connector obtains the database password.
type AuthMethod string

const (
	// AuthPassword uses the password from the URL or config, if any.
	AuthPassword AuthMethod = "password"
	// AuthAWSIAM signs a short-lived RDS IAM token per connection.
	AuthAWSIAM AuthMethod = "aws-iam"
	// AuthAzureEntraID requests an Entra ID access token per connection.
	AuthAzureEntraID AuthMethod = "azure"
	// AuthGoogleIAM dials through the Cloud SQL connector with IAM login.
	AuthGoogleIAM AuthMethod = "google-iam"
)

// ParseAuthMethod accepts the AuthMethod names. The empty string is AuthPassword.
func ParseAuthMethod(s string) (AuthMethod, error) {
	switch m := AuthMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case "", AuthPassword:
		return AuthPassword, nil
	case AuthAWSIAM, AuthAzureEntraID, AuthGoogleIAM:
		return m, nil
	default:
		return "", fmt.Errorf("unknown auth method %q (want password, aws-iam, azure or google-iam): %w", s, txretry.ErrInvalidConfig)
	}
}

// CloudAuth holds the settings for token-based authentication against
// managed PostgreSQL services.
type CloudAuth struct {
	Method AuthMethod

	AWSRegion string

	AzureTenantID     string
	AzureClientID     string
	AzureClientSecret string

	// GoogleInstance is the Cloud SQL instance connection name, project:region:instance.
	GoogleInstance string
}

// ConnectionConfig holds the parameters needed to reach the database.
// URL wins over the granular fields when both are set.
type ConnectionConfig struct {
	URL string

	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string

	AppName          string
	ConnectTimeout   time.Duration
	AdditionalParams map[string]string

	MaxConns int32
	MinConns int32

	Auth CloudAuth
}

// DefaultConnectionConfig points at a local insecure CockroachDB node.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Host:             "localhost",
		Port:             txretry.DefaultCockroachPort,
		Database:         "defaultdb",
		Username:         "root",
		SSLMode:          "disable",
		AdditionalParams: make(map[string]string),
		MaxConns:         DefaultMaxConns,
		MinConns:         DefaultMinConns,
	}
}

// Validate checks the settings that cannot be defaulted.
func (c *ConnectionConfig) Validate() error {
	if _, err := ParseAuthMethod(string(c.Auth.Method)); err != nil {
		return err
	}
	if c.Auth.Method == AuthGoogleIAM && c.Auth.GoogleInstance == "" {
		return fmt.Errorf("google-iam auth requires the Cloud SQL instance connection name: %w", txretry.ErrInvalidConfig)
	}
	if c.URL != "" {
		return nil
	}
	if c.Host == "" {
		return fmt.Errorf("host is required: %w", txretry.ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range: %w", c.Port, txretry.ErrInvalidConfig)
	}
	if c.Database == "" {
		return fmt.Errorf("database is required: %w", txretry.ErrInvalidConfig)
	}
	if c.MaxConns < 0 || c.MinConns < 0 || (c.MaxConns > 0 && c.MinConns > c.MaxConns) {
		return fmt.Errorf("invalid pool size min=%d max=%d: %w", c.MinConns, c.MaxConns, txretry.ErrInvalidConfig)
	}
	return nil
}

// ConnString returns URL if set, otherwise a URL built from the granular fields.
func (c *ConnectionConfig) ConnString() string {
	if c.URL != "" {
		return c.URL
	}
	return BuildConnectionString(c)
}

// Target describes the endpoint for error messages without exposing credentials.
func (c *ConnectionConfig) Target() (host string, port int, database string) {
	if c.URL != "" {
		if parsed, err := ParseConnectionString(c.URL); err == nil {
			return parsed.Host, parsed.Port, parsed.Database
		}
	}
	return c.Host, c.Port, c.Database
}
