package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vvka-141/txretry/internal/db"
	"github.com/vvka-141/txretry/pkg/txretry"
)

// ErrConfigNotFound is returned when the config file does not exist.
// Callers can check for this with errors.Is(err, config.ErrConfigNotFound).
var ErrConfigNotFound = errors.New("config file not found")

// Environment variables consulted for the connection string, in order.
const (
	EnvDatabaseURL         = "TXRETRY_DATABASE_URL"
	EnvDatabaseURLFallback = "DATABASE_URL"
)

// AuthConfig selects cloud IAM authentication for managed PostgreSQL.
// Secrets are never read from the file: the Azure client secret comes
// from AZURE_CLIENT_SECRET.
type AuthConfig struct {
	Method         string `yaml:"method,omitempty"`
	AWSRegion      string `yaml:"aws_region,omitempty"`
	AzureTenantID  string `yaml:"azure_tenant_id,omitempty"`
	AzureClientID  string `yaml:"azure_client_id,omitempty"`
	GoogleInstance string `yaml:"google_instance,omitempty"`
}

type ConnectionConfig struct {
	URL             string     `yaml:"url,omitempty"`
	Host            string     `yaml:"host,omitempty"`
	Port            int        `yaml:"port,omitempty"`
	Username        string     `yaml:"username,omitempty"`
	Database        string     `yaml:"database,omitempty"`
	SSLMode         string     `yaml:"sslmode,omitempty"`
	ApplicationName string     `yaml:"application_name,omitempty"`
	MaxConns        int32      `yaml:"max_conns,omitempty"`
	Auth            AuthConfig `yaml:"auth,omitempty"`
}

type RetryConfig struct {
	MaxAttempts int    `yaml:"max_attempts,omitempty"`
	MaxBackoff  string `yaml:"max_backoff,omitempty"`
	Strategy    string `yaml:"strategy,omitempty"`
}

type VariableConfig struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
	Scope string `yaml:"scope,omitempty"`
}

type TransactionConfig struct {
	ApplicationName string           `yaml:"application_name,omitempty"`
	Priority        string           `yaml:"priority,omitempty"`
	IdleTimeout     string           `yaml:"idle_timeout,omitempty"`
	Variables       []VariableConfig `yaml:"variables,omitempty"`
}

type LoggingConfig struct {
	Format  string `yaml:"format,omitempty"`
	Verbose bool   `yaml:"verbose,omitempty"`
}

type MetricsConfig struct {
	Listen       string `yaml:"listen,omitempty"`
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
}

type CacheConfig struct {
	RedisURL string `yaml:"redis_url,omitempty"`
	TTL      string `yaml:"ttl,omitempty"`
}

type BankConfig struct {
	Accounts       int    `yaml:"accounts,omitempty"`
	InitialBalance string `yaml:"initial_balance,omitempty"`
	Currency       string `yaml:"currency,omitempty"`
	Region         string `yaml:"region,omitempty"`
}

type ProjectConfig struct {
	Connection  ConnectionConfig  `yaml:"connection"`
	Retry       RetryConfig       `yaml:"retry,omitempty"`
	Transaction TransactionConfig `yaml:"transaction,omitempty"`
	Logging     LoggingConfig     `yaml:"logging,omitempty"`
	Metrics     MetricsConfig     `yaml:"metrics,omitempty"`
	Cache       CacheConfig       `yaml:"cache,omitempty"`
	Bank        BankConfig        `yaml:"bank,omitempty"`
}

const ConfigFileName = "txretry.yaml"

// Load reads ConfigFileName from dir.
func Load(dir string) (*ProjectConfig, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads the config file at path.
func LoadFile(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w: %v", path, txretry.ErrInvalidConfig, err)
	}
	return &cfg, nil
}

// Save writes cfg to path.
func Save(path string, cfg *ProjectConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Example returns a config with every section filled in, suitable as a
// starting point for a new txretry.yaml.
func Example() *ProjectConfig {
	return &ProjectConfig{
		Connection: ConnectionConfig{
			Host:     "localhost",
			Port:     txretry.DefaultCockroachPort,
			Username: "root",
			Database: "defaultdb",
			SSLMode:  "disable",
		},
		Retry: RetryConfig{
			MaxAttempts: txretry.DefaultMaxAttempts,
			MaxBackoff:  txretry.DefaultMaxBackoff.String(),
			Strategy:    "transaction",
		},
		Transaction: TransactionConfig{
			ApplicationName: "txretry",
			Priority:        "normal",
		},
		Logging: LoggingConfig{Format: "console"},
		Bank: BankConfig{
			Accounts:       100,
			InitialBalance: "1000.00",
			Currency:       "USD",
			Region:         "default",
		},
	}
}

// ConnectionStringFromEnv returns the first non-empty connection string from
// TXRETRY_DATABASE_URL or DATABASE_URL.
func ConnectionStringFromEnv() string {
	if s := os.Getenv(EnvDatabaseURL); s != "" {
		return s
	}
	return os.Getenv(EnvDatabaseURLFallback)
}

// ResolveConnection builds the connection settings. Precedence: flagURL,
// then the environment, then the config file, then built-in defaults.
// cfg may be nil.
func ResolveConnection(flagURL string, cfg *ProjectConfig) (*db.ConnectionConfig, error) {
	url := flagURL
	if url == "" {
		url = ConnectionStringFromEnv()
	}
	if url == "" && cfg != nil {
		url = cfg.Connection.URL
	}

	var conn *db.ConnectionConfig
	if url != "" {
		parsed, err := db.ParseConnectionString(url)
		if err != nil {
			return nil, err
		}
		conn = parsed
	} else {
		conn = db.DefaultConnectionConfig()
		if cfg != nil {
			c := cfg.Connection
			if c.Host != "" {
				conn.Host = c.Host
			}
			if c.Port != 0 {
				conn.Port = c.Port
			}
			if c.Username != "" {
				conn.Username = c.Username
			}
			if c.Database != "" {
				conn.Database = c.Database
			}
			if c.SSLMode != "" {
				conn.SSLMode = c.SSLMode
			}
		}
	}

	if cfg != nil {
		if cfg.Connection.ApplicationName != "" {
			conn.AppName = cfg.Connection.ApplicationName
		}
		if cfg.Connection.MaxConns > 0 {
			conn.MaxConns = cfg.Connection.MaxConns
		}
		auth, err := resolveAuth(cfg.Connection.Auth)
		if err != nil {
			return nil, err
		}
		conn.Auth = auth
	}
	if err := conn.Validate(); err != nil {
		return nil, err
	}
	return conn, nil
}

// resolveAuth converts the auth section, filling blanks from the cloud
// SDKs' standard environment variables.
func resolveAuth(a AuthConfig) (db.CloudAuth, error) {
	method, err := db.ParseAuthMethod(a.Method)
	if err != nil {
		return db.CloudAuth{}, err
	}
	auth := db.CloudAuth{
		Method:            method,
		AWSRegion:         firstNonEmpty(a.AWSRegion, os.Getenv("AWS_REGION"), os.Getenv("AWS_DEFAULT_REGION")),
		AzureTenantID:     firstNonEmpty(a.AzureTenantID, os.Getenv("AZURE_TENANT_ID")),
		AzureClientID:     firstNonEmpty(a.AzureClientID, os.Getenv("AZURE_CLIENT_ID")),
		AzureClientSecret: os.Getenv("AZURE_CLIENT_SECRET"),
		GoogleInstance:    a.GoogleInstance,
	}
	return auth, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// RetryPolicy returns the policy for operation, applying the retry section
// over txretry.DefaultRetryPolicy.
func (c *ProjectConfig) RetryPolicy(operation string) (txretry.RetryPolicy, error) {
	policy := txretry.DefaultRetryPolicy(operation)
	if c == nil {
		return policy, nil
	}
	if c.Retry.MaxAttempts != 0 {
		policy.MaxAttempts = c.Retry.MaxAttempts
	}
	if c.Retry.MaxBackoff != "" {
		d, err := time.ParseDuration(c.Retry.MaxBackoff)
		if err != nil {
			return policy, fmt.Errorf("retry.max_backoff %q: %w", c.Retry.MaxBackoff, txretry.ErrInvalidConfig)
		}
		policy.MaxBackoff = d
	}
	if err := policy.Validate(); err != nil {
		return policy, fmt.Errorf("retry section: %w", err)
	}
	return policy, nil
}

// TransactionOptions converts the transaction section.
func (c *ProjectConfig) TransactionOptions() (txretry.TransactionOptions, error) {
	var opts txretry.TransactionOptions
	if c == nil {
		return opts, nil
	}
	t := c.Transaction
	opts.ApplicationName = t.ApplicationName

	if t.Priority != "" {
		p, err := txretry.ParsePriority(t.Priority)
		if err != nil {
			return opts, fmt.Errorf("transaction.priority: %w", err)
		}
		opts.Priority = p
	}
	if t.IdleTimeout != "" {
		d, err := time.ParseDuration(t.IdleTimeout)
		if err != nil {
			return opts, fmt.Errorf("transaction.idle_timeout %q: %w", t.IdleTimeout, txretry.ErrInvalidConfig)
		}
		opts.IdleTimeout = d
	}
	for _, v := range t.Variables {
		switch strings.ToLower(v.Scope) {
		case "", "local":
			opts.Variables = append(opts.Variables, txretry.Local(v.Name, v.Value))
		case "session":
			opts.Variables = append(opts.Variables, txretry.Session(v.Name, v.Value))
		default:
			return opts, fmt.Errorf("transaction.variables %q: unknown scope %q: %w", v.Name, v.Scope, txretry.ErrInvalidConfig)
		}
	}
	return opts, nil
}

// CacheTTL parses cache.ttl. Zero means the cache default.
func (c *ProjectConfig) CacheTTL() (time.Duration, error) {
	if c == nil || c.Cache.TTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Cache.TTL)
	if err != nil {
		return 0, fmt.Errorf("cache.ttl %q: %w", c.Cache.TTL, txretry.ErrInvalidConfig)
	}
	return d, nil
}
