package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/vvka-141/txretry/internal/config"
	"github.com/vvka-141/txretry/internal/db"
	"github.com/vvka-141/txretry/internal/logging"
	"github.com/vvka-141/txretry/internal/telemetry"
	"github.com/vvka-141/txretry/pkg/txretry"
)

const (
	logFormatConsole = "console"
	logFormatJSON    = "json"

	meterName = "github.com/vvka-141/txretry"
)

// runtime bundles what every database command needs: the loaded config,
// a logger and the telemetry sinks.
type runtime struct {
	cfg     *config.ProjectConfig
	logger  txretry.Logger
	verbose bool

	closers []func()
}

// loadProjectConfig loads godotenv and project configuration.
// Returns nil config if txretry.yaml does not exist (not an error).
// An explicit path must exist.
func loadProjectConfig(path string) (*config.ProjectConfig, error) {
	_ = godotenv.Load()

	if path != "" {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		return cfg, nil
	}

	cfg, err := config.Load(".")
	if err != nil {
		if errors.Is(err, config.ErrConfigNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load %s: %w", config.ConfigFileName, err)
	}
	return cfg, nil
}

// resolveLogFormat picks the flag value, then the config file, then console.
func resolveLogFormat(flag string, cfg *config.ProjectConfig) (string, error) {
	format := flag
	if format == "" && cfg != nil {
		format = cfg.Logging.Format
	}
	switch strings.ToLower(format) {
	case "", logFormatConsole:
		return logFormatConsole, nil
	case logFormatJSON:
		return logFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid --log-format %q (want console or json): %w", format, txretry.ErrInvalidConfig)
	}
}

func newLogger(format string, verbose bool) (txretry.Logger, func(), error) {
	if format == logFormatJSON {
		l, err := logging.NewJSONLogger(verbose)
		if err != nil {
			return nil, nil, fmt.Errorf("create json logger: %w", err)
		}
		return l, func() { _ = l.Sync() }, nil
	}
	return logging.NewConsoleLogger(verbose), func() {}, nil
}

func newRuntime(cmd *cobra.Command) (*runtime, error) {
	cfg, err := loadProjectConfig(globalFlags.configPath)
	if err != nil {
		return nil, err
	}

	verbose := getVerboseFlag(cmd) || (cfg != nil && cfg.Logging.Verbose)
	format, err := resolveLogFormat(globalFlags.logFormat, cfg)
	if err != nil {
		return nil, err
	}
	logger, flush, err := newLogger(format, verbose)
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, logger: logger, verbose: verbose}
	rt.closers = append(rt.closers, flush)
	return rt, nil
}

// Close releases everything the runtime opened, newest first.
func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// resolveConnection applies the --connection flag, the environment and the
// config file.
func (r *runtime) resolveConnection() (*db.ConnectionConfig, error) {
	return config.ResolveConnection(globalFlags.connection, r.cfg)
}

// connect opens a pool for conn. The pool and any connector resources are
// released by Close.
func (r *runtime) connect(ctx context.Context, conn *db.ConnectionConfig) (*pgxpool.Pool, error) {
	r.logger.Verbose("Connecting to %s:%d/%s as %s (sslmode=%s, auth=%s)",
		conn.Host, conn.Port, conn.Database, conn.Username, conn.SSLMode, conn.Auth.Method)

	connector := db.NewConnector(conn, r.logger)
	pool, err := connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	r.closers = append(r.closers, connector.Close, pool.Close)
	return pool, nil
}

// connectTarget resolves the connection settings and opens a pool.
func (r *runtime) connectTarget(ctx context.Context) (*pgxpool.Pool, error) {
	conn, err := r.resolveConnection()
	if err != nil {
		return nil, err
	}
	return r.connect(ctx, conn)
}

func (r *runtime) metricsAddr() string {
	if globalFlags.metricsAddr != "" {
		return globalFlags.metricsAddr
	}
	if r.cfg != nil {
		return r.cfg.Metrics.Listen
	}
	return ""
}

// otlpEndpoint picks the flag, then the standard OTel environment variables,
// then the config file.
func (r *runtime) otlpEndpoint() string {
	if globalFlags.otlpEndpoint != "" {
		return globalFlags.otlpEndpoint
	}
	if v := firstEnv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		return v
	}
	if r.cfg != nil {
		return r.cfg.Metrics.OTLPEndpoint
	}
	return ""
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// sinks builds the retry event fan-out: in-process counters for the report,
// the log and, when configured, OpenTelemetry over OTLP and Prometheus.
func (r *runtime) sinks(ctx context.Context) (*telemetry.Counters, txretry.EventSink, error) {
	counters := telemetry.NewCounters()
	sinks := telemetry.Multi{counters, telemetry.NewLogSink(r.logger)}

	if endpoint := r.otlpEndpoint(); endpoint != "" {
		otelSink, err := r.exportOTel(ctx, endpoint)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, otelSink)
	}

	if addr := r.metricsAddr(); addr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		sinks = append(sinks, telemetry.NewPrometheusSink(reg))
		if err := r.serveMetrics(addr, reg); err != nil {
			return nil, nil, err
		}
	}
	return counters, sinks, nil
}

// exportOTel installs an SDK meter provider exporting to endpoint as the
// global provider and returns a sink recording into it. Close flushes it.
func (r *runtime) exportOTel(ctx context.Context, endpoint string) (*telemetry.OTelSink, error) {
	v, _, _ := resolveVersionInfo()
	provider, err := telemetry.NewMeterProvider(ctx, telemetry.ProviderConfig{
		ServiceVersion: v,
		OTLPEndpoint:   endpoint,
	})
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(provider)
	r.closers = append(r.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			r.logger.Warn("Failed to flush OpenTelemetry metrics: %v", err)
		}
	})
	r.logger.Verbose("Exporting OpenTelemetry metrics to %s", endpoint)

	return telemetry.NewOTelSink(provider.Meter(meterName))
}

func (r *runtime) serveMetrics(addr string, reg *prometheus.Registry) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Warn("Metrics server stopped: %v", err)
		}
	}()
	r.logger.Info("Serving metrics on http://%s/metrics", ln.Addr())

	r.closers = append(r.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return nil
}
