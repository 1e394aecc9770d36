package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

const serviceName = "txretry"

// ProviderConfig describes where OpenTelemetry metrics are exported.
type ProviderConfig struct {
	ServiceVersion string

	// OTLPEndpoint is a collector URL such as http://localhost:4317.
	// An http scheme disables TLS.
	OTLPEndpoint string

	// Interval between OTLP exports. Zero keeps the SDK default.
	Interval time.Duration

	// Readers are attached in addition to the OTLP exporter.
	Readers []sdkmetric.Reader
}

// NewMeterProvider builds an SDK meter provider with one reader per
// configured destination. The caller owns Shutdown, which flushes pending
// exports.
func NewMeterProvider(ctx context.Context, cfg ProviderConfig) (*sdkmetric.MeterProvider, error) {
	if cfg.OTLPEndpoint == "" && len(cfg.Readers) == 0 {
		return nil, fmt.Errorf("meter provider needs an OTLP endpoint or a reader")
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(newResource(cfg.ServiceVersion))}
	for _, r := range cfg.Readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}

	if cfg.OTLPEndpoint != "" {
		exp, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpointURL(cfg.OTLPEndpoint))
		if err != nil {
			return nil, fmt.Errorf("can't initialize metric exporter: %w", err)
		}
		var readerOpts []sdkmetric.PeriodicReaderOption
		if cfg.Interval > 0 {
			readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.Interval))
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, readerOpts...)))
	}

	return sdkmetric.NewMeterProvider(opts...), nil
}

func newResource(version string) *sdkresource.Resource {
	if version == "" {
		version = "dev"
	}
	return sdkresource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(version),
		semconv.TelemetrySDKLanguageGo,
	)
}
