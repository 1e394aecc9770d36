package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/vvka-141/txretry/pkg/txretry"
)

// OTelSink records retry events with OpenTelemetry metric instruments.
type OTelSink struct {
	events          metric.Int64Counter
	transientErrors metric.Int64Counter
	attempts        metric.Int64Histogram
	elapsed         metric.Int64Histogram
}

// NewOTelSink creates the instruments on meter.
func NewOTelSink(meter metric.Meter) (*OTelSink, error) {
	events, err := meter.Int64Counter("txretry.retry.events",
		metric.WithDescription("Calls that needed at least one retry, by final outcome"))
	if err != nil {
		return nil, fmt.Errorf("create retry events counter: %w", err)
	}
	transientErrors, err := meter.Int64Counter("txretry.transient.errors",
		metric.WithDescription("Serialization failures observed by the retry coordinators"))
	if err != nil {
		return nil, fmt.Errorf("create transient errors counter: %w", err)
	}
	attempts, err := meter.Int64Histogram("txretry.retry.attempts",
		metric.WithDescription("Attempts used by calls that retried"))
	if err != nil {
		return nil, fmt.Errorf("create attempts histogram: %w", err)
	}
	elapsed, err := meter.Int64Histogram("txretry.retry.duration",
		metric.WithDescription("Wall time from the first attempt to the final outcome"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}
	return &OTelSink{
		events:          events,
		transientErrors: transientErrors,
		attempts:        attempts,
		elapsed:         elapsed,
	}, nil
}

func (s *OTelSink) OnRetryEvent(e txretry.RetryEvent) {
	ctx := context.Background()
	op := attribute.String("operation", e.Operation)
	withOutcome := metric.WithAttributes(op, attribute.String("outcome", e.Outcome.String()))

	s.events.Add(ctx, 1, withOutcome)
	s.transientErrors.Add(ctx, int64(len(e.TransientErrors)), metric.WithAttributes(op))
	s.attempts.Record(ctx, int64(e.Attempts), withOutcome)
	s.elapsed.Record(ctx, e.Elapsed.Milliseconds(), withOutcome)
}
