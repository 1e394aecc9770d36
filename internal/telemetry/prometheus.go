package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vvka-141/txretry/pkg/txretry"
)

// PrometheusSink exports retry events as Prometheus metrics.
type PrometheusSink struct {
	events          *prometheus.CounterVec
	transientErrors *prometheus.CounterVec
	attempts        *prometheus.HistogramVec
	elapsed         *prometheus.HistogramVec
}

// NewPrometheusSink registers the retry metrics on reg.
// Pass prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	factory := promauto.With(reg)
	return &PrometheusSink{
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txretry_retry_events_total",
				Help: "Calls that needed at least one retry, by final outcome",
			},
			[]string{"operation", "outcome"},
		),
		transientErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txretry_transient_errors_total",
				Help: "Serialization failures absorbed or reported by the retry coordinators",
			},
			[]string{"operation"},
		),
		attempts: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "txretry_attempts",
				Help:    "Attempts used by calls that retried",
				Buckets: []float64{2, 3, 4, 5, 7, 10, 15, 20, 30},
			},
			[]string{"operation", "outcome"},
		),
		elapsed: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "txretry_retry_duration_seconds",
				Help:    "Wall time from the first attempt to the final outcome",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "outcome"},
		),
	}
}

func (s *PrometheusSink) OnRetryEvent(e txretry.RetryEvent) {
	outcome := e.Outcome.String()
	s.events.WithLabelValues(e.Operation, outcome).Inc()
	s.transientErrors.WithLabelValues(e.Operation).Add(float64(len(e.TransientErrors)))
	s.attempts.WithLabelValues(e.Operation, outcome).Observe(float64(e.Attempts))
	s.elapsed.WithLabelValues(e.Operation, outcome).Observe(e.Elapsed.Seconds())
}
