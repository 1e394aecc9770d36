// Package telemetry provides txretry.EventSink implementations.
//
// All sinks are observational: they never influence retry decisions and are
// safe for concurrent use.
//   - Counters: in-process atomic totals with an explicit Reset
//   - PrometheusSink: client_golang counters and histograms
//   - OTelSink: OpenTelemetry metric instruments
//   - LogSink: one log line per event
//   - Multi: fan-out to several sinks
package telemetry
