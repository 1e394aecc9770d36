package telemetry

import "github.com/vvka-141/txretry/pkg/txretry"

// LogSink writes one line per retry event.
type LogSink struct {
	logger txretry.Logger
}

// NewLogSink creates a LogSink.
// Panics if logger is nil.
func NewLogSink(logger txretry.Logger) *LogSink {
	if logger == nil {
		panic("logger cannot be nil")
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) OnRetryEvent(e txretry.RetryEvent) {
	if e.Outcome == txretry.OutcomeExhausted {
		s.logger.Error("Retry exhausted for %q after %d attempts in %v", e.Operation, e.Attempts, e.Elapsed)
		return
	}
	s.logger.Verbose("Retry recovered %q after %d attempts in %v (%d transient errors)",
		e.Operation, e.Attempts, e.Elapsed, len(e.TransientErrors))
}

// Multi fans an event out to every sink in order. Nil sinks are skipped.
type Multi []txretry.EventSink

func (m Multi) OnRetryEvent(e txretry.RetryEvent) {
	for _, sink := range m {
		if sink != nil {
			sink.OnRetryEvent(e)
		}
	}
}
