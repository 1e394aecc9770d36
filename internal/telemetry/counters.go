package telemetry

import (
	"sync/atomic"

	"github.com/vvka-141/txretry/pkg/txretry"
)

// Counters keeps running totals of retry events. The zero value is ready to use.
type Counters struct {
	recovered       atomic.Int64
	exhausted       atomic.Int64
	transientErrors atomic.Int64
	attempts        atomic.Int64
}

// Snapshot is a point-in-time copy of Counters.
type Snapshot struct {
	Recovered       int64
	Exhausted       int64
	TransientErrors int64
	Attempts        int64
}

// Events is the total number of events observed.
func (s Snapshot) Events() int64 {
	return s.Recovered + s.Exhausted
}

// NewCounters creates an empty Counters.
func NewCounters() *Counters {
	return &Counters{}
}

func (c *Counters) OnRetryEvent(e txretry.RetryEvent) {
	switch e.Outcome {
	case txretry.OutcomeRecovered:
		c.recovered.Add(1)
	case txretry.OutcomeExhausted:
		c.exhausted.Add(1)
	}
	c.transientErrors.Add(int64(len(e.TransientErrors)))
	c.attempts.Add(int64(e.Attempts))
}

// Snapshot reads all counters. Individual fields are consistent; the set is
// not captured atomically while events are still arriving.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Recovered:       c.recovered.Load(),
		Exhausted:       c.exhausted.Load(),
		TransientErrors: c.transientErrors.Load(),
		Attempts:        c.attempts.Load(),
	}
}

// Reset zeroes all counters.
func (c *Counters) Reset() {
	c.recovered.Store(0)
	c.exhausted.Store(0)
	c.transientErrors.Store(0)
	c.attempts.Store(0)
}
