package retry

import (
	"context"
	"time"
)

// Sleeper suspends the calling goroutine between attempts. It returns early
// with the context error if ctx is done first.
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep is the default Sleeper. It waits on a timer and returns
// ctx.Err() if the caller's context finishes first.
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
