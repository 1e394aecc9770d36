package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

// ForcedApprover approves after a short countdown that can be interrupted
// with Ctrl+C. Used when --force is given.
type ForcedApprover struct {
	verbose   bool
	countdown int
	output    io.Writer
	sleepFn   func(time.Duration)
}

// NewForcedApprover creates a ForcedApprover writing to stderr.
func NewForcedApprover(verbose bool) Approver {
	return &ForcedApprover{
		verbose:   verbose,
		countdown: DefaultForceCountdown,
		output:    os.Stderr,
		sleepFn:   time.Sleep,
	}
}

// RequestApproval counts down and then approves.
func (a *ForcedApprover) RequestApproval(ctx context.Context, target string) (bool, error) {
	countdown := a.countdown
	if countdown <= 0 {
		countdown = DefaultForceCountdown
	}

	fmt.Fprintf(a.output, "\nDANGER: all accounts, transfers and outbox events in '%s' will be deleted.\n", target)
	for i := countdown; i > 0; i-- {
		if err := ctx.Err(); err != nil {
			fmt.Fprintln(a.output)
			return false, err
		}
		fmt.Fprintf(a.output, "\rDeleting in: %d seconds... (Press Ctrl+C to cancel)", i)
		a.sleepFn(time.Second)
	}
	if err := ctx.Err(); err != nil {
		fmt.Fprintln(a.output)
		return false, err
	}

	fmt.Fprintf(a.output, "\r✓ Proceeding with reset of '%s'...                          \n", target)
	return true, nil
}

var _ Approver = (*ForcedApprover)(nil)
