package txretry

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for common failure scenarios.
// These enable callers to distinguish error types using errors.Is().
//
// Example usage:
//
//	_, err := retry.Run(ctx, retrier, policy, op)
//	if errors.Is(err, txretry.ErrRetryExhausted) {
//	    // Too much contention, surface a 503 or re-queue the request
//	}
var (
	// ErrRetryExhausted indicates the attempt budget was consumed without success.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrTransactionActive indicates the outer coordinator was entered while a
	// transaction was already active in the context.
	ErrTransactionActive = errors.New("transaction already active")

	// ErrNoTransaction indicates an operation that requires an active transaction
	// was invoked without one.
	ErrNoTransaction = errors.New("no active transaction")

	// ErrImmutableVariable indicates an attempt to set a read-only session variable.
	ErrImmutableVariable = errors.New("session variable is immutable")

	// ErrUnknownVariable indicates a session variable that is not in the variable table.
	ErrUnknownVariable = errors.New("unknown session variable")

	// ErrInvalidPolicy indicates a RetryPolicy that violates its invariants.
	ErrInvalidPolicy = errors.New("invalid retry policy")

	// ErrInvalidOptions indicates TransactionOptions that cannot be applied.
	ErrInvalidOptions = errors.New("invalid transaction options")

	// ErrInvalidConfig indicates the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates database connection failed.
	ErrConnectionFailed = errors.New("connection failed")
)

// TransientError is a serialization failure observed during one attempt.
// It is always wrapped by the coordinators and only reaches callers
// through RetryExhaustedError.Errors.
type TransientError struct {
	Code    string
	Message string
	Err     error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient error (SQLSTATE %s): %s", e.Code, e.Message)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// RetryExhaustedError is returned when every attempt allowed by the policy
// failed with a transient error.
type RetryExhaustedError struct {
	Operation string
	Attempts  int
	Elapsed   time.Duration
	Errors    []*TransientError
}

func (e *RetryExhaustedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "too many serialization errors (%d) for operation %q, giving up", e.Attempts, e.Operation)
	if n := len(e.Errors); n > 0 {
		fmt.Fprintf(&b, ": last error: %s", e.Errors[n-1].Message)
	}
	return b.String()
}

// Is makes errors.Is(err, ErrRetryExhausted) match.
func (e *RetryExhaustedError) Is(target error) bool {
	return target == ErrRetryExhausted
}

// Last returns the most recent transient error, or nil.
func (e *RetryExhaustedError) Last() *TransientError {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}

// VariableError reports a session variable that cannot be set.
type VariableError struct {
	Name string
	Err  error
}

func (e *VariableError) Error() string {
	return fmt.Sprintf("session variable %q: %v", e.Name, e.Err)
}

func (e *VariableError) Unwrap() error {
	return e.Err
}

// cobra surfaces usage problems as plain errors; match them by message.
var usageErrorPrefixes = []string{
	"missing required argument",
	"unknown flag",
	"unknown shorthand flag",
	"unknown command",
	"accepts ",
	"requires at least",
	"required flag",
	"invalid argument",
	"flag needs an argument",
}

// ExitCodeForError returns the appropriate exit code for an error.
// Returns ExitSuccess (0) for nil errors, semantic codes for known errors,
// and ExitGeneralError (1) for unclassified errors.
func ExitCodeForError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	switch {
	case errors.Is(err, ErrInvalidConfig),
		errors.Is(err, ErrInvalidPolicy),
		errors.Is(err, ErrInvalidOptions),
		errors.Is(err, ErrImmutableVariable),
		errors.Is(err, ErrUnknownVariable):
		return ExitConfigError
	case errors.Is(err, ErrConnectionFailed):
		return ExitConnectionError
	case errors.Is(err, ErrRetryExhausted):
		return ExitRetryExhausted
	}

	msg := err.Error()
	for _, prefix := range usageErrorPrefixes {
		if strings.HasPrefix(msg, prefix) {
			return ExitUsageError
		}
	}

	if strings.Contains(msg, "failed to connect") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") {
		return ExitConnectionError
	}

	return ExitGeneralError
}
