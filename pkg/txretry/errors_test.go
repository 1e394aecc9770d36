package txretry_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vvka-141/txretry/pkg/txretry"
)

func TestExitCodeForError_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unknown flag", errors.New("unknown flag --foo"), txretry.ExitUsageError},
		{"unknown shorthand flag", errors.New("unknown shorthand flag: 'x'"), txretry.ExitUsageError},
		{"accepts args", errors.New("accepts 1 arg(s), received 0"), txretry.ExitUsageError},
		{"required flag", errors.New("required flag \"tasks\" not set"), txretry.ExitUsageError},
		{"invalid argument", errors.New("invalid argument \"abc\" for \"--tasks\""), txretry.ExitUsageError},
		{"general error", errors.New("something went wrong"), txretry.ExitGeneralError},
		{"nil error", nil, txretry.ExitSuccess},
		{"connection failed", txretry.ErrConnectionFailed, txretry.ExitConnectionError},
		{"connection refused text", errors.New("dial tcp: connection refused"), txretry.ExitConnectionError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := txretry.ExitCodeForError(tt.err); got != tt.want {
				t.Errorf("ExitCodeForError(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestExitCodeForError_Sentinels(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid config", fmt.Errorf("load: %w", txretry.ErrInvalidConfig), txretry.ExitConfigError},
		{"invalid policy", txretry.ErrInvalidPolicy, txretry.ExitConfigError},
		{"immutable variable", &txretry.VariableError{Name: "node_id", Err: txretry.ErrImmutableVariable}, txretry.ExitConfigError},
		{"unknown variable", &txretry.VariableError{Name: "bogus", Err: txretry.ErrUnknownVariable}, txretry.ExitConfigError},
		{"exhausted", &txretry.RetryExhaustedError{Operation: "transfer", Attempts: 3}, txretry.ExitRetryExhausted},
		{"wrapped exhausted", fmt.Errorf("submit: %w", &txretry.RetryExhaustedError{Attempts: 1}), txretry.ExitRetryExhausted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := txretry.ExitCodeForError(tt.err); got != tt.want {
				t.Errorf("ExitCodeForError(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryExhaustedError(t *testing.T) {
	first := &txretry.TransientError{Code: "40001", Message: "restart transaction: first"}
	last := &txretry.TransientError{Code: "40001", Message: "restart transaction: second"}
	err := &txretry.RetryExhaustedError{
		Operation: "transfer",
		Attempts:  2,
		Elapsed:   time.Second,
		Errors:    []*txretry.TransientError{first, last},
	}

	if !errors.Is(err, txretry.ErrRetryExhausted) {
		t.Error("expected errors.Is(err, ErrRetryExhausted)")
	}
	if err.Last() != last {
		t.Errorf("Last() = %v, want %v", err.Last(), last)
	}
	want := `too many serialization errors (2) for operation "transfer", giving up: last error: restart transaction: second`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	var target *txretry.RetryExhaustedError
	if !errors.As(fmt.Errorf("wrapped: %w", err), &target) || target != err {
		t.Error("expected errors.As to find the exhausted error")
	}

	empty := &txretry.RetryExhaustedError{Operation: "x", Attempts: 1}
	if empty.Last() != nil {
		t.Error("Last() on empty error list should be nil")
	}
}

func TestTransientErrorUnwrap(t *testing.T) {
	cause := errors.New("driver error")
	err := &txretry.TransientError{Code: "40001", Message: "retry", Err: cause}

	if !errors.Is(err, cause) {
		t.Error("TransientError should unwrap to its cause")
	}
	if got := err.Error(); got != "transient error (SQLSTATE 40001): retry" {
		t.Errorf("Error() = %q", got)
	}
}
