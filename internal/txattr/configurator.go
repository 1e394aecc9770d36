// Package txattr applies per-transaction settings right after BEGIN:
// application name, priority, idle timeout, read-only and time-travel
// modes, and arbitrary session variable overrides.
package txattr

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vvka-141/txretry/pkg/txretry"
)

// Configurator turns TransactionOptions into SET statements.
// It holds no state and is safe for concurrent use.
type Configurator struct {
	logger txretry.Logger
}

// NewConfigurator creates a Configurator.
// Panics if logger is nil.
func NewConfigurator(logger txretry.Logger) *Configurator {
	if logger == nil {
		panic("logger cannot be nil")
	}
	return &Configurator{logger: logger}
}

// Statements validates opts and renders the statements Apply would send, in order.
func (c *Configurator) Statements(opts txretry.TransactionOptions) ([]string, error) {
	if err := Validate(opts); err != nil {
		return nil, err
	}

	var stmts []string
	if opts.ApplicationName != "" {
		stmts = append(stmts, "SET application_name = "+quoteLiteral(opts.ApplicationName))
	}
	if opts.Priority != txretry.PriorityNormal {
		stmts = append(stmts, "SET TRANSACTION PRIORITY "+strings.ToUpper(opts.Priority.String()))
	}
	if opts.IdleTimeout > 0 {
		stmts = append(stmts, "SET idle_in_transaction_session_timeout = "+strconv.FormatInt(opts.IdleTimeout.Milliseconds(), 10))
	}
	if opts.ReadOnly {
		stmts = append(stmts, "SET transaction_read_only = true")
	}
	switch opts.TimeTravel.Mode {
	case txretry.TimeTravelFollowerRead:
		stmts = append(stmts, "SET TRANSACTION AS OF SYSTEM TIME follower_read_timestamp()")
	case txretry.TimeTravelHistoricalRead:
		stmts = append(stmts, "SET TRANSACTION AS OF SYSTEM TIME INTERVAL "+quoteLiteral(pastInterval(opts.TimeTravel.Interval)))
	}
	for _, v := range opts.Variables {
		stmts = append(stmts, fmt.Sprintf("SET %s %s = %s",
			v.Scope, pgx.Identifier{strings.ToLower(v.Name)}.Sanitize(), quoteLiteral(v.Value)))
	}
	return stmts, nil
}

// Apply sends the statements for opts on exec, which must be inside an open
// transaction. Nothing is sent if validation fails. A statement failure is
// returned unchanged so a surrounding retry coordinator can classify it.
func (c *Configurator) Apply(ctx context.Context, exec txretry.Execer, opts txretry.TransactionOptions) error {
	stmts, err := c.Statements(opts)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		c.logger.Verbose("Transaction option: %s", stmt)
		if _, err := exec.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Hook adapts Apply to a function run after BEGIN, for use with
// retry.WithBeginHook.
func (c *Configurator) Hook(opts txretry.TransactionOptions) func(ctx context.Context, tx txretry.Tx) error {
	return func(ctx context.Context, tx txretry.Tx) error {
		return c.Apply(ctx, tx, opts)
	}
}

// Wrap returns op preceded by applying opts. The returned function fails
// with ErrNoTransaction when ctx carries no active transaction.
func Wrap[T any](c *Configurator, opts txretry.TransactionOptions, op txretry.TxFunc[T]) txretry.TxFunc[T] {
	return func(ctx context.Context, tx txretry.Tx) (T, error) {
		var zero T
		if _, ok := txretry.TxFromContext(ctx); !ok || tx == nil {
			return zero, fmt.Errorf("apply transaction options: %w", txretry.ErrNoTransaction)
		}
		if err := c.Apply(ctx, tx, opts); err != nil {
			return zero, err
		}
		return op(ctx, tx)
	}
}

// Validate checks opts without touching the database.
func Validate(opts txretry.TransactionOptions) error {
	if opts.IdleTimeout < 0 {
		return fmt.Errorf("idle timeout %v is negative: %w", opts.IdleTimeout, txretry.ErrInvalidOptions)
	}
	switch opts.Priority {
	case txretry.PriorityNormal, txretry.PriorityLow, txretry.PriorityHigh:
	default:
		return fmt.Errorf("unknown priority %d: %w", opts.Priority, txretry.ErrInvalidOptions)
	}
	switch opts.TimeTravel.Mode {
	case txretry.TimeTravelNone, txretry.TimeTravelFollowerRead:
	case txretry.TimeTravelHistoricalRead:
		if opts.TimeTravel.Interval == 0 {
			return fmt.Errorf("historical read requires an interval: %w", txretry.ErrInvalidOptions)
		}
	default:
		return fmt.Errorf("unknown time travel mode %d: %w", opts.TimeTravel.Mode, txretry.ErrInvalidOptions)
	}

	for _, v := range opts.Variables {
		if v.Scope != txretry.ScopeLocal && v.Scope != txretry.ScopeSession {
			return fmt.Errorf("variable %q has unknown scope %d: %w", v.Name, v.Scope, txretry.ErrInvalidOptions)
		}
		info, ok := LookupVariable(v.Name)
		if !ok {
			return &txretry.VariableError{Name: v.Name, Err: txretry.ErrUnknownVariable}
		}
		if !info.Mutable() {
			return &txretry.VariableError{Name: info.Name, Err: txretry.ErrImmutableVariable}
		}
	}
	return nil
}

// quoteLiteral renders s as a single-quoted SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// pastInterval renders d as a negative interval such as "-10s".
func pastInterval(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	return "-" + d.String()
}
