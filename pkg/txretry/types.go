package txretry

import (
	"fmt"
	"time"
)

// RetryPolicy bounds how often and how slowly an operation is retried.
type RetryPolicy struct {
	// Name labels log lines and retry events. Optional.
	Name string

	// MaxAttempts is the total number of invocations allowed, including the first.
	MaxAttempts int

	// MaxBackoff caps the delay between attempts. Zero or negative disables sleeping.
	MaxBackoff time.Duration
}

// DefaultRetryPolicy returns a policy with DefaultMaxAttempts and DefaultMaxBackoff.
func DefaultRetryPolicy(name string) RetryPolicy {
	return RetryPolicy{
		Name:        name,
		MaxAttempts: DefaultMaxAttempts,
		MaxBackoff:  DefaultMaxBackoff,
	}
}

// Validate checks the policy invariants.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be >= 1, got %d: %w", p.MaxAttempts, ErrInvalidPolicy)
	}
	return nil
}

// Operation returns the policy name or a placeholder when unnamed.
func (p RetryPolicy) Operation() string {
	if p.Name == "" {
		return "(unnamed)"
	}
	return p.Name
}

// Priority is the CockroachDB transaction priority.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityLow
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	default:
		return "normal"
	}
}

// ParsePriority parses "low", "normal" or "high". The empty string is normal.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "", "normal":
		return PriorityNormal, nil
	case "low":
		return PriorityLow, nil
	case "high":
		return PriorityHigh, nil
	}
	return PriorityNormal, fmt.Errorf("unknown priority %q: %w", s, ErrInvalidOptions)
}

// TimeTravelMode selects how reads are positioned in time.
type TimeTravelMode int

const (
	TimeTravelNone TimeTravelMode = iota
	// TimeTravelFollowerRead reads at follower_read_timestamp(), a bounded-staleness
	// timestamp any replica can serve.
	TimeTravelFollowerRead
	// TimeTravelHistoricalRead reads as of an explicit interval in the past.
	TimeTravelHistoricalRead
)

// TimeTravel configures AS OF SYSTEM TIME for a transaction.
type TimeTravel struct {
	Mode TimeTravelMode

	// Interval is how far in the past to read for TimeTravelHistoricalRead.
	// The sign is ignored; reads are always in the past.
	Interval time.Duration
}

// FollowerRead is shorthand for a follower-read time travel setting.
func FollowerRead() TimeTravel {
	return TimeTravel{Mode: TimeTravelFollowerRead}
}

// HistoricalRead is shorthand for reading as of d ago.
func HistoricalRead(d time.Duration) TimeTravel {
	return TimeTravel{Mode: TimeTravelHistoricalRead, Interval: d}
}

// VariableScope controls whether a variable is reset at transaction end.
type VariableScope int

const (
	// ScopeLocal variables reset automatically on commit or rollback.
	ScopeLocal VariableScope = iota
	// ScopeSession variables persist on the connection until reset by the caller.
	ScopeSession
)

func (s VariableScope) String() string {
	if s == ScopeSession {
		return "SESSION"
	}
	return "LOCAL"
}

// SessionVariable is one SET override applied at the transaction boundary.
type SessionVariable struct {
	Name  string
	Value string
	Scope VariableScope
}

// Local returns a transaction-scoped variable override.
func Local(name, value string) SessionVariable {
	return SessionVariable{Name: name, Value: value, Scope: ScopeLocal}
}

// Session returns a connection-scoped variable override.
func Session(name, value string) SessionVariable {
	return SessionVariable{Name: name, Value: value, Scope: ScopeSession}
}

// TransactionOptions are applied once per transaction attempt, right after
// BEGIN and before the wrapped operation runs.
type TransactionOptions struct {
	ApplicationName string
	Priority        Priority
	IdleTimeout     time.Duration
	ReadOnly        bool
	TimeTravel      TimeTravel
	Variables       []SessionVariable
}

// IsZero reports whether applying the options would issue no statements.
func (o TransactionOptions) IsZero() bool {
	return o.ApplicationName == "" &&
		o.Priority == PriorityNormal &&
		o.IdleTimeout == 0 &&
		!o.ReadOnly &&
		o.TimeTravel.Mode == TimeTravelNone &&
		len(o.Variables) == 0
}

// AttemptState tracks one in-flight call across its attempts.
// It is owned by a single call and never shared between goroutines.
type AttemptState struct {
	Attempt int
	Started time.Time
	Backoff time.Duration
	Errors  []*TransientError

	// Set by a nested savepoint coordinator so that only the coordinator
	// owning the call reports its RetryEvent.
	Retried   bool
	Exhausted bool
}

// Retries is the number of attempts after the first.
func (s *AttemptState) Retries() int {
	if s.Attempt <= 1 {
		return 0
	}
	return s.Attempt - 1
}

// ErrorKind is the outcome of classifying an error.
type ErrorKind int

const (
	Fatal ErrorKind = iota
	Transient
)

func (k ErrorKind) String() string {
	if k == Transient {
		return "transient"
	}
	return "fatal"
}

// Classification is a freshly classified error. Exactly one of Transient
// (for Kind == Transient) or Cause (for Kind == Fatal) is set.
type Classification struct {
	Kind      ErrorKind
	Transient *TransientError
	Cause     error
}

// RetryOutcome tells a recovered call apart from an exhausted one.
type RetryOutcome int

const (
	OutcomeRecovered RetryOutcome = iota
	OutcomeExhausted
)

func (o RetryOutcome) String() string {
	if o == OutcomeExhausted {
		return "exhausted"
	}
	return "recovered"
}

// RetryEvent is emitted once per call: on the first success that followed at
// least one retry, or when the attempt budget is exhausted.
type RetryEvent struct {
	Operation       string
	Message         string
	Outcome         RetryOutcome
	Attempts        int
	Elapsed         time.Duration
	TransientErrors []*TransientError
}
