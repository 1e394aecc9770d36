package txretry

import "time"

// Exit codes for semantic error classification.
// These follow Unix/GNU conventions:
//   - 0: Success
//   - 1: General error
//   - 2: CLI usage error (misuse of command line)
//   - 3+: Application-specific errors
const (
	ExitSuccess         = 0  // Command completed successfully
	ExitGeneralError    = 1  // Unknown or unclassified error
	ExitUsageError      = 2  // CLI usage error (missing args, invalid flags)
	ExitPanic           = 3  // Internal panic (unexpected crash)
	ExitConfigError     = 10 // Invalid configuration, policy or transaction options
	ExitConnectionError = 11 // Failed to connect to database
	ExitRetryExhausted  = 12 // Serialization failures outlasted the retry budget
)

const (
	// SQLStateSerializationFailure is the only SQLSTATE treated as transient.
	SQLStateSerializationFailure = "40001"

	// DefaultMaxAttempts is the default attempt budget for a retried operation.
	DefaultMaxAttempts = 10

	// DefaultMaxBackoff caps the delay between two attempts.
	DefaultMaxBackoff = 15 * time.Second

	// DefaultSavepointName is used when a SavepointRetrier is created without a name.
	DefaultSavepointName = "txretry_savepoint"

	// DefaultConnectMaxAttempts is the number of dial retries when opening a pool.
	DefaultConnectMaxAttempts = 3

	// DefaultConnectInitialDelay is the first dial retry delay.
	DefaultConnectInitialDelay = 100 * time.Millisecond

	// DefaultConnectMaxDelay caps dial retry delays.
	DefaultConnectMaxDelay = 10 * time.Second

	// DefaultCockroachPort is the SQL port CockroachDB listens on.
	DefaultCockroachPort = 26257
)
