package retry

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/vvka-141/txretry/pkg/txretry"
)

// SerializationFailureClassifier treats SQLSTATE 40001 as the only transient
// condition inside a transaction. Both pgx and lib/pq errors are recognized.
//
// Everything else is fatal, including deadlocks, lock timeouts and connection
// loss: re-running a transaction after those can double-apply work that
// already committed, so they are surfaced to the caller.
type SerializationFailureClassifier struct{}

// NewSerializationFailureClassifier creates the default transaction classifier.
func NewSerializationFailureClassifier() *SerializationFailureClassifier {
	return &SerializationFailureClassifier{}
}

// Classify inspects err and its wrapped chain.
func (c *SerializationFailureClassifier) Classify(err error) txretry.Classification {
	if err == nil {
		return txretry.Classification{Kind: txretry.Fatal}
	}

	var exhausted *txretry.RetryExhaustedError
	if errors.As(err, &exhausted) {
		return txretry.Classification{Kind: txretry.Fatal, Cause: err}
	}

	code, msg := sqlState(err)
	if code != txretry.SQLStateSerializationFailure {
		return txretry.Classification{Kind: txretry.Fatal, Cause: err}
	}

	return txretry.Classification{
		Kind: txretry.Transient,
		Transient: &txretry.TransientError{
			Code:    code,
			Message: msg,
			Err:     err,
		},
	}
}

// IsTransient returns true if err carries a serialization failure.
func (c *SerializationFailureClassifier) IsTransient(err error) bool {
	return c.Classify(err).Kind == txretry.Transient
}

// sqlState extracts the SQLSTATE and server message from a pgx or lib/pq error.
// Returns empty strings for non-database errors.
func sqlState(err error) (code, message string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.Message
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Message
	}

	return "", ""
}

// SQLState returns the SQLSTATE carried by err, or "".
func SQLState(err error) string {
	code, _ := sqlState(err)
	return code
}
