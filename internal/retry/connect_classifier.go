package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/vvka-141/txretry/pkg/txretry"
)

// SQLSTATE classes that indicate the server could not accept a new session yet.
// See: https://www.postgresql.org/docs/current/errcodes-appendix.html
var connectTransientClasses = []string{
	"08", // connection exception
	"53", // insufficient resources, e.g. too many connections
	"57", // operator intervention, e.g. node draining or starting up
}

var connectTransientPatterns = []string{
	"connection refused",
	"connection reset",
	"connection timeout",
	"no such host",
	"network is unreachable",
	"i/o timeout",
	"broken pipe",
	"server closed the connection",
	"unexpected eof",
	"server is not accepting clients",
}

// ConnectErrorClassifier decides whether opening a connection is worth
// retrying. It is used only while dialing; transactional work goes through
// SerializationFailureClassifier.
type ConnectErrorClassifier struct{}

// NewConnectErrorClassifier creates a classifier for connection establishment.
func NewConnectErrorClassifier() *ConnectErrorClassifier {
	return &ConnectErrorClassifier{}
}

// Classify inspects err and its wrapped chain.
func (c *ConnectErrorClassifier) Classify(err error) txretry.Classification {
	if !c.IsTransient(err) {
		return txretry.Classification{Kind: txretry.Fatal, Cause: err}
	}
	code, msg := sqlState(err)
	if msg == "" {
		msg = err.Error()
	}
	return txretry.Classification{
		Kind:      txretry.Transient,
		Transient: &txretry.TransientError{Code: code, Message: msg, Err: err},
	}
}

// IsTransient reports whether a failed dial may succeed on a later attempt.
func (c *ConnectErrorClassifier) IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	if code, _ := sqlState(err); code != "" {
		for _, class := range connectTransientClasses {
			if strings.HasPrefix(code, class) {
				return true
			}
		}
		return false
	}

	if isNetworkError(err) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range connectTransientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

func isNetworkError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return true
		}
		return errors.Is(opErr.Err, syscall.ECONNREFUSED) ||
			errors.Is(opErr.Err, syscall.ECONNRESET) ||
			errors.Is(opErr.Err, syscall.ENETUNREACH) ||
			errors.Is(opErr.Err, syscall.EHOSTUNREACH)
	}
	return false
}
