package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a messaging failure for callers: configuration
// problems are surfaced immediately and not retried, handshake and auth
// failures are retryable by re-invoking connect, transport and recipient
// failures are per-recipient and never abort a batch.
type ErrorKind string

const (
	KindConfiguration    ErrorKind = "configuration"
	KindHandshakeTimeout ErrorKind = "handshake_timeout"
	KindAuthFailure      ErrorKind = "auth_failure"
	KindTransport        ErrorKind = "transport"
	KindRecipient        ErrorKind = "recipient"
)

// Error is a classified messaging error.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Retryable reports whether re-invoking the failed operation can succeed
// without a configuration change.
func (e *Error) Retryable() bool {
	return e.Kind != KindConfiguration && e.Kind != KindRecipient
}

func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the classification from an error, or empty if the
// error did not originate here.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
