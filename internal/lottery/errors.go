package lottery

import (
	"errors"
	"fmt"
)

// Code classifies engine errors so the transport layer can map them to
// status codes without string matching.
type Code int

const (
	// CodeInvalidRequester marks a malformed requester identifier.
	CodeInvalidRequester Code = iota + 1
	// CodeInvalidIP marks a malformed source address.
	CodeInvalidIP
	// CodeInvalidNonce marks a missing, expired or replayed nonce.
	CodeInvalidNonce
	// CodeInsufficientStock marks a decrement that found no stock left.
	CodeInsufficientStock
	// CodeDrawFailed marks an infrastructure failure after rollback;
	// the caller may retry later.
	CodeDrawFailed
	// CodeNotFound marks a verification lookup that matched no record,
	// or a record owned by a different requester.
	CodeNotFound
)

// Error is the typed error the engine surfaces.  Contention and
// availability conditions never become Errors; they resolve through the
// fallback path instead.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.Err }

func newError(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, Err: cause}
}

// AsError extracts a typed engine error from err, if there is one.
func AsError(err error) (*Error, bool) {
	var le *Error
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}
