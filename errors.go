package courier

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes request failures.
type ErrorKind string

const (
	// KindNetwork covers transport failures, timeouts and requests that could
	// not be prepared (URL composition, URL request filters).
	KindNetwork ErrorKind = "NETWORK_ERROR"

	// KindDecode indicates the body could not be parsed as the declared type.
	KindDecode ErrorKind = "DECODE_ERROR"

	// KindLogic indicates the status code or a response filter rejected an
	// otherwise delivered response.
	KindLogic ErrorKind = "LOGIC_ERROR"

	// KindCancelled indicates the request was cancelled before completing.
	KindCancelled ErrorKind = "CANCELLED"
)

// ErrSkipped is returned by the synchronous variants when their
// precondition declines to run the operation.
var ErrSkipped = errors.New("precondition not met; nothing started")

// Error is the failure reported for a request.
type Error struct {
	Kind ErrorKind

	// Message is a human-readable description.
	Message string

	// RequestID identifies the failed request.
	RequestID string

	// StatusCode is the HTTP status when a response was received.
	StatusCode int

	// AppCode is an application-level code extracted from the body, if any.
	AppCode string

	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status=%d)", e.StatusCode)
	}
	if e.AppCode != "" {
		msg += fmt.Sprintf(" (code=%s)", e.AppCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a request error, or "" if err is not one.
func KindOf(err error) ErrorKind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// IsNetworkError reports whether err is a transport-level failure.
func IsNetworkError(err error) bool { return KindOf(err) == KindNetwork }

// IsDecodeError reports whether err is a body decoding failure.
func IsDecodeError(err error) bool { return KindOf(err) == KindDecode }

// IsLogicError reports whether err is an application-level failure.
func IsLogicError(err error) bool { return KindOf(err) == KindLogic }

// IsCancelled reports whether err is a cancellation.
func IsCancelled(err error) bool { return KindOf(err) == KindCancelled }

func newError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}
