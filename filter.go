package courier

import (
	"errors"
	"fmt"
	"net/http"
)

// ResponseFilter inspects a delivered response. It receives the error
// accumulated so far (nil on success) and returns the error to carry on;
// returning a non-nil error turns a success into a failure. Errors that are
// not *Error are reported as LogicError.
//
// Filters run on the transport goroutine after decoding, before the
// terminal transition. Manager filters run before request filters.
type ResponseFilter interface {
	FilterResponse(r *Request, err error) error
}

// ResponseFilterFunc adapts a function to ResponseFilter.
type ResponseFilterFunc func(r *Request, err error) error

func (f ResponseFilterFunc) FilterResponse(r *Request, err error) error {
	return f(r, err)
}

// StatusInRange returns a status validator accepting lo <= code <= hi.
func StatusInRange(lo, hi int) func(int) bool {
	return func(code int) bool { return code >= lo && code <= hi }
}

func defaultStatusOK(code int) bool { return code >= 200 && code <= 299 }

func statusError(code int) *Error {
	return &Error{
		Kind:       KindLogic,
		Message:    fmt.Sprintf("unexpected status %d %s", code, http.StatusText(code)),
		StatusCode: code,
	}
}

// asRequestError normalizes a filter result into *Error.
func asRequestError(err error, statusCode int) *Error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		if re.StatusCode == 0 {
			re.StatusCode = statusCode
		}
		return re
	}
	return &Error{Kind: KindLogic, Message: "response rejected", StatusCode: statusCode, Err: err}
}
