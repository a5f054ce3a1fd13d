// Package transport executes prepared HTTP requests.
//
// The orchestration layer only needs one operation: send a request and get
// back status, headers and the full body, or an error. Cancellation travels
// through the request's context.
package transport

import (
	"context"
	"errors"
	"net/http"
)

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport sends one request.
type Transport interface {
	Do(req *http.Request) (*Response, error)
}

// Func adapts a function to Transport.
type Func func(req *http.Request) (*Response, error)

// Do implements Transport.
func (f Func) Do(req *http.Request) (*Response, error) {
	return f(req)
}

// IsCanceled reports whether err came from cancelling the request context.
// A deadline expiry is not a cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
