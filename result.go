package courier

import "fmt"

// Result is the outcome of a terminal request: a value or an error, never
// both. The zero Result belongs to a request that has not finished.
type Result struct {
	value any
	err   *Error
	ok    bool
}

func succeeded(v any) Result { return Result{value: v, ok: true} }

func failed(err *Error) Result { return Result{err: err} }

// Ok reports whether the request succeeded.
func (r Result) Ok() bool { return r.ok }

// Value returns the decoded response, nil unless Ok.
func (r Result) Value() any { return r.value }

// Err returns the failure, nil unless the request failed or was cancelled.
func (r Result) Err() error {
	if r.err == nil {
		return nil
	}
	return r.err
}

// Failure returns the typed failure, nil unless the request failed or was
// cancelled.
func (r Result) Failure() *Error { return r.err }

// ValueAs returns r's decoded value as T. Values decoded through Schema[T]
// are stored as *T and are dereferenced.
func ValueAs[T any](r *Request) (T, error) {
	var zero T
	res := r.Result()
	if err := res.Err(); err != nil {
		return zero, err
	}
	if !res.Ok() {
		return zero, fmt.Errorf("request %s has not succeeded (state=%s)", r.ID(), r.State())
	}
	switch v := res.Value().(type) {
	case T:
		return v, nil
	case *T:
		if v != nil {
			return *v, nil
		}
	}
	return zero, fmt.Errorf("response value is %T, not %T", res.Value(), zero)
}
