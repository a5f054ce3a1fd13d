package testutil

import (
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/roach88/courier/transport"
)

// Route scripts the response for a path.
type Route struct {
	Status int // default 200
	Header http.Header
	Body   string
	Err    error

	// Delay postpones the response; the request context still cancels it.
	Delay time.Duration

	// Gate, when set, holds the response until it is closed.
	Gate chan struct{}
}

// Call records one transport invocation.
type Call struct {
	Method string
	URL    string
	Path   string
	Header http.Header
	Body   []byte
}

// FakeTransport answers requests from scripted routes keyed by URL path.
// Unrouted paths get a 404.
//
// Thread-safety: safe for concurrent use.
type FakeTransport struct {
	mu     sync.Mutex
	routes map[string]Route
	calls  []Call
	active int
}

// NewFakeTransport creates a transport with no routes.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{routes: make(map[string]Route)}
}

// Handle scripts path for every method.
func (f *FakeTransport) Handle(path string, route Route) *FakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[path] = route
	return f
}

// HandleMethod scripts path for one method; it wins over Handle.
func (f *FakeTransport) HandleMethod(method, path string, route Route) *FakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[method+" "+path] = route
	return f
}

// Do implements transport.Transport.
func (f *FakeTransport) Do(req *http.Request) (*transport.Response, error) {
	var body []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		body = b
	}

	f.mu.Lock()
	route, ok := f.routes[req.Method+" "+req.URL.Path]
	if !ok {
		route, ok = f.routes[req.URL.Path]
	}
	if !ok {
		route = Route{Status: http.StatusNotFound, Body: "not found"}
	}
	f.calls = append(f.calls, Call{
		Method: req.Method,
		URL:    req.URL.String(),
		Path:   req.URL.Path,
		Header: req.Header.Clone(),
		Body:   body,
	})
	f.active++
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	ctx := req.Context()
	if route.Gate != nil {
		select {
		case <-route.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if route.Delay > 0 {
		t := time.NewTimer(route.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if route.Err != nil {
		return nil, route.Err
	}

	status := route.Status
	if status == 0 {
		status = http.StatusOK
	}
	header := route.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	return &transport.Response{StatusCode: status, Header: header, Body: []byte(route.Body)}, nil
}

// Calls returns every recorded call in arrival order.
func (f *FakeTransport) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallCount returns how many calls hit path.
func (f *FakeTransport) CallCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Path == path {
			n++
		}
	}
	return n
}

// Active returns the number of calls still waiting on a gate or delay.
func (f *FakeTransport) Active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}
