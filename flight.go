package courier

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/roach88/courier/internal/canon"
	"github.com/roach88/courier/transport"
)

// flight is one shared transport call.
type flight struct {
	done    chan struct{}
	resp    *transport.Response
	err     error
	waiters int
	cancel  context.CancelFunc
}

// flightGroup coalesces identical in-flight calls. The shared call runs
// detached from any single participant and is cancelled only when every
// participant has gone.
type flightGroup struct {
	mu      sync.Mutex
	flights map[string]*flight
}

func newFlightGroup() *flightGroup {
	return &flightGroup{flights: make(map[string]*flight)}
}

func (g *flightGroup) do(ctx context.Context, key string, call func(context.Context) (*transport.Response, error)) (*transport.Response, error) {
	g.mu.Lock()
	f, ok := g.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{done: make(chan struct{}), cancel: cancel}
		g.flights[key] = f
		go func() {
			resp, err := call(fctx)
			g.mu.Lock()
			f.resp, f.err = resp, err
			if g.flights[key] == f {
				delete(g.flights, key)
			}
			g.mu.Unlock()
			cancel()
			close(f.done)
		}()
	}
	f.waiters++
	g.mu.Unlock()

	select {
	case <-f.done:
		return f.resp, f.err
	case <-ctx.Done():
		g.mu.Lock()
		f.waiters--
		if f.waiters == 0 {
			f.cancel()
			if g.flights[key] == f {
				delete(g.flights, key)
			}
		}
		g.mu.Unlock()
		return nil, ctx.Err()
	}
}

// inFlight returns the number of shared calls currently running.
func (g *flightGroup) inFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.flights)
}

// flightKey identifies calls that may share one transport round trip:
// same method, URL and headers. Only GET and HEAD qualify.
func (m *Manager) flightKey(hr *http.Request) (string, bool) {
	if !m.coalesce || (hr.Method != http.MethodGet && hr.Method != http.MethodHead) {
		return "", false
	}
	header := make(map[string]any, len(hr.Header))
	for k, vs := range hr.Header {
		header[k] = strings.Join(vs, ",")
	}
	key, err := canon.Hash(canon.DomainFlight, map[string]any{
		"method": hr.Method,
		"url":    hr.URL.String(),
		"header": header,
	})
	if err != nil {
		m.logger.Warn("coalescing disabled for request", "url", hr.URL.String(), "error", err)
		return "", false
	}
	return key, true
}
