package courier

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/roach88/courier/internal/testutil"
)

const testBaseURL = "https://api.test/v1"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestManager returns a manager over ft with sequential ids.
func newTestManager(t *testing.T, ft *testutil.FakeTransport, opts ...Option) *Manager {
	t.Helper()
	base := []Option{
		WithTransport(ft),
		WithIDGenerator(testutil.NewSequenceGenerator("req")),
		WithLogger(discardLogger()),
	}
	m := New(SessionConfig{BaseURL: testBaseURL}, append(base, opts...)...)
	t.Cleanup(m.Close)
	return m
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for completion")
	}
}

// recorder collects lifecycle events from any goroutine.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) accessory(prefix string) Accessory {
	return AccessoryFuncs{
		OnWillStart: func(Unit) { r.add(prefix + "will_start") },
		OnWillStop:  func(Unit) { r.add(prefix + "will_stop") },
		OnDidStop:   func(Unit) { r.add(prefix + "did_stop") },
	}
}

// callbacks returns success/failure/cancelled options that record to r.
func (r *recorder) callbacks(prefix string) []RequestOption {
	return []RequestOption{
		OnSuccess(func(*Request) { r.add(prefix + "success") }),
		OnFailure(func(*Request) { r.add(prefix + "failure") }),
		OnCancelled(func(*Request) { r.add(prefix + "cancelled") }),
	}
}
