package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/roach88/courier"
	"github.com/roach88/courier/internal/testutil"
	"github.com/roach88/courier/transport"
)

// tracer records events from any goroutine and stamps them in order.
type tracer struct {
	mu     sync.Mutex
	seq    int64
	events []TraceEvent
}

func (t *tracer) add(e TraceEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	e.Seq = t.seq
	t.events = append(t.events, e)
}

func (t *tracer) snapshot() []TraceEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TraceEvent(nil), t.events...)
}

// fakeTransport builds the scripted transport for s.
func fakeTransport(s *Scenario) *testutil.FakeTransport {
	ft := testutil.NewFakeTransport()
	for _, rt := range s.Routes {
		route := testutil.Route{
			Status: rt.Status,
			Body:   rt.Body,
			Delay:  time.Duration(rt.DelayMS) * time.Millisecond,
		}
		if rt.Error != "" {
			route.Err = errors.New(rt.Error)
		}
		if rt.Method != "" {
			ft.HandleMethod(rt.Method, rt.Path, route)
		} else {
			ft.Handle(rt.Path, route)
		}
	}
	return ft
}

// Run executes a scenario and returns the result.
//
// Each run gets a fresh Manager, fake transport and id sequence, so
// repeated runs of a request or chain scenario yield identical traces.
// The returned error reports harness problems; failed expectations are
// recorded in Result.Errors.
func Run(ctx context.Context, s *Scenario) (*Result, error) {
	tr := &tracer{}
	ft := fakeTransport(s)
	recording := transport.Func(func(hr *http.Request) (*transport.Response, error) {
		tr.add(TraceEvent{Type: EventTransportCall, Path: hr.URL.Path})
		return ft.Do(hr)
	})

	m := courier.New(courier.SessionConfig{BaseURL: s.BaseURL},
		courier.WithTransport(recording),
		courier.WithIDGenerator(testutil.NewSequenceGenerator(s.Name)),
		courier.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	defer m.Close()

	reqs, names, err := buildRequests(m, s, tr)
	if err != nil {
		return nil, err
	}

	outcome, failed, err := execute(ctx, m, s, reqs, tr)
	if err != nil {
		return nil, err
	}
	// Drain notifications for siblings the unit cancelled on its way out.
	m.Close()

	result := NewResult()
	result.Outcome = outcome.String()
	result.Trace = tr.snapshot()
	for _, r := range reqs {
		result.States[names[r]] = r.State().String()
	}

	checkExpect(result, s.Expect, failed, names)
	for _, a := range s.Assertions {
		if err := evaluateAssertion(result.Trace, a); err != nil {
			result.AddError(err.Error())
		}
	}
	return result, nil
}

func buildRequests(m *courier.Manager, s *Scenario, tr *tracer) ([]*courier.Request, map[*courier.Request]string, error) {
	reqs := make([]*courier.Request, 0, len(s.Requests))
	names := make(map[*courier.Request]string, len(s.Requests))

	for _, rq := range s.Requests {
		rt, err := courier.ParseResponseType(rq.ResponseType)
		if err != nil {
			return nil, nil, fmt.Errorf("request %s: %w", rq.Name, err)
		}
		name := rq.Name
		finished := func(r *courier.Request) {
			tr.add(TraceEvent{Type: "request." + r.State().String(), Request: name, Status: r.StatusCode()})
		}
		r := m.NewRequest(rq.Method, rq.Path,
			courier.WithParams(rq.Params),
			courier.WithResponseType(rt),
			courier.WithAccessory(courier.AccessoryFuncs{
				OnWillStart: func(courier.Unit) { tr.add(TraceEvent{Type: EventRequestStart, Request: name}) },
			}),
			courier.OnSuccess(finished),
			courier.OnFailure(finished),
			courier.OnCancelled(finished))
		reqs = append(reqs, r)
		names[r] = name
	}
	return reqs, names, nil
}

// execute runs the requests in the scenario's mode and returns the unit's
// terminal state and the request it reports as failed.
func execute(ctx context.Context, m *courier.Manager, s *Scenario, reqs []*courier.Request, tr *tracer) (courier.State, *courier.Request, error) {
	switch s.Mode {
	case ModeBatch:
		opts := []courier.BatchOption{
			courier.OnBatchSuccess(func(*courier.Batch) { tr.add(TraceEvent{Type: "batch.succeeded"}) }),
			courier.OnBatchFailure(func(*courier.Batch) { tr.add(TraceEvent{Type: "batch.failed"}) }),
			courier.OnBatchCancelled(func(*courier.Batch) { tr.add(TraceEvent{Type: "batch.cancelled"}) }),
		}
		if s.StopOnFailure != nil {
			opts = append(opts, courier.BatchStopOnFailure(*s.StopOnFailure))
		}
		b := m.NewBatch(reqs, opts...)
		_ = m.SyncBatch(ctx, b, nil, nil)
		if ctx.Err() != nil {
			return 0, nil, fmt.Errorf("batch interrupted: %w", ctx.Err())
		}
		return b.State(), b.FailedRequest(), nil

	case ModeChain:
		opts := []courier.ChainOption{
			courier.ChainStopOnSuccess(s.StopOnSuccess),
			courier.OnChainSuccess(func(*courier.Chain) { tr.add(TraceEvent{Type: "chain.succeeded"}) }),
			courier.OnChainFailure(func(*courier.Chain) { tr.add(TraceEvent{Type: "chain.failed"}) }),
			courier.OnChainCancelled(func(*courier.Chain) { tr.add(TraceEvent{Type: "chain.cancelled"}) }),
		}
		if s.StopOnFailure != nil {
			opts = append(opts, courier.ChainStopOnFailure(*s.StopOnFailure))
		}
		c := m.NewChain(opts...)
		for _, r := range reqs {
			c.Add(r, nil)
		}
		_ = m.SyncChain(ctx, c, nil, nil)
		if ctx.Err() != nil {
			return 0, nil, fmt.Errorf("chain interrupted: %w", ctx.Err())
		}
		if c.State() == courier.StateFailed {
			return c.State(), c.FailedRequest(), nil
		}
		return c.State(), nil, nil

	default:
		// Sequential requests: the first failure or cancellation decides.
		outcome := courier.StateSucceeded
		var failed *courier.Request
		for _, r := range reqs {
			_ = m.SyncRequest(ctx, r, nil, nil)
			if ctx.Err() != nil {
				return 0, nil, fmt.Errorf("request interrupted: %w", ctx.Err())
			}
			if st := r.State(); st != courier.StateSucceeded && outcome == courier.StateSucceeded {
				outcome = st
				failed = r
			}
		}
		return outcome, failed, nil
	}
}

func checkExpect(result *Result, e *ExpectClause, failed *courier.Request, names map[*courier.Request]string) {
	if e == nil {
		return
	}
	if result.Outcome != e.Outcome {
		result.AddError(fmt.Sprintf("outcome: expected %s, got %s", e.Outcome, result.Outcome))
	}
	if e.FailedRequest != "" {
		got := ""
		if failed != nil {
			got = names[failed]
		}
		if got != e.FailedRequest {
			result.AddError(fmt.Sprintf("failed_request: expected %s, got %q", e.FailedRequest, got))
		}
	}

	keys := make([]string, 0, len(e.States))
	for k := range e.States {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, name := range keys {
		if got := result.States[name]; got != e.States[name] {
			result.AddError(fmt.Sprintf("state of %s: expected %s, got %s", name, e.States[name], got))
		}
	}
}
