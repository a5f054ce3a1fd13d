package courier

import (
	"context"
	"errors"
	"net/http"

	"github.com/roach88/courier/transport"
)

// outcome is what a transport goroutine hands to the dispatcher.
type outcome struct {
	result    Result
	cancelled bool
}

// start implements Request.Start, Request.StartWithoutCache and Manager.Add.
func (m *Manager) start(r *Request, bypassCache bool) {
	if r.mgr != m {
		m.logger.Error("request submitted to a foreign manager", "method", r.method, "path", r.path)
		return
	}

	r.mu.Lock()
	if r.state != StateIdle || r.id != "" {
		r.mu.Unlock()
		return
	}
	r.id = m.ids.Generate()
	r.session = m.Session()
	r.mu.Unlock()

	if !bypassCache && m.serveFromCache(r) {
		return
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if r.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), r.timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	// Register before the transition so a concurrent Cancel always finds
	// the entry it has to remove.
	m.register(r)
	r.mu.Lock()
	if r.state != StateIdle {
		r.mu.Unlock()
		cancel()
		m.unregister(r)
		return
	}
	r.state = StateStarted
	r.cancel = cancel
	r.started = m.now()
	r.mu.Unlock()

	willStart(r.accessories, r)

	hr, rerr := m.prepare(ctx, r)
	if rerr != nil {
		m.dispatch(func() { m.complete(r, outcome{result: failed(rerr)}) })
		return
	}

	m.logger.Debug("request started",
		"id", r.id,
		"method", hr.Method,
		"url", hr.URL.String(),
		"session", r.session.generation)
	go m.execute(ctx, r, hr)
}

// prepare composes the URL, builds the transport request and runs URL
// request filters.
func (m *Manager) prepare(ctx context.Context, r *Request) (*http.Request, *Error) {
	cfg := r.session.config
	filters := m.urlFilterSnapshot()

	rawURL, err := composeURL(cfg, r, filters)
	if err != nil {
		return nil, newError(KindNetwork, "compose url", err)
	}
	finalURL, body, contentType, err := encodeParams(r.method, rawURL, r.params, r.encoding, r.rawBody, r.rawType)
	if err != nil {
		return nil, newError(KindNetwork, "encode params", err)
	}
	hr, err := http.NewRequestWithContext(ctx, r.method, finalURL, body)
	if err != nil {
		return nil, newError(KindNetwork, "build request", err)
	}

	for k, vs := range cfg.Header {
		for _, v := range vs {
			hr.Header.Add(k, v)
		}
	}
	for k, vs := range r.header {
		hr.Header.Del(k)
		for _, v := range vs {
			hr.Header.Add(k, v)
		}
	}
	if cfg.UserAgent != "" {
		hr.Header.Set("User-Agent", cfg.UserAgent)
	}
	if contentType != "" && hr.Header.Get("Content-Type") == "" {
		hr.Header.Set("Content-Type", contentType)
	}

	for _, f := range filters {
		if err := f.FilterURLRequest(hr, r); err != nil {
			return nil, newError(KindNetwork, "url request filter", err)
		}
	}

	r.mu.Lock()
	r.url = hr.URL.String()
	r.mu.Unlock()
	return hr, nil
}

// execute runs on the request's transport goroutine.
func (m *Manager) execute(ctx context.Context, r *Request, hr *http.Request) {
	tr := r.session.transport

	var (
		resp *transport.Response
		err  error
	)
	if key, ok := m.flightKey(hr); ok {
		resp, err = m.flights.do(ctx, key, func(fctx context.Context) (*transport.Response, error) {
			return tr.Do(hr.WithContext(fctx))
		})
	} else {
		resp, err = tr.Do(hr)
	}

	out := m.evaluate(r, resp, err)
	m.dispatch(func() { m.complete(r, out) })
}

// evaluate decodes the response and applies response filters.
func (m *Manager) evaluate(r *Request, resp *transport.Response, err error) outcome {
	if err != nil {
		if transport.IsCanceled(err) {
			return outcome{cancelled: true}
		}
		msg := "transport failed"
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "request timed out"
		}
		return outcome{result: failed(newError(KindNetwork, msg, err))}
	}

	r.mu.Lock()
	if r.state != StateStarted {
		r.mu.Unlock()
		return outcome{cancelled: true}
	}
	r.response = resp
	r.mu.Unlock()

	var (
		value  any
		ferr   error
		status = resp.StatusCode
	)
	if !r.statusOK(status) {
		ferr = statusError(status)
	} else {
		v, derr := decodeBody(r.responseType, r.newValue, resp.Body)
		if derr != nil {
			ferr = &Error{
				Kind:       KindDecode,
				Message:    "decode " + r.responseType.String() + " response",
				StatusCode: status,
				Err:        derr,
			}
		} else {
			value = v
		}
	}

	for _, f := range m.responseFilterSnapshot() {
		ferr = f.FilterResponse(r, ferr)
	}
	for _, f := range r.filters {
		ferr = f.FilterResponse(r, ferr)
	}

	if re := asRequestError(ferr, status); re != nil {
		return outcome{result: failed(re)}
	}
	return outcome{result: succeeded(value)}
}

// complete performs the terminal transition and notifies. Runs on the
// dispatcher goroutine. A request that was cancelled meanwhile is left as is.
func (m *Manager) complete(r *Request, out outcome) {
	r.mu.Lock()
	if r.state != StateStarted {
		r.mu.Unlock()
		return
	}
	switch {
	case out.cancelled:
		r.state = StateCancelled
		r.result = failed(&Error{Kind: KindCancelled, Message: "request cancelled"})
		r.response = nil
	case out.result.Ok():
		r.state = StateSucceeded
		r.result = out.result
	default:
		r.state = StateFailed
		r.result = out.result
	}
	if e := r.result.Failure(); e != nil {
		e.RequestID = r.id
	}
	cancel := r.cancel
	r.cancel = nil
	state := r.state
	elapsed := m.now().Sub(r.started)
	status := 0
	if r.response != nil {
		status = r.response.StatusCode
	}
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.unregister(r)

	attrs := []any{"id", r.id, "state", state.String(), "status", status, "elapsed", elapsed}
	if err := r.Err(); err != nil {
		attrs = append(attrs, "error", err.Error())
	}
	m.logger.Debug("request finished", attrs...)

	if state == StateSucceeded && m.syncCacheWrites {
		m.writeCache(r)
	}

	stopSequence(r.accessories, r, func() {
		var cb func(*Request)
		switch state {
		case StateSucceeded:
			cb = r.onSuccess
		case StateFailed:
			cb = r.onFailure
		case StateCancelled:
			cb = r.onCancelled
		}
		if cb != nil {
			cb(r)
		}
	})
	r.notifyTerminal()

	if state == StateSucceeded && !m.syncCacheWrites {
		m.writeCache(r)
	}
}

// cancel implements Request.Cancel and Manager.Cancel.
func (m *Manager) cancel(r *Request) {
	r.mu.Lock()
	prev := r.state
	if prev.Terminal() {
		r.mu.Unlock()
		return
	}
	r.state = StateCancelled
	r.result = failed(&Error{Kind: KindCancelled, Message: "request cancelled", RequestID: r.id})
	r.response = nil
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.unregister(r)
	m.logger.Debug("request cancelled", "id", r.id, "from", prev.String())

	m.dispatch(func() {
		notify := func() {
			if r.onCancelled != nil {
				r.onCancelled(r)
			}
		}
		if prev == StateStarted {
			stopSequence(r.accessories, r, notify)
		} else {
			notify()
		}
		r.notifyTerminal()
	})
}
