package courier

import (
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/roach88/courier/cache"
	"github.com/roach88/courier/transport"
)

// Request is a single HTTP request with a lifecycle.
//
// Build-time fields are set by RequestOptions and never change afterwards.
// Lifecycle fields are written only by the state machine and read through
// accessors, which are safe for concurrent use.
type Request struct {
	mgr *Manager

	method       string
	path         string
	params       map[string]any
	header       http.Header
	encoding     BodyEncoding
	rawBody      []byte
	rawType      string
	responseType ResponseType
	newValue     func() any
	useCDN       bool
	baseURL      string
	timeout      time.Duration
	statusOK     func(int) bool
	accessories  []Accessory
	filters      []ResponseFilter
	policy       *cache.Policy
	onSuccess    func(*Request)
	onFailure    func(*Request)
	onCancelled  func(*Request)

	mu        sync.Mutex
	id        string
	state     State
	session   *Session
	url       string
	cancel    func()
	response  *transport.Response
	result    Result
	fromCache bool
	started   time.Time
	notified  bool
	hooks     []func(*Request)
	done      chan struct{}
}

// RequestOption configures a Request at construction.
type RequestOption func(*Request)

// WithParams sets request parameters. They go to the query string for GET,
// HEAD and DELETE, and to the body otherwise.
func WithParams(params map[string]any) RequestOption {
	return func(r *Request) { r.params = maps.Clone(params) }
}

// WithHeader adds a header value.
func WithHeader(key, value string) RequestOption {
	return func(r *Request) { r.header.Add(key, value) }
}

// WithBodyEncoding selects form (default) or JSON encoding for the body.
func WithBodyEncoding(enc BodyEncoding) RequestOption {
	return func(r *Request) { r.encoding = enc }
}

// WithRawBody sends body verbatim with the given content type.
func WithRawBody(contentType string, body []byte) RequestOption {
	return func(r *Request) {
		r.encoding = BodyRaw
		r.rawType = contentType
		r.rawBody = append([]byte(nil), body...)
	}
}

// WithResponseType selects how the response body is decoded.
func WithResponseType(t ResponseType) RequestOption {
	return func(r *Request) { r.responseType = t }
}

// Schema decodes JSON or XML responses into a new *T.
func Schema[T any]() RequestOption {
	return func(r *Request) { r.newValue = func() any { return new(T) } }
}

// UseCDN resolves the path against the session's CDN URL.
func UseCDN() RequestOption {
	return func(r *Request) { r.useCDN = true }
}

// WithBaseURL resolves the path against base instead of the session's.
func WithBaseURL(base string) RequestOption {
	return func(r *Request) { r.baseURL = base }
}

// WithTimeout bounds the request's transport call. Expiry is a NetworkError.
func WithTimeout(d time.Duration) RequestOption {
	return func(r *Request) { r.timeout = d }
}

// WithStatusValidator replaces the default 2xx status check.
func WithStatusValidator(ok func(code int) bool) RequestOption {
	return func(r *Request) { r.statusOK = ok }
}

// WithAccessory appends an accessory.
func WithAccessory(a Accessory) RequestOption {
	return func(r *Request) { r.accessories = append(r.accessories, a) }
}

// WithResponseFilter appends a response filter run after the manager's.
func WithResponseFilter(f ResponseFilter) RequestOption {
	return func(r *Request) { r.filters = append(r.filters, f) }
}

// WithCachePolicy attaches a cache policy, making this a caching request.
func WithCachePolicy(p cache.Policy) RequestOption {
	return func(r *Request) { r.policy = &p }
}

// OnSuccess sets the success callback.
func OnSuccess(fn func(*Request)) RequestOption {
	return func(r *Request) { r.onSuccess = fn }
}

// OnFailure sets the failure callback.
func OnFailure(fn func(*Request)) RequestOption {
	return func(r *Request) { r.onFailure = fn }
}

// OnCancelled sets the cancellation callback.
func OnCancelled(fn func(*Request)) RequestOption {
	return func(r *Request) { r.onCancelled = fn }
}

func newRequest(m *Manager, method, path string, opts ...RequestOption) *Request {
	r := &Request{
		mgr:      m,
		method:   method,
		path:     path,
		header:   http.Header{},
		statusOK: defaultStatusOK,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start submits the request. A cache hit completes before Start returns.
// Start on a request that is not idle does nothing.
func (r *Request) Start() { r.mgr.start(r, false) }

// StartWithoutCache submits the request without consulting the cache. A
// successful response is still written to the cache.
func (r *Request) StartWithoutCache() { r.mgr.start(r, true) }

// ID returns the identity assigned at submission, "" before.
func (r *Request) ID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id
}

// State returns the current lifecycle state.
func (r *Request) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Method returns the HTTP method.
func (r *Request) Method() string { return r.method }

// Path returns the path or absolute URL the request was built with.
func (r *Request) Path() string { return r.path }

// Params returns a copy of the request parameters.
func (r *Request) Params() map[string]any { return maps.Clone(r.params) }

// CachePolicy returns the cache policy, if any.
func (r *Request) CachePolicy() (cache.Policy, bool) {
	if r.policy == nil {
		return cache.Policy{}, false
	}
	return *r.policy, true
}

// URL returns the composed URL once the request has started.
func (r *Request) URL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.url
}

// StatusCode returns the HTTP status, 0 without a network response.
func (r *Request) StatusCode() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.response == nil {
		return 0
	}
	return r.response.StatusCode
}

// ResponseHeader returns the response headers.
func (r *Request) ResponseHeader() http.Header {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.response == nil {
		return nil
	}
	return r.response.Header.Clone()
}

// ResponseBytes returns the raw body, from the network or the cache.
func (r *Request) ResponseBytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.response == nil {
		return nil
	}
	return r.response.Body
}

// Result returns the terminal outcome; the zero Result until then.
func (r *Request) Result() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// Value returns the decoded response of a succeeded request.
func (r *Request) Value() any { return r.Result().Value() }

// Err returns the failure of a failed or cancelled request.
func (r *Request) Err() error { return r.Result().Err() }

// IsDataFromCache reports whether the value was served from the cache.
func (r *Request) IsDataFromCache() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fromCache
}

// Done is closed once the request is terminal and its callbacks have run.
func (r *Request) Done() <-chan struct{} { return r.done }

// Cancel stops the request. An idle request becomes cancelled without any
// network call; a started one has its transport call cancelled and any late
// response discarded. Terminal requests are unaffected.
func (r *Request) Cancel() { r.mgr.cancel(r) }

// onTerminal registers fn to run after the request's callbacks. If the
// request has already notified, fn runs immediately.
func (r *Request) onTerminal(fn func(*Request)) {
	r.mu.Lock()
	if r.notified {
		r.mu.Unlock()
		fn(r)
		return
	}
	r.hooks = append(r.hooks, fn)
	r.mu.Unlock()
}

// notifyTerminal runs terminal hooks and releases Done waiters.
func (r *Request) notifyTerminal() {
	r.mu.Lock()
	if r.notified {
		r.mu.Unlock()
		return
	}
	r.notified = true
	hooks := r.hooks
	r.hooks = nil
	r.mu.Unlock()

	for _, h := range hooks {
		h(r)
	}
	close(r.done)
}
