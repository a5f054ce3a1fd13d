package courier

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/courier/cache"
	"github.com/roach88/courier/transport"
)

// DefaultCacheDir is the cache directory used before cache-path filters.
const DefaultCacheDir = "responses"

// Manager owns the session, the dispatcher and the registry of outstanding
// requests, batches and chains.
//
// Thread-safety: all methods are safe for concurrent use.
type Manager struct {
	logger          *slog.Logger
	ids             IDGenerator
	now             func() time.Time
	afterFunc       AfterFunc
	cache           *cache.Cache
	coalesce        bool
	syncCacheWrites bool
	newTransport    func(transport.Config) transport.Transport

	session    atomic.Pointer[Session]
	dispatcher *dispatcher
	flights    *flightGroup
	writes     *cacheWriter
	closeOnce  sync.Once

	mu               sync.Mutex
	cacheDir         string
	urlFilters       []URLFilter
	cachePathFilters []CachePathFilter
	responseFilters  []ResponseFilter
	requests         map[string]*Request
	batches          map[string]*Batch
	chains           map[string]*Chain
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithIDGenerator sets the identity source. Defaults to UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(m *Manager) { m.ids = g }
}

// WithClock sets the time source used for request timing.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// AfterFunc schedules fn to run once d has elapsed. The returned stop
// function cancels it and reports whether fn was prevented from running.
type AfterFunc func(d time.Duration, fn func()) (stop func() bool)

// WithAfterFunc sets the timer source for chain intervals. Defaults to
// time.AfterFunc.
func WithAfterFunc(after AfterFunc) Option {
	return func(m *Manager) { m.afterFunc = after }
}

// WithCache enables response caching for requests with a cache policy.
func WithCache(c *cache.Cache) Option {
	return func(m *Manager) { m.cache = c }
}

// WithCacheDir sets the cache directory before cache-path filters.
func WithCacheDir(dir string) Option {
	return func(m *Manager) { m.cacheDir = dir }
}

// WithCoalescing lets identical in-flight GET and HEAD requests share one
// transport call.
func WithCoalescing() Option {
	return func(m *Manager) { m.coalesce = true }
}

// WithSynchronousCacheWrites writes the cache before success callbacks run
// instead of in the background.
func WithSynchronousCacheWrites() Option {
	return func(m *Manager) { m.syncCacheWrites = true }
}

// WithTransport makes every session use t instead of a net/http transport.
func WithTransport(t transport.Transport) Option {
	return func(m *Manager) {
		m.newTransport = func(transport.Config) transport.Transport { return t }
	}
}

// WithURLFilter appends URL filters.
func WithURLFilter(f ...URLFilter) Option {
	return func(m *Manager) { m.urlFilters = append(m.urlFilters, f...) }
}

// WithCachePathFilter appends cache-path filters.
func WithCachePathFilter(f ...CachePathFilter) Option {
	return func(m *Manager) { m.cachePathFilters = append(m.cachePathFilters, f...) }
}

// WithResponseFilter appends manager-level response filters, which run
// before each request's own filters.
func WithResponseFilter(f ...ResponseFilter) Option {
	return func(m *Manager) { m.responseFilters = append(m.responseFilters, f...) }
}

// New creates a Manager with an initial session built from cfg.
func New(cfg SessionConfig, opts ...Option) *Manager {
	m := &Manager{
		logger: slog.Default(),
		ids:    UUIDv7Generator{},
		now:    time.Now,
		afterFunc: func(d time.Duration, fn func()) func() bool {
			return time.AfterFunc(d, fn).Stop
		},
		cacheDir: DefaultCacheDir,
		newTransport: func(c transport.Config) transport.Transport {
			return transport.NewHTTP(c)
		},
		flights:  newFlightGroup(),
		writes:   newCacheWriter(),
		requests: make(map[string]*Request),
		batches:  make(map[string]*Batch),
		chains:   make(map[string]*Chain),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.dispatcher = newDispatcher(m.logger)
	m.session.Store(m.buildSession(cfg, 1))
	return m
}

func (m *Manager) buildSession(cfg SessionConfig, generation uint64) *Session {
	cfg = cfg.clone()
	return &Session{config: cfg, transport: m.newTransport(cfg.Transport), generation: generation}
}

// NewRequest builds an idle request bound to m.
func (m *Manager) NewRequest(method, path string, opts ...RequestOption) *Request {
	return newRequest(m, method, path, opts...)
}

// Session returns the current session snapshot.
func (m *Manager) Session() *Session {
	return m.session.Load()
}

// Configure installs a new session built from cfg. Requests already
// started keep the session they captured.
func (m *Manager) Configure(cfg SessionConfig) *Session {
	cfg = cfg.clone()
	t := m.newTransport(cfg.Transport)
	for {
		old := m.session.Load()
		next := &Session{config: cfg, transport: t, generation: old.generation + 1}
		if m.session.CompareAndSwap(old, next) {
			m.logger.Info("session configured", "generation", next.generation, "base_url", cfg.BaseURL)
			releaseIdle(old)
			return next
		}
	}
}

// ResetSession rebuilds the transport from the current configuration.
func (m *Manager) ResetSession() *Session {
	return m.Configure(m.Session().config)
}

// releaseIdle drops pooled connections of a replaced session. In-flight
// calls keep their connections.
func releaseIdle(s *Session) {
	if c, ok := s.transport.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}

// AddURLFilter appends a URL filter for requests started afterwards.
func (m *Manager) AddURLFilter(f URLFilter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.urlFilters = append(m.urlFilters, f)
}

// AddCachePathFilter appends a cache-path filter.
func (m *Manager) AddCachePathFilter(f CachePathFilter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cachePathFilters = append(m.cachePathFilters, f)
}

// AddResponseFilter appends a manager-level response filter.
func (m *Manager) AddResponseFilter(f ResponseFilter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responseFilters = append(m.responseFilters, f)
}

func (m *Manager) urlFilterSnapshot() []URLFilter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]URLFilter(nil), m.urlFilters...)
}

func (m *Manager) responseFilterSnapshot() []ResponseFilter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ResponseFilter(nil), m.responseFilters...)
}

// Cache returns the response cache, nil when caching is disabled.
func (m *Manager) Cache() *cache.Cache { return m.cache }

// Add assigns r an identity, registers it and starts it. Adding a request
// that was already submitted does nothing.
func (m *Manager) Add(r *Request) { m.start(r, false) }

// Cancel cancels r.
func (m *Manager) Cancel(r *Request) { m.cancel(r) }

// Request returns the outstanding request with the given id.
func (m *Manager) Request(id string) (*Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	return r, ok
}

// Outstanding returns the number of registered requests, batches and chains.
func (m *Manager) Outstanding() (requests, batches, chains int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests), len(m.batches), len(m.chains)
}

func (m *Manager) register(r *Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[r.id] = r
}

func (m *Manager) unregister(r *Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.requests[r.id] == r {
		delete(m.requests, r.id)
	}
}

// AddBatch registers b, assigning its identity if it has none.
func (m *Manager) AddBatch(b *Batch) {
	b.mu.Lock()
	if b.id == "" {
		b.id = m.ids.Generate()
	}
	id := b.id
	b.mu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[id] = b
}

// RemoveBatch unregisters b.
func (m *Manager) RemoveBatch(b *Batch) {
	id := b.ID()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.batches[id] == b {
		delete(m.batches, id)
	}
}

// AddChain registers c, assigning its identity if it has none.
func (m *Manager) AddChain(c *Chain) {
	c.mu.Lock()
	if c.id == "" {
		c.id = m.ids.Generate()
	}
	id := c.id
	c.mu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.chains[id] = c
}

// RemoveChain unregisters c.
func (m *Manager) RemoveChain(c *Chain) {
	id := c.ID()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chains[id] == c {
		delete(m.chains, id)
	}
}

// CancelAll stops every batch and chain, then cancels remaining requests.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	batches := make([]*Batch, 0, len(m.batches))
	for _, b := range m.batches {
		batches = append(batches, b)
	}
	chains := make([]*Chain, 0, len(m.chains))
	for _, c := range m.chains {
		chains = append(chains, c)
	}
	m.mu.Unlock()

	for _, b := range batches {
		b.Stop()
	}
	for _, c := range chains {
		c.Stop()
	}

	m.mu.Lock()
	requests := make([]*Request, 0, len(m.requests))
	for _, r := range m.requests {
		requests = append(requests, r)
	}
	m.mu.Unlock()

	for _, r := range requests {
		r.Cancel()
	}
}

// dispatch runs fn on the dispatcher, or inline once it has closed.
func (m *Manager) dispatch(fn func()) {
	if !m.dispatcher.Enqueue(fn) {
		fn()
	}
}

// Flush waits for background cache writes to finish. It may be called while
// requests are still completing.
func (m *Manager) Flush() {
	m.writes.Wait()
}

// Close cancels outstanding work, drains pending callbacks and waits for
// cache writes. Must not be called from a callback.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.CancelAll()
		m.dispatcher.Close()
		m.Flush()
		releaseIdle(m.Session())
	})
}
