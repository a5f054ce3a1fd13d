package courier

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/courier/cache"
	"github.com/roach88/courier/transport"
)

// cacheLocation computes where r's response is cached: the manager's cache
// directory passed through the cache-path filters, plus a content key.
func (m *Manager) cacheLocation(r *Request, s *Session) (cache.Location, error) {
	m.mu.Lock()
	dir := m.cacheDir
	filters := append([]CachePathFilter(nil), m.cachePathFilters...)
	m.mu.Unlock()

	for _, f := range filters {
		dir = f.FilterCacheDirPath(dir, r)
	}
	key, err := cache.Key(r.method, baseFor(s.config, r), r.path, r.params)
	if err != nil {
		return cache.Location{}, fmt.Errorf("cache key: %w", err)
	}
	return cache.Location{Dir: dir, Name: key}, nil
}

// CacheLocation returns where r's response is or would be cached under the
// current session.
func (m *Manager) CacheLocation(r *Request) (cache.Location, error) {
	return m.cacheLocation(r, m.Session())
}

// serveFromCache completes r from a valid cache entry. It reports whether r
// needs no network call: either it was served, or it was cancelled while
// the cache was consulted.
func (m *Manager) serveFromCache(r *Request) bool {
	if m.cache == nil || r.policy == nil || !r.policy.UseCacheResponse {
		return false
	}

	loc, err := m.cacheLocation(r, r.session)
	if err != nil {
		m.logger.Warn("cache lookup skipped", "id", r.id, "error", err)
		return false
	}
	entry, verdict := m.cache.Lookup(context.Background(), loc, *r.policy)
	if !verdict.Hit {
		m.logger.Debug("cache miss", "id", r.id, "location", loc.String(), "reason", string(verdict.Reason))
		return false
	}

	value, err := decodeBody(r.responseType, r.newValue, entry.Blob)
	if err != nil {
		m.logger.Warn("cached body does not decode; treating as corrupt",
			"id", r.id,
			"location", loc.String(),
			"reason", string(cache.ReasonCorruptRecord),
			"error", err)
		return false
	}

	r.mu.Lock()
	if r.state != StateIdle {
		r.mu.Unlock()
		return true
	}
	r.state = StateSucceeded
	r.result = succeeded(value)
	r.fromCache = true
	r.response = &transport.Response{Body: entry.Blob}
	r.mu.Unlock()

	m.logger.Debug("cache hit", "id", r.id, "location", loc.String())
	if r.onSuccess != nil {
		r.onSuccess(r)
	}
	r.notifyTerminal()
	return true
}

// writeCache persists a network response for a request with a cache policy.
// Failures are logged; they never affect the request outcome. Background
// writes land in completion order.
func (m *Manager) writeCache(r *Request) {
	if m.cache == nil || r.policy == nil {
		return
	}
	loc, err := m.cacheLocation(r, r.session)
	if err != nil {
		m.logger.Warn("cache write skipped", "id", r.id, "error", err)
		return
	}
	policy := *r.policy
	blob := r.ResponseBytes()

	write := func() {
		if err := m.cache.Write(context.Background(), loc, policy, blob); err != nil {
			m.logger.Warn("cache write failed", "id", r.id, "location", loc.String(), "error", err)
			return
		}
		m.logger.Debug("cache written", "id", r.id, "location", loc.String(), "bytes", len(blob))
	}

	if m.syncCacheWrites {
		write()
		return
	}
	m.writes.Enqueue(write)
}

// InspectCache returns the cache entry for r and whether it would be served.
func (m *Manager) InspectCache(ctx context.Context, r *Request) (*cache.Entry, cache.Verdict, error) {
	if m.cache == nil {
		return nil, cache.Miss(cache.ReasonNoRecord), errors.New("manager has no cache")
	}
	loc, err := m.CacheLocation(r)
	if err != nil {
		return nil, cache.Verdict{}, err
	}
	entry, err := m.cache.Inspect(ctx, loc)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, cache.Miss(cache.ReasonNoRecord), nil
	}
	if err != nil {
		return nil, cache.Verdict{}, err
	}
	policy, _ := r.CachePolicy()
	return entry, cache.Validate(policy, &entry.Record, m.cache.AppVersion(), m.cache.Now()), nil
}
