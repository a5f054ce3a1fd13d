package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Entry is a stored record and its blob.
type Entry struct {
	Record Record
	Blob   []byte
}

// Cache validates and writes entries in a Store.
type Cache struct {
	store      Store
	appVersion string
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithAppVersion sets the application version recorded on every write and
// compared when a policy sets InvalidateOnAppUpdate.
func WithAppVersion(v string) Option {
	return func(c *Cache) {
		c.appVersion = v
	}
}

// WithClock overrides the wall clock used for expiry and creation times.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithLogger sets the logger used to report degraded reads and failed writes.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = l
	}
}

// New creates a Cache on top of store.
func New(store Store, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AppVersion returns the configured application version.
func (c *Cache) AppVersion() string { return c.appVersion }

// Now returns the cache's notion of the current time.
func (c *Cache) Now() time.Time { return c.now() }

// Store returns the underlying store.
func (c *Cache) Store() Store { return c.store }

// Lookup reads the entry at loc and validates it against p.
//
// Read and decode failures are logged and reported as ReasonCorruptRecord;
// Lookup never returns an error. Entry is populated only on a hit.
func (c *Cache) Lookup(ctx context.Context, loc Location, p Policy) (Entry, Verdict) {
	meta, blob, err := c.store.Load(ctx, loc)
	if errors.Is(err, ErrNotFound) {
		return Entry{}, Miss(ReasonNoRecord)
	}
	if err != nil {
		c.logger.Warn("cache read failed", "location", loc.String(), "error", err)
		return Entry{}, Miss(ReasonCorruptRecord)
	}

	rec, err := UnmarshalRecord(meta)
	if err != nil {
		c.logger.Warn("cache metadata unreadable", "location", loc.String(), "error", err)
		return Entry{}, Miss(ReasonCorruptRecord)
	}

	verdict := Validate(p, &rec, c.appVersion, c.now())
	if !verdict.Hit {
		c.logger.Debug("cache miss", "location", loc.String(), "reason", verdict.Reason)
		return Entry{}, verdict
	}
	return Entry{Record: rec, Blob: blob}, verdict
}

// Write stores blob at loc with a fresh record for p.
func (c *Cache) Write(ctx context.Context, loc Location, p Policy, blob []byte) error {
	meta, err := MarshalRecord(NewRecord(p, c.appVersion, c.now()))
	if err != nil {
		return err
	}
	return c.store.Save(ctx, loc, meta, blob)
}

// Inspect returns the raw entry at loc without validating it.
func (c *Cache) Inspect(ctx context.Context, loc Location) (*Entry, error) {
	meta, blob, err := c.store.Load(ctx, loc)
	if err != nil {
		return nil, err
	}
	rec, err := UnmarshalRecord(meta)
	if err != nil {
		return nil, err
	}
	return &Entry{Record: rec, Blob: blob}, nil
}

// Remove deletes the entry at loc.
func (c *Cache) Remove(ctx context.Context, loc Location) error {
	return c.store.Remove(ctx, loc)
}

// Purge deletes every entry.
func (c *Cache) Purge(ctx context.Context) error {
	return c.store.Purge(ctx)
}
