package cache

import (
	"context"
	"errors"
	"path"
)

// ErrNotFound is returned by Store.Load when no entry exists at a location.
var ErrNotFound = errors.New("cache entry not found")

// Location addresses one entry: a directory (after cache-path filters) and a
// file name derived from the request shape.
type Location struct {
	Dir  string
	Name string
}

func (l Location) String() string {
	return path.Join(l.Dir, l.Name)
}

// Store persists metadata and blob pairs.
//
// Save must replace an existing entry atomically with respect to Load: a
// concurrent reader observes either the old pair or the new one, never a
// partial write.
type Store interface {
	Load(ctx context.Context, loc Location) (meta, blob []byte, err error)
	Save(ctx context.Context, loc Location, meta, blob []byte) error
	Remove(ctx context.Context, loc Location) error
	Purge(ctx context.Context) error
	Close() error
}
