package cache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type storeFactory struct {
	name string
	open func(t *testing.T) Store
}

func storeFactories() []storeFactory {
	return []storeFactory{
		{"dir", func(t *testing.T) Store {
			s, err := NewDirStore(t.TempDir())
			require.NoError(t, err)
			return s
		}},
		{"sqlite", func(t *testing.T) Store {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "cache.db"))
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		}},
	}
}

func TestCache_WriteThenLookupHits(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			now := baseTime
			c := New(f.open(t),
				WithAppVersion("1.0.0"),
				WithClock(func() time.Time { return now }),
				WithLogger(quietLogger()),
			)
			ctx := context.Background()
			loc := Location{Dir: "responses", Name: "abc"}
			p := Policy{UseCacheResponse: true, TTL: time.Minute, Version: 1}

			require.NoError(t, c.Write(ctx, loc, p, []byte(`{"id":1}`)))

			entry, v := c.Lookup(ctx, loc, p)
			assert.True(t, v.Hit)
			assert.Equal(t, []byte(`{"id":1}`), entry.Blob)
			assert.Equal(t, baseTime.Unix(), entry.Record.CreatedAt)
			assert.Equal(t, "1.0.0", entry.Record.AppVersion)

			now = baseTime.Add(61 * time.Second)
			_, v = c.Lookup(ctx, loc, p)
			assert.Equal(t, Miss(ReasonExpired), v)
		})
	}
}

func TestCache_LookupMissingEntry(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			c := New(f.open(t), WithLogger(quietLogger()))
			_, v := c.Lookup(context.Background(), Location{Dir: "x", Name: "nope"}, Policy{TTL: time.Minute})
			assert.Equal(t, Miss(ReasonNoRecord), v)
		})
	}
}

func TestCache_CorruptMetadataDegradesToMiss(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			store := f.open(t)
			c := New(store, WithLogger(quietLogger()))
			ctx := context.Background()
			loc := Location{Dir: "responses", Name: "bad"}

			require.NoError(t, store.Save(ctx, loc, []byte("garbage"), []byte("blob")))

			_, v := c.Lookup(ctx, loc, Policy{TTL: time.Minute})
			assert.Equal(t, Miss(ReasonCorruptRecord), v)
		})
	}
}

func TestCache_OverwriteReplacesEntry(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			c := New(f.open(t), WithLogger(quietLogger()))
			ctx := context.Background()
			loc := Location{Dir: "responses", Name: "k"}

			require.NoError(t, c.Write(ctx, loc, Policy{Version: 1}, []byte("one")))
			require.NoError(t, c.Write(ctx, loc, Policy{Version: 2}, []byte("two")))

			entry, err := c.Inspect(ctx, loc)
			require.NoError(t, err)
			assert.Equal(t, int64(2), entry.Record.Version)
			assert.Equal(t, []byte("two"), entry.Blob)
		})
	}
}

func TestCache_RemoveAndPurge(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			c := New(f.open(t), WithLogger(quietLogger()))
			ctx := context.Background()
			a := Location{Dir: "d", Name: "a"}
			b := Location{Dir: "d/user-1", Name: "b"}
			p := Policy{TTL: time.Minute}

			require.NoError(t, c.Write(ctx, a, p, []byte("a")))
			require.NoError(t, c.Write(ctx, b, p, []byte("b")))

			require.NoError(t, c.Remove(ctx, a))
			_, err := c.Inspect(ctx, a)
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, c.Purge(ctx))
			_, err = c.Inspect(ctx, b)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestDirStore_Layout(t *testing.T) {
	root := t.TempDir()
	s, err := NewDirStore(root)
	require.NoError(t, err)

	loc := Location{Dir: "responses/user-7", Name: "key"}
	require.NoError(t, s.Save(context.Background(), loc, []byte(`{}`), []byte("body")))

	dir := filepath.Join(root, "responses", "user-7")
	blob, err := os.ReadFile(filepath.Join(dir, blobName("key", []byte(`{}`))))
	require.NoError(t, err)
	assert.Equal(t, "body", string(blob))

	meta, err := os.ReadFile(filepath.Join(dir, "key.meta"))
	require.NoError(t, err)
	assert.Equal(t, "{}", string(meta))

	leftovers, err := filepath.Glob(filepath.Join(dir, "*.tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestDirStore_ReplaceDropsPreviousBlob(t *testing.T) {
	root := t.TempDir()
	s, err := NewDirStore(root)
	require.NoError(t, err)
	ctx := context.Background()
	loc := Location{Dir: "r", Name: "k"}

	require.NoError(t, s.Save(ctx, loc, []byte(`{"version":1}`), []byte("one")))
	require.NoError(t, s.Save(ctx, loc, []byte(`{"version":2}`), []byte("two")))

	entries, err := os.ReadDir(filepath.Join(root, "r"))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"k.meta", blobName("k", []byte(`{"version":2}`))}, names)

	meta, blob, err := s.Load(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, `{"version":2}`, string(meta))
	assert.Equal(t, "two", string(blob))
}

func TestDirStore_InterruptedSaveKeepsPreviousEntry(t *testing.T) {
	root := t.TempDir()
	s, err := NewDirStore(root)
	require.NoError(t, err)
	ctx := context.Background()
	loc := Location{Dir: "r", Name: "k"}

	require.NoError(t, s.Save(ctx, loc, []byte(`{"version":1}`), []byte("one")))
	// A save that stopped after its blob rename: the new blob exists, the
	// record is still the old one.
	orphan := filepath.Join(root, "r", blobName("k", []byte(`{"version":2}`)))
	require.NoError(t, os.WriteFile(orphan, []byte("two"), 0o644))

	meta, blob, err := s.Load(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, `{"version":1}`, string(meta))
	assert.Equal(t, "one", string(blob))

	// The next save clears the orphan.
	require.NoError(t, s.Save(ctx, loc, []byte(`{"version":3}`), []byte("three")))
	assert.NoFileExists(t, orphan)
}

func TestDirStore_MissingBlobIsNotNotFound(t *testing.T) {
	root := t.TempDir()
	s, err := NewDirStore(root)
	require.NoError(t, err)
	ctx := context.Background()
	loc := Location{Dir: "r", Name: "k"}

	require.NoError(t, s.Save(ctx, loc, []byte(`{}`), []byte("body")))
	require.NoError(t, os.Remove(filepath.Join(root, "r", blobName("k", []byte(`{}`)))))

	_, _, err = s.Load(ctx, loc)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	c := New(s, WithLogger(quietLogger()))
	_, v := c.Lookup(ctx, loc, Policy{TTL: time.Minute})
	assert.Equal(t, Miss(ReasonCorruptRecord), v)
}

func TestDirStore_RemoveDeletesBothFiles(t *testing.T) {
	root := t.TempDir()
	s, err := NewDirStore(root)
	require.NoError(t, err)
	ctx := context.Background()
	loc := Location{Dir: "r", Name: "k"}

	require.NoError(t, s.Save(ctx, loc, []byte(`{}`), []byte("body")))
	require.NoError(t, s.Remove(ctx, loc))
	require.NoError(t, s.Remove(ctx, loc))

	entries, err := os.ReadDir(filepath.Join(root, "r"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// Writers alternate record versions with matching blobs; a reader must
// never see a record paired with another write's blob.
func TestStore_ConcurrentWritesNeverMixEntries(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			store := f.open(t)
			c := New(store, WithLogger(quietLogger()))
			ctx := context.Background()
			loc := Location{Dir: "responses", Name: "shared"}

			var wg sync.WaitGroup
			stop := make(chan struct{})
			var torn, reads atomic.Int64

			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					select {
					case <-stop:
						return
					default:
					}
					meta, blob, err := store.Load(ctx, loc)
					if err != nil {
						continue
					}
					reads.Add(1)
					rec, err := UnmarshalRecord(meta)
					if err != nil || fmt.Sprintf("v%d", rec.Version) != string(blob) {
						torn.Add(1)
					}
				}
			}()

			var writers sync.WaitGroup
			for w := 1; w <= 2; w++ {
				writers.Add(1)
				go func() {
					defer writers.Done()
					for i := 0; i < 300; i++ {
						v := int64(w + 2*(i%2))
						assert.NoError(t, c.Write(ctx, loc, Policy{Version: v}, []byte(fmt.Sprintf("v%d", v))))
					}
				}()
			}
			writers.Wait()
			close(stop)
			wg.Wait()

			assert.Zero(t, torn.Load(), "mismatched pairs in %d reads", reads.Load())

			entry, err := c.Inspect(ctx, loc)
			require.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("v%d", entry.Record.Version), string(entry.Blob))
		})
	}
}

func TestDirStore_RejectsEscapingLocations(t *testing.T) {
	s, err := NewDirStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	assert.Error(t, s.Save(ctx, Location{Dir: "../outside", Name: "k"}, nil, nil))
	assert.Error(t, s.Save(ctx, Location{Dir: "ok", Name: "a/b"}, nil, nil))
	assert.Error(t, s.Save(ctx, Location{Dir: "ok", Name: ""}, nil, nil))
}

func TestOpenSQLite_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	for i := 0; i < 3; i++ {
		s, err := OpenSQLite(path)
		require.NoError(t, err, "iteration %d", i)

		var indexes int
		require.NoError(t, s.db.QueryRow(
			`SELECT count(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_cache_entries_updated'`,
		).Scan(&indexes))
		assert.Equal(t, 1, indexes)
		require.NoError(t, s.Close())
	}
}

func TestKey_StableAndDistinct(t *testing.T) {
	k1, err := Key("get", "https://api.example.com", "/users", map[string]any{"page": 1, "q": "go"})
	require.NoError(t, err)
	k2, err := Key("GET", "https://api.example.com", "/users", map[string]any{"q": "go", "page": 1})
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	k3, err := Key("GET", "https://api.example.com", "/users", map[string]any{"page": 2, "q": "go"})
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)

	k4, err := Key("POST", "https://api.example.com", "/users", map[string]any{"page": 1, "q": "go"})
	require.NoError(t, err)
	assert.NotEqual(t, k1, k4)
}
