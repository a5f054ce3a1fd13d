package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "courier.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base_url: https://one.test\n"), 0o644))

	var (
		mu   sync.Mutex
		seen []string
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	ready := make(chan struct{})
	go func() {
		close(ready)
		done <- Watch(ctx, path, slog.New(slog.NewTextHandler(io.Discard, nil)), func(c *Config) {
			mu.Lock()
			seen = append(seen, c.BaseURL)
			mu.Unlock()
		})
	}()
	<-ready

	// The watcher registers asynchronously; keep rewriting until a reload lands.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("base_url: https://two.test\n"), 0o644)
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0
	}, 5*time.Second, 200*time.Millisecond)

	mu.Lock()
	assert.Equal(t, "https://two.test", seen[len(seen)-1])
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatch_SkipsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "courier.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base_url: https://one.test\n"), 0o644))

	var (
		mu    sync.Mutex
		calls int
	)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		time.Sleep(200 * time.Millisecond)
		_ = os.WriteFile(path, []byte("base_url: not a url\n"), 0o644)
	}()
	err := Watch(ctx, path, slog.New(slog.NewTextHandler(io.Discard, nil)), func(*Config) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, calls)
}

func TestWatch_MissingDirectory(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "gone", "courier.yaml"), slog.Default(), func(*Config) {})
	assert.Error(t, err)
}
