package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/courier"
	"github.com/roach88/courier/cache"
	"github.com/roach88/courier/internal/config"
	"github.com/roach88/courier/internal/endpoint"
)

// client bundles what a command needs to issue requests.
type client struct {
	cfg       *config.Config
	mgr       *courier.Manager
	store     cache.Store
	catalogue *endpoint.Catalogue
	logger    *slog.Logger
	logs      io.Closer
	out       *OutputFormatter
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// openClient loads the config and builds a Manager from it. Errors are
// reported through the formatter and returned as ExitErrors.
func openClient(opts *RootOptions, cmd *cobra.Command) (*client, error) {
	out := newFormatter(opts, cmd)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, out.fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}

	logger, logs, err := config.NewLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, out.fail(ExitCommandError, ErrCodeConfig, "failed to set up logging", err)
	}

	c := &client{cfg: cfg, logger: logger, logs: logs, out: out}
	if cfg.Endpoints != "" {
		path := cfg.Endpoints
		if !filepath.IsAbs(path) && opts.Config != "" {
			path = filepath.Join(filepath.Dir(opts.Config), path)
		}
		if c.catalogue, err = endpoint.Load(path); err != nil {
			logs.Close()
			return nil, out.fail(ExitCommandError, ErrCodeCatalogue, "failed to load endpoint catalogue", err)
		}
		out.VerboseLog("Loaded %d endpoint(s) from %s", c.catalogue.Len(), path)
	}

	if c.store, err = cfg.OpenStore(); err != nil {
		logs.Close()
		return nil, out.fail(ExitCommandError, ErrCodeConfig, "failed to open cache", err)
	}

	mopts := cfg.ManagerOptions(c.store, logger)
	if opts.Transport != nil {
		mopts = append(mopts, courier.WithTransport(opts.Transport))
	}
	c.mgr = courier.New(cfg.SessionConfig(), mopts...)
	return c, nil
}

// Close drains the manager and releases the cache and log file.
func (c *client) Close() {
	c.mgr.Close()
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.out.VerboseLog("closing cache: %v", err)
		}
	}
	c.logs.Close()
}

func (c *client) endpoint(name string) (*endpoint.Endpoint, error) {
	if c.catalogue == nil {
		return nil, fmt.Errorf("endpoint @%s: no endpoint catalogue configured", name)
	}
	ep, ok := c.catalogue.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown endpoint @%s", name)
	}
	return ep, nil
}

// run executes r and waits for it. bypassCache skips cached responses.
// Cancelling ctx cancels r.
func (c *client) run(ctx context.Context, r *courier.Request, bypassCache bool) {
	if !bypassCache {
		if err := c.mgr.SyncRequest(ctx, r, nil, nil); err != nil {
			c.out.VerboseLog("request %s: %v", r.ID(), err)
		}
		return
	}
	r.StartWithoutCache()
	select {
	case <-r.Done():
	case <-ctx.Done():
		r.Cancel()
		<-r.Done()
	}
}
