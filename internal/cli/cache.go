package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// CacheInspectResult describes one cache entry.
type CacheInspectResult struct {
	Target     string `json:"target"`
	Location   string `json:"location"`
	Verdict    string `json:"verdict"`
	Hit        bool   `json:"hit"`
	Reason     string `json:"reason,omitempty"`
	Present    bool   `json:"present"`
	Version    int64  `json:"version,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
	AppVersion string `json:"app_version,omitempty"`
	Size       int    `json:"size,omitempty"`
}

// NewCacheCommand creates the cache command group.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or purge the response cache",
	}
	cmd.AddCommand(newCacheInspectCommand(rootOpts))
	cmd.AddCommand(newCachePurgeCommand(rootOpts))
	return cmd
}

// CacheInspectOptions holds flags for cache inspect.
type CacheInspectOptions struct {
	*RootOptions
	requestFlags
}

func newCacheInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CacheInspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect <path|url|@endpoint>",
		Short: "Show the cache entry a request would use",
		Long: `Show where a request's response is cached and whether the entry
would be served under the request's cache policy (--ttl, --cache-version
or the endpoint's cache block).

Examples:
  courier cache inspect @feed --var user=42
  courier cache inspect users/42 --ttl 30s`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheInspect(opts, args[0], cmd)
		},
	}
	opts.register(cmd)
	return cmd
}

func runCacheInspect(opts *CacheInspectOptions, target string, cmd *cobra.Command) error {
	c, err := openClient(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	if c.mgr.Cache() == nil {
		return c.out.fail(ExitCommandError, ErrCodeNoCache, "caching is disabled (cache.backend: none)", nil)
	}
	r, err := opts.build(c, target)
	if err != nil {
		return c.out.fail(ExitCommandError, ErrCodeBadArgument, "invalid request", err)
	}
	loc, err := c.mgr.CacheLocation(r)
	if err != nil {
		return c.out.fail(ExitCommandError, ErrCodeGeneric, "failed to locate cache entry", err)
	}
	entry, verdict, err := c.mgr.InspectCache(cmd.Context(), r)
	if err != nil {
		return c.out.fail(ExitFailure, ErrCodeGeneric, "failed to read cache entry", err)
	}

	result := CacheInspectResult{
		Target:   target,
		Location: loc.String(),
		Verdict:  verdict.String(),
		Hit:      verdict.Hit,
		Reason:   string(verdict.Reason),
		Present:  entry != nil,
	}
	if entry != nil {
		result.Version = entry.Record.Version
		result.CreatedAt = entry.Record.Created().UTC().Format(time.RFC3339)
		result.AppVersion = entry.Record.AppVersion
		result.Size = len(entry.Blob)
	}

	if c.out.Format == "json" {
		return c.out.Success(result)
	}
	w := c.out.Writer
	fmt.Fprintf(w, "Location: %s\n", result.Location)
	if result.Hit {
		fmt.Fprintf(w, "Verdict:  %s\n", color.GreenString(result.Verdict))
	} else {
		fmt.Fprintf(w, "Verdict:  %s\n", color.YellowString(result.Verdict))
	}
	if result.Present {
		fmt.Fprintf(w, "Created:  %s\n", result.CreatedAt)
		fmt.Fprintf(w, "Version:  %d\n", result.Version)
		fmt.Fprintf(w, "App:      %s\n", result.AppVersion)
		fmt.Fprintf(w, "Size:     %d bytes\n", result.Size)
	}
	return nil
}

func newCachePurgeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "purge",
		Short:         "Remove every cached response",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openClient(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			if c.mgr.Cache() == nil {
				return c.out.fail(ExitCommandError, ErrCodeNoCache, "caching is disabled (cache.backend: none)", nil)
			}
			if err := c.mgr.Cache().Purge(cmd.Context()); err != nil {
				return c.out.fail(ExitFailure, ErrCodeGeneric, "failed to purge cache", err)
			}
			if c.out.Format == "json" {
				return c.out.Success(map[string]bool{"purged": true})
			}
			fmt.Fprintln(c.out.Writer, color.GreenString("✓ ")+"Cache purged")
			return nil
		},
	}
}
