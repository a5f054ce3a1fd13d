package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/courier"
	"github.com/roach88/courier/internal/config"
)

// PollOptions holds flags for the poll command.
type PollOptions struct {
	*RootOptions
	requestFlags
	Every time.Duration
	Count int
}

// NewPollCommand creates the poll command.
func NewPollCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PollOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "poll <path|url|@endpoint>",
		Short: "Fetch a target repeatedly",
		Long: `Fetch a target on a fixed interval and print one line per attempt.

When --config is given the file is watched; edits take effect on the
next attempt without restarting. Failed attempts are reported and
polling continues.

Examples:
  courier poll status --every 5s
  courier poll @feed --var user=42 --ttl 1m --count 10`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPoll(opts, args[0], cmd)
		},
	}
	opts.register(cmd)
	cmd.Flags().DurationVar(&opts.Every, "every", 10*time.Second, "interval between attempts")
	cmd.Flags().IntVarP(&opts.Count, "count", "n", 0, "stop after this many attempts (0 polls until interrupted)")

	return cmd
}

func runPoll(opts *PollOptions, target string, cmd *cobra.Command) error {
	if opts.Every <= 0 {
		return newFormatter(opts.RootOptions, cmd).fail(ExitCommandError, ErrCodeBadArgument, "--every must be positive", nil)
	}
	c, err := openClient(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	watchDone := make(chan struct{})
	defer func() {
		cancel()
		<-watchDone
	}()

	if opts.Config != "" {
		go func() {
			defer close(watchDone)
			err := config.Watch(ctx, opts.Config, c.logger, func(cfg *config.Config) {
				s := c.mgr.Configure(cfg.SessionConfig())
				c.out.VerboseLog("session reconfigured (generation %d)", s.Generation())
			})
			if err != nil {
				c.logger.Warn("config watch stopped", "error", err)
			}
		}()
	} else {
		close(watchDone)
	}

	ticker := time.NewTicker(opts.Every)
	defer ticker.Stop()

	enc := json.NewEncoder(c.out.Writer)
	failures := 0
	for attempt := 1; ; attempt++ {
		r, err := opts.build(c, target)
		if err != nil {
			return c.out.fail(ExitCommandError, ErrCodeBadArgument, "invalid request", err)
		}
		c.run(ctx, r, opts.NoCache)
		if ctx.Err() != nil {
			break
		}

		view := viewOf(target, r, false)
		if view.State != courier.StateSucceeded.String() {
			failures++
		}
		if c.out.Format == "json" {
			if err := enc.Encode(view); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(c.out.Writer, "#%d %s\n", attempt, view.line())
		}

		if opts.Count > 0 && attempt >= opts.Count {
			break
		}
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			break
		}
	}

	if failures > 0 && opts.Count > 0 && failures == opts.Count {
		return NewExitError(ExitFailure, "every attempt failed")
	}
	return nil
}
