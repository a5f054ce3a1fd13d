package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/courier"
)

// UnitResult is the printable outcome of a batch or chain.
type UnitResult struct {
	Kind          string        `json:"kind"`
	ID            string        `json:"id"`
	State         string        `json:"state"`
	FailedRequest string        `json:"failed_request,omitempty"`
	Requests      []RequestView `json:"requests"`
}

// BatchOptions holds flags for the batch command.
type BatchOptions struct {
	*RootOptions
	requestFlags
	ContinueOnFailure bool
}

// NewBatchCommand creates the batch command.
func NewBatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "batch <target>...",
		Short: "Run requests in parallel as one batch",
		Long: `Run every target concurrently as a batch.

By default the first failure cancels the remaining requests and fails
the batch. With --continue-on-failure the batch waits for every request
and succeeds once all have finished.

Examples:
  courier batch users/1 users/2 users/3
  courier batch @feed @profile --var user=42 --continue-on-failure`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(opts, args, cmd)
		},
	}
	opts.register(cmd)
	cmd.Flags().BoolVar(&opts.ContinueOnFailure, "continue-on-failure", false, "keep going after a request fails")

	return cmd
}

func runBatch(opts *BatchOptions, targets []string, cmd *cobra.Command) error {
	c, err := openClient(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	reqs := make([]*courier.Request, 0, len(targets))
	for _, t := range targets {
		r, err := opts.build(c, t)
		if err != nil {
			return c.out.fail(ExitCommandError, ErrCodeBadArgument, "invalid request", err)
		}
		reqs = append(reqs, r)
	}

	b := c.mgr.NewBatch(reqs, courier.BatchStopOnFailure(!opts.ContinueOnFailure))
	if err := c.mgr.SyncBatch(cmd.Context(), b, nil, nil); err != nil {
		c.out.VerboseLog("batch %s: %v", b.ID(), err)
	}

	result := UnitResult{Kind: "batch", ID: b.ID(), State: b.State().String()}
	for i, r := range reqs {
		result.Requests = append(result.Requests, viewOf(targets[i], r, false))
		if r == b.FailedRequest() {
			result.FailedRequest = targets[i]
		}
	}
	return reportUnit(c.out, result)
}

// ChainOptions holds flags for the chain command.
type ChainOptions struct {
	*RootOptions
	requestFlags
	ContinueOnFailure bool
	StopOnSuccess     bool
	Interval          time.Duration
}

// NewChainCommand creates the chain command.
func NewChainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ChainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "chain <target>...",
		Short: "Run requests one after another as a chain",
		Long: `Run the targets strictly in order as a chain.

By default a failing step ends the chain. --stop-on-success turns the
chain into a failover list: the first success ends it, and running out
of steps fails it.

Examples:
  courier chain login profile settings
  courier chain https://a.example/x https://b.example/x --stop-on-success --continue-on-failure`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChain(opts, args, cmd)
		},
	}
	opts.register(cmd)
	cmd.Flags().BoolVar(&opts.ContinueOnFailure, "continue-on-failure", false, "run the next step after a failure")
	cmd.Flags().BoolVar(&opts.StopOnSuccess, "stop-on-success", false, "end the chain at the first success")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "delay between steps")

	return cmd
}

func runChain(opts *ChainOptions, targets []string, cmd *cobra.Command) error {
	c, err := openClient(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := c.mgr.NewChain(
		courier.ChainStopOnFailure(!opts.ContinueOnFailure),
		courier.ChainStopOnSuccess(opts.StopOnSuccess),
		courier.ChainInterval(opts.Interval),
	)
	reqs := make([]*courier.Request, 0, len(targets))
	for _, t := range targets {
		r, err := opts.build(c, t)
		if err != nil {
			return c.out.fail(ExitCommandError, ErrCodeBadArgument, "invalid request", err)
		}
		reqs = append(reqs, r)
		ch.Add(r, nil)
	}

	if err := c.mgr.SyncChain(cmd.Context(), ch, nil, nil); err != nil {
		c.out.VerboseLog("chain %s: %v", ch.ID(), err)
	}

	result := UnitResult{Kind: "chain", ID: ch.ID(), State: ch.State().String()}
	for i, r := range reqs {
		result.Requests = append(result.Requests, viewOf(targets[i], r, false))
		if ch.State() == courier.StateFailed && r == ch.FailedRequest() {
			result.FailedRequest = targets[i]
		}
	}
	return reportUnit(c.out, result)
}

func reportUnit(out *OutputFormatter, result UnitResult) error {
	succeeded := result.State == courier.StateSucceeded.String()
	if out.Format == "json" {
		if succeeded {
			return out.Success(result)
		}
		msg := fmt.Sprintf("%s %s", result.Kind, result.State)
		if err := out.Failure(ErrCodeRequestFailed, msg, result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}

	w := out.Writer
	for _, v := range result.Requests {
		fmt.Fprintln(w, "  "+v.line())
	}
	done := 0
	for _, v := range result.Requests {
		if v.State == courier.StateSucceeded.String() {
			done++
		}
	}
	summary := fmt.Sprintf("%s %s (%d/%d succeeded)", result.Kind, result.State, done, len(result.Requests))
	if result.FailedRequest != "" {
		summary += ", failed at " + result.FailedRequest
	}
	if succeeded {
		fmt.Fprintln(w, color.GreenString("✓ ")+summary)
		return nil
	}
	fmt.Fprintln(w, color.RedString("✗ ")+summary)
	return NewExitError(ExitFailure, fmt.Sprintf("%s %s", result.Kind, result.State))
}
