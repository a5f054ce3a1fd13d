package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/courier"
)

// FetchOptions holds flags for the fetch command.
type FetchOptions struct {
	*RootOptions
	requestFlags
	Quiet bool
}

// NewFetchCommand creates the fetch command.
func NewFetchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FetchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fetch <path|url|@endpoint>",
		Short: "Issue one request and print the response",
		Long: `Issue one request and print its outcome and body.

Relative paths resolve against base_url. A target of the form @name uses
the endpoint catalogue, with --var filling path placeholders.

Examples:
  courier fetch users/42 --param fields=name
  courier fetch @feed --var user=42 --ttl 30s
  courier fetch https://example.com/health --response plain`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(opts, args[0], cmd)
		},
	}
	opts.register(cmd)
	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "print only the body")

	return cmd
}

func runFetch(opts *FetchOptions, target string, cmd *cobra.Command) error {
	c, err := openClient(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	r, err := opts.build(c, target)
	if err != nil {
		return c.out.fail(ExitCommandError, ErrCodeBadArgument, "invalid request", err)
	}

	c.run(cmd.Context(), r, opts.NoCache)

	view := viewOf(target, r, true)
	c.out.VerboseLog("request %s: %s %s", view.ID, view.Method, view.URL)
	return reportRequest(c.out, view, opts.Quiet)
}

// reportRequest prints a finished request and maps its state to an exit
// code.
func reportRequest(out *OutputFormatter, view RequestView, quiet bool) error {
	succeeded := view.State == courier.StateSucceeded.String()
	if out.Format == "json" {
		if succeeded {
			return out.Success(view)
		}
		if err := out.Failure(ErrCodeRequestFailed, view.Error, view); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("request %s", view.State))
	}

	w := out.Writer
	if !quiet {
		fmt.Fprintln(w, view.line())
	}
	if body := bodyText(view.Body); body != "" {
		fmt.Fprintln(w, body)
	}
	if !succeeded {
		return NewExitError(ExitFailure, fmt.Sprintf("request %s", view.State))
	}
	return nil
}
