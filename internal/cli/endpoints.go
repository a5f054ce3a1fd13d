package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/courier/internal/endpoint"
)

// EndpointView is the listing form of a catalogue endpoint.
type EndpointView struct {
	Name         string   `json:"name"`
	Method       string   `json:"method"`
	Path         string   `json:"path"`
	Response     string   `json:"response"`
	Placeholders []string `json:"placeholders,omitempty"`
	Cached       bool     `json:"cached"`
	Description  string   `json:"description,omitempty"`
}

// ValidationResult holds endpoints validate output.
type ValidationResult struct {
	Valid     bool   `json:"valid"`
	Endpoints int    `json:"endpoints,omitempty"`
	Line      int    `json:"line,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NewEndpointsCommand creates the endpoints command group.
func NewEndpointsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "endpoints",
		Short: "List or validate the endpoint catalogue",
	}
	cmd.AddCommand(newEndpointsListCommand(rootOpts))
	cmd.AddCommand(newEndpointsValidateCommand(rootOpts))
	return cmd
}

func newEndpointsListCommand(rootOpts *RootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List catalogue endpoints",
		Long:          "List the endpoints of the configured catalogue, or of --file.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEndpointsList(rootOpts, file, cmd)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "catalogue file or directory (overrides the config)")
	return cmd
}

func runEndpointsList(opts *RootOptions, file string, cmd *cobra.Command) error {
	out := newFormatter(opts, cmd)

	var cat *endpoint.Catalogue
	if file != "" {
		var err error
		if cat, err = endpoint.Load(file); err != nil {
			return catalogueError(out, err)
		}
	} else {
		c, err := openClient(opts, cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		if c.catalogue == nil {
			return out.fail(ExitCommandError, ErrCodeCatalogue, "no endpoint catalogue configured (set endpoints in the config or pass --file)", nil)
		}
		cat = c.catalogue
	}

	views := make([]EndpointView, 0, cat.Len())
	for _, name := range cat.Names() {
		ep, _ := cat.Get(name)
		views = append(views, EndpointView{
			Name:         ep.Name,
			Method:       ep.Method,
			Path:         ep.Path,
			Response:     ep.Response.String(),
			Placeholders: ep.Placeholders,
			Cached:       ep.Cache != nil,
			Description:  ep.Description,
		})
	}

	if out.Format == "json" {
		return out.Success(views)
	}
	tw := tabwriter.NewWriter(out.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tMETHOD\tPATH\tRESPONSE\tCACHED")
	for _, v := range views {
		cached := ""
		if v.Cached {
			cached = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", v.Name, v.Method, v.Path, v.Response, cached)
	}
	return tw.Flush()
}

func newEndpointsValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <catalogue>",
		Short: "Validate a catalogue without issuing requests",
		Long: `Compile a CUE endpoint catalogue against the endpoint schema and report
the first problem with its position.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEndpointsValidate(rootOpts, args[0], cmd)
		},
	}
}

func runEndpointsValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	out := newFormatter(opts, cmd)

	cat, err := endpoint.Load(path)
	if err != nil {
		return catalogueError(out, err)
	}
	out.VerboseLog("Compiled %d endpoint(s) from %s", cat.Len(), filepath.Clean(path))

	if out.Format == "json" {
		return out.Success(ValidationResult{Valid: true, Endpoints: cat.Len()})
	}
	fmt.Fprintf(out.Writer, "%s All %d endpoint(s) valid\n", color.GreenString("✓"), cat.Len())
	return nil
}

// catalogueError reports a load failure. A missing catalogue is a command
// error; an invalid one is a validation failure.
func catalogueError(out *OutputFormatter, err error) error {
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, endpoint.ErrNoFiles) {
		return out.fail(ExitCommandError, ErrCodeNotFound, "catalogue not found", err)
	}

	result := ValidationResult{Valid: false, Error: err.Error()}
	var ce *endpoint.CompileError
	if errors.As(err, &ce) && ce.Pos.IsValid() {
		result.Line = ce.Pos.Line()
	}

	if out.Format == "json" {
		if encErr := out.Failure(ErrCodeCatalogue, err.Error(), result); encErr != nil {
			return encErr
		}
	} else {
		fmt.Fprintln(out.Writer, color.RedString("✗")+" Validation failed")
		if result.Line > 0 {
			fmt.Fprintf(out.Writer, "line %d\n", result.Line)
		}
		fmt.Fprintf(out.Writer, "  %s: %s\n", ErrCodeCatalogue, err.Error())
	}
	return WrapExitError(ExitFailure, "invalid endpoint catalogue", err)
}
