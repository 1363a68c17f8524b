package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cinder-ml/cinder/internal/store"
)

// TraceCmdOptions holds flags for the trace command.
type TraceCmdOptions struct {
	*RootOptions
	Database string
	ID       string
	Limit    int
}

// TraceListing is the JSON payload when listing compilations.
type TraceListing struct {
	Compilations []store.Compilation `json:"compilations"`
}

// TraceDetail is the JSON payload for one compilation's pass runs.
type TraceDetail struct {
	ID       string          `json:"id"`
	PassRuns []store.PassRun `json:"pass_runs"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceCmdOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect recorded compilation traces",
		Long: `Inspect the pass traces recorded by compile --trace-db.

Without --id, lists recorded compilations newest first. With --id, shows
every pass run of that compilation in execution order.

Examples:
  cinder trace --db ./traces.db
  cinder trace --db ./traces.db --id 6f1b...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.ID, "id", "", "compilation ID to show in detail")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "max compilations to list (0 = all)")

	return cmd
}

func runTrace(opts *TraceCmdOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	ctx := context.Background()

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "opening trace store", err)
	}
	defer st.Close()

	if opts.ID != "" {
		return showTraceDetail(ctx, st, opts, formatter)
	}
	return listTraces(ctx, st, opts, formatter)
}

func listTraces(ctx context.Context, st *store.Store, opts *TraceCmdOptions, formatter *OutputFormatter) error {
	compilations, err := st.Compilations(ctx, opts.Limit)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "listing compilations", err)
	}

	if opts.Format == "json" {
		return formatter.Success(TraceListing{Compilations: compilations})
	}

	if len(compilations) == 0 {
		fmt.Fprintln(formatter.Writer, "(no compilations recorded)")
		return nil
	}
	for _, c := range compilations {
		fmt.Fprintf(formatter.Writer, "%s  %-20s %-12s %s\n", c.ID, c.ModuleName, c.Device, c.CreatedAt)
	}
	return nil
}

func showTraceDetail(ctx context.Context, st *store.Store, opts *TraceCmdOptions, formatter *OutputFormatter) error {
	runs, err := st.PassRuns(ctx, opts.ID)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "reading pass runs", err)
	}

	if opts.Format == "json" {
		return formatter.Success(TraceDetail{ID: opts.ID, PassRuns: runs})
	}

	if len(runs) == 0 {
		fmt.Fprintf(formatter.Writer, "No pass runs found for compilation: %s\n", opts.ID)
		return nil
	}
	for _, r := range runs {
		marker := " "
		if r.Changed {
			marker = "*"
		}
		fmt.Fprintf(formatter.Writer, "  [%2d] %s %s/%s", r.Seq, marker, r.Pipeline, r.Pass)
		if r.Error != "" {
			fmt.Fprintf(formatter.Writer, "  FAILED: %s", r.Error)
		}
		fmt.Fprintln(formatter.Writer)
	}
	return nil
}
