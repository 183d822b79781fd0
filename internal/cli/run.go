package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/driveledger/internal/match"
	"github.com/roach88/driveledger/internal/metrics"
	"github.com/roach88/driveledger/internal/pipeline"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	MetricsTextfile string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Stage, promote and match in one pass",
		Long: `Run the whole pipeline: stage new raw events, promote valid records,
then match with the configured rule version.

A failing stage stops the run. Promotion defects are reported after
matching. Every step is idempotent; re-run to recover.

When metrics.textfile (or --metrics-textfile) is set, counters and stage
durations are written there for the node_exporter textfile collector.

Examples:
  driveledger run
  driveledger run --metrics-textfile /var/lib/node_exporter/driveledger.prom`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.MetricsTextfile, "metrics-textfile", "", "write metrics to this file (overrides metrics.textfile)")

	return cmd
}

func runPipeline(opts *RunOptions, cmd *cobra.Command) error {
	st, err := opts.openStore(cmd)
	if err != nil {
		return err
	}
	defer opts.closeStore(st)

	m := metrics.New()
	report, runErr := opts.newRunner(st, m).RunPipeline(cmd.Context())

	opts.writeMetrics(cmd, m, opts.MetricsTextfile)

	out := opts.formatter(cmd)
	if runErr != nil {
		if errors.Is(runErr, match.ErrUnknownRule) {
			return WrapExitError(ExitCommandError, "unknown rule version", runErr)
		}
		_ = out.Error("E301", runErr.Error(), report)
		return WrapExitError(ExitFailure, "pipeline failed", runErr)
	}
	return out.Success(report, formatReport(report))
}

func formatReport(r pipeline.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "stage:   %d shred, %d removal (%d invalid, %d skipped)\n",
		r.Staged.Shred, r.Staged.Removal, r.Staged.Invalid, r.Staged.Skipped)
	fmt.Fprintf(&b, "promote: %d shred, %d removal (%d already present)\n",
		r.Promoted.Shred, r.Promoted.Removal, r.Promoted.Noop)
	b.WriteString("match:   ")
	b.WriteString(formatSummary(r.Matched))
	return b.String()
}
