package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show row counts per layer",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	st, err := opts.openStore(cmd)
	if err != nil {
		return err
	}
	defer opts.closeStore(st)

	counts, err := st.Count(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to count rows", err)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "raw events:        %d\n", counts.RawEvents)
	fmt.Fprintf(&text, "staged shreds:     %d\n", counts.ShredStaging)
	fmt.Fprintf(&text, "staged removals:   %d\n", counts.RemovalStaging)
	fmt.Fprintf(&text, "drives:            %d\n", counts.Drives)
	fmt.Fprintf(&text, "batches:           %d\n", counts.Batches)
	fmt.Fprintf(&text, "drive events:      %d\n", counts.DriveEvents)
	fmt.Fprintf(&text, "match decisions:   %d\n", counts.MatchDecisions)
	return opts.formatter(cmd).Success(counts, text.String())
}
