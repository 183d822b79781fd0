package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewPromoteCommand creates the promote command.
func NewPromoteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "promote",
		Short: "Promote valid staging records to drives, batches and events",
		Long: `Promote every valid staging record that has no lifecycle event yet.

Records rejected by an unexpected constraint (an event identity owned by
another drive) are reported as defects; the remaining records are still
promoted and the command exits with status 1.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPromote(rootOpts, cmd)
		},
	}
}

func runPromote(opts *RootOptions, cmd *cobra.Command) error {
	st, err := opts.openStore(cmd)
	if err != nil {
		return err
	}
	defer opts.closeStore(st)

	counts, err := opts.newRunner(st, nil).PromoteAllValid(cmd.Context())
	out := opts.formatter(cmd)
	if err != nil {
		if counts.Defects > 0 {
			_ = out.Error("E201", fmt.Sprintf("%d record(s) could not be promoted", counts.Defects), counts)
		}
		return WrapExitError(ExitFailure, "promotion failed", err)
	}
	return out.Success(counts, fmt.Sprintf("Promoted %d shred and %d removal events (%d already present)\n",
		counts.Shred, counts.Removal, counts.Noop))
}
