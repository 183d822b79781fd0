package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/driveledger/internal/stage"
	"github.com/roach88/driveledger/internal/store"
)

// StageOptions holds flags for the stage command.
type StageOptions struct {
	*RootOptions
	Restage  bool
	RawEvent string
}

// NewStageCommand creates the stage command.
func NewStageCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StageOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Normalize raw events into staging records",
		Long: `Normalize and validate raw events into staging records.

By default only raw events without a staging record are processed.
--restage re-derives every staging record, for backfill after a
normalization change; --raw-event restages a single raw event.

Examples:
  driveledger stage
  driveledger stage --restage
  driveledger stage --raw-event 3f2a...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStage(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Restage, "restage", false, "re-derive every staging record")
	cmd.Flags().StringVar(&opts.RawEvent, "raw-event", "", "restage one raw event by id")
	cmd.MarkFlagsMutuallyExclusive("restage", "raw-event")

	return cmd
}

func runStage(opts *StageOptions, cmd *cobra.Command) error {
	st, err := opts.openStore(cmd)
	if err != nil {
		return err
	}
	defer opts.closeStore(st)

	stager := opts.newRunner(st, nil).Stager()
	ctx := cmd.Context()
	out := opts.formatter(cmd)

	if opts.RawEvent != "" {
		rec, err := stager.Restage(ctx, opts.RawEvent)
		switch {
		case errors.Is(err, store.ErrNotFound), errors.Is(err, stage.ErrUnclassified):
			return WrapExitError(ExitCommandError, "cannot restage raw event", err)
		case err != nil:
			return WrapExitError(ExitFailure, "restage failed", err)
		}
		return out.Success(rec, fmt.Sprintf("%s: %s valid=%t errors=%v\n", rec.RawEventID, rec.Kind, rec.IsValid, rec.Errors))
	}

	var counts stage.Counts
	if opts.Restage {
		counts, err = stager.RestageAll(ctx)
	} else {
		counts, err = stager.StageAllNew(ctx)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "staging failed", err)
	}
	return out.Success(counts, fmt.Sprintf("Staged %d shred and %d removal records (%d invalid, %d skipped)\n",
		counts.Shred, counts.Removal, counts.Invalid, counts.Skipped))
}
