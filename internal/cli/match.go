package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/driveledger/internal/match"
)

// MatchOptions holds flags for the match command.
type MatchOptions struct {
	*RootOptions
	Rule string
}

// NewMatchCommand creates the match command.
func NewMatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Decide removal/shred matches for every drive",
		Long: `Run one matching rule version over every drive with lifecycle events.

Decisions of the selected version are replaced; decisions of other
versions are left untouched, so versions can be compared side by side.

Examples:
  driveledger match
  driveledger match --rule strict_serial_v1`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatch(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Rule, "rule", "", "rule version (default: matching.rule_version)")

	return cmd
}

func runMatch(opts *MatchOptions, cmd *cobra.Command) error {
	st, err := opts.openStore(cmd)
	if err != nil {
		return err
	}
	defer opts.closeStore(st)

	summary, err := opts.newRunner(st, nil).RunMatching(cmd.Context(), opts.Rule)
	if err != nil {
		if errors.Is(err, match.ErrUnknownRule) {
			return WrapExitError(ExitCommandError, "unknown rule version", err)
		}
		return WrapExitError(ExitFailure, "matching failed", err)
	}
	return opts.formatter(cmd).Success(summary, formatSummary(summary))
}

func formatSummary(s match.Summary) string {
	return fmt.Sprintf("%s: %d match, %d no match, %d ambiguous, %d undecided\n",
		s.RuleVersion, s.Match, s.NoMatch, s.Ambiguous, s.Undecided)
}
