package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/driveledger/internal/match"
)

// RuleInfo describes a registered rule version.
type RuleInfo struct {
	Version    string `json:"version"`
	Configured bool   `json:"configured"`
	Decided    bool   `json:"decided"` // has decisions in the database
}

// NewRulesCommand creates the rules command.
func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List matching rule versions",
		Long: `List the registered matching rule versions, marking the configured one
and those that already have decisions in the database.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRules(rootOpts, cmd)
		},
	}
}

func runRules(opts *RootOptions, cmd *cobra.Command) error {
	st, err := opts.openStore(cmd)
	if err != nil {
		return err
	}
	defer opts.closeStore(st)

	decided, err := st.ListRuleVersions(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list rule versions", err)
	}
	hasDecisions := make(map[string]bool, len(decided))
	for _, v := range decided {
		hasDecisions[v] = true
	}

	registry := opts.Registry
	if registry == nil {
		registry = match.DefaultRegistry()
	}

	var (
		infos []RuleInfo
		text  strings.Builder
	)
	for _, v := range registry.Versions() {
		info := RuleInfo{
			Version:    v,
			Configured: v == opts.Config.Matching.RuleVersion,
			Decided:    hasDecisions[v],
		}
		infos = append(infos, info)

		marker := " "
		if info.Configured {
			marker = "*"
		}
		status := ""
		if info.Decided {
			status = " (decided)"
		}
		fmt.Fprintf(&text, "%s %s%s\n", marker, v, status)
	}
	return opts.formatter(cmd).Success(infos, text.String())
}
