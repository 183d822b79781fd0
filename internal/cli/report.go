package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/driveledger/internal/report"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	Rule string
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report <view>",
		Short: "Print a reporting view",
		Long: fmt.Sprintf(`Print one of the reporting views for a rule version.

Views: %s

Examples:
  driveledger report unmatched-removals
  driveledger report ambiguous --rule strict_serial_v1 --format json`, strings.Join(report.Views(), ", ")),
		Args:          cobra.ExactArgs(1),
		ValidArgs:     report.Views(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Rule, "rule", "", "rule version (default: matching.rule_version)")

	return cmd
}

func runReport(opts *ReportOptions, view string, cmd *cobra.Command) error {
	st, err := opts.openStore(cmd)
	if err != nil {
		return err
	}
	defer opts.closeStore(st)

	rule := opts.Rule
	if rule == "" {
		rule = opts.Config.Matching.RuleVersion
	}

	rows, err := report.New(st).Run(cmd.Context(), view, rule)
	if err != nil {
		if errors.Is(err, report.ErrUnknownView) {
			return WrapExitError(ExitCommandError, "unknown view", err)
		}
		return WrapExitError(ExitFailure, "report failed", err)
	}

	var text strings.Builder
	if err := writeReportTable(&text, rows); err != nil {
		return WrapExitError(ExitFailure, "report failed", err)
	}
	return opts.formatter(cmd).Success(rows, text.String())
}

// writeReportTable renders the rows of any view as an aligned table.
func writeReportTable(w io.Writer, rows any) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	switch rows := rows.(type) {
	case []report.LifecycleRow:
		fmt.Fprintln(tw, "SERIAL\tREMOVED\tSHREDDED\tBATCH\tCLIENT\tDECISION")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				r.Serial, fmtTimePtr(r.RemovalTime), fmtTimePtr(r.ShredTime), dash(r.BatchID), dash(r.Client), dash(r.Decision))
		}
	case []report.UnmatchedRemoval:
		fmt.Fprintln(tw, "SERIAL\tREMOVED\tCOMPUTER\tCLIENT\tNOTES")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				r.Serial, fmtTime(r.RemovalTime), dash(r.ComputerSerial), dash(r.Client), dash(r.Notes))
		}
	case []report.UnmatchedShred:
		fmt.Fprintln(tw, "SERIAL\tSHREDDED\tBATCH\tCLIENT")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Serial, fmtTime(r.ShredTime), dash(r.BatchID), dash(r.Client))
		}
	case []report.AmbiguousMatch:
		fmt.Fprintln(tw, "SERIAL\tCONFIDENCE\tREASON")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%.2f\t%s\n", r.Serial, r.Confidence, r.Reason)
		}
	default:
		return fmt.Errorf("no table layout for %T", rows)
	}
	return tw.Flush()
}

func fmtTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

func fmtTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return fmtTime(*t)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
