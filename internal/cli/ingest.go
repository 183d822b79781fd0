package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/driveledger/internal/config"
	"github.com/roach88/driveledger/internal/ingest"
	"github.com/roach88/driveledger/internal/metrics"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	Source          string
	File            string
	All             bool
	MetricsTextfile string
}

// SourceResult is the ingest outcome of one source.
type SourceResult struct {
	Source     string `json:"source"`
	File       string `json:"file"`
	Rows       int    `json:"rows"`
	Inserted   int    `json:"inserted"`
	Duplicates int    `json:"duplicates"`
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Capture CSV exports as raw events",
		Long: `Capture the rows of CSV exports as append-only raw events.

The source name becomes the collection id (csv_<source>), which decides
how rows are staged: names containing "shred" are shred-log rows, names
containing "removal" are drive-removal rows. Rows already captured with
the same content are reported as duplicates.

When metrics.textfile (or --metrics-textfile) is set, row counters are
written there after the sources are read.

Examples:
  driveledger ingest --source shred_log_serials --file shreds.csv
  driveledger ingest --all
  driveledger ingest --all --metrics-textfile /var/lib/node_exporter/driveledger_ingest.prom`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Source, "source", "", "source name (e.g. shred_log_serials)")
	cmd.Flags().StringVar(&opts.File, "file", "", "CSV file to read (default: the configured file for --source)")
	cmd.Flags().BoolVar(&opts.All, "all", false, "ingest every configured source")
	cmd.Flags().StringVar(&opts.MetricsTextfile, "metrics-textfile", "", "write metrics to this file (overrides metrics.textfile)")
	cmd.MarkFlagsMutuallyExclusive("all", "source")

	return cmd
}

func runIngest(opts *IngestOptions, cmd *cobra.Command) error {
	if !opts.All && opts.Source == "" {
		return NewExitError(ExitCommandError, "one of --source or --all is required")
	}

	st, err := opts.openStore(cmd)
	if err != nil {
		return err
	}
	defer opts.closeStore(st)

	sources, err := opts.sources()
	if err != nil {
		return err
	}

	m := metrics.New()
	defer opts.writeMetrics(cmd, m, opts.MetricsTextfile)
	recorder := ingest.NewRecorder(st, opts.recorderOptions(m)...)

	results := make([]SourceResult, 0, len(sources))
	for _, src := range sources {
		opts.logger.Info("ingesting source", "source", src.Name, "file", src.File)
		rows, err := ingest.ReadCSVFile(src.File, src.Name)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to read source %s", src.Name), err)
		}

		res, err := recorder.RecordBatch(cmd.Context(), rows)
		if err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("failed to record source %s", src.Name), err)
		}
		opts.logger.Info("source ingested", "source", src.Name, "inserted", res.Inserted, "duplicates", res.Duplicates)

		results = append(results, SourceResult{
			Source:     src.Name,
			File:       src.File,
			Rows:       len(rows),
			Inserted:   res.Inserted,
			Duplicates: res.Duplicates,
		})
	}

	var text strings.Builder
	for _, r := range results {
		fmt.Fprintf(&text, "%s: %d rows, %d inserted, %d duplicates\n", r.Source, r.Rows, r.Inserted, r.Duplicates)
	}
	return opts.formatter(cmd).Success(results, text.String())
}

// sources resolves the flags to the list of sources to read.
func (o *IngestOptions) sources() ([]config.Source, error) {
	if o.All {
		if len(o.Config.Sources) == 0 {
			return nil, NewExitError(ExitCommandError, "no sources configured")
		}
		return o.Config.Sources, nil
	}

	src := config.Source{Name: o.Source, File: o.File}
	if src.File == "" {
		configured, ok := o.Config.Source(o.Source)
		if !ok {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("source %q is not configured; pass --file", o.Source))
		}
		src.File = configured.File
	}
	return []config.Source{src}, nil
}

func (o *RootOptions) recorderOptions(m *metrics.Metrics) []ingest.RecorderOption {
	recOpts := []ingest.RecorderOption{
		ingest.WithLogger(o.logger),
		ingest.WithMetrics(m),
		ingest.WithSourceSystem(o.Config.Ingest.SourceSystem),
		ingest.WithSchemaVersion(o.Config.Ingest.SchemaVersion),
	}
	if o.Clock != nil {
		recOpts = append(recOpts, ingest.WithClock(o.Clock))
	}
	return recOpts
}
