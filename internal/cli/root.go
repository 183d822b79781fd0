package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/driveledger/internal/config"
	"github.com/roach88/driveledger/internal/ledger"
	"github.com/roach88/driveledger/internal/logging"
	"github.com/roach88/driveledger/internal/match"
	"github.com/roach88/driveledger/internal/metrics"
	"github.com/roach88/driveledger/internal/pipeline"
	"github.com/roach88/driveledger/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Database   string // overrides database.path
	Verbose    bool
	Format     string // "json" | "text"

	// Config is loaded on first use. Tests may set it directly.
	Config *config.Config

	// Clock, IDs and Registry override production defaults (for testing).
	Clock    ledger.Clock
	IDs      ledger.IDGenerator
	Registry *match.Registry

	logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the driveledger CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "driveledger",
		Short: "driveledger - drive custody ledger",
		Long: `Track hard drives from removal to destruction.

Raw spreadsheet rows are captured append-only, normalized into staging
records, promoted into drives, batches and lifecycle events, and matched
by versioned rules. Every step can be re-run safely.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to config file (default ./driveledger.yaml)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides database.path)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewIngestCommand(opts))
	cmd.AddCommand(NewStageCommand(opts))
	cmd.AddCommand(NewPromoteCommand(opts))
	cmd.AddCommand(NewMatchCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewReportCommand(opts))
	cmd.AddCommand(NewRulesCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// load resolves the configuration and logger once per process. Flags win
// over the config file and environment.
func (o *RootOptions) load(cmd *cobra.Command) error {
	if o.Config == nil {
		cfg, err := config.Load(o.ConfigPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load config", err)
		}
		o.Config = cfg
	}
	if o.Database != "" {
		o.Config.Database.Path = o.Database
	}
	if o.Format == "" {
		o.Format = "text"
	}

	if o.logger == nil {
		level := o.Config.Logging.Level
		if o.Verbose {
			level = "debug"
		}
		o.logger = logging.New(level, o.Config.Logging.Format, cmd.ErrOrStderr())
	}
	return nil
}

// openStore loads configuration and opens the database it names.
func (o *RootOptions) openStore(cmd *cobra.Command) (*store.Store, error) {
	if err := o.load(cmd); err != nil {
		return nil, err
	}
	o.logger.Debug("opening database", "path", o.Config.Database.Path)
	st, err := store.Open(o.Config.Database.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// closeStore closes st, logging a failure.
func (o *RootOptions) closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		o.logger.Error("error closing database", "error", err)
	}
}

// newRunner builds the pipeline over st. m may be nil.
func (o *RootOptions) newRunner(st *store.Store, m *metrics.Metrics) *pipeline.Runner {
	return pipeline.NewRunner(st, pipeline.Config{
		RuleVersion: o.Config.Matching.RuleVersion,
		Registry:    o.Registry,
		Clock:       o.Clock,
		IDs:         o.IDs,
		Logger:      o.logger,
		Metrics:     m,
	})
}

// formatter returns an OutputFormatter writing to cmd's streams.
// writeMetrics exports m to path, or to metrics.textfile when path is
// empty. Nothing is written when neither is set. Failures are logged, not
// returned.
func (o *RootOptions) writeMetrics(cmd *cobra.Command, m *metrics.Metrics, path string) {
	if path == "" {
		path = o.Config.Metrics.Textfile
	}
	if path == "" {
		return
	}
	if err := m.WriteTextfile(path); err != nil {
		o.logger.Error("failed to write metrics textfile", "path", path, "error", err)
		return
	}
	o.formatter(cmd).VerboseLog("metrics written to %s", path)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
