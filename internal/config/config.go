// Package config loads driveledger settings from defaults, an optional
// YAML file and DRIVELEDGER_* environment variables, in increasing
// precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/roach88/driveledger/internal/ledger"
	"github.com/roach88/driveledger/internal/match"
)

// EnvPrefix prefixes environment overrides: DRIVELEDGER_DATABASE_PATH sets
// database.path.
const EnvPrefix = "DRIVELEDGER"

type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Matching MatchingConfig `mapstructure:"matching"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Sources  []Source       `mapstructure:"sources"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type IngestConfig struct {
	SourceSystem  string `mapstructure:"source_system"`
	SchemaVersion string `mapstructure:"schema_version"`
}

type MatchingConfig struct {
	RuleVersion string `mapstructure:"rule_version"`
}

type MetricsConfig struct {
	// Textfile is where `run` and `ingest` write metrics for the node_exporter
	// textfile collector. Empty disables the export.
	Textfile string `mapstructure:"textfile"`
}

// Source is one CSV export fed to `ingest --all`.
type Source struct {
	Name string `mapstructure:"name"`
	File string `mapstructure:"file"`
}

// Load reads configPath, or ./driveledger.yaml when configPath is empty and
// the file exists. A missing default file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("database.path", "driveledger.db")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("ingest.source_system", ledger.DefaultSourceSystem)
	v.SetDefault("ingest.schema_version", ledger.SchemaVersion)
	v.SetDefault("matching.rule_version", match.CurrentRuleVersion)
	v.SetDefault("metrics.textfile", "")

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("driveledger")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no command can run with.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("config: database.path is required")
	}
	seen := make(map[string]bool, len(c.Sources))
	for i, src := range c.Sources {
		if src.Name == "" || src.File == "" {
			return fmt.Errorf("config: sources[%d] needs name and file", i)
		}
		if seen[src.Name] {
			return fmt.Errorf("config: duplicate source %q", src.Name)
		}
		seen[src.Name] = true
	}
	return nil
}

// Source returns the configured source with the given name.
func (c *Config) Source(name string) (Source, bool) {
	for _, src := range c.Sources {
		if src.Name == name {
			return src, true
		}
	}
	return Source{}, false
}
