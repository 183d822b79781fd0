// Package pipeline wires the staging, promotion and matching triggers
// together and runs them in order.
//
// Every trigger is idempotent, so the recovery strategy for any failure
// is to run the pipeline again.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/driveledger/internal/ledger"
	"github.com/roach88/driveledger/internal/match"
	"github.com/roach88/driveledger/internal/metrics"
	"github.com/roach88/driveledger/internal/promote"
	"github.com/roach88/driveledger/internal/stage"
	"github.com/roach88/driveledger/internal/store"
)

// Stage names, as used in logs, errors and the duration histogram.
const (
	StageStage   = "stage"
	StagePromote = "promote"
	StageMatch   = "match"
)

// Config carries the optional dependencies of a Runner. Zero values pick
// production defaults.
type Config struct {
	RuleVersion string             // default: match.CurrentRuleVersion
	Registry    *match.Registry    // default: match.DefaultRegistry()
	Clock       ledger.Clock       // default: SystemClock
	IDs         ledger.IDGenerator // default: UUIDv7
	Logger      *slog.Logger       // default: slog.Default()
	Metrics     *metrics.Metrics   // default: none
}

// Report is the outcome of one RunPipeline call. Stages that did not run
// are left zero.
type Report struct {
	Staged   stage.Counts             `json:"staged"`
	Promoted promote.Counts           `json:"promoted"`
	Matched  match.Summary            `json:"matched"`
	Duration map[string]time.Duration `json:"duration_ns"`
}

// Runner exposes the operational triggers.
type Runner struct {
	stager      *stage.Stager
	promoter    *promote.Promoter
	engine      *match.Engine
	ruleVersion string
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// NewRunner builds the stage, promote and match components over s.
func NewRunner(s *store.Store, cfg Config) *Runner {
	if cfg.RuleVersion == "" {
		cfg.RuleVersion = match.CurrentRuleVersion
	}
	if cfg.Registry == nil {
		cfg.Registry = match.DefaultRegistry()
	}
	if cfg.Clock == nil {
		cfg.Clock = ledger.SystemClock{}
	}
	if cfg.IDs == nil {
		cfg.IDs = ledger.UUIDv7Generator{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Runner{
		stager: stage.NewStager(s,
			stage.WithLogger(cfg.Logger),
			stage.WithMetrics(cfg.Metrics),
		),
		promoter: promote.NewPromoter(s,
			promote.WithIDGenerator(cfg.IDs),
			promote.WithClock(cfg.Clock),
			promote.WithLogger(cfg.Logger),
			promote.WithMetrics(cfg.Metrics),
		),
		engine: match.NewEngine(s,
			match.WithRegistry(cfg.Registry),
			match.WithIDGenerator(cfg.IDs),
			match.WithClock(cfg.Clock),
			match.WithLogger(cfg.Logger),
			match.WithMetrics(cfg.Metrics),
		),
		ruleVersion: cfg.RuleVersion,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
}

// RuleVersion returns the rule version RunPipeline matches with.
func (r *Runner) RuleVersion() string {
	return r.ruleVersion
}

// Registry returns the matching rule registry.
func (r *Runner) Registry() *match.Registry {
	return r.engine.Registry()
}

// Stager returns the staging component, for restaging.
func (r *Runner) Stager() *stage.Stager {
	return r.stager
}

// StageAllNew stages every raw event that has no staging record.
func (r *Runner) StageAllNew(ctx context.Context) (stage.Counts, error) {
	var counts stage.Counts
	_, err := r.timed(StageStage, func() (err error) {
		counts, err = r.stager.StageAllNew(ctx)
		return err
	})
	return counts, err
}

// PromoteAllValid promotes every valid, not yet promoted staging record.
func (r *Runner) PromoteAllValid(ctx context.Context) (promote.Counts, error) {
	var counts promote.Counts
	_, err := r.timed(StagePromote, func() (err error) {
		counts, err = r.promoter.PromoteAllValid(ctx)
		return err
	})
	return counts, err
}

// RunMatching runs one rule version. An empty version means the
// configured one.
func (r *Runner) RunMatching(ctx context.Context, ruleVersion string) (match.Summary, error) {
	if ruleVersion == "" {
		ruleVersion = r.ruleVersion
	}
	var summary match.Summary
	_, err := r.timed(StageMatch, func() (err error) {
		summary, err = r.engine.Run(ctx, ruleVersion)
		return err
	})
	return summary, err
}

// RunPipeline runs StageAllNew, PromoteAllValid and RunMatching in order.
// The first failing stage stops the run; its error names the stage, and
// the report holds the counts of the stages that ran. Promotion defects
// do not stop the run but are returned after matching.
func (r *Runner) RunPipeline(ctx context.Context) (Report, error) {
	report := Report{Duration: make(map[string]time.Duration)}
	r.logger.Info("pipeline started", "rule_version", r.ruleVersion)

	var err error
	report.Duration[StageStage], err = r.timed(StageStage, func() (err error) {
		report.Staged, err = r.stager.StageAllNew(ctx)
		return err
	})
	if err != nil {
		return report, fmt.Errorf("pipeline %s stage: %w", StageStage, err)
	}

	report.Duration[StagePromote], err = r.timed(StagePromote, func() (err error) {
		report.Promoted, err = r.promoter.PromoteAllValid(ctx)
		return err
	})
	// Defects are isolated per record, so matching still runs over the
	// records that did promote. They are reported once matching is done.
	var defects error
	if err != nil {
		var cerr *store.ConstraintError
		if report.Promoted.Defects == 0 || !errors.As(err, &cerr) {
			return report, fmt.Errorf("pipeline %s stage: %w", StagePromote, err)
		}
		defects = fmt.Errorf("pipeline %s stage: %w", StagePromote, err)
	}

	report.Duration[StageMatch], err = r.timed(StageMatch, func() (err error) {
		report.Matched, err = r.engine.Run(ctx, r.ruleVersion)
		return err
	})
	if err != nil {
		return report, fmt.Errorf("pipeline %s stage: %w", StageMatch, err)
	}

	if defects != nil {
		return report, defects
	}

	r.logger.Info("pipeline complete",
		"staged_shred", report.Staged.Shred,
		"staged_removal", report.Staged.Removal,
		"promoted_shred", report.Promoted.Shred,
		"promoted_removal", report.Promoted.Removal,
		"decisions", report.Matched.Total(),
	)
	return report, nil
}

// timed runs fn as the named stage, logging and recording its duration.
func (r *Runner) timed(name string, fn func() error) (time.Duration, error) {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	r.metrics.ObserveStage(name, elapsed)
	if err != nil {
		r.logger.Error("stage failed", "stage", name, "duration", elapsed, "error", err)
		return elapsed, err
	}
	r.logger.Info("stage complete", "stage", name, "duration", elapsed)
	return elapsed, nil
}
