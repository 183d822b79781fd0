package match

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/driveledger/internal/ledger"
	"github.com/roach88/driveledger/internal/metrics"
	"github.com/roach88/driveledger/internal/store"
)

// Summary counts the decisions written by one run.
type Summary struct {
	RuleVersion string `json:"rule_version"`
	Match       int    `json:"match"`
	NoMatch     int    `json:"no_match"`
	Ambiguous   int    `json:"ambiguous"`
	Undecided   int    `json:"undecided"` // drives the rule declined to decide
}

// Total returns the number of decisions written.
func (s Summary) Total() int {
	return s.Match + s.NoMatch + s.Ambiguous
}

func (s *Summary) add(d ledger.Decision) {
	switch d {
	case ledger.DecisionMatch:
		s.Match++
	case ledger.DecisionNoMatch:
		s.NoMatch++
	case ledger.DecisionAmbiguous:
		s.Ambiguous++
	}
}

// Engine runs matching rules over the Gold layer.
type Engine struct {
	store    *store.Store
	registry *Registry
	ids      ledger.IDGenerator
	clock    ledger.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithRegistry sets the rule registry. Default: DefaultRegistry().
func WithRegistry(r *Registry) EngineOption {
	return func(e *Engine) {
		e.registry = r
	}
}

// WithIDGenerator sets the generator for new decision IDs. Default: UUIDv7.
func WithIDGenerator(g ledger.IDGenerator) EngineOption {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithClock sets the clock used for decided_at. Default: SystemClock.
func WithClock(c ledger.Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetrics enables decision counters.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates an Engine over s.
func NewEngine(s *store.Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:    s,
		registry: DefaultRegistry(),
		ids:      ledger.UUIDv7Generator{},
		clock:    ledger.SystemClock{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the engine's rule registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Run evaluates ruleVersion for every drive with at least one event and
// upserts one decision per drive for that version, all in one
// transaction. Decisions of other versions are not touched.
func (e *Engine) Run(ctx context.Context, ruleVersion string) (Summary, error) {
	rule, err := e.registry.Lookup(ruleVersion)
	if err != nil {
		return Summary{}, fmt.Errorf("run matching: %w", err)
	}

	histories, err := e.store.ListDriveHistories(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("run matching: %w", err)
	}

	decidedAt := e.clock.Now().UTC()
	summary := Summary{RuleVersion: ruleVersion}
	var written []ledger.Decision

	err = e.store.InTx(ctx, func(tx *store.Tx) error {
		for _, h := range histories {
			out, ok := rule(Candidates{Drive: h.Drive, Removed: h.Removed, Shredded: h.Shredded})
			if !ok {
				summary.Undecided++
				continue
			}

			d := ledger.MatchDecision{
				ID:              e.ids.Generate(),
				DriveID:         h.Drive.ID,
				RuleVersion:     ruleVersion,
				Decision:        out.Decision,
				Confidence:      out.Confidence,
				Reason:          out.Reason,
				RemovedEventID:  out.RemovedEventID,
				ShreddedEventID: out.ShreddedEventID,
				DecidedAt:       decidedAt,
			}
			if err := tx.UpsertDecision(ctx, d); err != nil {
				return err
			}
			summary.add(d.Decision)
			written = append(written, d.Decision)
		}
		return nil
	})
	if err != nil {
		return Summary{}, fmt.Errorf("run matching %s: %w", ruleVersion, err)
	}

	for _, d := range written {
		e.metrics.ObserveDecision(ruleVersion, d)
	}
	e.logger.Info("matching complete",
		"rule_version", ruleVersion,
		"match", summary.Match,
		"no_match", summary.NoMatch,
		"ambiguous", summary.Ambiguous,
	)
	return summary, nil
}
