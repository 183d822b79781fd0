// Package metrics holds the Prometheus collectors for pipeline runs.
//
// Collectors live on a private registry so that tests and repeated CLI
// invocations never collide on global registration. Batch runs export the
// registry with WriteTextfile for the node_exporter textfile collector.
//
// All methods are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/driveledger/internal/ledger"
)

// Metrics is one set of pipeline collectors.
type Metrics struct {
	registry *prometheus.Registry

	// Ingestion
	IngestRows *prometheus.CounterVec

	// Staging
	Staged *prometheus.CounterVec

	// Promotion
	Promoted       *prometheus.CounterVec
	PromoteDefects prometheus.Counter

	// Matching
	MatchDecisions *prometheus.CounterVec

	// Pipeline
	StageDuration *prometheus.HistogramVec
}

// New registers a fresh set of collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		IngestRows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "driveledger_ingest_rows_total",
				Help: "Total number of source rows recorded, by outcome",
			},
			[]string{"outcome"},
		),

		Staged: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "driveledger_staged_total",
				Help: "Total number of staging records written",
			},
			[]string{"kind", "valid"},
		),

		Promoted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "driveledger_promoted_total",
				Help: "Total number of drive events created by promotion",
			},
			[]string{"kind"},
		),

		PromoteDefects: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "driveledger_promote_defects_total",
				Help: "Total number of staging records rejected by a constraint during promotion",
			},
		),

		MatchDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "driveledger_match_decisions_total",
				Help: "Total number of match decisions written",
			},
			[]string{"rule_version", "decision"},
		),

		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "driveledger_pipeline_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveIngest counts one recorded row.
func (m *Metrics) ObserveIngest(outcome string) {
	if m == nil {
		return
	}
	m.IngestRows.WithLabelValues(outcome).Inc()
}

// ObserveStaged counts one staging record written.
func (m *Metrics) ObserveStaged(kind ledger.RecordKind, valid bool) {
	if m == nil {
		return
	}
	m.Staged.WithLabelValues(string(kind), strconv.FormatBool(valid)).Inc()
}

// ObservePromoted counts one drive event created.
func (m *Metrics) ObservePromoted(kind ledger.RecordKind) {
	if m == nil {
		return
	}
	m.Promoted.WithLabelValues(string(kind)).Inc()
}

// ObserveDefect counts one promotion rejected by a constraint.
func (m *Metrics) ObserveDefect() {
	if m == nil {
		return
	}
	m.PromoteDefects.Inc()
}

// ObserveDecision counts one match decision written.
func (m *Metrics) ObserveDecision(ruleVersion string, decision ledger.Decision) {
	if m == nil {
		return
	}
	m.MatchDecisions.WithLabelValues(ruleVersion, string(decision)).Inc()
}

// ObserveStage records how long a pipeline stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// WriteTextfile writes the registry in the text exposition format to path.
// The file is written atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
