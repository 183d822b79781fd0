package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/driveledger/internal/ledger"
	"github.com/roach88/driveledger/internal/metrics"
	"github.com/roach88/driveledger/internal/store"
)

// Recorder appends source rows to the raw event store.
type Recorder struct {
	store         *store.Store
	clock         ledger.Clock
	logger        *slog.Logger
	metrics       *metrics.Metrics
	sourceSystem  string
	schemaVersion string
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithClock sets the clock used for ingested_at. Default: SystemClock.
func WithClock(c ledger.Clock) RecorderOption {
	return func(r *Recorder) {
		r.clock = c
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = l
	}
}

// WithMetrics enables ingestion counters.
func WithMetrics(m *metrics.Metrics) RecorderOption {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// WithSourceSystem sets the source system stamped on rows that do not
// name one. Default: ledger.DefaultSourceSystem.
func WithSourceSystem(name string) RecorderOption {
	return func(r *Recorder) {
		r.sourceSystem = name
	}
}

// WithSchemaVersion sets the schema version stamped on captured events.
// Default: ledger.SchemaVersion.
func WithSchemaVersion(v string) RecorderOption {
	return func(r *Recorder) {
		r.schemaVersion = v
	}
}

// NewRecorder creates a Recorder writing to s.
func NewRecorder(s *store.Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:         s,
		clock:         ledger.SystemClock{},
		logger:        slog.Default(),
		sourceSystem:  ledger.DefaultSourceSystem,
		schemaVersion: ledger.SchemaVersion,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record captures one row. Returns Duplicate when an identical row
// (same identity and content) was captured before.
func (r *Recorder) Record(ctx context.Context, row Row) (Outcome, error) {
	ev := r.rawEvent(row)

	inserted, err := r.store.InsertRawEvent(ctx, ev)
	if err != nil {
		return "", fmt.Errorf("record %s: %w", row.RowKey, err)
	}

	outcome := Duplicate
	if inserted {
		outcome = Inserted
	}
	r.metrics.ObserveIngest(string(outcome))
	r.logger.Debug("row recorded",
		"row_key", row.RowKey,
		"outcome", outcome,
		"raw_event_id", ev.ID,
	)
	return outcome, nil
}

// RecordBatch records rows in order, stopping at the first store error.
// Counts for rows recorded before the error are returned with it.
func (r *Recorder) RecordBatch(ctx context.Context, rows []Row) (BatchResult, error) {
	var result BatchResult
	for _, row := range rows {
		outcome, err := r.Record(ctx, row)
		if err != nil {
			return result, err
		}
		switch outcome {
		case Inserted:
			result.Inserted++
		case Duplicate:
			result.Duplicates++
		}
	}
	return result, nil
}

// rawEvent derives the content-addressed raw event for row.
func (r *Recorder) rawEvent(row Row) ledger.RawEvent {
	sourceSystem := row.SourceSystem
	if sourceSystem == "" {
		sourceSystem = r.sourceSystem
	}

	payload := row.Payload.Clone()
	hash := ledger.ContentHash(payload)

	return ledger.RawEvent{
		ID:              ledger.RawEventID(sourceSystem, row.CollectionID, row.Partition, row.RowKey, hash),
		SourceSystem:    sourceSystem,
		CollectionID:    row.CollectionID,
		Partition:       row.Partition,
		RowKey:          row.RowKey,
		Payload:         payload,
		ContentHash:     hash,
		SchemaVersion:   r.schemaVersion,
		SourceTimestamp: row.SourceTimestamp,
		IngestedAt:      r.clock.Now().UTC(),
	}
}
