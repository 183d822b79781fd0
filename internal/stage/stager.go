package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/driveledger/internal/ledger"
	"github.com/roach88/driveledger/internal/metrics"
	"github.com/roach88/driveledger/internal/store"
)

// ErrUnclassified is returned by Restage for a raw event whose collection
// maps to no staging variant.
var ErrUnclassified = errors.New("raw event does not classify as a known record kind")

// Counts summarizes one staging run.
type Counts struct {
	Shred   int `json:"shred"`
	Removal int `json:"removal"`
	Invalid int `json:"invalid"` // included in Shred/Removal
	Skipped int `json:"skipped"` // unclassified raw events
}

func (c *Counts) add(rec ledger.StagingRecord) {
	switch rec.Kind {
	case ledger.KindShredSerial:
		c.Shred++
	case ledger.KindDriveRemoval:
		c.Removal++
	}
	if !rec.IsValid {
		c.Invalid++
	}
}

// Stager writes staging records derived from raw events.
type Stager struct {
	store   *store.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// StagerOption configures a Stager.
type StagerOption func(*Stager)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) StagerOption {
	return func(s *Stager) {
		s.logger = l
	}
}

// WithMetrics enables staging counters.
func WithMetrics(m *metrics.Metrics) StagerOption {
	return func(s *Stager) {
		s.metrics = m
	}
}

// NewStager creates a Stager over st.
func NewStager(st *store.Store, opts ...StagerOption) *Stager {
	s := &Stager{
		store:  st,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StageAllNew stages every raw event that has no staging record yet, in
// raw event insertion order. Safe to re-run: a second call finds nothing
// to do.
func (s *Stager) StageAllNew(ctx context.Context) (Counts, error) {
	events, err := s.store.ListUnstagedRawEvents(ctx)
	if err != nil {
		return Counts{}, fmt.Errorf("stage all new: %w", err)
	}
	return s.stageEvents(ctx, events)
}

// RestageAll re-derives and overwrites the staging record of every raw
// event. Used to backfill after a normalization change.
func (s *Stager) RestageAll(ctx context.Context) (Counts, error) {
	events, err := s.store.ListRawEvents(ctx)
	if err != nil {
		return Counts{}, fmt.Errorf("restage all: %w", err)
	}
	return s.stageEvents(ctx, events)
}

// Restage re-derives and overwrites the staging record of one raw event.
func (s *Stager) Restage(ctx context.Context, rawEventID string) (ledger.StagingRecord, error) {
	ev, err := s.store.GetRawEvent(ctx, rawEventID)
	if err != nil {
		return ledger.StagingRecord{}, fmt.Errorf("restage: %w", err)
	}

	rec, ok := Stage(ev)
	if !ok {
		return ledger.StagingRecord{}, fmt.Errorf("restage %s (collection %q): %w", rawEventID, ev.CollectionID, ErrUnclassified)
	}
	if err := s.write(ctx, rec); err != nil {
		return ledger.StagingRecord{}, fmt.Errorf("restage: %w", err)
	}
	rec.RawSeq = ev.Seq
	return rec, nil
}

func (s *Stager) stageEvents(ctx context.Context, events []ledger.RawEvent) (Counts, error) {
	var counts Counts
	for _, ev := range events {
		rec, ok := Stage(ev)
		if !ok {
			counts.Skipped++
			s.logger.Debug("raw event not staged: unknown collection",
				"raw_event_id", ev.ID,
				"collection", ev.CollectionID,
			)
			continue
		}
		if err := s.write(ctx, rec); err != nil {
			return counts, fmt.Errorf("stage %s: %w", ev.RowKey, err)
		}
		counts.add(rec)
	}
	return counts, nil
}

func (s *Stager) write(ctx context.Context, rec ledger.StagingRecord) error {
	if err := s.store.UpsertStaging(ctx, rec); err != nil {
		return err
	}
	s.metrics.ObserveStaged(rec.Kind, rec.IsValid)
	if !rec.IsValid {
		s.logger.Info("staged invalid record",
			"raw_event_id", rec.RawEventID,
			"kind", rec.Kind,
			"errors", rec.Errors,
		)
	}
	return nil
}
