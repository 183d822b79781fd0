package promote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/driveledger/internal/ledger"
	"github.com/roach88/driveledger/internal/metrics"
	"github.com/roach88/driveledger/internal/store"
)

// ErrInvalidRecord is returned when asked to promote a record that failed
// validation or names no drive serial.
var ErrInvalidRecord = errors.New("staging record is not promotable")

// Result describes what one Promote call wrote.
type Result struct {
	DriveID       string `json:"drive_id"`
	BatchID       string `json:"batch_id,omitempty"`
	EventID       string `json:"event_id"`
	EventInserted bool   `json:"event_inserted"`
}

// Counts summarizes one PromoteAllValid run.
type Counts struct {
	Shred   int `json:"shred"`   // SHREDDED events created
	Removal int `json:"removal"` // REMOVED events created
	Noop    int `json:"noop"`    // records whose event already existed
	Defects int `json:"defects"` // records rejected by a constraint
}

// Promoter writes Gold entities and events.
type Promoter struct {
	store   *store.Store
	ids     ledger.IDGenerator
	clock   ledger.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// PromoterOption configures a Promoter.
type PromoterOption func(*Promoter)

// WithIDGenerator sets the generator for new drive IDs. Default: UUIDv7.
func WithIDGenerator(g ledger.IDGenerator) PromoterOption {
	return func(p *Promoter) {
		p.ids = g
	}
}

// WithClock sets the clock used for created_at. Default: SystemClock.
func WithClock(c ledger.Clock) PromoterOption {
	return func(p *Promoter) {
		p.clock = c
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) PromoterOption {
	return func(p *Promoter) {
		p.logger = l
	}
}

// WithMetrics enables promotion counters.
func WithMetrics(m *metrics.Metrics) PromoterOption {
	return func(p *Promoter) {
		p.metrics = m
	}
}

// NewPromoter creates a Promoter over s.
func NewPromoter(s *store.Store, opts ...PromoterOption) *Promoter {
	p := &Promoter{
		store:  s,
		ids:    ledger.UUIDv7Generator{},
		clock:  ledger.SystemClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Promote writes the entities and the lifecycle event for one valid
// staging record in a single transaction.
//
// A shred record upserts its batch (when it names one), upserts the drive
// and inserts a SHREDDED event. A removal record upserts the drive and
// inserts a REMOVED event. If the event already exists for this raw event
// the call is a no-op and Result.EventInserted is false.
//
// An existing event that belongs to a different drive, or any other
// constraint violation, returns a *store.ConstraintError and nothing is
// written.
func (p *Promoter) Promote(ctx context.Context, rec ledger.StagingRecord) (Result, error) {
	serial := rec.DriveSerial()
	if !rec.IsValid || serial == "" {
		return Result{}, fmt.Errorf("promote %s: %w", rec.RawEventID, ErrInvalidRecord)
	}

	eventType := rec.EventType()
	var result Result

	err := p.store.InTx(ctx, func(tx *store.Tx) error {
		batchID := ""
		if rec.Shred != nil && rec.Shred.BatchID != "" {
			batchID = rec.Shred.BatchID
			if err := p.upsertBatch(ctx, tx, rec); err != nil {
				return err
			}
		}

		drive, err := p.upsertDrive(ctx, tx, serial, rec)
		if err != nil {
			return err
		}

		ev := ledger.DriveEvent{
			ID:         ledger.DriveEventID(rec.RawEventID, eventType),
			DriveID:    drive.ID,
			EventType:  eventType,
			EventTime:  rec.EventTime,
			RawEventID: rec.RawEventID,
			BatchID:    batchID,
			CreatedAt:  p.clock.Now().UTC(),
		}
		switch {
		case rec.Shred != nil:
			ev.Client = rec.Shred.Client
		case rec.Removal != nil:
			ev.Client = rec.Removal.Client
			ev.ComputerSerial = rec.Removal.ComputerSerialNorm
			ev.Notes = rec.Removal.Notes
		}

		inserted, err := tx.InsertDriveEvent(ctx, ev)
		if err != nil {
			return err
		}
		if !inserted {
			existing, err := tx.DriveEventBySource(ctx, rec.RawEventID, eventType)
			if err != nil {
				return err
			}
			if existing == nil || existing.DriveID != drive.ID {
				return &store.ConstraintError{
					Op:    "insert drive event",
					Table: "drive_events",
					Key:   ev.ID,
					Err:   store.ErrIdentityConflict,
				}
			}
		}

		result = Result{
			DriveID:       drive.ID,
			BatchID:       batchID,
			EventID:       ev.ID,
			EventInserted: inserted,
		}
		return nil
	})
	if err != nil {
		var cerr *store.ConstraintError
		if errors.As(err, &cerr) {
			p.metrics.ObserveDefect()
			p.logger.Error("promotion rejected by constraint",
				"raw_event_id", rec.RawEventID,
				"kind", rec.Kind,
				"serial", serial,
				"event_type", eventType,
				"op", cerr.Op,
				"table", cerr.Table,
				"key", cerr.Key,
				"error", cerr.Err,
			)
		}
		return Result{}, fmt.Errorf("promote %s: %w", rec.RawEventID, err)
	}

	if result.EventInserted {
		p.metrics.ObservePromoted(rec.Kind)
	}
	return result, nil
}

// PromoteAllValid promotes every valid staging record that has no event
// of its type yet, in raw event insertion order. Safe to re-run.
//
// A record rejected by a constraint does not stop the run; all such
// errors are joined into the returned error.
func (p *Promoter) PromoteAllValid(ctx context.Context) (Counts, error) {
	records, err := p.store.ListPromotable(ctx)
	if err != nil {
		return Counts{}, fmt.Errorf("promote all valid: %w", err)
	}

	var (
		counts  Counts
		defects []error
	)
	for _, rec := range records {
		result, err := p.Promote(ctx, rec)
		if err != nil {
			var cerr *store.ConstraintError
			if errors.As(err, &cerr) {
				counts.Defects++
				defects = append(defects, err)
				continue
			}
			return counts, err
		}

		switch {
		case !result.EventInserted:
			counts.Noop++
		case rec.Kind == ledger.KindShredSerial:
			counts.Shred++
		default:
			counts.Removal++
		}
	}

	if len(defects) > 0 {
		return counts, fmt.Errorf("promote all valid: %d defect(s): %w", len(defects), errors.Join(defects...))
	}
	return counts, nil
}

func (p *Promoter) upsertDrive(ctx context.Context, tx *store.Tx, serial string, rec ledger.StagingRecord) (ledger.Drive, error) {
	existing, err := tx.DriveBySerial(ctx, serial)
	if err != nil {
		return ledger.Drive{}, err
	}

	incoming := ledger.Drive{
		Serial:      serial,
		FirstSeenAt: rec.EventTime,
		LastSeenAt:  rec.EventTime,
	}
	if existing == nil {
		incoming.ID = p.ids.Generate()
	}

	merged := MergeDrive(existing, incoming)
	if err := tx.UpsertDrive(ctx, merged); err != nil {
		return ledger.Drive{}, err
	}
	return merged, nil
}

func (p *Promoter) upsertBatch(ctx context.Context, tx *store.Tx, rec ledger.StagingRecord) error {
	f := rec.Shred
	existing, err := tx.BatchByID(ctx, f.BatchID)
	if err != nil {
		return err
	}

	merged := MergeBatch(existing, ledger.Batch{
		BatchID:     f.BatchID,
		BatchDate:   f.BatchDate,
		Client:      f.Client,
		Location:    f.Location,
		Tech:        f.Tech,
		FirstSeenAt: rec.EventTime,
		LastSeenAt:  rec.EventTime,
	})
	return tx.UpsertBatch(ctx, merged)
}
