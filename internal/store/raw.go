package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/driveledger/internal/ledger"
)

const rawEventColumns = `seq, id, source_system, source_collection_id, source_partition, source_row_key,
	payload, content_hash, schema_version, source_timestamp, ingested_at`

// InsertRawEvent appends a raw event to the Bronze log.
// Returns inserted=false when an event with the same identity
// (source system, collection, partition, row key, content hash) already
// exists; the stored event is left untouched.
//
// The event's Seq is assigned by the store and ignored on input.
func (s *Store) InsertRawEvent(ctx context.Context, ev ledger.RawEvent) (inserted bool, err error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO raw_events
		(id, source_system, source_collection_id, source_partition, source_row_key,
		 payload, content_hash, schema_version, source_timestamp, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		ev.ID,
		ev.SourceSystem,
		ev.CollectionID,
		ev.Partition,
		ev.RowKey,
		marshalPayload(ev.Payload),
		ev.ContentHash,
		ev.SchemaVersion,
		nullTime(ev.SourceTimestamp),
		formatTime(ev.IngestedAt),
	)
	if err != nil {
		return false, wrapWriteErr("insert raw event", "raw_events", ev.RowKey, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert raw event: rows affected: %w", err)
	}
	return n > 0, nil
}

// GetRawEvent returns the raw event with the given ID, or ErrNotFound.
func (s *Store) GetRawEvent(ctx context.Context, id string) (ledger.RawEvent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+rawEventColumns+` FROM raw_events WHERE id = ?`, id)
	ev, err := scanRawEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.RawEvent{}, fmt.Errorf("raw event %s: %w", id, ErrNotFound)
	}
	return ev, err
}

// ListRawEvents returns every raw event in insertion order.
func (s *Store) ListRawEvents(ctx context.Context) ([]ledger.RawEvent, error) {
	return s.queryRawEvents(ctx, `
		SELECT `+rawEventColumns+`
		FROM raw_events
		ORDER BY seq ASC
	`)
}

// ListUnstagedRawEvents returns raw events with no staging row of either
// kind, in insertion order.
func (s *Store) ListUnstagedRawEvents(ctx context.Context) ([]ledger.RawEvent, error) {
	return s.queryRawEvents(ctx, `
		SELECT `+rawEventColumns+`
		FROM raw_events r
		WHERE NOT EXISTS (SELECT 1 FROM stg_shred_serial s WHERE s.raw_event_id = r.id)
		  AND NOT EXISTS (SELECT 1 FROM stg_drive_removal d WHERE d.raw_event_id = r.id)
		ORDER BY seq ASC
	`)
}

// ListRowVersions returns every captured version of one source row,
// oldest first.
func (s *Store) ListRowVersions(ctx context.Context, collectionID, rowKey string) ([]ledger.RawEvent, error) {
	return s.queryRawEvents(ctx, `
		SELECT `+rawEventColumns+`
		FROM raw_events
		WHERE source_collection_id = ? AND source_row_key = ?
		ORDER BY seq ASC
	`, collectionID, rowKey)
}

func (s *Store) queryRawEvents(ctx context.Context, query string, args ...any) ([]ledger.RawEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query raw events: %w", err)
	}
	defer rows.Close()

	events := []ledger.RawEvent{}
	for rows.Next() {
		ev, err := scanRawEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate raw events: %w", err)
	}
	return events, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRawEvent(sc scanner) (ledger.RawEvent, error) {
	var (
		ev         ledger.RawEvent
		payload    string
		sourceTS   sql.NullString
		ingestedAt string
	)
	err := sc.Scan(
		&ev.Seq,
		&ev.ID,
		&ev.SourceSystem,
		&ev.CollectionID,
		&ev.Partition,
		&ev.RowKey,
		&payload,
		&ev.ContentHash,
		&ev.SchemaVersion,
		&sourceTS,
		&ingestedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.RawEvent{}, err
		}
		return ledger.RawEvent{}, fmt.Errorf("scan raw event: %w", err)
	}

	if ev.Payload, err = unmarshalPayload(payload); err != nil {
		return ledger.RawEvent{}, err
	}
	if ev.SourceTimestamp, err = parseNullTime(sourceTS); err != nil {
		return ledger.RawEvent{}, err
	}
	if ev.IngestedAt, err = parseTime(ingestedAt); err != nil {
		return ledger.RawEvent{}, err
	}
	return ev, nil
}
