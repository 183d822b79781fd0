package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/driveledger/internal/ledger"
)

const driveEventColumns = `id, drive_id, event_type, event_time, raw_event_id,
	batch_id, client, computer_serial, notes, created_at`

// DriveBySerial returns the drive with the given normalized serial,
// or nil when none exists.
func (t *Tx) DriveBySerial(ctx context.Context, serial string) (*ledger.Drive, error) {
	d, err := scanDrive(t.tx.QueryRowContext(ctx, `
		SELECT id, serial_norm, first_seen_at, last_seen_at
		FROM drives WHERE serial_norm = ?
	`, serial))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// UpsertDrive inserts d or, when its serial exists, replaces the seen
// bounds. The stored ID is never changed by an update.
func (t *Tx) UpsertDrive(ctx context.Context, d ledger.Drive) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE drives SET first_seen_at = ?, last_seen_at = ?
		WHERE serial_norm = ?
	`, formatTime(d.FirstSeenAt), formatTime(d.LastSeenAt), d.Serial)
	if err != nil {
		return wrapWriteErr("upsert drive", "drives", d.Serial, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("upsert drive: rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO drives (id, serial_norm, first_seen_at, last_seen_at)
		VALUES (?, ?, ?, ?)
	`, d.ID, d.Serial, formatTime(d.FirstSeenAt), formatTime(d.LastSeenAt))
	if err != nil {
		return wrapWriteErr("upsert drive", "drives", d.Serial, err)
	}
	return nil
}

// BatchByID returns the batch with the given business id, or nil.
func (t *Tx) BatchByID(ctx context.Context, batchID string) (*ledger.Batch, error) {
	b, err := scanBatch(t.tx.QueryRowContext(ctx, `
		SELECT batch_id, batch_date, client, location, tech, first_seen_at, last_seen_at
		FROM batches WHERE batch_id = ?
	`, batchID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// UpsertBatch inserts b or replaces every non-key column of the
// existing batch.
func (t *Tx) UpsertBatch(ctx context.Context, b ledger.Batch) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO batches (batch_id, batch_date, client, location, tech, first_seen_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(batch_id) DO UPDATE SET
			batch_date = excluded.batch_date,
			client = excluded.client,
			location = excluded.location,
			tech = excluded.tech,
			first_seen_at = excluded.first_seen_at,
			last_seen_at = excluded.last_seen_at
	`, b.BatchID, nullString(b.BatchDate), b.Client, b.Location, b.Tech,
		formatTime(b.FirstSeenAt), formatTime(b.LastSeenAt))
	if err != nil {
		return wrapWriteErr("upsert batch", "batches", b.BatchID, err)
	}
	return nil
}

// InsertDriveEvent records a lifecycle event. Returns inserted=false when
// an event with the same ID or the same (raw event, type) already exists;
// the existing row is not modified. Callers that need to know which row
// won use DriveEventBySource.
func (t *Tx) InsertDriveEvent(ctx context.Context, ev ledger.DriveEvent) (inserted bool, err error) {
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO drive_events
		(id, drive_id, event_type, event_time, raw_event_id,
		 batch_id, client, computer_serial, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		ev.ID, ev.DriveID, string(ev.EventType), formatTime(ev.EventTime), ev.RawEventID,
		nullString(ev.BatchID), ev.Client, ev.ComputerSerial, ev.Notes, formatTime(ev.CreatedAt),
	)
	if err != nil {
		return false, wrapWriteErr("insert drive event", "drive_events", ev.RawEventID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert drive event: rows affected: %w", err)
	}
	return n > 0, nil
}

// DriveEventBySource returns the event recorded for (rawEventID, eventType),
// or nil.
func (t *Tx) DriveEventBySource(ctx context.Context, rawEventID string, eventType ledger.EventType) (*ledger.DriveEvent, error) {
	ev, err := scanDriveEvent(t.tx.QueryRowContext(ctx, `
		SELECT `+driveEventColumns+`
		FROM drive_events WHERE raw_event_id = ? AND event_type = ?
	`, rawEventID, string(eventType)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// GetDrive returns the drive with the given normalized serial, or ErrNotFound.
func (s *Store) GetDrive(ctx context.Context, serial string) (ledger.Drive, error) {
	d, err := scanDrive(s.db.QueryRowContext(ctx, `
		SELECT id, serial_norm, first_seen_at, last_seen_at
		FROM drives WHERE serial_norm = ?
	`, serial))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Drive{}, fmt.Errorf("drive %s: %w", serial, ErrNotFound)
	}
	return d, err
}

// ListDrives returns all drives ordered by serial.
func (s *Store) ListDrives(ctx context.Context) ([]ledger.Drive, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, serial_norm, first_seen_at, last_seen_at
		FROM drives
		ORDER BY serial_norm COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query drives: %w", err)
	}
	defer rows.Close()

	drives := []ledger.Drive{}
	for rows.Next() {
		d, err := scanDrive(rows)
		if err != nil {
			return nil, err
		}
		drives = append(drives, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drives: %w", err)
	}
	return drives, nil
}

// GetBatch returns the batch with the given business id, or ErrNotFound.
func (s *Store) GetBatch(ctx context.Context, batchID string) (ledger.Batch, error) {
	b, err := scanBatch(s.db.QueryRowContext(ctx, `
		SELECT batch_id, batch_date, client, location, tech, first_seen_at, last_seen_at
		FROM batches WHERE batch_id = ?
	`, batchID))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Batch{}, fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
	}
	return b, err
}

// ListDriveEvents returns a drive's events ordered by (event_time, id).
func (s *Store) ListDriveEvents(ctx context.Context, driveID string) ([]ledger.DriveEvent, error) {
	return s.queryDriveEvents(ctx, `
		SELECT `+driveEventColumns+`
		FROM drive_events
		WHERE drive_id = ?
		ORDER BY event_time ASC, id COLLATE BINARY ASC
	`, driveID)
}

func (s *Store) queryDriveEvents(ctx context.Context, query string, args ...any) ([]ledger.DriveEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query drive events: %w", err)
	}
	defer rows.Close()

	events := []ledger.DriveEvent{}
	for rows.Next() {
		ev, err := scanDriveEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drive events: %w", err)
	}
	return events, nil
}

// Counts is a row count per ledger table.
type Counts struct {
	RawEvents      int `json:"raw_events"`
	ShredStaging   int `json:"stg_shred_serial"`
	RemovalStaging int `json:"stg_drive_removal"`
	Drives         int `json:"drives"`
	Batches        int `json:"batches"`
	DriveEvents    int `json:"drive_events"`
	MatchDecisions int `json:"match_decisions"`
}

// Count returns row counts for every ledger table.
func (s *Store) Count(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM raw_events),
			(SELECT COUNT(*) FROM stg_shred_serial),
			(SELECT COUNT(*) FROM stg_drive_removal),
			(SELECT COUNT(*) FROM drives),
			(SELECT COUNT(*) FROM batches),
			(SELECT COUNT(*) FROM drive_events),
			(SELECT COUNT(*) FROM match_decisions)
	`).Scan(&c.RawEvents, &c.ShredStaging, &c.RemovalStaging,
		&c.Drives, &c.Batches, &c.DriveEvents, &c.MatchDecisions)
	if err != nil {
		return Counts{}, fmt.Errorf("count tables: %w", err)
	}
	return c, nil
}

func scanDrive(sc scanner) (ledger.Drive, error) {
	var (
		d           ledger.Drive
		first, last string
	)
	if err := sc.Scan(&d.ID, &d.Serial, &first, &last); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Drive{}, err
		}
		return ledger.Drive{}, fmt.Errorf("scan drive: %w", err)
	}
	var err error
	if d.FirstSeenAt, err = parseTime(first); err != nil {
		return ledger.Drive{}, err
	}
	if d.LastSeenAt, err = parseTime(last); err != nil {
		return ledger.Drive{}, err
	}
	return d, nil
}

func scanBatch(sc scanner) (ledger.Batch, error) {
	var (
		b           ledger.Batch
		batchDate   sql.NullString
		first, last string
	)
	if err := sc.Scan(&b.BatchID, &batchDate, &b.Client, &b.Location, &b.Tech, &first, &last); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Batch{}, err
		}
		return ledger.Batch{}, fmt.Errorf("scan batch: %w", err)
	}
	b.BatchDate = batchDate.String
	var err error
	if b.FirstSeenAt, err = parseTime(first); err != nil {
		return ledger.Batch{}, err
	}
	if b.LastSeenAt, err = parseTime(last); err != nil {
		return ledger.Batch{}, err
	}
	return b, nil
}

func scanDriveEvent(sc scanner) (ledger.DriveEvent, error) {
	var (
		ev                   ledger.DriveEvent
		eventType            string
		batchID              sql.NullString
		eventTime, createdAt string
	)
	err := sc.Scan(&ev.ID, &ev.DriveID, &eventType, &eventTime, &ev.RawEventID,
		&batchID, &ev.Client, &ev.ComputerSerial, &ev.Notes, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.DriveEvent{}, err
		}
		return ledger.DriveEvent{}, fmt.Errorf("scan drive event: %w", err)
	}
	ev.EventType = ledger.EventType(eventType)
	ev.BatchID = batchID.String
	if ev.EventTime, err = parseTime(eventTime); err != nil {
		return ledger.DriveEvent{}, err
	}
	if ev.CreatedAt, err = parseTime(createdAt); err != nil {
		return ledger.DriveEvent{}, err
	}
	return ev, nil
}
