package store

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/driveledger/internal/ledger"
)

const (
	shredColumns = `s.raw_event_id, s.batch_id, s.batch_date, s.client, s.location, s.tech,
		s.serial_raw, s.serial_norm, s.dedupe_key, s.event_time, s.is_valid, s.validation_errors, r.seq`
	removalColumns = `d.raw_event_id, d.client, d.computer_serial_raw, d.computer_serial_norm,
		d.drive_serial_raw, d.drive_serial_norm, d.notes, d.tech_email,
		d.event_time, d.is_valid, d.validation_errors, r.seq`
)

// UpsertStaging writes the staging row for rec.RawEventID, replacing any
// existing row. Staging rows are pure functions of their raw event, so
// re-staging the same event writes identical values.
func (s *Store) UpsertStaging(ctx context.Context, rec ledger.StagingRecord) error {
	codes, err := marshalCodes(rec.Errors)
	if err != nil {
		return err
	}

	switch {
	case rec.Kind == ledger.KindShredSerial && rec.Shred != nil:
		f := rec.Shred
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO stg_shred_serial
			(raw_event_id, batch_id, batch_date, client, location, tech,
			 serial_raw, serial_norm, dedupe_key, event_time, is_valid, validation_errors)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(raw_event_id) DO UPDATE SET
				batch_id = excluded.batch_id,
				batch_date = excluded.batch_date,
				client = excluded.client,
				location = excluded.location,
				tech = excluded.tech,
				serial_raw = excluded.serial_raw,
				serial_norm = excluded.serial_norm,
				dedupe_key = excluded.dedupe_key,
				event_time = excluded.event_time,
				is_valid = excluded.is_valid,
				validation_errors = excluded.validation_errors
		`,
			rec.RawEventID, f.BatchID, nullString(f.BatchDate), f.Client, f.Location, f.Tech,
			f.SerialRaw, f.SerialNorm, f.DedupeKey, formatTime(rec.EventTime),
			boolToInt(rec.IsValid), codes,
		)
		if err != nil {
			return wrapWriteErr("upsert shred staging", "stg_shred_serial", rec.RawEventID, err)
		}

	case rec.Kind == ledger.KindDriveRemoval && rec.Removal != nil:
		f := rec.Removal
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO stg_drive_removal
			(raw_event_id, client, computer_serial_raw, computer_serial_norm,
			 drive_serial_raw, drive_serial_norm, notes, tech_email,
			 event_time, is_valid, validation_errors)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(raw_event_id) DO UPDATE SET
				client = excluded.client,
				computer_serial_raw = excluded.computer_serial_raw,
				computer_serial_norm = excluded.computer_serial_norm,
				drive_serial_raw = excluded.drive_serial_raw,
				drive_serial_norm = excluded.drive_serial_norm,
				notes = excluded.notes,
				tech_email = excluded.tech_email,
				event_time = excluded.event_time,
				is_valid = excluded.is_valid,
				validation_errors = excluded.validation_errors
		`,
			rec.RawEventID, f.Client, f.ComputerSerialRaw, f.ComputerSerialNorm,
			f.DriveSerialRaw, f.DriveSerialNorm, f.Notes, f.TechEmail,
			formatTime(rec.EventTime), boolToInt(rec.IsValid), codes,
		)
		if err != nil {
			return wrapWriteErr("upsert removal staging", "stg_drive_removal", rec.RawEventID, err)
		}

	default:
		return fmt.Errorf("upsert staging %s: unsupported kind %q", rec.RawEventID, rec.Kind)
	}

	return nil
}

// GetStaging returns the staging row derived from rawEventID, or ErrNotFound.
func (s *Store) GetStaging(ctx context.Context, rawEventID string) (ledger.StagingRecord, error) {
	rec, err := scanShred(s.db.QueryRowContext(ctx, `
		SELECT `+shredColumns+`
		FROM stg_shred_serial s JOIN raw_events r ON r.id = s.raw_event_id
		WHERE s.raw_event_id = ?
	`, rawEventID))
	if err == nil || !errors.Is(err, sql.ErrNoRows) {
		return rec, err
	}

	rec, err = scanRemoval(s.db.QueryRowContext(ctx, `
		SELECT `+removalColumns+`
		FROM stg_drive_removal d JOIN raw_events r ON r.id = d.raw_event_id
		WHERE d.raw_event_id = ?
	`, rawEventID))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.StagingRecord{}, fmt.Errorf("staging for %s: %w", rawEventID, ErrNotFound)
	}
	return rec, err
}

// ListStaging returns every staging row of one kind in raw event order.
func (s *Store) ListStaging(ctx context.Context, kind ledger.RecordKind) ([]ledger.StagingRecord, error) {
	switch kind {
	case ledger.KindShredSerial:
		return s.queryStaging(ctx, scanShred, `
			SELECT `+shredColumns+`
			FROM stg_shred_serial s JOIN raw_events r ON r.id = s.raw_event_id
			ORDER BY r.seq ASC
		`)
	case ledger.KindDriveRemoval:
		return s.queryStaging(ctx, scanRemoval, `
			SELECT `+removalColumns+`
			FROM stg_drive_removal d JOIN raw_events r ON r.id = d.raw_event_id
			ORDER BY r.seq ASC
		`)
	}
	return nil, fmt.Errorf("list staging: unsupported kind %q", kind)
}

// ListPromotable returns valid staging rows of both kinds that have no
// drive event yet, merged in raw event order.
func (s *Store) ListPromotable(ctx context.Context) ([]ledger.StagingRecord, error) {
	shreds, err := s.queryStaging(ctx, scanShred, `
		SELECT `+shredColumns+`
		FROM stg_shred_serial s JOIN raw_events r ON r.id = s.raw_event_id
		WHERE s.is_valid = 1
		  AND NOT EXISTS (
			SELECT 1 FROM drive_events de
			WHERE de.raw_event_id = s.raw_event_id AND de.event_type = 'SHREDDED')
		ORDER BY r.seq ASC
	`)
	if err != nil {
		return nil, err
	}

	removals, err := s.queryStaging(ctx, scanRemoval, `
		SELECT `+removalColumns+`
		FROM stg_drive_removal d JOIN raw_events r ON r.id = d.raw_event_id
		WHERE d.is_valid = 1
		  AND NOT EXISTS (
			SELECT 1 FROM drive_events de
			WHERE de.raw_event_id = d.raw_event_id AND de.event_type = 'REMOVED')
		ORDER BY r.seq ASC
	`)
	if err != nil {
		return nil, err
	}

	all := append(shreds, removals...)
	slices.SortStableFunc(all, func(a, b ledger.StagingRecord) int {
		return cmp.Compare(a.RawSeq, b.RawSeq)
	})
	return all, nil
}

// StagingCounts summarizes one staging table.
type StagingCounts struct {
	Total   int `json:"total"`
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
}

// CountStaging returns row counts for one staging table.
func (s *Store) CountStaging(ctx context.Context, kind ledger.RecordKind) (StagingCounts, error) {
	var table string
	switch kind {
	case ledger.KindShredSerial:
		table = "stg_shred_serial"
	case ledger.KindDriveRemoval:
		table = "stg_drive_removal"
	default:
		return StagingCounts{}, fmt.Errorf("count staging: unsupported kind %q", kind)
	}

	var c StagingCounts
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(is_valid), 0) FROM `+table).Scan(&c.Total, &c.Valid)
	if err != nil {
		return StagingCounts{}, fmt.Errorf("count %s: %w", table, err)
	}
	c.Invalid = c.Total - c.Valid
	return c, nil
}

func (s *Store) queryStaging(ctx context.Context, scan func(scanner) (ledger.StagingRecord, error), query string, args ...any) ([]ledger.StagingRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query staging: %w", err)
	}
	defer rows.Close()

	records := []ledger.StagingRecord{}
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate staging: %w", err)
	}
	return records, nil
}

func scanShred(sc scanner) (ledger.StagingRecord, error) {
	var (
		rec       = ledger.StagingRecord{Kind: ledger.KindShredSerial, Shred: &ledger.ShredFields{}}
		f         = rec.Shred
		batchDate sql.NullString
		eventTime string
		valid     int
		codes     string
	)
	err := sc.Scan(
		&rec.RawEventID, &f.BatchID, &batchDate, &f.Client, &f.Location, &f.Tech,
		&f.SerialRaw, &f.SerialNorm, &f.DedupeKey, &eventTime, &valid, &codes, &rec.RawSeq,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.StagingRecord{}, err
		}
		return ledger.StagingRecord{}, fmt.Errorf("scan shred staging: %w", err)
	}
	f.BatchDate = batchDate.String
	return finishStaging(rec, eventTime, valid, codes)
}

func scanRemoval(sc scanner) (ledger.StagingRecord, error) {
	var (
		rec       = ledger.StagingRecord{Kind: ledger.KindDriveRemoval, Removal: &ledger.RemovalFields{}}
		f         = rec.Removal
		eventTime string
		valid     int
		codes     string
	)
	err := sc.Scan(
		&rec.RawEventID, &f.Client, &f.ComputerSerialRaw, &f.ComputerSerialNorm,
		&f.DriveSerialRaw, &f.DriveSerialNorm, &f.Notes, &f.TechEmail,
		&eventTime, &valid, &codes, &rec.RawSeq,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.StagingRecord{}, err
		}
		return ledger.StagingRecord{}, fmt.Errorf("scan removal staging: %w", err)
	}
	return finishStaging(rec, eventTime, valid, codes)
}

func finishStaging(rec ledger.StagingRecord, eventTime string, valid int, codes string) (ledger.StagingRecord, error) {
	var err error
	if rec.EventTime, err = parseTime(eventTime); err != nil {
		return ledger.StagingRecord{}, err
	}
	if rec.Errors, err = unmarshalCodes(codes); err != nil {
		return ledger.StagingRecord{}, err
	}
	rec.IsValid = valid == 1
	return rec, nil
}
