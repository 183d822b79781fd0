package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/driveledger/internal/ledger"
)

const decisionColumns = `md.id, md.drive_id, md.rule_version, md.decision, md.confidence, md.reason,
	md.removed_event_id, md.shredded_event_id, md.decided_at`

// DriveHistory is a drive together with its lifecycle events, split by
// type. Each slice is ordered by (event_time, id).
type DriveHistory struct {
	Drive    ledger.Drive
	Removed  []ledger.DriveEvent
	Shredded []ledger.DriveEvent
}

// ListDriveHistories returns every drive that has at least one event,
// ordered by serial.
func (s *Store) ListDriveHistories(ctx context.Context) ([]DriveHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.serial_norm, d.first_seen_at, d.last_seen_at,
		       de.id, de.drive_id, de.event_type, de.event_time, de.raw_event_id,
		       de.batch_id, de.client, de.computer_serial, de.notes, de.created_at
		FROM drives d
		JOIN drive_events de ON de.drive_id = d.id
		ORDER BY d.serial_norm COLLATE BINARY ASC, de.event_time ASC, de.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query drive histories: %w", err)
	}
	defer rows.Close()

	histories := []DriveHistory{}
	for rows.Next() {
		var (
			d           ledger.Drive
			first, last string
			ev          ledger.DriveEvent
			eventType   string
			batchID     sql.NullString
			eventTime   string
			createdAt   string
		)
		err := rows.Scan(&d.ID, &d.Serial, &first, &last,
			&ev.ID, &ev.DriveID, &eventType, &eventTime, &ev.RawEventID,
			&batchID, &ev.Client, &ev.ComputerSerial, &ev.Notes, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scan drive history: %w", err)
		}
		ev.EventType = ledger.EventType(eventType)
		ev.BatchID = batchID.String
		if ev.EventTime, err = parseTime(eventTime); err != nil {
			return nil, err
		}
		if ev.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}

		if n := len(histories); n == 0 || histories[n-1].Drive.ID != d.ID {
			if d.FirstSeenAt, err = parseTime(first); err != nil {
				return nil, err
			}
			if d.LastSeenAt, err = parseTime(last); err != nil {
				return nil, err
			}
			histories = append(histories, DriveHistory{Drive: d})
		}
		h := &histories[len(histories)-1]
		switch ev.EventType {
		case ledger.EventRemoved:
			h.Removed = append(h.Removed, ev)
		case ledger.EventShredded:
			h.Shredded = append(h.Shredded, ev)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drive histories: %w", err)
	}
	return histories, nil
}

// UpsertDecision writes the decision for (DriveID, RuleVersion), replacing
// any previous decision of the same version. The stored ID is kept on
// update; decisions of other versions are untouched.
func (t *Tx) UpsertDecision(ctx context.Context, d ledger.MatchDecision) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO match_decisions
		(id, drive_id, rule_version, decision, confidence, reason,
		 removed_event_id, shredded_event_id, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(drive_id, rule_version) DO UPDATE SET
			decision = excluded.decision,
			confidence = excluded.confidence,
			reason = excluded.reason,
			removed_event_id = excluded.removed_event_id,
			shredded_event_id = excluded.shredded_event_id,
			decided_at = excluded.decided_at
	`,
		d.ID, d.DriveID, d.RuleVersion, string(d.Decision), d.Confidence, d.Reason,
		nullString(d.RemovedEventID), nullString(d.ShreddedEventID), formatTime(d.DecidedAt),
	)
	if err != nil {
		return wrapWriteErr("upsert match decision", "match_decisions", d.DriveID+"/"+d.RuleVersion, err)
	}
	return nil
}

// GetDecision returns the decision for a drive under one rule version,
// or ErrNotFound.
func (s *Store) GetDecision(ctx context.Context, driveID, ruleVersion string) (ledger.MatchDecision, error) {
	d, err := scanDecision(s.db.QueryRowContext(ctx, `
		SELECT `+decisionColumns+`
		FROM match_decisions md
		WHERE md.drive_id = ? AND md.rule_version = ?
	`, driveID, ruleVersion))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.MatchDecision{}, fmt.Errorf("decision %s/%s: %w", driveID, ruleVersion, ErrNotFound)
	}
	return d, err
}

// ListDecisions returns the decisions of one rule version ordered by
// drive serial.
func (s *Store) ListDecisions(ctx context.Context, ruleVersion string) ([]ledger.MatchDecision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+decisionColumns+`
		FROM match_decisions md
		JOIN drives d ON d.id = md.drive_id
		WHERE md.rule_version = ?
		ORDER BY d.serial_norm COLLATE BINARY ASC
	`, ruleVersion)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	decisions := []ledger.MatchDecision{}
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}
	return decisions, nil
}

// ListRuleVersions returns the distinct rule versions that have decisions.
func (s *Store) ListRuleVersions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT rule_version FROM match_decisions
		ORDER BY rule_version COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query rule versions: %w", err)
	}
	defer rows.Close()

	versions := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan rule version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rule versions: %w", err)
	}
	return versions, nil
}

func scanDecision(sc scanner) (ledger.MatchDecision, error) {
	var (
		d                  ledger.MatchDecision
		decision           string
		removedID, shredID sql.NullString
		decidedAt          string
	)
	err := sc.Scan(&d.ID, &d.DriveID, &d.RuleVersion, &decision, &d.Confidence, &d.Reason,
		&removedID, &shredID, &decidedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.MatchDecision{}, err
		}
		return ledger.MatchDecision{}, fmt.Errorf("scan decision: %w", err)
	}
	d.Decision = ledger.Decision(decision)
	d.RemovedEventID = removedID.String
	d.ShreddedEventID = shredID.String
	if d.DecidedAt, err = parseTime(decidedAt); err != nil {
		return ledger.MatchDecision{}, err
	}
	return d, nil
}
