// Package report reads the reporting views: the drive lifecycle, the
// unmatched removals and shreds, and the ambiguous decisions.
//
// Every query is read-only. Decision views are filtered by rule version.
package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/roach88/driveledger/internal/store"
)

// View names accepted by Run.
const (
	ViewLifecycle         = "lifecycle"
	ViewUnmatchedRemovals = "unmatched-removals"
	ViewUnmatchedShreds   = "unmatched-shreds"
	ViewAmbiguous         = "ambiguous"
)

// ErrUnknownView is returned by Run for a name not in Views.
var ErrUnknownView = errors.New("unknown report view")

// LifecycleRow is one drive with its first removal and shred, and the
// decision of the requested rule version if one exists.
type LifecycleRow struct {
	DriveID     string     `json:"drive_id"`
	Serial      string     `json:"serial_norm"`
	RemovalTime *time.Time `json:"removal_time,omitempty"`
	ShredTime   *time.Time `json:"shred_time,omitempty"`
	BatchID     string     `json:"batch_id,omitempty"`
	Client      string     `json:"client,omitempty"`
	Decision    string     `json:"decision,omitempty"`
	Confidence  *float64   `json:"confidence,omitempty"`
}

// UnmatchedRemoval is a REMOVED event whose drive was decided NO_MATCH.
type UnmatchedRemoval struct {
	RuleVersion    string    `json:"rule_version"`
	EventID        string    `json:"event_id"`
	Serial         string    `json:"serial_norm"`
	RemovalTime    time.Time `json:"removal_time"`
	ComputerSerial string    `json:"computer_serial,omitempty"`
	Client         string    `json:"client,omitempty"`
	Notes          string    `json:"notes,omitempty"`
}

// UnmatchedShred is a SHREDDED event whose drive was decided NO_MATCH.
type UnmatchedShred struct {
	RuleVersion string    `json:"rule_version"`
	EventID     string    `json:"event_id"`
	Serial      string    `json:"serial_norm"`
	ShredTime   time.Time `json:"shred_time"`
	BatchID     string    `json:"batch_id,omitempty"`
	Client      string    `json:"client,omitempty"`
}

// AmbiguousMatch is an AMBIGUOUS decision awaiting review.
type AmbiguousMatch struct {
	DecisionID  string    `json:"decision_id"`
	RuleVersion string    `json:"rule_version"`
	Serial      string    `json:"serial_norm"`
	Confidence  float64   `json:"confidence"`
	Reason      string    `json:"reason"`
	DecidedAt   time.Time `json:"decided_at"`
}

// Reporter queries the views of one store.
type Reporter struct {
	store *store.Store
}

// New returns a Reporter over s.
func New(s *store.Store) *Reporter {
	return &Reporter{store: s}
}

// Views returns the view names Run accepts, sorted.
func Views() []string {
	names := []string{ViewLifecycle, ViewUnmatchedRemovals, ViewUnmatchedShreds, ViewAmbiguous}
	sort.Strings(names)
	return names
}

// Run dispatches to the query for view. The result is one of the slice
// types returned by the named methods.
func (r *Reporter) Run(ctx context.Context, view, ruleVersion string) (any, error) {
	switch view {
	case ViewLifecycle:
		return r.Lifecycle(ctx, ruleVersion)
	case ViewUnmatchedRemovals:
		return r.UnmatchedRemovals(ctx, ruleVersion)
	case ViewUnmatchedShreds:
		return r.UnmatchedShreds(ctx, ruleVersion)
	case ViewAmbiguous:
		return r.Ambiguous(ctx, ruleVersion)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownView, view)
}

// Lifecycle returns every drive ordered by serial.
func (r *Reporter) Lifecycle(ctx context.Context, ruleVersion string) ([]LifecycleRow, error) {
	rows, err := r.store.Query(ctx, `
		SELECT v.drive_id, v.serial_norm, v.removal_time, v.shred_time,
		       v.batch_id, v.client, md.decision, md.confidence
		FROM v_drive_lifecycle v
		LEFT JOIN match_decisions md
		       ON md.drive_id = v.drive_id AND md.rule_version = ?
		ORDER BY v.serial_norm
	`, ruleVersion)
	if err != nil {
		return nil, fmt.Errorf("lifecycle report: %w", err)
	}
	defer rows.Close()

	out := []LifecycleRow{}
	for rows.Next() {
		var (
			row                LifecycleRow
			removal, shred     sql.NullString
			batch, client, dec sql.NullString
			confidence         sql.NullFloat64
		)
		if err := rows.Scan(&row.DriveID, &row.Serial, &removal, &shred, &batch, &client, &dec, &confidence); err != nil {
			return nil, fmt.Errorf("lifecycle report: %w", err)
		}
		if row.RemovalTime, err = parseNullTime(removal); err != nil {
			return nil, fmt.Errorf("lifecycle report: %w", err)
		}
		if row.ShredTime, err = parseNullTime(shred); err != nil {
			return nil, fmt.Errorf("lifecycle report: %w", err)
		}
		row.BatchID = batch.String
		row.Client = client.String
		row.Decision = dec.String
		if confidence.Valid {
			c := confidence.Float64
			row.Confidence = &c
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lifecycle report: %w", err)
	}
	return out, nil
}

// UnmatchedRemovals returns removals with no shred under ruleVersion,
// oldest first.
func (r *Reporter) UnmatchedRemovals(ctx context.Context, ruleVersion string) ([]UnmatchedRemoval, error) {
	rows, err := r.store.Query(ctx, `
		SELECT rule_version, event_id, serial_norm, removal_time,
		       computer_serial, client, notes
		FROM v_unmatched_removals
		WHERE rule_version = ?
		ORDER BY removal_time, serial_norm
	`, ruleVersion)
	if err != nil {
		return nil, fmt.Errorf("unmatched removals report: %w", err)
	}
	defer rows.Close()

	out := []UnmatchedRemoval{}
	for rows.Next() {
		var (
			row                     UnmatchedRemoval
			at                      string
			computer, client, notes sql.NullString
		)
		if err := rows.Scan(&row.RuleVersion, &row.EventID, &row.Serial, &at, &computer, &client, &notes); err != nil {
			return nil, fmt.Errorf("unmatched removals report: %w", err)
		}
		if row.RemovalTime, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("unmatched removals report: %w", err)
		}
		row.ComputerSerial = computer.String
		row.Client = client.String
		row.Notes = notes.String
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("unmatched removals report: %w", err)
	}
	return out, nil
}

// UnmatchedShreds returns shreds with no removal under ruleVersion,
// oldest first.
func (r *Reporter) UnmatchedShreds(ctx context.Context, ruleVersion string) ([]UnmatchedShred, error) {
	rows, err := r.store.Query(ctx, `
		SELECT rule_version, event_id, serial_norm, shred_time, batch_id, client
		FROM v_unmatched_shreds
		WHERE rule_version = ?
		ORDER BY shred_time, serial_norm
	`, ruleVersion)
	if err != nil {
		return nil, fmt.Errorf("unmatched shreds report: %w", err)
	}
	defer rows.Close()

	out := []UnmatchedShred{}
	for rows.Next() {
		var (
			row           UnmatchedShred
			at            string
			batch, client sql.NullString
		)
		if err := rows.Scan(&row.RuleVersion, &row.EventID, &row.Serial, &at, &batch, &client); err != nil {
			return nil, fmt.Errorf("unmatched shreds report: %w", err)
		}
		if row.ShredTime, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("unmatched shreds report: %w", err)
		}
		row.BatchID = batch.String
		row.Client = client.String
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("unmatched shreds report: %w", err)
	}
	return out, nil
}

// Ambiguous returns the AMBIGUOUS decisions of ruleVersion by serial.
func (r *Reporter) Ambiguous(ctx context.Context, ruleVersion string) ([]AmbiguousMatch, error) {
	rows, err := r.store.Query(ctx, `
		SELECT decision_id, rule_version, serial_norm, confidence, reason, decided_at
		FROM v_ambiguous_matches
		WHERE rule_version = ?
		ORDER BY serial_norm
	`, ruleVersion)
	if err != nil {
		return nil, fmt.Errorf("ambiguous report: %w", err)
	}
	defer rows.Close()

	out := []AmbiguousMatch{}
	for rows.Next() {
		var (
			row AmbiguousMatch
			at  string
		)
		if err := rows.Scan(&row.DecisionID, &row.RuleVersion, &row.Serial, &row.Confidence, &row.Reason, &at); err != nil {
			return nil, fmt.Errorf("ambiguous report: %w", err)
		}
		if row.DecidedAt, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("ambiguous report: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ambiguous report: %w", err)
	}
	return out, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.UTC(), nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
