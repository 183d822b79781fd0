package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/driveledger/internal/ledger"
)

// timeLayout is fixed-width so that text comparison in SQL orders by time.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
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

// nullString maps "" to SQL NULL, for optional references.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// marshalPayload stores payloads in canonical form so the stored text is
// exactly what ContentHash was computed over.
func marshalPayload(p ledger.Payload) string {
	return string(ledger.MarshalCanonical(p))
}

func unmarshalPayload(s string) (ledger.Payload, error) {
	p := ledger.Payload{}
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return p, nil
}

// marshalCodes encodes validation codes as a JSON array; nil encodes as [].
func marshalCodes(codes []string) (string, error) {
	if codes == nil {
		codes = []string{}
	}
	b, err := json.Marshal(codes)
	if err != nil {
		return "", fmt.Errorf("marshal validation errors: %w", err)
	}
	return string(b), nil
}

func unmarshalCodes(s string) ([]string, error) {
	codes := []string{}
	if err := json.Unmarshal([]byte(s), &codes); err != nil {
		return nil, fmt.Errorf("unmarshal validation errors: %w", err)
	}
	return codes, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
