package stage

import (
	"strings"
	"time"

	"github.com/roach88/driveledger/internal/ledger"
)

// Field is the result of extracting one business field from a payload.
type Field struct {
	Value   string // raw value as captured, "" when absent
	Present bool   // a non-blank value was found
}

// Extract returns the first non-blank value among aliases, in order.
// It never fails: absent or blank columns yield a Field with Present false.
func Extract(p ledger.Payload, aliases ...string) Field {
	for _, name := range aliases {
		if v, ok := p[name]; ok && strings.TrimSpace(v) != "" {
			return Field{Value: v, Present: true}
		}
	}
	return Field{}
}

// Text returns the trimmed value.
func (f Field) Text() string {
	return strings.TrimSpace(f.Value)
}

// Column aliases, in lookup order. Spreadsheet exports and hand-made CSVs
// disagree on header spelling.
var (
	aliasBatchID        = []string{"Batch ID", "batch_id"}
	aliasBatchDate      = []string{"Batch Date", "batch_date"}
	aliasClient         = []string{"Client", "client"}
	aliasLocation       = []string{"Location", "location"}
	aliasTech           = []string{"Tech", "tech", "Technician"}
	aliasSerial         = []string{"Serial Number", "serial_number", "Serial"}
	aliasComputerSerial = []string{"Computer Serial Number", "computer_serial", "Computer Serial"}
	aliasDriveSerial    = []string{"Drive Serial Number", "drive_serial", "Drive Serial"}
	aliasNotes          = []string{"Notes", "notes"}
	aliasTechEmail      = []string{"Tech Email", "tech_email", "Email"}
)

// batchDateLayouts are tried in order. An ambiguous date such as 03/04/2024
// is read month-first.
var batchDateLayouts = []string{
	"2006-01-02",
	"1/2/2006",
	"2/1/2006",
}

// ParseBatchDate parses a batch date and returns it as YYYY-MM-DD.
func ParseBatchDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range batchDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

// Classify maps a source collection to the staging variant its rows
// belong to, by a case-insensitive substring match.
func Classify(collectionID string) ledger.RecordKind {
	lower := strings.ToLower(collectionID)
	switch {
	case strings.Contains(lower, "shred"):
		return ledger.KindShredSerial
	case strings.Contains(lower, "removal"):
		return ledger.KindDriveRemoval
	}
	return ledger.KindUnknown
}
