package ledger

import (
	"time"

	"github.com/google/uuid"
)

// IDGenerator produces IDs for entities whose identity is a business key
// (drives, decisions) rather than content.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 IDs.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Clock supplies wall-clock time for ingested_at, created_at and decided_at.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real clock, in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
