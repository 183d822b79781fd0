package ledger

import "time"

// RecordKind identifies which staging variant a raw event maps to.
type RecordKind string

const (
	KindUnknown      RecordKind = ""
	KindShredSerial  RecordKind = "shred_serial"
	KindDriveRemoval RecordKind = "drive_removal"
)

// EventType is the lifecycle transition a DriveEvent records.
type EventType string

const (
	EventRemoved  EventType = "REMOVED"
	EventShredded EventType = "SHREDDED"
)

// Decision is the outcome of matching a drive's events.
type Decision string

const (
	DecisionMatch     Decision = "MATCH"
	DecisionNoMatch   Decision = "NO_MATCH"
	DecisionAmbiguous Decision = "AMBIGUOUS"
)

// RawEvent is one captured source row (Bronze). Never updated or deleted.
//
// Identity is (SourceSystem, CollectionID, Partition, RowKey, ContentHash);
// ID is the content-addressed hash of that tuple.
type RawEvent struct {
	ID              string     `json:"id"`
	Seq             int64      `json:"seq"` // store insertion order
	SourceSystem    string     `json:"source_system"`
	CollectionID    string     `json:"source_collection_id"`
	Partition       string     `json:"source_partition"`
	RowKey          string     `json:"source_row_key"`
	Payload         Payload    `json:"payload"`
	ContentHash     string     `json:"content_hash"`
	SchemaVersion   string     `json:"schema_version"`
	SourceTimestamp *time.Time `json:"source_timestamp,omitempty"`
	IngestedAt      time.Time  `json:"ingested_at"`
}

// StagingRecord is the normalized, validated form of one RawEvent (Silver).
// Exactly one of Shred or Removal is set, matching Kind.
type StagingRecord struct {
	Kind       RecordKind `json:"kind"`
	RawEventID string     `json:"raw_event_id"`
	EventTime  time.Time  `json:"event_time"`
	IsValid    bool       `json:"is_valid"`
	Errors     []string   `json:"validation_errors"`

	Shred   *ShredFields   `json:"shred,omitempty"`
	Removal *RemovalFields `json:"removal,omitempty"`

	// RawSeq is the owning RawEvent's Seq. Read-side only, used for
	// deterministic promotion order; not part of the derived record.
	RawSeq int64 `json:"-"`
}

// ShredFields are the shred-log columns of a staging record.
type ShredFields struct {
	BatchID    string `json:"batch_id"`
	BatchDate  string `json:"batch_date"` // YYYY-MM-DD, empty when absent
	Client     string `json:"client"`
	Location   string `json:"location"`
	Tech       string `json:"tech"`
	SerialRaw  string `json:"serial_raw"`
	SerialNorm string `json:"serial_norm"`
	DedupeKey  string `json:"dedupe_key"`
}

// RemovalFields are the drive-removal-log columns of a staging record.
type RemovalFields struct {
	Client             string `json:"client"`
	ComputerSerialRaw  string `json:"computer_serial_raw"`
	ComputerSerialNorm string `json:"computer_serial_norm"`
	DriveSerialRaw     string `json:"drive_serial_raw"`
	DriveSerialNorm    string `json:"drive_serial_norm"`
	Notes              string `json:"notes"`
	TechEmail          string `json:"tech_email"`
}

// DriveSerial returns the normalized serial of the drive the record is about.
func (r StagingRecord) DriveSerial() string {
	switch {
	case r.Shred != nil:
		return r.Shred.SerialNorm
	case r.Removal != nil:
		return r.Removal.DriveSerialNorm
	}
	return ""
}

// EventType returns the lifecycle event the record promotes to.
func (r StagingRecord) EventType() EventType {
	if r.Kind == KindShredSerial {
		return EventShredded
	}
	return EventRemoved
}

// Drive is the canonical drive entity, keyed by normalized serial.
type Drive struct {
	ID          string    `json:"id"`
	Serial      string    `json:"serial_norm"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// Batch is a shred batch, keyed by the business batch id from the shred log.
type Batch struct {
	BatchID     string    `json:"batch_id"`
	BatchDate   string    `json:"batch_date"`
	Client      string    `json:"client"`
	Location    string    `json:"location"`
	Tech        string    `json:"tech"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// DriveEvent is an immutable lifecycle event (Gold).
// Identity is (RawEventID, EventType).
type DriveEvent struct {
	ID             string    `json:"id"`
	DriveID        string    `json:"drive_id"`
	EventType      EventType `json:"event_type"`
	EventTime      time.Time `json:"event_time"`
	RawEventID     string    `json:"raw_event_id"`
	BatchID        string    `json:"batch_id,omitempty"` // SHREDDED only
	Client         string    `json:"client"`
	ComputerSerial string    `json:"computer_serial,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// MatchDecision is the result of one rule version for one drive.
// Identity is (DriveID, RuleVersion).
type MatchDecision struct {
	ID              string    `json:"id"`
	DriveID         string    `json:"drive_id"`
	RuleVersion     string    `json:"rule_version"`
	Decision        Decision  `json:"decision"`
	Confidence      float64   `json:"confidence"`
	Reason          string    `json:"reason"`
	RemovedEventID  string    `json:"removed_event_id,omitempty"`
	ShreddedEventID string    `json:"shredded_event_id,omitempty"`
	DecidedAt       time.Time `json:"decided_at"`
}
