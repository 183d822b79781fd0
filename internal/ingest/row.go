package ingest

import (
	"time"

	"github.com/roach88/driveledger/internal/ledger"
)

// Row is one source row as delivered by an adapter.
type Row struct {
	SourceSystem    string
	CollectionID    string
	Partition       string
	RowKey          string
	Payload         ledger.Payload
	SourceTimestamp *time.Time
}

// Outcome is the result of recording one row.
type Outcome string

const (
	Inserted  Outcome = "inserted"
	Duplicate Outcome = "duplicate"
)

// BatchResult counts the outcomes of RecordBatch.
type BatchResult struct {
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
}

// Total returns the number of rows recorded.
func (r BatchResult) Total() int {
	return r.Inserted + r.Duplicates
}
