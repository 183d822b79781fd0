package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/roach88/driveledger/internal/ledger"
)

// ErrSourceUnavailable wraps failures to read from an upstream source.
// Nothing is retried; the next scheduled run picks the rows up again.
var ErrSourceUnavailable = errors.New("source unavailable")

// CSVPartition is the partition name used for every CSV row.
const CSVPartition = "data"

// sourceTimestampLayouts are tried in order; all are read as UTC.
var sourceTimestampLayouts = []string{
	"2006-01-02 15:04:05",
	"1/2/2006 15:04:05",
	"2006-01-02T15:04:05",
}

// CSVCollection returns the collection id for a named CSV source.
func CSVCollection(source string) string {
	return "csv_" + source
}

// ReadCSV reads a CSV export with a header row into Rows.
//
// Rows are keyed by their 1-based line position: the header is row 1,
// so the first data row is "<collection>:data:2". Short rows are padded
// with empty cells; cells past the last header are dropped.
func ReadCSV(r io.Reader, source string) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []Row{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read csv header: %v", ErrSourceUnavailable, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	collection := CSVCollection(source)
	rows := []Row{}
	for rowNum := 2; ; rowNum++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read csv row %d: %v", ErrSourceUnavailable, rowNum, err)
		}

		payload := make(ledger.Payload, len(header))
		for i, name := range header {
			value := ""
			if i < len(record) {
				value = record[i]
			}
			payload[name] = value
		}

		rows = append(rows, Row{
			CollectionID:    collection,
			Partition:       CSVPartition,
			RowKey:          fmt.Sprintf("%s:%s:%d", collection, CSVPartition, rowNum),
			Payload:         payload,
			SourceTimestamp: ParseSourceTimestamp(payload),
		})
	}
	return rows, nil
}

// ReadCSVFile opens path and reads it with ReadCSV.
func ReadCSVFile(path, source string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer f.Close()
	return ReadCSV(f, source)
}

// ParseSourceTimestamp reads the row's Timestamp (or timestamp) column.
// Returns nil when the column is absent, blank, or in no known layout.
func ParseSourceTimestamp(p ledger.Payload) *time.Time {
	value := strings.TrimSpace(p["Timestamp"])
	if value == "" {
		value = strings.TrimSpace(p["timestamp"])
	}
	if value == "" {
		return nil
	}

	for _, layout := range sourceTimestampLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return &t
		}
	}
	return nil
}
