package ingest

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/driveledger/internal/ledger"
)

func TestReadCSV_RowKeysAndPayload(t *testing.T) {
	input := "Batch ID,Serial Number,Client\n" +
		"BATCH001,abc123,Acme\n" +
		"BATCH001,xyz-9.\n"

	rows, err := ReadCSV(strings.NewReader(input), "shred_log_serials")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "csv_shred_log_serials", rows[0].CollectionID)
	assert.Equal(t, CSVPartition, rows[0].Partition)
	assert.Equal(t, "csv_shred_log_serials:data:2", rows[0].RowKey)
	assert.Equal(t, "csv_shred_log_serials:data:3", rows[1].RowKey)
	assert.Empty(t, rows[0].SourceSystem, "the recorder stamps the source system")
	assert.Equal(t, ledger.Payload{"Batch ID": "BATCH001", "Serial Number": "abc123", "Client": "Acme"}, rows[0].Payload)
	assert.Equal(t, "", rows[1].Payload["Client"], "short rows are padded")
	assert.Nil(t, rows[0].SourceTimestamp)
}

func TestReadCSV_DropsCellsPastHeader(t *testing.T) {
	rows, err := ReadCSV(strings.NewReader("Serial\nA,extra\n"), "s")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ledger.Payload{"Serial": "A"}, rows[0].Payload)
}

func TestReadCSV_StripsByteOrderMark(t *testing.T) {
	rows, err := ReadCSV(strings.NewReader("\ufeffSerial Number\nA\n"), "s")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "A", rows[0].Payload["Serial Number"])
}

func TestReadCSV_Empty(t *testing.T) {
	rows, err := ReadCSV(strings.NewReader(""), "s")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReadCSV_MalformedIsSourceUnavailable(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("Serial\n\"unterminated\n"), "s")
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestReadCSVFile_MissingIsSourceUnavailable(t *testing.T) {
	_, err := ReadCSVFile(filepath.Join(t.TempDir(), "missing.csv"), "s")
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestParseSourceTimestamp(t *testing.T) {
	want := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		payload ledger.Payload
		want    *time.Time
	}{
		{"iso space", ledger.Payload{"Timestamp": "2024-01-15 10:30:00"}, &want},
		{"us slash", ledger.Payload{"Timestamp": "1/15/2024 10:30:00"}, &want},
		{"iso T", ledger.Payload{"timestamp": "2024-01-15T10:30:00"}, &want},
		{"padded", ledger.Payload{"Timestamp": " 2024-01-15 10:30:00 "}, &want},
		{"lowercase fallback", ledger.Payload{"Timestamp": "", "timestamp": "2024-01-15 10:30:00"}, &want},
		{"absent", ledger.Payload{}, nil},
		{"unparseable", ledger.Payload{"Timestamp": "yesterday"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseSourceTimestamp(tt.payload)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, tt.want.Equal(*got), "got %v", got)
		})
	}
}
