package stage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/driveledger/internal/ledger"
	"github.com/roach88/driveledger/internal/testutil"
)

func rawEvent(collection string, payload ledger.Payload) ledger.RawEvent {
	hash := ledger.ContentHash(payload)
	return ledger.RawEvent{
		ID:            ledger.RawEventID(ledger.DefaultSourceSystem, collection, "data", "row-2", hash),
		SourceSystem:  ledger.DefaultSourceSystem,
		CollectionID:  collection,
		Partition:     "data",
		RowKey:        "row-2",
		Payload:       payload,
		ContentHash:   hash,
		SchemaVersion: ledger.SchemaVersion,
		IngestedAt:    testutil.Epoch,
	}
}

func TestStage_ShredRecord(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	ev := rawEvent("csv_shred_log_serials", ledger.Payload{
		"Batch ID":      "BATCH001",
		"Batch Date":    "1/15/2024",
		"Client":        " Acme ",
		"Location":      "HQ",
		"Technician":    "Sam",
		"Serial Number": "  abc123.",
	})
	ev.SourceTimestamp = &ts

	rec, ok := Stage(ev)
	require.True(t, ok)

	assert.Equal(t, ledger.KindShredSerial, rec.Kind)
	assert.Equal(t, ev.ID, rec.RawEventID)
	assert.True(t, ts.Equal(rec.EventTime), "source timestamp wins")
	assert.True(t, rec.IsValid)
	assert.Equal(t, []string{}, rec.Errors)
	assert.Nil(t, rec.Removal)
	assert.Equal(t, &ledger.ShredFields{
		BatchID:    "BATCH001",
		BatchDate:  "2024-01-15",
		Client:     "Acme",
		Location:   "HQ",
		Tech:       "Sam",
		SerialRaw:  "  abc123.",
		SerialNorm: "ABC123",
		DedupeKey:  "BATCH001|ABC123",
	}, rec.Shred)
}

func TestStage_EventTimeFallsBackToIngestedAt(t *testing.T) {
	rec, ok := Stage(rawEvent("shreds", ledger.Payload{"Serial": "A"}))
	require.True(t, ok)
	assert.True(t, testutil.Epoch.Equal(rec.EventTime))
}

func TestStage_MissingSerialIsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		payload ledger.Payload
	}{
		{"absent", ledger.Payload{"Batch ID": "BATCH001"}},
		{"blank", ledger.Payload{"Serial Number": "   "}},
		{"punctuation only", ledger.Payload{"Serial Number": "..."}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ok := Stage(rawEvent("shreds", tt.payload))
			require.True(t, ok)
			assert.False(t, rec.IsValid)
			assert.Contains(t, rec.Errors, CodeMissingSerial)
			assert.Equal(t, "", rec.Shred.DedupeKey)
		})
	}
}

func TestStage_UnparseableBatchDateIsSoft(t *testing.T) {
	rec, ok := Stage(rawEvent("shreds", ledger.Payload{"Serial": "A", "Batch Date": "sometime"}))
	require.True(t, ok)
	assert.True(t, rec.IsValid)
	assert.Equal(t, []string{CodeBatchDateUnparseable}, rec.Errors)
	assert.Equal(t, "", rec.Shred.BatchDate)
}

func TestStage_RemovalRecord(t *testing.T) {
	rec, ok := Stage(rawEvent("csv_drive_removals", ledger.Payload{
		"Client":                 "Acme",
		"Computer Serial Number": "pc-100 ",
		"Drive Serial Number":    "xyz-9.",
		"Notes":                  "left bay",
		"Email":                  "sam@example.com",
	}))
	require.True(t, ok)

	assert.Equal(t, ledger.KindDriveRemoval, rec.Kind)
	assert.True(t, rec.IsValid)
	assert.Nil(t, rec.Shred)
	assert.Equal(t, &ledger.RemovalFields{
		Client:             "Acme",
		ComputerSerialRaw:  "pc-100 ",
		ComputerSerialNorm: "PC-100",
		DriveSerialRaw:     "xyz-9.",
		DriveSerialNorm:    "XYZ-9",
		Notes:              "left bay",
		TechEmail:          "sam@example.com",
	}, rec.Removal)
}

func TestStage_URLInComputerSerialIsFlaggedNotRejected(t *testing.T) {
	rec, ok := Stage(rawEvent("removals", ledger.Payload{
		"Drive Serial Number":    "ABC123",
		"Computer Serial Number": "https://assets.example.com/pc/77",
	}))
	require.True(t, ok)
	assert.True(t, rec.IsValid)
	assert.Equal(t, []string{CodeComputerSerialIsURL}, rec.Errors)
}

func TestStage_URLInDriveSerialIsFlaggedNotRejected(t *testing.T) {
	rec, ok := Stage(rawEvent("removals", ledger.Payload{"Drive Serial Number": "https://example.com/ABC"}))
	require.True(t, ok)
	assert.True(t, rec.IsValid)
	assert.Equal(t, []string{CodeDriveSerialIsURL}, rec.Errors)
	assert.Equal(t, "HTTPS://EXAMPLE.COM/ABC", rec.Removal.DriveSerialNorm)
}

func TestStage_URLInShredSerialIsFlaggedNotRejected(t *testing.T) {
	rec, ok := Stage(rawEvent("shreds", ledger.Payload{"Serial Number": "www.example.com", "Batch ID": "B1"}))
	require.True(t, ok)
	assert.True(t, rec.IsValid)
	assert.Equal(t, []string{CodeSerialIsURL}, rec.Errors)
}

func TestStage_MultipleCodesInOrder(t *testing.T) {
	rec, ok := Stage(rawEvent("removals", ledger.Payload{"Computer Serial": "http://x"}))
	require.True(t, ok)
	assert.False(t, rec.IsValid)
	assert.Equal(t, []string{CodeMissingDriveSerial, CodeComputerSerialIsURL}, rec.Errors)
}

func TestStage_UnknownCollection(t *testing.T) {
	_, ok := Stage(rawEvent("inventory", ledger.Payload{"Serial": "A"}))
	assert.False(t, ok)
}

func TestStage_Deterministic(t *testing.T) {
	ev := rawEvent("shreds", ledger.Payload{"Serial Number": "abc", "Batch ID": "B1", "Batch Date": "x"})

	first, _ := Stage(ev)
	second, _ := Stage(ev)
	assert.Equal(t, first, second)
}

func TestSeverityOf(t *testing.T) {
	assert.Equal(t, Hard, SeverityOf(CodeMissingSerial))
	assert.Equal(t, Hard, SeverityOf(CodeMissingDriveSerial))
	assert.Equal(t, Soft, SeverityOf(CodeSerialIsURL))
	assert.Equal(t, Soft, SeverityOf(CodeDriveSerialIsURL))
	assert.Equal(t, Soft, SeverityOf(CodeComputerSerialIsURL))
	assert.Equal(t, Hard, SeverityOf("SOMETHING_NEW"))
}
