package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/driveledger/internal/ledger"
	"github.com/roach88/driveledger/internal/testutil"
)

// openTestStore opens a fresh database in a temp dir, closed on cleanup.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRawEvent(collection, rowKey string, payload ledger.Payload) ledger.RawEvent {
	hash := ledger.ContentHash(payload)
	return ledger.RawEvent{
		ID:            ledger.RawEventID(ledger.DefaultSourceSystem, collection, "data", rowKey, hash),
		SourceSystem:  ledger.DefaultSourceSystem,
		CollectionID:  collection,
		Partition:     "data",
		RowKey:        rowKey,
		Payload:       payload,
		ContentHash:   hash,
		SchemaVersion: ledger.SchemaVersion,
		IngestedAt:    testutil.Epoch,
	}
}

// mustInsertRaw inserts a raw event and returns it with its assigned seq.
func mustInsertRaw(t *testing.T, s *Store, ev ledger.RawEvent) ledger.RawEvent {
	t.Helper()
	ctx := context.Background()
	inserted, err := s.InsertRawEvent(ctx, ev)
	require.NoError(t, err)
	require.True(t, inserted)
	got, err := s.GetRawEvent(ctx, ev.ID)
	require.NoError(t, err)
	return got
}

func shredRecord(rawID, serial string, at time.Time, valid bool) ledger.StagingRecord {
	rec := ledger.StagingRecord{
		Kind:       ledger.KindShredSerial,
		RawEventID: rawID,
		EventTime:  at,
		IsValid:    valid,
		Errors:     []string{},
		Shred: &ledger.ShredFields{
			BatchID:    "BATCH001",
			BatchDate:  "2024-01-15",
			Client:     "Acme",
			SerialRaw:  serial,
			SerialNorm: serial,
			DedupeKey:  "BATCH001|" + serial,
		},
	}
	if !valid {
		rec.Errors = []string{"MISSING_SERIAL"}
	}
	return rec
}

func removalRecord(rawID, serial string, at time.Time) ledger.StagingRecord {
	return ledger.StagingRecord{
		Kind:       ledger.KindDriveRemoval,
		RawEventID: rawID,
		EventTime:  at,
		IsValid:    true,
		Errors:     []string{},
		Removal: &ledger.RemovalFields{
			Client:             "Acme",
			ComputerSerialRaw:  "pc-1",
			ComputerSerialNorm: "PC-1",
			DriveSerialRaw:     serial,
			DriveSerialNorm:    serial,
		},
	}
}
