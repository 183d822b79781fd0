package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/driveledger/internal/ledger"
	"github.com/roach88/driveledger/internal/testutil"
)

func TestUpsertDrive_KeepsIDAndUpdatesBounds(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	later := testutil.Epoch.Add(48 * time.Hour)

	err := s.InTx(ctx, func(tx *Tx) error {
		if err := tx.UpsertDrive(ctx, ledger.Drive{ID: "drive-1", Serial: "ABC123", FirstSeenAt: testutil.Epoch, LastSeenAt: testutil.Epoch}); err != nil {
			return err
		}
		return tx.UpsertDrive(ctx, ledger.Drive{ID: "drive-2", Serial: "ABC123", FirstSeenAt: testutil.Epoch, LastSeenAt: later})
	})
	require.NoError(t, err)

	d, err := s.GetDrive(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, "drive-1", d.ID)
	assert.True(t, later.Equal(d.LastSeenAt))

	drives, err := s.ListDrives(ctx)
	require.NoError(t, err)
	assert.Len(t, drives, 1)
}

func TestUpsertDrive_RejectsInvertedBounds(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.InTx(ctx, func(tx *Tx) error {
		return tx.UpsertDrive(ctx, ledger.Drive{
			ID: "drive-1", Serial: "ABC123",
			FirstSeenAt: testutil.Epoch.Add(time.Hour), LastSeenAt: testutil.Epoch,
		})
	})

	var cerr *ConstraintError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "drives", cerr.Table)
	assert.Equal(t, "ABC123", cerr.Key)
}

func TestTx_LookupsReturnNilWhenAbsent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.InTx(ctx, func(tx *Tx) error {
		d, err := tx.DriveBySerial(ctx, "NOPE")
		require.NoError(t, err)
		assert.Nil(t, d)

		b, err := tx.BatchByID(ctx, "NOPE")
		require.NoError(t, err)
		assert.Nil(t, b)

		ev, err := tx.DriveEventBySource(ctx, "raw", ledger.EventRemoved)
		require.NoError(t, err)
		assert.Nil(t, ev)
		return nil
	})
	require.NoError(t, err)
}

func TestUpsertBatch_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	b := ledger.Batch{
		BatchID: "BATCH001", BatchDate: "2024-01-15", Client: "Acme", Location: "HQ", Tech: "Sam",
		FirstSeenAt: testutil.Epoch, LastSeenAt: testutil.Epoch,
	}
	require.NoError(t, s.InTx(ctx, func(tx *Tx) error { return tx.UpsertBatch(ctx, b) }))

	b.Location = "Warehouse"
	require.NoError(t, s.InTx(ctx, func(tx *Tx) error { return tx.UpsertBatch(ctx, b) }))

	got, err := s.GetBatch(ctx, "BATCH001")
	require.NoError(t, err)
	assert.Equal(t, b, got)

	_, err = s.GetBatch(ctx, "BATCH002")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertDriveEvent_DuplicateIsNoop(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	raw := mustInsertRaw(t, s, testRawEvent("csv_removals", "r2", ledger.Payload{"Drive Serial Number": "A"}))
	ev := ledger.DriveEvent{
		ID:         ledger.DriveEventID(raw.ID, ledger.EventRemoved),
		DriveID:    "drive-1",
		EventType:  ledger.EventRemoved,
		EventTime:  testutil.Epoch,
		RawEventID: raw.ID,
		Client:     "Acme",
		CreatedAt:  testutil.Epoch,
	}

	var first, second bool
	err := s.InTx(ctx, func(tx *Tx) error {
		if err := tx.UpsertDrive(ctx, ledger.Drive{ID: "drive-1", Serial: "A", FirstSeenAt: testutil.Epoch, LastSeenAt: testutil.Epoch}); err != nil {
			return err
		}
		var err error
		if first, err = tx.InsertDriveEvent(ctx, ev); err != nil {
			return err
		}
		second, err = tx.InsertDriveEvent(ctx, ev)
		return err
	})
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)

	events, err := s.ListDriveEvents(ctx, "drive-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ev, events[0])
}

func TestInsertDriveEvent_UnknownDriveIsConstraintError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	raw := mustInsertRaw(t, s, testRawEvent("csv_removals", "r2", ledger.Payload{"Drive Serial Number": "A"}))
	err := s.InTx(ctx, func(tx *Tx) error {
		_, err := tx.InsertDriveEvent(ctx, ledger.DriveEvent{
			ID: "ev-1", DriveID: "no-such-drive", EventType: ledger.EventRemoved,
			EventTime: testutil.Epoch, RawEventID: raw.ID, CreatedAt: testutil.Epoch,
		})
		return err
	})

	var cerr *ConstraintError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "drive_events", cerr.Table)
}

func TestInTx_RollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx *Tx) error {
		if err := tx.UpsertDrive(ctx, ledger.Drive{ID: "drive-1", Serial: "A", FirstSeenAt: testutil.Epoch, LastSeenAt: testutil.Epoch}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetDrive(ctx, "A")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mustInsertRaw(t, s, testRawEvent("csv_shreds", "r2", ledger.Payload{"Serial Number": "A"}))

	c, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counts{RawEvents: 1}, c)
}
