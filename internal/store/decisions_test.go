package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/driveledger/internal/ledger"
	"github.com/roach88/driveledger/internal/testutil"
)

// seedDriveWithEvents creates a drive with one removal and one shred.
func seedDriveWithEvents(t *testing.T, s *Store, serial string) (driveID, removedID, shreddedID string) {
	t.Helper()
	ctx := context.Background()

	rr := mustInsertRaw(t, s, testRawEvent("csv_removals", serial, ledger.Payload{"Drive Serial Number": serial}))
	sr := mustInsertRaw(t, s, testRawEvent("csv_shreds", serial, ledger.Payload{"Serial Number": serial}))

	driveID = "drive-" + serial
	removedID = ledger.DriveEventID(rr.ID, ledger.EventRemoved)
	shreddedID = ledger.DriveEventID(sr.ID, ledger.EventShredded)

	err := s.InTx(ctx, func(tx *Tx) error {
		if err := tx.UpsertDrive(ctx, ledger.Drive{ID: driveID, Serial: serial, FirstSeenAt: testutil.Epoch, LastSeenAt: testutil.Epoch.Add(time.Hour)}); err != nil {
			return err
		}
		if _, err := tx.InsertDriveEvent(ctx, ledger.DriveEvent{
			ID: shreddedID, DriveID: driveID, EventType: ledger.EventShredded,
			EventTime: testutil.Epoch.Add(time.Hour), RawEventID: sr.ID, CreatedAt: testutil.Epoch,
		}); err != nil {
			return err
		}
		_, err := tx.InsertDriveEvent(ctx, ledger.DriveEvent{
			ID: removedID, DriveID: driveID, EventType: ledger.EventRemoved,
			EventTime: testutil.Epoch, RawEventID: rr.ID, CreatedAt: testutil.Epoch,
		})
		return err
	})
	require.NoError(t, err)
	return driveID, removedID, shreddedID
}

func TestListDriveHistories_GroupsEventsByDrive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seedDriveWithEvents(t, s, "BBB")
	driveA, removedA, shreddedA := seedDriveWithEvents(t, s, "AAA")

	// A drive with no events is not part of any history.
	require.NoError(t, s.InTx(ctx, func(tx *Tx) error {
		return tx.UpsertDrive(ctx, ledger.Drive{ID: "drive-empty", Serial: "EMPTY", FirstSeenAt: testutil.Epoch, LastSeenAt: testutil.Epoch})
	}))

	histories, err := s.ListDriveHistories(ctx)
	require.NoError(t, err)
	require.Len(t, histories, 2)

	assert.Equal(t, driveA, histories[0].Drive.ID)
	require.Len(t, histories[0].Removed, 1)
	require.Len(t, histories[0].Shredded, 1)
	assert.Equal(t, removedA, histories[0].Removed[0].ID)
	assert.Equal(t, shreddedA, histories[0].Shredded[0].ID)
	assert.Equal(t, "BBB", histories[1].Drive.Serial)
}

func TestUpsertDecision_ReplacesSameVersionKeepsOthers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	driveID, removedID, shreddedID := seedDriveWithEvents(t, s, "ABC123")

	v1 := ledger.MatchDecision{
		ID: "dec-1", DriveID: driveID, RuleVersion: "strict_serial_v1",
		Decision: ledger.DecisionNoMatch, Confidence: 0.0, Reason: "first",
		RemovedEventID: removedID, DecidedAt: testutil.Epoch,
	}
	v0 := ledger.MatchDecision{
		ID: "dec-0", DriveID: driveID, RuleVersion: "legacy_v0",
		Decision: ledger.DecisionAmbiguous, Confidence: 0.5, Reason: "old",
		DecidedAt: testutil.Epoch,
	}
	require.NoError(t, s.InTx(ctx, func(tx *Tx) error {
		if err := tx.UpsertDecision(ctx, v0); err != nil {
			return err
		}
		return tx.UpsertDecision(ctx, v1)
	}))

	rerun := v1
	rerun.ID = "dec-2"
	rerun.Decision = ledger.DecisionMatch
	rerun.Confidence = 1.0
	rerun.Reason = "second"
	rerun.ShreddedEventID = shreddedID
	rerun.DecidedAt = testutil.Epoch.Add(time.Hour)
	require.NoError(t, s.InTx(ctx, func(tx *Tx) error { return tx.UpsertDecision(ctx, rerun) }))

	got, err := s.GetDecision(ctx, driveID, "strict_serial_v1")
	require.NoError(t, err)
	assert.Equal(t, "dec-1", got.ID, "id is stable across re-runs")
	assert.Equal(t, ledger.DecisionMatch, got.Decision)
	assert.Equal(t, shreddedID, got.ShreddedEventID)

	old, err := s.GetDecision(ctx, driveID, "legacy_v0")
	require.NoError(t, err)
	assert.Equal(t, v0, old)

	versions, err := s.ListRuleVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"legacy_v0", "strict_serial_v1"}, versions)

	listed, err := s.ListDecisions(ctx, "strict_serial_v1")
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestUpsertDecision_RejectsOutOfRangeConfidence(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	driveID, _, _ := seedDriveWithEvents(t, s, "ABC123")
	err := s.InTx(ctx, func(tx *Tx) error {
		return tx.UpsertDecision(ctx, ledger.MatchDecision{
			ID: "dec-1", DriveID: driveID, RuleVersion: "v", Decision: ledger.DecisionMatch,
			Confidence: 1.5, DecidedAt: testutil.Epoch,
		})
	})

	var cerr *ConstraintError
	assert.ErrorAs(t, err, &cerr)
}

func TestGetDecision_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetDecision(context.Background(), "drive", "v")
	assert.ErrorIs(t, err, ErrNotFound)
}
