package report

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/driveledger/internal/ingest"
	"github.com/roach88/driveledger/internal/ledger"
	"github.com/roach88/driveledger/internal/match"
	"github.com/roach88/driveledger/internal/pipeline"
	"github.com/roach88/driveledger/internal/store"
	"github.com/roach88/driveledger/internal/testutil"
)

// seeded builds a store holding one matched drive, one removal-only drive,
// one shred-only drive and one drive shredded twice.
func seeded(t *testing.T) *Reporter {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	rec := ingest.NewRecorder(s, ingest.WithClock(testutil.NewStepClock(testutil.Epoch, time.Hour)))
	removal := func(key, serial, computer string) ingest.Row {
		return ingest.Row{
			CollectionID: "csv_drive_removals", Partition: "data", RowKey: key,
			Payload: ledger.Payload{"Drive Serial Number": serial, "Computer Serial Number": computer, "Client": "Acme", "Notes": "bay " + key},
		}
	}
	shred := func(key, serial, batch string) ingest.Row {
		return ingest.Row{
			CollectionID: "csv_shred_log_serials", Partition: "data", RowKey: key,
			Payload: ledger.Payload{"Serial Number": serial, "Batch ID": batch, "Client": "Acme"},
		}
	}
	_, err = rec.RecordBatch(ctx, []ingest.Row{
		removal("r2", "MATCHED01", "PC-1"),
		removal("r3", "LONELY02", "PC-2"),
		shred("s2", "MATCHED01", "B1"),
		shred("s3", "ORPHAN03", "B1"),
		shred("s4", "TWICE04", "B1"),
		shred("s5", "TWICE04", "B2"),
	})
	require.NoError(t, err)

	runner := pipeline.NewRunner(s, pipeline.Config{
		Clock: testutil.NewStepClock(testutil.Epoch.Add(24*time.Hour), time.Second),
		IDs:   testutil.NewSequenceIDs("id"),
	})
	_, err = runner.RunPipeline(ctx)
	require.NoError(t, err)

	return New(s)
}

func TestLifecycle(t *testing.T) {
	r := seeded(t)

	rows, err := r.Lifecycle(context.Background(), match.CurrentRuleVersion)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	serials := make([]string, len(rows))
	for i, row := range rows {
		serials[i] = row.Serial
	}
	assert.Equal(t, []string{"LONELY02", "MATCHED01", "ORPHAN03", "TWICE04"}, serials)

	matched := rows[1]
	require.NotNil(t, matched.RemovalTime)
	require.NotNil(t, matched.ShredTime)
	assert.Equal(t, testutil.Epoch, *matched.RemovalTime)
	assert.Equal(t, testutil.Epoch.Add(2*time.Hour), *matched.ShredTime)
	assert.Equal(t, "B1", matched.BatchID)
	assert.Equal(t, "MATCH", matched.Decision)
	require.NotNil(t, matched.Confidence)
	assert.InDelta(t, 1.0, *matched.Confidence, 1e-9)

	lonely := rows[0]
	assert.Nil(t, lonely.ShredTime)
	assert.Equal(t, "NO_MATCH", lonely.Decision)
}

func TestLifecycle_OtherVersionHasNoDecisions(t *testing.T) {
	r := seeded(t)

	rows, err := r.Lifecycle(context.Background(), "never_run_v1")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	for _, row := range rows {
		assert.Empty(t, row.Decision)
		assert.Nil(t, row.Confidence)
	}
}

func TestUnmatchedRemovals(t *testing.T) {
	r := seeded(t)

	rows, err := r.UnmatchedRemovals(context.Background(), match.CurrentRuleVersion)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "LONELY02", rows[0].Serial)
	assert.Equal(t, "PC-2", rows[0].ComputerSerial)
	assert.Equal(t, "bay r3", rows[0].Notes)
	assert.Equal(t, testutil.Epoch.Add(time.Hour), rows[0].RemovalTime)

	rows, err = r.UnmatchedRemovals(context.Background(), "never_run_v1")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestUnmatchedShreds(t *testing.T) {
	r := seeded(t)

	rows, err := r.UnmatchedShreds(context.Background(), match.CurrentRuleVersion)
	require.NoError(t, err)
	require.Len(t, rows, 1, "TWICE04 is ambiguous, not unmatched")
	assert.Equal(t, "ORPHAN03", rows[0].Serial)
	assert.Equal(t, "B1", rows[0].BatchID)
}

func TestAmbiguous(t *testing.T) {
	r := seeded(t)

	rows, err := r.Ambiguous(context.Background(), match.CurrentRuleVersion)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "TWICE04", rows[0].Serial)
	assert.InDelta(t, 0.5, rows[0].Confidence, 1e-9)
	assert.Equal(t, "Multiple events found: 0 removals, 2 shreds", rows[0].Reason)
	assert.False(t, rows[0].DecidedAt.IsZero())
}

func TestRun(t *testing.T) {
	r := seeded(t)
	ctx := context.Background()

	for _, view := range Views() {
		_, err := r.Run(ctx, view, match.CurrentRuleVersion)
		assert.NoError(t, err, view)
	}

	_, err := r.Run(ctx, "drives", match.CurrentRuleVersion)
	assert.ErrorIs(t, err, ErrUnknownView)
}
