package ingest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/driveledger/internal/ledger"
	"github.com/roach88/driveledger/internal/metrics"
	"github.com/roach88/driveledger/internal/store"
	"github.com/roach88/driveledger/internal/testutil"
)

func setupRecorder(t *testing.T, opts ...RecorderOption) (*Recorder, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	opts = append([]RecorderOption{WithClock(testutil.NewStepClock(testutil.Epoch, time.Second))}, opts...)
	return NewRecorder(s, opts...), s
}

func shredRow(rowKey, serial string) Row {
	return Row{
		CollectionID: "sheet-1",
		Partition:    "Shreds",
		RowKey:       rowKey,
		Payload: ledger.Payload{
			"Batch ID":      "BATCH001",
			"Serial Number": serial,
		},
	}
}

func TestRecord_InsertsThenReportsDuplicate(t *testing.T) {
	r, s := setupRecorder(t)
	ctx := context.Background()

	outcome, err := r.Record(ctx, shredRow("sheet-1:Shreds:2", "ABC123"))
	require.NoError(t, err)
	assert.Equal(t, Inserted, outcome)

	outcome, err = r.Record(ctx, shredRow("sheet-1:Shreds:2", "ABC123"))
	require.NoError(t, err)
	assert.Equal(t, Duplicate, outcome)

	events, err := s.ListRawEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ledger.DefaultSourceSystem, events[0].SourceSystem)
	assert.Equal(t, ledger.SchemaVersion, events[0].SchemaVersion)
	assert.True(t, testutil.Epoch.Equal(events[0].IngestedAt), "first ingestion time is kept")
}

func TestRecord_EditedRowKeepsBothVersions(t *testing.T) {
	r, s := setupRecorder(t)
	ctx := context.Background()

	_, err := r.Record(ctx, shredRow("sheet-1:Shreds:2", "ABC123"))
	require.NoError(t, err)
	outcome, err := r.Record(ctx, shredRow("sheet-1:Shreds:2", "ABC123X"))
	require.NoError(t, err)
	assert.Equal(t, Inserted, outcome)

	versions, err := s.ListRowVersions(ctx, "sheet-1", "sheet-1:Shreds:2")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "ABC123", versions[0].Payload["Serial Number"])
	assert.Equal(t, "ABC123X", versions[1].Payload["Serial Number"])
}

func TestRecord_AcceptsAnyPayload(t *testing.T) {
	r, _ := setupRecorder(t)

	outcome, err := r.Record(context.Background(), Row{
		CollectionID: "sheet-1",
		Partition:    "Shreds",
		RowKey:       "sheet-1:Shreds:9",
		Payload:      ledger.Payload{},
	})
	require.NoError(t, err)
	assert.Equal(t, Inserted, outcome)
}

func TestRecord_DoesNotAliasCallerPayload(t *testing.T) {
	r, s := setupRecorder(t)
	ctx := context.Background()

	row := shredRow("sheet-1:Shreds:2", "ABC123")
	_, err := r.Record(ctx, row)
	require.NoError(t, err)
	row.Payload["Serial Number"] = "changed"

	events, err := s.ListRawEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ABC123", events[0].Payload["Serial Number"])
}

func TestRecordBatch_CountsOutcomes(t *testing.T) {
	m := metrics.New()
	r, _ := setupRecorder(t, WithMetrics(m), WithSchemaVersion("v2"), WithSourceSystem("csv"))
	ctx := context.Background()

	rows := []Row{
		shredRow("sheet-1:Shreds:2", "A"),
		shredRow("sheet-1:Shreds:3", "B"),
	}
	first, err := r.RecordBatch(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Inserted: 2}, first)

	rows = append(rows, shredRow("sheet-1:Shreds:4", "C"))
	second, err := r.RecordBatch(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Inserted: 1, Duplicates: 2}, second)
	assert.Equal(t, 3, second.Total())

	assert.Equal(t, 3.0, promtestutil.ToFloat64(m.IngestRows.WithLabelValues("inserted")))
	assert.Equal(t, 2.0, promtestutil.ToFloat64(m.IngestRows.WithLabelValues("duplicate")))
}

func TestRecord_SourceSystemIsPartOfIdentity(t *testing.T) {
	r, s := setupRecorder(t)
	ctx := context.Background()

	row := shredRow("sheet-1:Shreds:2", "ABC123")
	_, err := r.Record(ctx, row)
	require.NoError(t, err)

	row.SourceSystem = "other_system"
	outcome, err := r.Record(ctx, row)
	require.NoError(t, err)
	assert.Equal(t, Inserted, outcome)

	events, err := s.ListRawEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}
