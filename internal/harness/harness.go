package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/roach88/driveledger/internal/ingest"
	"github.com/roach88/driveledger/internal/ledger"
	"github.com/roach88/driveledger/internal/match"
	"github.com/roach88/driveledger/internal/pipeline"
	"github.com/roach88/driveledger/internal/report"
	"github.com/roach88/driveledger/internal/store"
	"github.com/roach88/driveledger/internal/testutil"
)

// Harness executes one scenario against one store.
type Harness struct {
	store       *store.Store
	recorder    *ingest.Recorder
	runner      *pipeline.Runner
	reporter    *report.Reporter
	ruleVersion string
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. Ingestion times advance
// one minute per row from testutil.Epoch; pipeline times and IDs come from
// their own deterministic sources.
//
// An error is returned when a step fails; failed assertions are reported
// in the result.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ruleVersion := scenario.RuleVersion
	if ruleVersion == "" {
		ruleVersion = match.CurrentRuleVersion
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := &Harness{
		store: st,
		recorder: ingest.NewRecorder(st,
			ingest.WithClock(testutil.NewStepClock(testutil.Epoch, time.Minute)),
			ingest.WithLogger(logger),
		),
		runner: pipeline.NewRunner(st, pipeline.Config{
			RuleVersion: ruleVersion,
			Clock:       testutil.NewStepClock(testutil.Epoch.Add(30*24*time.Hour), time.Second),
			IDs:         testutil.NewSequenceIDs("id"),
			Logger:      logger,
		}),
		reporter:    report.New(st),
		ruleVersion: ruleVersion,
	}

	ctx := context.Background()
	for i, step := range scenario.Steps {
		if err := h.execute(ctx, step); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	result := NewResult()
	result.Snapshot, err = h.snapshot(ctx, scenario.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot: %w", err)
	}

	for _, msg := range h.evaluate(ctx, scenario.Assertions, result.Snapshot) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) execute(ctx context.Context, step Step) error {
	if step.Ingest != nil {
		return h.ingest(ctx, *step.Ingest)
	}

	var err error
	switch step.Run {
	case RunStage:
		_, err = h.runner.StageAllNew(ctx)
	case RunRestage:
		_, err = h.runner.Stager().RestageAll(ctx)
	case RunPromote:
		_, err = h.runner.PromoteAllValid(ctx)
	case RunMatch:
		_, err = h.runner.RunMatching(ctx, step.Rule)
	case RunPipeline:
		_, err = h.runner.RunPipeline(ctx)
	default:
		err = fmt.Errorf("unknown run %q", step.Run)
	}
	return err
}

// ingest records rows the way ReadCSV would have produced them.
func (h *Harness) ingest(ctx context.Context, step IngestStep) error {
	collection := ingest.CSVCollection(step.Source)
	rows := make([]ingest.Row, 0, len(step.Rows))
	for _, row := range step.Rows {
		payload := ledger.Payload(row.Payload)
		if payload == nil {
			payload = ledger.Payload{}
		}
		rows = append(rows, ingest.Row{
			CollectionID:    collection,
			Partition:       ingest.CSVPartition,
			RowKey:          rowKey(step.Source, row.Row),
			Payload:         payload,
			SourceTimestamp: ingest.ParseSourceTimestamp(payload),
		})
	}
	_, err := h.recorder.RecordBatch(ctx, rows)
	return err
}

func rowKey(source string, row int) string {
	return fmt.Sprintf("%s:%s:%d", ingest.CSVCollection(source), ingest.CSVPartition, row)
}

// snapshot reads the ID-free state of the store.
func (h *Harness) snapshot(ctx context.Context, name string) (Snapshot, error) {
	snap := Snapshot{
		Scenario:  name,
		Staging:   []StagingSnapshot{},
		Decisions: []DecisionSnapshot{},
	}

	counts, err := h.store.Count(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Counts = counts

	raws, err := h.store.ListRawEvents(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	for _, raw := range raws {
		rec, err := h.store.GetStaging(ctx, raw.ID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return Snapshot{}, err
		}
		codes := rec.Errors
		if codes == nil {
			codes = []string{}
		}
		snap.Staging = append(snap.Staging, StagingSnapshot{
			RowKey: raw.RowKey,
			Kind:   string(rec.Kind),
			Serial: rec.DriveSerial(),
			Valid:  rec.IsValid,
			Errors: codes,
		})
	}

	drives, err := h.store.ListDrives(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	serials := make(map[string]string, len(drives))
	for _, d := range drives {
		serials[d.ID] = d.Serial
	}

	versions, err := h.store.ListRuleVersions(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	for _, v := range versions {
		decisions, err := h.store.ListDecisions(ctx, v)
		if err != nil {
			return Snapshot{}, err
		}
		for _, d := range decisions {
			snap.Decisions = append(snap.Decisions, DecisionSnapshot{
				Serial:      serials[d.DriveID],
				RuleVersion: d.RuleVersion,
				Decision:    string(d.Decision),
				Confidence:  d.Confidence,
				Reason:      d.Reason,
			})
		}
	}
	sort.SliceStable(snap.Decisions, func(i, j int) bool {
		a, b := snap.Decisions[i], snap.Decisions[j]
		if a.Serial != b.Serial {
			return a.Serial < b.Serial
		}
		return a.RuleVersion < b.RuleVersion
	})

	return snap, nil
}
