package harness

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/roach88/driveledger/internal/report"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Index    int
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertions[%d] %s: expected %s, got %s", e.Index, e.Type, e.Expected, e.Actual)
}

// evaluate runs every assertion and returns the failure messages.
func (h *Harness) evaluate(ctx context.Context, assertions []Assertion, snap Snapshot) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertDecision:
			err = assertDecision(i, a, snap, h.ruleVersion)
		case AssertCount:
			err = assertCount(i, a, snap)
		case AssertStaging:
			err = assertStaging(i, a, snap)
		case AssertReport:
			err = h.assertReport(ctx, i, a)
		default:
			err = fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func assertDecision(i int, a Assertion, snap Snapshot, defaultRule string) error {
	rule := a.Rule
	if rule == "" {
		rule = defaultRule
	}

	var found *DecisionSnapshot
	for j := range snap.Decisions {
		d := &snap.Decisions[j]
		if d.Serial == a.Serial && d.RuleVersion == rule {
			found = d
			break
		}
	}

	fail := func(expected, actual string) error {
		return &AssertionError{Index: i, Type: AssertDecision, Expected: expected, Actual: actual}
	}
	if a.Absent {
		if found != nil {
			return fail(fmt.Sprintf("no decision for %s under %s", a.Serial, rule), found.Decision)
		}
		return nil
	}
	if found == nil {
		return fail(fmt.Sprintf("%s for %s under %s", a.Decision, a.Serial, rule), "no decision")
	}
	if found.Decision != a.Decision {
		return fail(fmt.Sprintf("%s for %s", a.Decision, a.Serial), found.Decision)
	}
	if a.Confidence != nil && math.Abs(found.Confidence-*a.Confidence) > 1e-9 {
		return fail(fmt.Sprintf("confidence %.2f for %s", *a.Confidence, a.Serial), fmt.Sprintf("%.2f", found.Confidence))
	}
	if a.Reason != "" && !strings.Contains(found.Reason, a.Reason) {
		return fail(fmt.Sprintf("reason containing %q", a.Reason), fmt.Sprintf("%q", found.Reason))
	}
	return nil
}

func assertCount(i int, a Assertion, snap Snapshot) error {
	c := snap.Counts
	actual := map[string]int{
		"raw_events":        c.RawEvents,
		"stg_shred_serial":  c.ShredStaging,
		"stg_drive_removal": c.RemovalStaging,
		"drives":            c.Drives,
		"batches":           c.Batches,
		"drive_events":      c.DriveEvents,
		"match_decisions":   c.MatchDecisions,
	}[a.Table]

	if actual != *a.Count {
		return &AssertionError{
			Index:    i,
			Type:     AssertCount,
			Expected: fmt.Sprintf("%d rows in %s", *a.Count, a.Table),
			Actual:   fmt.Sprintf("%d", actual),
		}
	}
	return nil
}

// assertStaging checks the latest version of a row.
func assertStaging(i int, a Assertion, snap Snapshot) error {
	key := rowKey(a.Source, a.Row)

	var found *StagingSnapshot
	for j := range snap.Staging {
		if snap.Staging[j].RowKey == key {
			found = &snap.Staging[j]
		}
	}

	fail := func(expected, actual string) error {
		return &AssertionError{Index: i, Type: AssertStaging, Expected: expected, Actual: actual}
	}
	if found == nil {
		return fail("a staging record for "+key, "none")
	}
	if a.Valid != nil && found.Valid != *a.Valid {
		return fail(fmt.Sprintf("valid=%t for %s", *a.Valid, key), fmt.Sprintf("valid=%t", found.Valid))
	}
	if a.Errors != nil && !slices.Equal(found.Errors, a.Errors) {
		return fail(fmt.Sprintf("errors %v for %s", a.Errors, key), fmt.Sprintf("%v", found.Errors))
	}
	return nil
}

func (h *Harness) assertReport(ctx context.Context, i int, a Assertion) error {
	rule := a.Rule
	if rule == "" {
		rule = h.ruleVersion
	}

	rows, err := h.reporter.Run(ctx, a.View, rule)
	if err != nil {
		return fmt.Errorf("assertions[%d]: %w", i, err)
	}

	var serials []string
	switch rows := rows.(type) {
	case []report.LifecycleRow:
		for _, r := range rows {
			serials = append(serials, r.Serial)
		}
	case []report.UnmatchedRemoval:
		for _, r := range rows {
			serials = append(serials, r.Serial)
		}
	case []report.UnmatchedShred:
		for _, r := range rows {
			serials = append(serials, r.Serial)
		}
	case []report.AmbiguousMatch:
		for _, r := range rows {
			serials = append(serials, r.Serial)
		}
	}

	want := a.Serials
	if want == nil {
		want = []string{}
	}
	if serials == nil {
		serials = []string{}
	}
	if !slices.Equal(serials, want) {
		return &AssertionError{
			Index:    i,
			Type:     AssertReport,
			Expected: fmt.Sprintf("%s lists %v", a.View, want),
			Actual:   fmt.Sprintf("%v", serials),
		}
	}
	return nil
}
