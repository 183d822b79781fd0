package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: "one removal"
steps:
  - ingest:
      source: drive_removals
      rows:
        - row: 2
          payload: { "Drive Serial Number": "A1" }
  - run: pipeline
assertions:
  - type: count
    table: drives
    count: 1
`

func TestParseScenario(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	require.Len(t, s.Steps, 2)
	require.NotNil(t, s.Steps[0].Ingest)
	assert.Equal(t, "drive_removals", s.Steps[0].Ingest.Source)
	assert.Equal(t, "A1", s.Steps[0].Ingest.Rows[0].Payload["Drive Serial Number"])
	assert.Equal(t, RunPipeline, s.Steps[1].Run)
	require.NotNil(t, s.Assertions[0].Count)
	assert.Equal(t, 1, *s.Assertions[0].Count)
}

func TestParseScenario_RejectsUnknownFields(t *testing.T) {
	_, err := ParseScenario([]byte("name: x\ndescription: y\nstepz: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"no name", `description: d
steps: [{run: stage}]
assertions: [{type: count, table: drives, count: 0}]`, "name is required"},
		{"no steps", `name: n
description: d
assertions: [{type: count, table: drives, count: 0}]`, "steps list is required"},
		{"unknown run", `name: n
description: d
steps: [{run: compile}]
assertions: [{type: count, table: drives, count: 0}]`, `unknown run "compile"`},
		{"rule on non-match step", `name: n
description: d
steps: [{run: stage, rule: strict_serial_v1}]
assertions: [{type: count, table: drives, count: 0}]`, "rule is only valid"},
		{"header row", `name: n
description: d
steps: [{ingest: {source: s, rows: [{row: 1, payload: {}}]}}]
assertions: [{type: count, table: drives, count: 0}]`, "row must be >= 2"},
		{"unknown table", `name: n
description: d
steps: [{run: stage}]
assertions: [{type: count, table: users, count: 0}]`, `unknown table "users"`},
		{"missing count", `name: n
description: d
steps: [{run: stage}]
assertions: [{type: count, table: drives}]`, "non-negative count"},
		{"decision without outcome", `name: n
description: d
steps: [{run: stage}]
assertions: [{type: decision, serial: A}]`, "decision or absent"},
		{"unknown view", `name: n
description: d
steps: [{run: stage}]
assertions: [{type: report, view: drives}]`, `unknown view "drives"`},
		{"unknown assertion", `name: n
description: d
steps: [{run: stage}]
assertions: [{type: trace_order}]`, `unknown assertion type "trace_order"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenarios_DuplicateNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(minimalScenario), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(minimalScenario), 0o644))

	_, err := LoadScenarios(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `scenario name "minimal" already used by a.yaml`)
}

func TestLoadScenarios_Testdata(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)
	assert.Len(t, scenarios, 6)
}
