package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/driveledger/internal/report"
)

// Scenario is an end-to-end pipeline test case.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// RuleVersion is the rule the pipeline and match steps use.
	// Empty means the current rule.
	RuleVersion string `yaml:"rule_version,omitempty"`

	// Steps run in order against one database.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is either an ingest of rows or a run of a pipeline stage.
type Step struct {
	Ingest *IngestStep `yaml:"ingest,omitempty"`
	Run    string      `yaml:"run,omitempty"`

	// Rule overrides the scenario rule version for a match step.
	Rule string `yaml:"rule,omitempty"`
}

// IngestStep records rows of one source.
type IngestStep struct {
	Source string    `yaml:"source"`
	Rows   []SourceRow `yaml:"rows"`
}

// SourceRow is one source row. Row is its 1-based line number in the
// export; the header is line 1.
type SourceRow struct {
	Row     int               `yaml:"row"`
	Payload map[string]string `yaml:"payload"`
}

// Run step names.
const (
	RunStage    = "stage"
	RunRestage  = "restage"
	RunPromote  = "promote"
	RunMatch    = "match"
	RunPipeline = "pipeline"
)

// Assertion checks the state after the last step.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Serial selects the drive (decision).
	Serial string `yaml:"serial,omitempty"`

	// Rule selects the rule version (decision, report). Empty means the
	// scenario rule version.
	Rule string `yaml:"rule,omitempty"`

	// Decision, Confidence and Reason are the expected decision. Reason is
	// a substring match.
	Decision   string   `yaml:"decision,omitempty"`
	Confidence *float64 `yaml:"confidence,omitempty"`
	Reason     string   `yaml:"reason,omitempty"`

	// Absent expects no decision for Serial.
	Absent bool `yaml:"absent,omitempty"`

	// Table and Count (count).
	Table string `yaml:"table,omitempty"`
	Count *int   `yaml:"count,omitempty"`

	// Source and Row select a staging record; Valid and Errors are
	// expected values (staging).
	Source string   `yaml:"source,omitempty"`
	Row    int      `yaml:"row,omitempty"`
	Valid  *bool    `yaml:"valid,omitempty"`
	Errors []string `yaml:"errors,omitempty"`

	// View and Serials (report).
	View    string   `yaml:"view,omitempty"`
	Serials []string `yaml:"serials,omitempty"`
}

// Assertion type constants.
const (
	AssertDecision = "decision"
	AssertCount    = "count"
	AssertStaging  = "staging"
	AssertReport   = "report"
)

// countTables are the tables a count assertion may name, matching the
// JSON names of store.Counts.
var countTables = map[string]bool{
	"raw_events":        true,
	"stg_shred_serial":  true,
	"stg_drive_removal": true,
	"drives":            true,
	"batches":           true,
	"drive_events":      true,
	"match_decisions":   true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML. Unknown fields are rejected.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("glob scenarios: %w", err)
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	seen := make(map[string]string, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		if prev, ok := seen[s.Name]; ok {
			return nil, fmt.Errorf("%s: scenario name %q already used by %s", filepath.Base(path), s.Name, prev)
		}
		seen[s.Name] = filepath.Base(path)
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step Step) error {
	switch {
	case step.Ingest != nil && step.Run != "":
		return fmt.Errorf("steps[%d]: ingest and run are mutually exclusive", index)
	case step.Ingest != nil:
		if step.Ingest.Source == "" {
			return fmt.Errorf("steps[%d]: ingest.source is required", index)
		}
		if len(step.Ingest.Rows) == 0 {
			return fmt.Errorf("steps[%d]: ingest.rows must be non-empty", index)
		}
		for j, row := range step.Ingest.Rows {
			if row.Row < 2 {
				return fmt.Errorf("steps[%d].rows[%d]: row must be >= 2 (row 1 is the header)", index, j)
			}
		}
	case step.Run != "":
		switch step.Run {
		case RunStage, RunRestage, RunPromote, RunMatch, RunPipeline:
		default:
			return fmt.Errorf("steps[%d]: unknown run %q", index, step.Run)
		}
		if step.Rule != "" && step.Run != RunMatch {
			return fmt.Errorf("steps[%d]: rule is only valid for run: match", index)
		}
	default:
		return fmt.Errorf("steps[%d]: one of ingest or run is required", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertDecision:
		if a.Serial == "" {
			return fmt.Errorf("assertions[%d]: serial is required for decision", index)
		}
		if a.Decision == "" && !a.Absent {
			return fmt.Errorf("assertions[%d]: decision or absent is required for decision", index)
		}
	case AssertCount:
		if !countTables[a.Table] {
			return fmt.Errorf("assertions[%d]: unknown table %q for count", index, a.Table)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for count", index)
		}
	case AssertStaging:
		if a.Source == "" || a.Row < 2 {
			return fmt.Errorf("assertions[%d]: source and row are required for staging", index)
		}
	case AssertReport:
		found := false
		for _, v := range report.Views() {
			found = found || v == a.View
		}
		if !found {
			return fmt.Errorf("assertions[%d]: unknown view %q for report", index, a.View)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
