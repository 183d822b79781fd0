package harness

import "github.com/roach88/driveledger/internal/store"

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Errors contains assertion failure messages.
	Errors []string `json:"errors,omitempty"`

	// Snapshot is the state after the last step.
	Snapshot Snapshot `json:"snapshot"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{Pass: true, Errors: []string{}}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Snapshot is the ID-free view of a database compared by golden files.
// Times and generated IDs are left out so the snapshot only changes when
// behavior does.
type Snapshot struct {
	Scenario  string             `json:"scenario"`
	Counts    store.Counts       `json:"counts"`
	Staging   []StagingSnapshot  `json:"staging"`
	Decisions []DecisionSnapshot `json:"decisions"`
}

// StagingSnapshot is one staging record, in raw event order.
type StagingSnapshot struct {
	RowKey string   `json:"row_key"`
	Kind   string   `json:"kind"`
	Serial string   `json:"serial"`
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// DecisionSnapshot is one match decision, ordered by serial then rule.
type DecisionSnapshot struct {
	Serial      string  `json:"serial"`
	RuleVersion string  `json:"rule_version"`
	Decision    string  `json:"decision"`
	Confidence  float64 `json:"confidence"`
	Reason      string  `json:"reason"`
}
