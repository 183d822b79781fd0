package match

import (
	"errors"
	"fmt"
	"sort"

	"github.com/roach88/driveledger/internal/ledger"
)

// CurrentRuleVersion is the rule version runs use unless told otherwise.
const CurrentRuleVersion = "strict_serial_v1"

// ErrUnknownRule is returned for a rule version with no registered rule.
var ErrUnknownRule = errors.New("unknown rule version")

// Candidates is the event set of one drive. Each slice is ordered by
// (event_time, id), so index 0 is the earliest event.
type Candidates struct {
	Drive    ledger.Drive
	Removed  []ledger.DriveEvent
	Shredded []ledger.DriveEvent
}

// Outcome is what a rule decides for one drive.
type Outcome struct {
	Decision        ledger.Decision
	Confidence      float64
	Reason          string
	RemovedEventID  string
	ShreddedEventID string
}

// Rule decides a drive. Returns ok=false when it has nothing to decide.
type Rule func(Candidates) (Outcome, bool)

// Registry maps rule versions to rules.
type Registry struct {
	rules map[string]Rule
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{rules: make(map[string]Rule)}
}

// DefaultRegistry returns a registry holding every built-in rule.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.mustRegister(CurrentRuleVersion, StrictSerialV1)
	return r
}

// Register adds a rule. Versions are immutable once registered: a
// version's meaning must not change after decisions were written under it.
func (r *Registry) Register(version string, rule Rule) error {
	if version == "" {
		return errors.New("register rule: empty version")
	}
	if _, exists := r.rules[version]; exists {
		return fmt.Errorf("register rule: version %q already registered", version)
	}
	r.rules[version] = rule
	return nil
}

func (r *Registry) mustRegister(version string, rule Rule) {
	if err := r.Register(version, rule); err != nil {
		panic(err)
	}
}

// Lookup returns the rule for version, or ErrUnknownRule.
func (r *Registry) Lookup(version string) (Rule, error) {
	rule, ok := r.rules[version]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRule, version)
	}
	return rule, nil
}

// Versions returns the registered versions in sorted order.
func (r *Registry) Versions() []string {
	versions := make([]string, 0, len(r.rules))
	for v := range r.rules {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions
}

// StrictSerialV1 pairs events by exact normalized serial:
//
//	1 removal + 1 shred      MATCH      1.0
//	exactly one event        NO_MATCH   0.0
//	more than one of either  AMBIGUOUS  0.5
//	no events                no decision
//
// AMBIGUOUS references the earliest event of each side that has one.
func StrictSerialV1(c Candidates) (Outcome, bool) {
	removed, shredded := len(c.Removed), len(c.Shredded)

	switch {
	case removed == 0 && shredded == 0:
		return Outcome{}, false

	case removed > 1 || shredded > 1:
		out := Outcome{
			Decision:   ledger.DecisionAmbiguous,
			Confidence: 0.5,
			Reason:     fmt.Sprintf("Multiple events found: %d removals, %d shreds", removed, shredded),
		}
		if removed > 0 {
			out.RemovedEventID = c.Removed[0].ID
		}
		if shredded > 0 {
			out.ShreddedEventID = c.Shredded[0].ID
		}
		return out, true

	case removed == 1 && shredded == 1:
		return Outcome{
			Decision:        ledger.DecisionMatch,
			Confidence:      1.0,
			Reason:          "Exactly one removal and one shred event for this serial",
			RemovedEventID:  c.Removed[0].ID,
			ShreddedEventID: c.Shredded[0].ID,
		}, true

	case removed == 1:
		return Outcome{
			Decision:       ledger.DecisionNoMatch,
			Confidence:     0.0,
			Reason:         "Drive was removed but has no corresponding shred event",
			RemovedEventID: c.Removed[0].ID,
		}, true

	default:
		return Outcome{
			Decision:        ledger.DecisionNoMatch,
			Confidence:      0.0,
			Reason:          "Drive was shredded but has no corresponding removal event",
			ShreddedEventID: c.Shredded[0].ID,
		}, true
	}
}
