package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/thinker/internal/ir"
)

// Scenario defines a scripted scheduler run.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// RunID is an optional fixed run ID. Defaults to "test-run-default".
	RunID string `yaml:"run_id,omitempty"`

	// Ticks is the number of ticks to run.
	Ticks int `yaml:"ticks"`

	// Thinkers are spawned in order before the first tick.
	Thinkers []ThinkerSpec `yaml:"thinkers"`

	// Assertions validate the event log and the final list.
	Assertions []Assertion `yaml:"assertions"`
}

// ThinkerSpec declares one thinker.
type ThinkerSpec struct {
	Name string `yaml:"name"`

	// Arity selects the call convention: 0 nullary, 1 unary, 2 binary.
	Arity int `yaml:"arity,omitempty"`

	// Dormant thinkers have a null action.
	Dormant bool `yaml:"dormant,omitempty"`

	// Mismatched builds a binary action whose parameter types do not fit
	// the call convention, so visiting it fails with ARG_TYPE_MISMATCH.
	Mismatched bool `yaml:"mismatched,omitempty"`

	// On lists the operations this thinker performs when visited.
	On []Step `yaml:"on,omitempty"`
}

// Step is one scripted operation. Exactly one operation field is set.
type Step struct {
	Tick        int        `yaml:"tick"`
	Despawn     string     `yaml:"despawn,omitempty"`
	Remove      string     `yaml:"remove,omitempty"`
	RemoveTwice string     `yaml:"remove_twice,omitempty"`
	Insert      string     `yaml:"insert,omitempty"`
	Spawn       *SpawnSpec `yaml:"spawn,omitempty"`
	NestedTick  bool       `yaml:"nested_tick,omitempty"`
}

// SpawnSpec declares a thinker created during the run.
type SpawnSpec struct {
	Name    string `yaml:"name"`
	Arity   int    `yaml:"arity,omitempty"`
	Dormant bool   `yaml:"dormant,omitempty"`
}

// operations returns how many operation fields are set.
func (s Step) operations() int {
	n := 0
	for _, set := range []bool{
		s.Despawn != "",
		s.Remove != "",
		s.RemoveTwice != "",
		s.Insert != "",
		s.Spawn != nil,
		s.NestedTick,
	} {
		if set {
			n++
		}
	}
	return n
}

// Assertion validates the outcome of a run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "visit_order": Thinkers visited in Tick, exactly and in order
	// - "visited": Thinker visited in Tick
	// - "not_visited": Thinker not visited in Tick
	// - "visit_count": Thinker visited Count times over the run
	// - "alive": Thinkers scheduled after the last tick, in order
	// - "error": a tick failed with Code (in Tick, if set)
	Type string `yaml:"type"`

	Tick     int      `yaml:"tick,omitempty"`
	Thinker  string   `yaml:"thinker,omitempty"`
	Thinkers []string `yaml:"thinkers,omitempty"`
	Count    int      `yaml:"count,omitempty"`
	Code     string   `yaml:"code,omitempty"`
}

// Assertion type constants.
const (
	AssertVisitOrder = "visit_order"
	AssertVisited    = "visited"
	AssertNotVisited = "not_visited"
	AssertVisitCount = "visit_count"
	AssertAlive      = "alive"
	AssertError      = "error"
)

// LoadScenario reads, validates, and parses a scenario YAML file.
// Returns an error if the file doesn't exist, does not match the schema
// (unknown fields included), or refers to thinkers that never exist.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return scenario, nil
}

// ParseScenario validates and parses a scenario document.
// Validation errors are returned as ValidationErrors.
func ParseScenario(data []byte) (*Scenario, error) {
	if errs := ValidateSchema(data); len(errs) > 0 {
		return nil, fmt.Errorf("invalid scenario: %w", ValidationErrors(errs))
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	scenario.normalize()

	if errs := validateScenario(&scenario); len(errs) > 0 {
		return nil, fmt.Errorf("invalid scenario: %w", ValidationErrors(errs))
	}

	return &scenario, nil
}

// normalize puts every thinker name in NFC so that names typed with
// different Unicode compositions refer to the same thinker.
func (s *Scenario) normalize() {
	for i := range s.Thinkers {
		t := &s.Thinkers[i]
		t.Name = ir.NormalizeLabel(t.Name)
		for j := range t.On {
			st := &t.On[j]
			st.Despawn = ir.NormalizeLabel(st.Despawn)
			st.Remove = ir.NormalizeLabel(st.Remove)
			st.RemoveTwice = ir.NormalizeLabel(st.RemoveTwice)
			st.Insert = ir.NormalizeLabel(st.Insert)
			if st.Spawn != nil {
				st.Spawn.Name = ir.NormalizeLabel(st.Spawn.Name)
			}
		}
	}
	for i := range s.Assertions {
		a := &s.Assertions[i]
		a.Thinker = ir.NormalizeLabel(a.Thinker)
		for j := range a.Thinkers {
			a.Thinkers[j] = ir.NormalizeLabel(a.Thinkers[j])
		}
	}
}

// validateScenario checks the rules the schema cannot express.
// Returns all errors found (does not fail-fast).
func validateScenario(s *Scenario) []ValidationError {
	var errs []ValidationError

	known := make(map[string]bool)
	for i, t := range s.Thinkers {
		if known[t.Name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("thinkers[%d].name", i),
				Message: fmt.Sprintf("duplicate thinker %q", t.Name),
				Code:    ErrDuplicateThinker,
			})
		}
		known[t.Name] = true
	}
	for _, t := range s.Thinkers {
		for _, st := range t.On {
			if st.Spawn == nil {
				continue
			}
			if known[st.Spawn.Name] {
				errs = append(errs, ValidationError{
					Field:   "spawn.name",
					Message: fmt.Sprintf("duplicate thinker %q", st.Spawn.Name),
					Code:    ErrDuplicateThinker,
				})
			}
			known[st.Spawn.Name] = true
		}
	}

	ref := func(field, name string) {
		if name != "" && !known[name] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("unknown thinker %q", name),
				Code:    ErrUnknownThinker,
			})
		}
	}

	for i, t := range s.Thinkers {
		if t.Dormant && len(t.On) > 0 {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("thinkers[%d].on", i),
				Message: "dormant thinkers have no action to run steps from",
				Code:    ErrDormantScript,
			})
		}
		for j, st := range t.On {
			field := fmt.Sprintf("thinkers[%d].on[%d]", i, j)
			if n := st.operations(); n != 1 {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("step must name exactly one operation, found %d", n),
					Code:    ErrStepOperation,
				})
			}
			if st.Tick > s.Ticks {
				errs = append(errs, ValidationError{
					Field:   field + ".tick",
					Message: fmt.Sprintf("tick %d is after the last tick %d", st.Tick, s.Ticks),
					Code:    ErrStepTick,
				})
			}
			ref(field+".despawn", st.Despawn)
			ref(field+".remove", st.Remove)
			ref(field+".remove_twice", st.RemoveTwice)
			ref(field+".insert", st.Insert)
		}
	}

	for i, a := range s.Assertions {
		field := fmt.Sprintf("assertions[%d]", i)
		missing := func(name string) {
			errs = append(errs, ValidationError{
				Field:   field + "." + name,
				Message: fmt.Sprintf("%s is required for %s", name, a.Type),
				Code:    ErrAssertionField,
			})
		}

		switch a.Type {
		case AssertVisitOrder:
			if a.Tick == 0 {
				missing("tick")
			}
		case AssertVisited, AssertNotVisited:
			if a.Tick == 0 {
				missing("tick")
			}
			if a.Thinker == "" {
				missing("thinker")
			}
		case AssertVisitCount:
			if a.Thinker == "" {
				missing("thinker")
			}
		case AssertError:
			if a.Code == "" {
				missing("code")
			}
		}

		ref(field+".thinker", a.Thinker)
		for j, name := range a.Thinkers {
			ref(fmt.Sprintf("%s.thinkers[%d]", field, j), name)
		}
	}

	return errs
}
