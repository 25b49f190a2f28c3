package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/thinker/internal/ir"
)

// TraceSnapshot captures what a scenario run did, for golden comparison.
// The run ID is left out so snapshots do not depend on it.
type TraceSnapshot struct {
	ScenarioName string     `json:"scenario_name"`
	Ticks        uint64     `json:"ticks"`
	Alive        []string   `json:"alive"`
	Trace        []ir.Event `json:"trace"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles primitives, lists, and maps.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		trace[i] = ev.CanonicalMap()
	}

	alive := make([]any, len(s.Alive))
	for i, label := range s.Alive {
		alive[i] = label
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"ticks":         s.Ticks,
		"alive":         alive,
		"trace":         trace,
	}
}

// Snapshot builds the golden snapshot of a result.
func Snapshot(name string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: name,
		Ticks:        result.Ticks,
		Alive:        result.Alive,
		Trace:        result.Events,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its event log against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the log doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}

	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
