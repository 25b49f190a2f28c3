package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// First run with -update to create golden files:
//
//	go test ./internal/harness -run TestRunWithGolden -update
func TestRunWithGolden(t *testing.T) {
	for _, name := range []string{
		"insertion_order",
		"snapshot_next",
		"spawn_deferred",
		"double_removal",
	} {
		t.Run(name, func(t *testing.T) {
			result, err := RunWithGolden(t, loadTestScenario(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestSnapshot_OmitsRunID(t *testing.T) {
	r := testResult()
	r.Events[0].RunID = "run-1"

	data, err := Snapshot("s", r)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "run-1")
	assert.Contains(t, string(data), `"scenario_name":"s"`)
	assert.Contains(t, string(data), `"alive":["a"]`)
}
