package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/thinker/internal/engine"
)

// scenarioPath returns a scenario from the harness test corpus.
func scenarioPath(name string) string {
	return filepath.Join("..", "harness", "testdata", "scenarios", name+".yaml")
}

// writeScenario writes a scenario document into dir and returns its path.
func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, name+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// copyScenario copies a corpus scenario into dir.
func copyScenario(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(scenarioPath(name))
	require.NoError(t, err)
	return writeScenario(t, dir, name, string(data))
}

// executeCommand runs cmd with args and returns stdout and stderr.
func executeCommand(cmd *cobra.Command, args ...string) (string, string, error) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// recordRun runs a corpus scenario into dbPath under a fixed run ID.
func recordRun(t *testing.T, dbPath, scenario, runID string) error {
	t.Helper()
	cmd := newRunCommand(&RunOptions{
		RootOptions:    &RootOptions{Format: "text"},
		RunIDGenerator: engine.NewFixedGenerator(runID),
		Registerer:     prometheus.NewRegistry(),
	})
	_, _, err := executeCommand(cmd, "--db", dbPath, scenarioPath(scenario))
	return err
}

const minimalScenario = `name: minimal
ticks: 1
thinkers:
  - name: a
assertions:
  - type: visit_order
    tick: 1
    thinkers: [a]
`
