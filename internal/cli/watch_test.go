package cli

import (
	"context"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simulationScreen() (tcell.Screen, error) {
	return tcell.NewSimulationScreen("UTF-8"), nil
}

func TestWatchRunsScenario(t *testing.T) {
	cmd := newWatchCommand(&WatchOptions{
		RootOptions: &RootOptions{Format: "text"},
		NewScreen:   simulationScreen,
	})
	out, _, err := executeCommand(cmd, "--interval", "0", scenarioPath("snapshot_next"))
	require.NoError(t, err)
	assert.Contains(t, out, "Watched snapshot_next: 2 tick(s)")
}

func TestWatchJSON(t *testing.T) {
	cmd := newWatchCommand(&WatchOptions{
		RootOptions: &RootOptions{Format: "json"},
		NewScreen:   simulationScreen,
	})
	out, _, err := executeCommand(cmd, "--interval", "0", scenarioPath("nested_tick"))
	require.NoError(t, err)
	assert.Contains(t, out, `"pass": true`, "expected tick errors do not fail the scenario")
}

func TestWatchScenarioDrawsLastFrame(t *testing.T) {
	screen := tcell.NewSimulationScreen("UTF-8")
	require.NoError(t, screen.Init())
	screen.SetSize(60, 10)
	defer screen.Fini()

	scenario, err := loadScenario(scenarioPath("snapshot_next"))
	require.NoError(t, err)

	result, err := watchScenario(context.Background(), screen, scenario, &WatchOptions{})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), result.Ticks)
	assert.True(t, result.Pass)

	r, _, _, _ := screen.GetContent(0, 0)
	assert.Equal(t, 'r', r, "header row starts with the run ID")
}

func TestWatchScreenError(t *testing.T) {
	cmd := newWatchCommand(&WatchOptions{
		RootOptions: &RootOptions{Format: "text"},
		NewScreen: func() (tcell.Screen, error) {
			return nil, assert.AnError
		},
	})
	_, _, err := executeCommand(cmd, scenarioPath("snapshot_next"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to open terminal")
}

func TestQuitOnKey(t *testing.T) {
	screen := tcell.NewSimulationScreen("UTF-8")
	require.NoError(t, screen.Init())
	defer screen.Fini()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		quitOnKey(screen, cancel)
		close(done)
	}()

	screen.InjectKey(tcell.KeyRune, 'x', tcell.ModNone)
	screen.InjectKey(tcell.KeyRune, 'q', tcell.ModNone)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("quitOnKey did not return after q")
	}
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestQuitOnKeyReturnsOnFini(t *testing.T) {
	screen := tcell.NewSimulationScreen("UTF-8")
	require.NoError(t, screen.Init())

	done := make(chan struct{})
	go func() {
		quitOnKey(screen, func() {})
		close(done)
	}()
	screen.Fini()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("quitOnKey did not return after Fini")
	}
}
