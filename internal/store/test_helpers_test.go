package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/thinker/internal/ir"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestEvent creates an event with the fields the store requires.
func createTestEvent(runID string, seq int64, tick uint64, kind ir.EventKind, label string) ir.Event {
	return ir.Event{
		RunID:  runID,
		Seq:    seq,
		Tick:   tick,
		Kind:   kind,
		Handle: "1.1",
		Label:  label,
		Action: "nullary",
	}
}
