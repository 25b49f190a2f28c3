package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/thinker/internal/ir"
)

func TestVerifyRun_Matches(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	events := seedRun(t, s, "run-1")

	digest, err := ir.TraceDigest(events)
	require.NoError(t, err)
	require.NoError(t, s.FinishRun(ctx, "run-1", 2, digest))

	v, err := s.VerifyRun(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, v.OK())
	assert.Equal(t, 5, v.Events)
	assert.Equal(t, digest, v.Computed)
}

func TestVerifyRun_DetectsTampering(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	events := seedRun(t, s, "run-1")

	digest, err := ir.TraceDigest(events)
	require.NoError(t, err)
	require.NoError(t, s.FinishRun(ctx, "run-1", 2, digest))

	_, err = s.db.Exec("UPDATE events SET label = 'z' WHERE run_id = 'run-1' AND seq = 3")
	require.NoError(t, err)

	v, err := s.VerifyRun(ctx, "run-1")
	require.NoError(t, err)
	assert.False(t, v.OK())
	assert.NotEqual(t, v.Stored, v.Computed)
}

func TestVerifyRun_UnfinishedNeverVerifies(t *testing.T) {
	s := createTestStore(t)
	seedRun(t, s, "run-1")

	v, err := s.VerifyRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.False(t, v.OK())
}

func TestVerifyRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.VerifyRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
