package store

import (
	"context"
	"fmt"

	"github.com/roach88/thinker/internal/ir"
)

// Verification is the result of re-hashing a stored run.
type Verification struct {
	RunID    string
	Events   int
	Stored   string
	Computed string
}

// OK reports whether the stored digest matches the recomputed one. A run
// that was never finished has no stored digest and never verifies.
func (v Verification) OK() bool {
	return v.Stored != "" && v.Stored == v.Computed
}

// VerifyRun recomputes the trace digest of a run from its stored events and
// compares it with the digest written by FinishRun.
func (s *Store) VerifyRun(ctx context.Context, runID string) (Verification, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return Verification{}, fmt.Errorf("verify run: %w", err)
	}

	events, err := s.ReadEvents(ctx, runID)
	if err != nil {
		return Verification{}, fmt.Errorf("verify run: %w", err)
	}

	digest, err := ir.TraceDigest(events)
	if err != nil {
		return Verification{}, fmt.Errorf("verify run: %w", err)
	}

	return Verification{
		RunID:    runID,
		Events:   len(events),
		Stored:   run.Digest,
		Computed: digest,
	}, nil
}
