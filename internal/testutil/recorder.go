package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/thinker/internal/ir"
)

// ErrRecorderFailed is returned by a MemoryRecorder set to fail.
var ErrRecorderFailed = errors.New("recorder failed")

// MemoryRecorder keeps recorded events in memory.
//
// Implements engine.Recorder. Safe for concurrent use.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []ir.Event
	calls  int
	fail   bool
}

// NewMemoryRecorder creates an empty recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// RecordEvents appends events.
func (r *MemoryRecorder) RecordEvents(_ context.Context, events []ir.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++
	if r.fail {
		return ErrRecorderFailed
	}
	r.events = append(r.events, events...)
	return nil
}

// FailNext makes every following RecordEvents call fail until reset with
// FailNext(false).
func (r *MemoryRecorder) FailNext(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = fail
}

// Events returns a copy of all recorded events.
func (r *MemoryRecorder) Events() []ir.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ir.Event(nil), r.events...)
}

// Calls returns how many times RecordEvents was called.
func (r *MemoryRecorder) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// Kinds returns the kinds of all recorded events, in order.
func (r *MemoryRecorder) Kinds() []ir.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()

	kinds := make([]ir.EventKind, len(r.events))
	for i, ev := range r.events {
		kinds[i] = ev.Kind
	}
	return kinds
}

// Visits returns the labels visited in tick, in order.
func (r *MemoryRecorder) Visits(tick uint64) []string {
	return ir.VisitLabels(r.Events(), tick)
}

// Reset discards all recorded events.
func (r *MemoryRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.calls = 0
	r.fail = false
}
