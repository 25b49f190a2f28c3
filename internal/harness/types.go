package harness

import (
	"github.com/roach88/thinker/internal/ir"
)

// TickError records a tick that returned an error.
type TickError struct {
	Tick    uint64 `json:"tick"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass indicates overall success: every assertion held and every tick
	// error was expected.
	Pass bool `json:"pass"`

	// RunID is the scheduler's run ID.
	RunID string `json:"run_id"`

	// Ticks is the number of ticks run.
	Ticks uint64 `json:"ticks"`

	// Events is the full event log, teardown included.
	Events []ir.Event `json:"events"`

	// Digest is ir.TraceDigest of Events.
	Digest string `json:"digest"`

	// Alive lists the scheduled thinkers after the last tick, in order.
	Alive []string `json:"alive"`

	// TickErrors lists the ticks that failed.
	TickErrors []TickError `json:"tick_errors,omitempty"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Events: []ir.Event{},
		Alive:  []string{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Visits returns the labels visited in tick, in order.
func (r *Result) Visits(tick uint64) []string {
	return ir.VisitLabels(r.Events, tick)
}

// VisitCount returns how many times label was visited over the run.
func (r *Result) VisitCount(label string) int {
	n := 0
	for _, ev := range r.Events {
		if ev.Kind == ir.EventVisit && ev.Label == label {
			n++
		}
	}
	return n
}
