package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/thinker/internal/action"
	"github.com/roach88/thinker/internal/engine"
	"github.com/roach88/thinker/internal/ir"
	"github.com/roach88/thinker/internal/testutil"
	"github.com/roach88/thinker/internal/thinker"
)

// DefaultRunID is the run ID of scenarios that do not set one.
const DefaultRunID = "test-run-default"

// Runner executes a scenario one tick at a time.
//
// Thinker actions perform the scenario's steps from inside the tick, so
// every mutation goes through the same paths a real thinker would use.
type Runner struct {
	scenario *Scenario
	sched    *engine.Scheduler
	log      *testutil.MemoryRecorder
	names    map[string]thinker.Handle
	tickErrs []TickError
	ctx      context.Context
}

// NewRunner creates a scheduler for the scenario and spawns its thinkers.
//
// Logs are discarded and the run ID is fixed unless opts override them.
// If extra is not nil it receives the event log as well as the runner.
func NewRunner(scenario *Scenario, extra engine.Recorder, opts ...engine.Option) (*Runner, error) {
	runID := scenario.RunID
	if runID == "" {
		runID = DefaultRunID
	}

	r := &Runner{
		scenario: scenario,
		log:      testutil.NewMemoryRecorder(),
		names:    make(map[string]thinker.Handle),
		ctx:      context.Background(),
	}

	var rec engine.Recorder = r.log
	if extra != nil {
		rec = teeRecorder{r.log, extra}
	}

	all := []engine.Option{
		engine.WithRunID(runID),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	all = append(all, opts...)
	all = append(all, engine.WithRecorder(rec))
	r.sched = engine.New(all...)

	for _, spec := range scenario.Thinkers {
		if err := r.spawn(spec.Name, spec.Arity, spec.Dormant, spec.Mismatched, spec.On); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Scheduler returns the scheduler the scenario runs on.
func (r *Runner) Scheduler() *engine.Scheduler {
	return r.sched
}

// Tick runs one tick. A tick error is recorded against the scenario and
// returned.
func (r *Runner) Tick(ctx context.Context) error {
	r.ctx = ctx
	err := r.sched.Tick(ctx)
	if err != nil {
		r.tickErrs = append(r.tickErrs, TickError{
			Tick:    r.sched.TickCount(),
			Code:    string(engine.CodeOf(err)),
			Message: err.Error(),
		})
	}
	return err
}

// Done reports whether the scenario's tick count has been reached.
func (r *Runner) Done() bool {
	return r.sched.TickCount() >= uint64(r.scenario.Ticks)
}

// Finish closes the scheduler and evaluates the assertions.
func (r *Runner) Finish(ctx context.Context) (*Result, error) {
	result := NewResult()
	result.RunID = r.sched.RunID()
	result.Ticks = r.sched.TickCount()
	result.TickErrors = r.tickErrs

	for _, info := range r.sched.Snapshot() {
		result.Alive = append(result.Alive, info.Label)
	}

	if err := r.sched.Close(ctx); err != nil {
		return nil, fmt.Errorf("close scheduler: %w", err)
	}

	result.Events = r.log.Events()
	digest, err := ir.TraceDigest(result.Events)
	if err != nil {
		return nil, err
	}
	result.Digest = digest

	for _, msg := range EvaluateAssertions(result, r.scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

// Run executes a scenario to completion and returns the result.
//
// Tick errors do not stop the run; they are checked against the
// scenario's error assertions.
func Run(ctx context.Context, scenario *Scenario, opts ...engine.Option) (*Result, error) {
	r, err := NewRunner(scenario, nil, opts...)
	if err != nil {
		return nil, err
	}

	for !r.Done() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_ = r.Tick(ctx)
	}

	return r.Finish(ctx)
}

// spawn creates a thinker whose action performs steps.
func (r *Runner) spawn(name string, arity int, dormant, mismatched bool, steps []Step) error {
	var self thinker.Handle
	run := func(h thinker.Handle, tick uint64) {
		for _, st := range steps {
			if uint64(st.Tick) == tick {
				r.perform(h, st)
			}
		}
	}

	var fn action.Func
	switch {
	case dormant:
		fn = action.Null()
	case mismatched:
		fn = action.Binary(func(string, string) {})
	case arity == 0:
		fn = action.Nullary(func() { run(self, r.sched.TickCount()) })
	case arity == 1:
		fn = action.Unary(func(h thinker.Handle) { run(h, r.sched.TickCount()) })
	case arity == 2:
		fn = action.Binary(run)
	default:
		return fmt.Errorf("thinker %q: arity %d not supported", name, arity)
	}

	h, err := r.sched.Spawn(name, fn)
	if err != nil {
		return fmt.Errorf("spawn %q: %w", name, err)
	}
	self = h
	r.names[name] = h
	return nil
}

// perform runs one step on behalf of the thinker h. Failures are reported
// by the scheduler itself and surface as tick errors.
func (r *Runner) perform(h thinker.Handle, st Step) {
	switch {
	case st.Despawn != "":
		_ = r.sched.Despawn(r.names[st.Despawn])
	case st.Remove != "":
		_ = r.sched.Remove(r.names[st.Remove])
	case st.RemoveTwice != "":
		target := r.names[st.RemoveTwice]
		_ = r.sched.Remove(target)
		_ = r.sched.Remove(target)
	case st.Insert != "":
		_ = r.sched.Insert(r.names[st.Insert])
	case st.Spawn != nil:
		_ = r.spawn(st.Spawn.Name, st.Spawn.Arity, st.Spawn.Dormant, false, nil)
	case st.NestedTick:
		_ = r.sched.Tick(r.ctx)
	}
}

// teeRecorder writes every batch to each recorder in turn.
type teeRecorder []engine.Recorder

func (t teeRecorder) RecordEvents(ctx context.Context, events []ir.Event) error {
	for _, rec := range t {
		if err := rec.RecordEvents(ctx, events); err != nil {
			return err
		}
	}
	return nil
}
