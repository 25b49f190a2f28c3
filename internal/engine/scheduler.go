package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/petermattis/goid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/thinker/internal/action"
	"github.com/roach88/thinker/internal/ir"
	"github.com/roach88/thinker/internal/thinker"
)

// TracerName is the instrumentation scope used for tick spans.
const TracerName = "github.com/roach88/thinker/internal/engine"

// State is the scheduler's position in its tick cycle.
type State int

const (
	// StateIdle is between ticks.
	StateIdle State = iota
	// StateRunning is inside a tick.
	StateRunning
	// StateClosed is after Close.
	StateClosed
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Recorder receives the scheduler's event log. RecordEvents is called once
// per tick with the events buffered since the previous call.
type Recorder interface {
	RecordEvents(ctx context.Context, events []ir.Event) error
}

// Metrics receives tick measurements. Implemented by
// observability.TickCollector.
type Metrics interface {
	ObserveTick(d time.Duration, visited int)
	SetThinkers(n int)
	IncSpawned()
	IncDespawned()
	IncErrors(code string)
}

// Scheduler is the tick runner.
//
// Thread-safety model:
//   - Submit(), RunID(), TickCount(): safe from any goroutine
//   - everything else: owning goroutine only
type Scheduler struct {
	list  *thinker.List
	clock *Clock
	state State
	owner int64
	runID string

	commands *commandQueue
	pending  []ir.Event
	fault    *SchedulerError

	recorder Recorder
	metrics  Metrics
	tracer   trace.Tracer
	logger   *slog.Logger
	runIDGen RunIDGenerator

	interval time.Duration
	maxTicks uint64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock resumes from a pre-configured clock.
func WithClock(c *Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithRecorder sets where the event log is written. Without a recorder no
// events are buffered.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) {
		s.recorder = r
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithTracer sets the tracer for tick spans. Defaults to the global
// provider's tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Scheduler) {
		s.tracer = t
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// WithRunIDGenerator sets how the run ID is produced.
// Defaults to UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(s *Scheduler) {
		s.runIDGen = g
	}
}

// WithRunID fixes the run ID instead of generating one.
func WithRunID(id string) Option {
	return func(s *Scheduler) {
		s.runID = id
	}
}

// WithInterval sets the time between ticks in Run. Zero runs ticks back to
// back.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		s.interval = d
	}
}

// WithMaxTicks makes Run return after the clock reaches n. Zero means no
// limit.
func WithMaxTicks(n uint64) Option {
	return func(s *Scheduler) {
		s.maxTicks = n
	}
}

// New creates an Idle scheduler with an empty thinker list. The calling
// goroutine becomes the owner.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		list:     thinker.NewList(),
		clock:    NewClock(),
		state:    StateIdle,
		owner:    goid.Get(),
		commands: newCommandQueue(),
		metrics:  noopMetrics{},
		logger:   slog.Default(),
		runIDGen: UUIDv7Generator{},
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.tracer == nil {
		s.tracer = otel.Tracer(TracerName)
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.runID == "" {
		s.runID = s.runIDGen.Generate()
	}

	return s
}

// Alloc reserves a thinker record without scheduling it.
func (s *Scheduler) Alloc(label string, fn action.Func) (thinker.Handle, error) {
	if err := s.checkOwner("alloc"); err != nil {
		return thinker.Nil, err
	}
	return s.list.Alloc(label, fn), nil
}

// Insert schedules an allocated thinker. A thinker inserted during a tick
// is first visited in the next tick.
func (s *Scheduler) Insert(h thinker.Handle) error {
	if err := s.checkOwner("insert"); err != nil {
		return err
	}
	if err := s.list.Insert(h); err != nil {
		return s.fail(listError("insert", err, s.clock.Tick(), h))
	}

	s.record(ir.EventSpawn, h, "")
	s.metrics.IncSpawned()
	s.metrics.SetThinkers(s.list.Len())
	return nil
}

// Remove stops scheduling h. Removing a thinker that is not linked is a
// DOUBLE_REMOVAL error and leaves the list untouched.
func (s *Scheduler) Remove(h thinker.Handle) error {
	if err := s.checkOwner("remove"); err != nil {
		return err
	}
	// Record before unlinking so the event still has the label.
	if s.list.Linked(h) {
		s.record(ir.EventDespawn, h, "")
	}
	if err := s.list.Remove(h); err != nil {
		return s.fail(listError("remove", err, s.clock.Tick(), h))
	}

	s.metrics.IncDespawned()
	s.metrics.SetThinkers(s.list.Len())
	return nil
}

// Free releases an unlinked thinker. Inside a tick the slot is reused only
// after the tick's traversal ends.
func (s *Scheduler) Free(h thinker.Handle) error {
	if err := s.checkOwner("free"); err != nil {
		return err
	}
	if err := s.list.Free(h); err != nil {
		return s.fail(listError("free", err, s.clock.Tick(), h))
	}
	return nil
}

// Spawn allocates and inserts a thinker.
func (s *Scheduler) Spawn(label string, fn action.Func) (thinker.Handle, error) {
	h, err := s.Alloc(label, fn)
	if err != nil {
		return thinker.Nil, err
	}
	if err := s.Insert(h); err != nil {
		_ = s.list.Free(h)
		return thinker.Nil, err
	}
	return h, nil
}

// Despawn removes and frees a thinker.
func (s *Scheduler) Despawn(h thinker.Handle) error {
	if err := s.Remove(h); err != nil {
		return err
	}
	return s.Free(h)
}

// SetAction replaces a thinker's action.
func (s *Scheduler) SetAction(h thinker.Handle, fn action.Func) error {
	if err := s.checkOwner("set action"); err != nil {
		return err
	}
	if err := s.list.SetAction(h, fn); err != nil {
		return s.fail(listError("set action", err, s.clock.Tick(), h))
	}
	return nil
}

// Submit queues a command for the owning goroutine. Safe from any
// goroutine. Returns false once the scheduler is closed.
func (s *Scheduler) Submit(c Command) bool {
	return s.commands.Enqueue(c)
}

// Tick runs one tick: every thinker linked when the tick starts is invoked
// exactly once, in insertion order, unless it is removed before its turn.
//
// Calling Tick from inside a tick returns NESTED_TICK immediately and
// aborts the outer tick.
func (s *Scheduler) Tick(ctx context.Context) error {
	if err := s.checkOwner("tick"); err != nil {
		return err
	}
	if s.state == StateRunning {
		return s.fail(&SchedulerError{
			Code:    ErrCodeNestedTick,
			Message: "tick started while a tick is running",
			Tick:    s.clock.Tick(),
		})
	}

	s.drainCommands()
	if s.state == StateClosed {
		return s.closedError("tick")
	}

	return s.runTick(ctx)
}

func (s *Scheduler) runTick(ctx context.Context) error {
	tick := s.clock.AdvanceTick()

	ctx, span := s.tracer.Start(ctx, "scheduler.tick",
		trace.WithAttributes(attribute.Int64("tick", int64(tick))),
	)
	defer span.End()

	s.state = StateRunning
	s.fault = nil
	start := time.Now()
	visited := 0

	err := func() error {
		defer func() { s.state = StateIdle }()

		return s.list.ForEach(func(h thinker.Handle) error {
			fn, err := s.list.Action(h)
			if err != nil {
				return s.fail(listError("visit", err, tick, h))
			}

			s.record(ir.EventVisit, h, "")
			visited++

			if err := s.invoke(fn, h, tick); err != nil {
				label, _ := s.list.Label(h)
				return s.fail(callError(err, tick, h, label))
			}
			if s.fault != nil {
				return s.fault
			}
			return nil
		})
	}()

	elapsed := time.Since(start)
	s.metrics.ObserveTick(elapsed, visited)
	s.metrics.SetThinkers(s.list.Len())
	span.SetAttributes(
		attribute.Int("visited", visited),
		attribute.Int("thinkers", s.list.Len()),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("tick aborted",
			"run_id", s.runID,
			"tick", tick,
			"visited", visited,
			"error", err,
		)
		if flushErr := s.Flush(ctx); flushErr != nil {
			return errors.Join(err, flushErr)
		}
		return err
	}

	s.logger.Debug("tick completed",
		"run_id", s.runID,
		"tick", tick,
		"visited", visited,
		"thinkers", s.list.Len(),
		"duration", elapsed,
	)

	return s.Flush(ctx)
}

// invoke calls fn with the arguments its arity asks for.
func (s *Scheduler) invoke(fn action.Func, self thinker.Handle, tick uint64) error {
	switch fn.Kind() {
	case action.KindNull:
		return nil
	case action.KindNullary:
		return fn.Call()
	case action.KindUnary:
		return fn.Call1(self)
	case action.KindBinary:
		return fn.Call2(self, tick)
	default:
		return &action.ArityError{Want: fn.Kind(), Got: -1}
	}
}

// Run ticks until the context is cancelled, the tick limit is reached, a
// submitted command closes the scheduler, or a tick fails. With a zero
// interval ticks run back to back. A close from a command returns nil
// regardless of the interval.
//
// Must be called from the owning goroutine.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.checkOwner("run"); err != nil {
		return err
	}

	s.logger.Info("scheduler starting",
		"run_id", s.runID,
		"interval", s.interval,
		"max_ticks", s.maxTicks,
		"thinkers", s.list.Len(),
	)

	var tickC <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	for {
		if s.maxTicks > 0 && s.clock.Tick() >= s.maxTicks {
			s.logger.Info("scheduler stopping: tick limit reached", "run_id", s.runID, "ticks", s.clock.Tick())
			return nil
		}

		if tickC != nil {
			select {
			case <-ctx.Done():
				s.logger.Info("scheduler stopping: context cancelled", "run_id", s.runID)
				return ctx.Err()
			case <-s.commands.Wait():
				if s.drainUntilClosed() {
					return nil
				}
				continue
			case <-tickC:
			}
		} else if err := ctx.Err(); err != nil {
			s.logger.Info("scheduler stopping: context cancelled", "run_id", s.runID)
			return err
		}

		if s.drainUntilClosed() {
			return nil
		}
		if err := s.Tick(ctx); err != nil {
			return err
		}
	}
}

// Flush writes buffered events to the recorder.
func (s *Scheduler) Flush(ctx context.Context) error {
	if s.recorder == nil || len(s.pending) == 0 {
		return nil
	}
	events := s.pending
	s.pending = nil
	if err := s.recorder.RecordEvents(ctx, events); err != nil {
		return fmt.Errorf("record %d events: %w", len(events), err)
	}
	return nil
}

// Close releases every remaining thinker and flushes the event log.
// Closing twice is a no-op.
func (s *Scheduler) Close(ctx context.Context) error {
	if s.state == StateClosed {
		return nil
	}
	if err := s.checkOwner("close"); err != nil {
		return err
	}
	if s.state == StateRunning {
		return s.fail(&SchedulerError{
			Code:    ErrCodeTickInProgress,
			Message: "close called during a tick",
			Tick:    s.clock.Tick(),
		})
	}

	for _, h := range s.list.Handles() {
		s.record(ir.EventDespawn, h, "teardown")
	}
	if err := s.list.Clear(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	s.commands.Close()
	s.state = StateClosed
	s.metrics.SetThinkers(0)

	s.logger.Info("scheduler closed", "run_id", s.runID, "ticks", s.clock.Tick())
	return s.Flush(ctx)
}

// RunID returns the identifier of this run.
func (s *Scheduler) RunID() string {
	return s.runID
}

// State returns Idle, Running, or Closed.
func (s *Scheduler) State() State {
	return s.state
}

// TickCount returns the number of ticks started so far.
func (s *Scheduler) TickCount() uint64 {
	return s.clock.Tick()
}

// Clock returns the scheduler's logical clock.
func (s *Scheduler) Clock() *Clock {
	return s.clock
}

// Len returns the number of scheduled thinkers.
func (s *Scheduler) Len() int {
	return s.list.Len()
}

// Handles returns the scheduled thinkers in traversal order.
func (s *Scheduler) Handles() []thinker.Handle {
	return s.list.Handles()
}

// Snapshot returns a view of the scheduled thinkers in traversal order.
func (s *Scheduler) Snapshot() []thinker.Info {
	return s.list.Snapshot()
}

// Linked reports whether h is currently scheduled.
func (s *Scheduler) Linked(h thinker.Handle) bool {
	return s.list.Linked(h)
}

// Label returns the label of h.
func (s *Scheduler) Label(h thinker.Handle) (string, error) {
	return s.list.Label(h)
}

// QueueLen returns the number of submitted commands not yet run.
func (s *Scheduler) QueueLen() int {
	return s.commands.Len()
}

func (s *Scheduler) drainCommands() {
	for _, c := range s.commands.TakeAll() {
		c(s)
	}
}

// drainUntilClosed runs submitted commands and reports whether one of them
// closed the scheduler. Run stops cleanly in that case.
func (s *Scheduler) drainUntilClosed() bool {
	s.drainCommands()
	if s.state != StateClosed {
		return false
	}
	s.logger.Info("scheduler stopping: closed", "run_id", s.runID, "ticks", s.clock.Tick())
	return true
}

// record buffers an event for h. Without a recorder nothing is kept.
func (s *Scheduler) record(kind ir.EventKind, h thinker.Handle, detail string) {
	if s.recorder == nil {
		return
	}
	ev := ir.Event{
		RunID:  s.runID,
		Seq:    s.clock.NextSeq(),
		Tick:   s.clock.Tick(),
		Kind:   kind,
		Detail: detail,
	}
	if !h.IsNil() {
		ev.Handle = h.String()
		if info, err := s.list.Info(h); err == nil {
			ev.Label = info.Label
			ev.Action = info.Kind.String()
		}
	}
	s.pending = append(s.pending, ev)
}

// fail logs and records err, latches it as the tick fault when a tick is
// running, and returns it.
func (s *Scheduler) fail(err *SchedulerError) error {
	if err.Label == "" && !err.Handle.IsNil() {
		err.Label, _ = s.list.Label(err.Handle)
	}

	s.logger.Error("scheduler error",
		"run_id", s.runID,
		"code", err.Code,
		"tick", err.Tick,
		"thinker", err.Label,
		"handle", err.Handle.String(),
		"error", err,
	)
	s.metrics.IncErrors(string(err.Code))
	s.record(ir.EventError, err.Handle, err.Error())

	if s.state == StateRunning && s.fault == nil {
		s.fault = err
	}
	return err
}

func (s *Scheduler) closedError(op string) error {
	return &SchedulerError{
		Code:    ErrCodeClosed,
		Message: op + " on closed scheduler",
		Tick:    s.clock.Tick(),
	}
}

func (s *Scheduler) checkOwner(op string) error {
	if s.state == StateClosed {
		return s.closedError(op)
	}
	if id := goid.Get(); id != s.owner {
		return &SchedulerError{
			Code:    ErrCodeWrongGoroutine,
			Message: fmt.Sprintf("%s called from goroutine %d, owner is %d", op, id, s.owner),
			Tick:    s.clock.Tick(),
		}
	}
	return nil
}

type noopMetrics struct{}

func (noopMetrics) ObserveTick(time.Duration, int) {}
func (noopMetrics) SetThinkers(int)                {}
func (noopMetrics) IncSpawned()                    {}
func (noopMetrics) IncDespawned()                  {}
func (noopMetrics) IncErrors(string)               {}
