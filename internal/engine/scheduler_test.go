package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/roach88/thinker/internal/action"
	"github.com/roach88/thinker/internal/ir"
	"github.com/roach88/thinker/internal/testutil"
	"github.com/roach88/thinker/internal/thinker"
)

// fixture wires a scheduler to an in-memory recorder and collects the
// labels of visited thinkers.
type fixture struct {
	s       *Scheduler
	rec     *testutil.MemoryRecorder
	visited []string
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{rec: testutil.NewMemoryRecorder()}
	opts = append([]Option{
		WithRecorder(f.rec),
		WithRunIDGenerator(NewFixedGenerator("run-test")),
	}, opts...)
	f.s = New(opts...)
	return f
}

// spawn adds a thinker that records its label and then runs hook, if any.
func (f *fixture) spawn(t *testing.T, label string, hook func(self thinker.Handle)) thinker.Handle {
	t.Helper()
	h, err := f.s.Spawn(label, action.Unary(func(self thinker.Handle) {
		f.visited = append(f.visited, label)
		if hook != nil {
			hook(self)
		}
	}))
	require.NoError(t, err)
	return h
}

func (f *fixture) tick(t *testing.T) []string {
	t.Helper()
	f.visited = nil
	require.NoError(t, f.s.Tick(context.Background()))
	return f.visited
}

func TestScheduler_New(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, StateIdle, f.s.State())
	assert.Equal(t, "run-test", f.s.RunID())
	assert.Equal(t, uint64(0), f.s.TickCount())
	assert.Equal(t, 0, f.s.Len())
}

func TestScheduler_TickVisitsInInsertionOrder(t *testing.T) {
	f := newFixture(t)
	for _, label := range []string{"a", "b", "c"} {
		f.spawn(t, label, nil)
	}

	assert.Equal(t, []string{"a", "b", "c"}, f.tick(t))
	assert.Equal(t, []string{"a", "b", "c"}, f.tick(t))
	assert.Equal(t, uint64(2), f.s.TickCount())
	assert.Equal(t, StateIdle, f.s.State())
}

func TestScheduler_EmptyTick(t *testing.T) {
	f := newFixture(t)
	assert.Empty(t, f.tick(t))
	assert.Equal(t, uint64(1), f.s.TickCount())
}

func TestScheduler_RemoveSnapshottedNextIsSkipped(t *testing.T) {
	f := newFixture(t)
	var c thinker.Handle
	f.spawn(t, "a", nil)
	f.spawn(t, "b", func(thinker.Handle) {
		require.NoError(t, f.s.Despawn(c))
	})
	c = f.spawn(t, "c", nil)
	f.spawn(t, "d", nil)

	assert.Equal(t, []string{"a", "b", "d"}, f.tick(t))
	assert.Equal(t, 3, f.s.Len())
}

func TestScheduler_SelfDespawn(t *testing.T) {
	f := newFixture(t)
	f.spawn(t, "a", nil)
	f.spawn(t, "once", func(self thinker.Handle) {
		require.NoError(t, f.s.Despawn(self))
	})
	f.spawn(t, "c", nil)

	assert.Equal(t, []string{"a", "once", "c"}, f.tick(t))
	assert.Equal(t, []string{"a", "c"}, f.tick(t))
}

func TestScheduler_SpawnDuringTickRunsNextTick(t *testing.T) {
	f := newFixture(t)
	spawned := false
	f.spawn(t, "parent", func(thinker.Handle) {
		if !spawned {
			spawned = true
			f.spawn(t, "child", nil)
		}
	})

	assert.Equal(t, []string{"parent"}, f.tick(t))
	assert.Equal(t, []string{"parent", "child"}, f.tick(t))
}

func TestScheduler_CallConvention(t *testing.T) {
	s := New()

	var gotSelf thinker.Handle
	var gotTick uint64
	nullary := 0

	_, err := s.Spawn("nullary", action.Nullary(func() { nullary++ }))
	require.NoError(t, err)
	h, err := s.Spawn("binary", action.Binary(func(self thinker.Handle, tick uint64) {
		gotSelf = self
		gotTick = tick
	}))
	require.NoError(t, err)
	_, err = s.Spawn("null", action.Null())
	require.NoError(t, err)

	require.NoError(t, s.Tick(context.Background()))
	require.NoError(t, s.Tick(context.Background()))

	assert.Equal(t, 2, nullary)
	assert.Equal(t, h, gotSelf)
	assert.Equal(t, uint64(2), gotTick)
}

func TestScheduler_NullActionIsVisited(t *testing.T) {
	f := newFixture(t)
	_, err := f.s.Spawn("dormant", action.Null())
	require.NoError(t, err)

	require.NoError(t, f.s.Tick(context.Background()))
	assert.Equal(t, []string{"dormant"}, f.rec.Visits(1))
}

func TestScheduler_SetAction(t *testing.T) {
	f := newFixture(t)
	h, err := f.s.Spawn("t", action.Null())
	require.NoError(t, err)

	calls := 0
	require.NoError(t, f.s.SetAction(h, action.Nullary(func() { calls++ })))
	require.NoError(t, f.s.Tick(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestScheduler_ArgTypeMismatchAbortsTick(t *testing.T) {
	f := newFixture(t)
	f.spawn(t, "a", nil)
	_, err := f.s.Spawn("bad", action.Binary(func(string, int) {}))
	require.NoError(t, err)
	f.spawn(t, "c", nil)

	f.visited = nil
	err = f.s.Tick(context.Background())
	require.Error(t, err)
	assert.True(t, IsArityError(err))
	assert.Equal(t, ErrCodeArgTypeMismatch, CodeOf(err))
	assert.True(t, action.IsArgTypeError(err), "underlying error should be preserved")
	assert.Equal(t, []string{"a"}, f.visited, "tick stops at the failing thinker")
	assert.Equal(t, StateIdle, f.s.State())
}

func TestScheduler_NestedTick(t *testing.T) {
	f := newFixture(t)
	var inner error
	nest := true
	f.spawn(t, "nester", func(thinker.Handle) {
		if nest {
			nest = false
			inner = f.s.Tick(context.Background())
		}
	})
	f.spawn(t, "after", nil)

	f.visited = nil
	err := f.s.Tick(context.Background())
	require.Error(t, err)
	assert.True(t, IsNestedTick(inner))
	assert.True(t, IsNestedTick(err), "outer tick reports the nested tick")
	assert.Equal(t, []string{"nester"}, f.visited)
	assert.Equal(t, uint64(1), f.s.TickCount(), "nested call does not start a tick")
	assert.Equal(t, StateIdle, f.s.State())

	// The scheduler recovers on the next tick.
	assert.Equal(t, []string{"nester", "after"}, f.tick(t))
}

func TestScheduler_DoubleRemoval(t *testing.T) {
	f := newFixture(t)
	a := f.spawn(t, "a", nil)
	f.spawn(t, "b", nil)

	require.NoError(t, f.s.Remove(a))
	err := f.s.Remove(a)
	require.Error(t, err)
	assert.True(t, IsDoubleRemoval(err))
	assert.Equal(t, 1, f.s.Len(), "failed removal leaves the list untouched")
	assert.Equal(t, []string{"b"}, f.tick(t))
}

func TestScheduler_DespawnTwiceIsStale(t *testing.T) {
	f := newFixture(t)
	a := f.spawn(t, "a", nil)

	require.NoError(t, f.s.Despawn(a))
	err := f.s.Despawn(a)
	assert.Equal(t, ErrCodeStaleHandle, CodeOf(err))
}

func TestScheduler_DoubleRemovalDuringTickAbortsTick(t *testing.T) {
	f := newFixture(t)
	var b thinker.Handle
	f.spawn(t, "a", func(thinker.Handle) {
		_ = f.s.Remove(b)
		_ = f.s.Remove(b)
	})
	b = f.spawn(t, "b", nil)
	f.spawn(t, "c", nil)

	f.visited = nil
	err := f.s.Tick(context.Background())
	assert.True(t, IsDoubleRemoval(err))
	assert.Equal(t, []string{"a"}, f.visited)
}

func TestScheduler_WrongGoroutine(t *testing.T) {
	s := New()

	errs := make(chan error, 2)
	go func() {
		errs <- s.Tick(context.Background())
		_, err := s.Spawn("x", action.Null())
		errs <- err
	}()

	assert.Equal(t, ErrCodeWrongGoroutine, CodeOf(<-errs))
	assert.Equal(t, ErrCodeWrongGoroutine, CodeOf(<-errs))
	assert.Equal(t, uint64(0), s.TickCount())
}

func TestScheduler_SubmitRunsBeforeTick(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ok := f.s.Submit(func(s *Scheduler) {
			f.spawn(t, "remote", nil)
		})
		assert.True(t, ok)
	}()
	wg.Wait()

	assert.Equal(t, 1, f.s.QueueLen())
	assert.Equal(t, []string{"remote"}, f.tick(t))
	assert.Equal(t, 0, f.s.QueueLen())
}

func TestScheduler_RecordsEvents(t *testing.T) {
	f := newFixture(t)
	a := f.spawn(t, "a", nil)
	f.spawn(t, "b", func(self thinker.Handle) {
		require.NoError(t, f.s.Despawn(self))
	})
	f.tick(t)

	events := f.rec.Events()
	require.Len(t, events, 5)
	assert.Equal(t, []ir.EventKind{
		ir.EventSpawn, ir.EventSpawn,
		ir.EventVisit, ir.EventVisit, ir.EventDespawn,
	}, f.rec.Kinds())

	assert.Equal(t, uint64(0), events[0].Tick, "spawns before the first tick belong to tick 0")
	assert.Equal(t, a.String(), events[0].Handle)
	assert.Equal(t, "unary", events[0].Action)
	for i, ev := range events {
		assert.Equal(t, "run-test", ev.RunID)
		assert.Equal(t, int64(i+1), ev.Seq)
	}
	assert.Equal(t, "b", events[4].Label)
	assert.Equal(t, uint64(1), events[4].Tick)
}

func TestScheduler_RecordsErrors(t *testing.T) {
	f := newFixture(t)
	a := f.spawn(t, "a", nil)
	require.NoError(t, f.s.Remove(a))
	_ = f.s.Remove(a)
	require.NoError(t, f.s.Flush(context.Background()))

	events := f.rec.Events()
	last := events[len(events)-1]
	assert.Equal(t, ir.EventError, last.Kind)
	assert.Contains(t, last.Detail, string(ErrCodeDoubleRemoval))
	assert.Equal(t, "a", last.Label)
}

func TestScheduler_RecorderFailure(t *testing.T) {
	f := newFixture(t)
	f.spawn(t, "a", nil)
	f.rec.FailNext(true)

	err := f.s.Tick(context.Background())
	assert.ErrorIs(t, err, testutil.ErrRecorderFailed)
}

func TestScheduler_Close(t *testing.T) {
	f := newFixture(t)
	f.spawn(t, "a", nil)
	f.spawn(t, "b", nil)

	require.NoError(t, f.s.Close(context.Background()))
	assert.Equal(t, StateClosed, f.s.State())
	assert.Equal(t, 0, f.s.Len())

	events := f.rec.Events()
	teardown := events[len(events)-2:]
	for _, ev := range teardown {
		assert.Equal(t, ir.EventDespawn, ev.Kind)
		assert.Equal(t, "teardown", ev.Detail)
	}
	assert.Equal(t, "a", teardown[0].Label)
	assert.Equal(t, "b", teardown[1].Label)

	assert.Equal(t, ErrCodeClosed, CodeOf(f.s.Tick(context.Background())))
	assert.False(t, f.s.Submit(func(*Scheduler) {}))
	assert.NoError(t, f.s.Close(context.Background()), "close is idempotent")
}

func TestScheduler_CloseDuringTick(t *testing.T) {
	f := newFixture(t)
	var closeErr error
	f.spawn(t, "closer", func(thinker.Handle) {
		closeErr = f.s.Close(context.Background())
	})

	err := f.s.Tick(context.Background())
	assert.Equal(t, ErrCodeTickInProgress, CodeOf(closeErr))
	assert.Equal(t, ErrCodeTickInProgress, CodeOf(err))
	assert.Equal(t, StateIdle, f.s.State())
}

func TestScheduler_CloseFromCommand(t *testing.T) {
	f := newFixture(t)
	f.s.Submit(func(s *Scheduler) {
		require.NoError(t, s.Close(context.Background()))
	})

	err := f.s.Tick(context.Background())
	assert.Equal(t, ErrCodeClosed, CodeOf(err))
}

func TestScheduler_RunStopsAtMaxTicks(t *testing.T) {
	f := newFixture(t, WithMaxTicks(3))
	f.spawn(t, "a", nil)

	require.NoError(t, f.s.Run(context.Background()))
	assert.Equal(t, uint64(3), f.s.TickCount())
	assert.Len(t, f.visited, 3)
	assert.Len(t, f.rec.Visits(3), 1)
}

func TestScheduler_RunWithInterval(t *testing.T) {
	f := newFixture(t, WithInterval(time.Millisecond), WithMaxTicks(2))
	f.spawn(t, "a", nil)

	require.NoError(t, f.s.Run(context.Background()))
	assert.Equal(t, uint64(2), f.s.TickCount())
}

func TestScheduler_RunCancelled(t *testing.T) {
	f := newFixture(t, WithInterval(time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := f.s.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScheduler_RunStopsOnSubmittedClose(t *testing.T) {
	for _, interval := range []time.Duration{0, time.Millisecond} {
		t.Run(interval.String(), func(t *testing.T) {
			f := newFixture(t, WithInterval(interval), WithMaxTicks(10))
			f.spawn(t, "a", func(thinker.Handle) {
				if f.s.TickCount() == 2 {
					f.s.Submit(func(s *Scheduler) {
						require.NoError(t, s.Close(context.Background()))
					})
				}
			})

			require.NoError(t, f.s.Run(context.Background()))
			assert.Equal(t, StateClosed, f.s.State())
			assert.Equal(t, uint64(2), f.s.TickCount())
			assert.Len(t, f.visited, 2)
		})
	}
}

func TestScheduler_RunReturnsTickError(t *testing.T) {
	f := newFixture(t, WithMaxTicks(10))
	_, err := f.s.Spawn("bad", action.Unary(func(string) {}))
	require.NoError(t, err)

	err = f.s.Run(context.Background())
	assert.Equal(t, ErrCodeArgTypeMismatch, CodeOf(err))
	assert.Equal(t, uint64(1), f.s.TickCount())
}

type fakeMetrics struct {
	ticks     int
	visited   int
	thinkers  int
	spawned   int
	despawned int
	errors    map[string]int
}

func (m *fakeMetrics) ObserveTick(_ time.Duration, visited int) {
	m.ticks++
	m.visited += visited
}
func (m *fakeMetrics) SetThinkers(n int) { m.thinkers = n }
func (m *fakeMetrics) IncSpawned()       { m.spawned++ }
func (m *fakeMetrics) IncDespawned()     { m.despawned++ }
func (m *fakeMetrics) IncErrors(code string) {
	if m.errors == nil {
		m.errors = map[string]int{}
	}
	m.errors[code]++
}

func TestScheduler_Metrics(t *testing.T) {
	m := &fakeMetrics{}
	f := newFixture(t, WithMetrics(m))
	a := f.spawn(t, "a", nil)
	f.spawn(t, "b", nil)
	f.tick(t)
	require.NoError(t, f.s.Remove(a))
	_ = f.s.Remove(a)

	assert.Equal(t, 1, m.ticks)
	assert.Equal(t, 2, m.visited)
	assert.Equal(t, 1, m.thinkers)
	assert.Equal(t, 2, m.spawned)
	assert.Equal(t, 1, m.despawned)
	assert.Equal(t, 1, m.errors[string(ErrCodeDoubleRemoval)])
}

func TestScheduler_TickSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := newFixture(t, WithTracer(tp.Tracer(TracerName)))
	f.spawn(t, "a", nil)
	f.spawn(t, "b", nil)
	f.tick(t)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "scheduler.tick", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.Int64("tick", 1))
	assert.Contains(t, spans[0].Attributes(), attribute.Int64("visited", 2))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "state(9)", State(9).String())
}
