// Package harness runs scripted scenarios against the real scheduler.
//
// A scenario declares thinkers, a tick count, per-tick operations that
// thinkers perform from inside their own actions, and assertions over the
// resulting event log.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: snapshot_next
//	description: "Removing the next thinker mid-tick skips it"
//	ticks: 2
//	thinkers:
//	  - name: a
//	  - name: b
//	    arity: 1
//	    on:
//	      - tick: 1
//	        despawn: c
//	  - name: c
//	  - name: d
//	assertions:
//	  - type: visit_order
//	    tick: 1
//	    thinkers: [a, b, d]
//
// Thinkers are spawned in declaration order before the first tick. arity
// picks the call convention (0 nullary, 1 unary, 2 binary). A dormant
// thinker has a null action: it is scheduled and visited but does nothing.
//
// # Operations
//
// Each step under on runs when its thinker is visited in the given tick:
//
//   - despawn: remove and free a thinker
//   - remove: unlink a thinker without freeing it
//   - remove_twice: remove a thinker twice (DOUBLE_REMOVAL)
//   - insert: re-link a removed thinker at the tail
//   - spawn: create a new thinker
//   - nested_tick: call Tick from inside the tick (NESTED_TICK)
//
// # Assertion Types
//
//   - visit_order: the exact labels visited in a tick
//   - visited / not_visited: whether a thinker was visited in a tick
//   - visit_count: how many times a thinker was visited over the run
//   - alive: the scheduled thinkers after the last tick, in order
//   - error: a tick failed with the given code
//
// A tick error that no error assertion expects fails the scenario.
//
// # Validation
//
// Scenario files are checked twice: structurally against a CUE schema
// (closed definitions, so typos in field names are rejected) and then
// semantically (unique names, references to declared thinkers).
//
// # Deterministic Testing
//
// Scenarios run with a fixed run ID and the scheduler's logical clock, so
// the same scenario always produces the same event log. RunWithGolden
// compares that log against testdata/golden/{name}.golden.
package harness
