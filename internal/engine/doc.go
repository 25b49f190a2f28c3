// Package engine implements the tick runner that drives thinkers.
//
// A Scheduler owns a thinker list and, once per tick, invokes the action of
// every thinker linked before the tick started, in insertion order.
//
// ARCHITECTURE:
//
// Single-Owner Tick Loop:
// The goroutine that creates a Scheduler owns it. Ticks and all list
// mutations must happen on that goroutine; calls from anywhere else are
// rejected with WRONG_GOROUTINE. Other goroutines hand work to the owner
// with Submit, and the owner drains submitted commands before each tick.
//
// Tick Processing Flow:
//  1. Submitted commands run (the scheduler is Idle)
//  2. The tick number advances and the scheduler becomes Running
//  3. The list is walked with the snapshot-next policy (see package
//     thinker); each visit is logged, then the action is invoked
//  4. The scheduler returns to Idle and buffered events are flushed to the
//     Recorder
//
// Call Convention:
// The scheduler chooses arguments from the action's arity:
//   - Nullary: ()
//   - Unary: (self thinker.Handle)
//   - Binary: (self thinker.Handle, tick uint64)
//
// An action whose arity or parameter types do not fit is reported as
// ARITY_MISMATCH or ARG_TYPE_MISMATCH and is never called.
//
// Faults:
// Programming errors raised during a tick (nested Tick, double removal,
// stale handles, call convention mismatches) are returned to the caller
// that caused them and also abort the tick once the current action
// returns. Tick then returns the first such error. Nothing is retried.
package engine
