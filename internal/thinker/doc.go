// Package thinker implements the list of thinkers driven by the tick runner.
//
// Thinker records live in an arena owned by a List and are addressed by
// Handle values carrying a slot index and a generation. Freeing a record
// bumps its generation, so a Handle kept past Free is detected as stale
// instead of silently aliasing whatever reuses the slot.
//
// Linked records form a doubly linked list through slot 0, a sentinel that
// bounds both ends. Insert appends at the tail and traversal runs head to
// tail, so traversal order is insertion order.
//
// TRAVERSAL:
//
// ForEach captures the next record before running the callback for the
// current one. The callback may therefore mutate the list:
//   - removing the current record is safe (its links are never read again)
//   - removing the captured next record advances the capture to that
//     record's successor, so a record removed mid-pass is skipped
//   - records inserted during the pass carry the pass epoch and are not
//     visited until the next pass
//
// Free during a pass is deferred until the pass ends, so a slot is never
// reused while the traversal may still hold its index.
//
// A List is not safe for concurrent use.
package thinker
