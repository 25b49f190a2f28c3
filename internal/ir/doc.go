// Package ir defines the trace records produced by the tick runner and
// their canonical serialization.
//
// This package contains data types and pure functions only. Every other
// internal package may import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Ordering comes from the logical seq and tick counters, never from
//     wall-clock timestamps
//   - All JSON tags use snake_case
//   - Digests are computed over canonical JSON (sorted keys, NFC strings)
//     so identical runs produce identical digests
package ir
