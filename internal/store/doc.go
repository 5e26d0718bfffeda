// Package store holds the canonical in-memory device table for Gray Logic
// Sync and is the single mutation surface for device state.
//
// # Architecture
//
// Two writers submit mutation requests:
//
//   - the event stream subscriber (internal/stream) applies authoritative
//     deltas decoded from the hub's push connection
//   - the command dispatcher (internal/dispatch) applies speculative deltas
//     for immediate feedback, later confirmed or rolled back
//
// Ordering tokens are tracked per device and per origin class, so the two
// writers never block or invalidate each other: an authoritative delta is
// checked only against the last authoritative token, a speculative delta
// only against the last speculative one. Authoritative deltas always
// supersede speculative values for the keys they touch, simply by being
// applied later in wall-clock order with their own token sequence.
//
// The zone grouping (Zones) is a derived, read-only view recomputed from
// table contents; it carries no state of its own.
//
// # Thread Safety
//
// All operations are guarded by a single read-write mutex; mutations are
// atomic with respect to concurrent callers. Change callbacks run outside
// the lock, at most once per logical state change.
package store
