// Package dedup resolves raw source records against the canonical
// hearing catalog. Each incoming record is scored against the existing
// hearings of its committee; the score decides between automatic merge,
// a queued manual-review candidate, and a distinct new hearing. All
// decisions land in the append-only sync audit trail.
package dedup
