// Package store persists canonical hearings, the sync audit trail,
// pending merge candidates, and pipeline runs in SQLite. It is the
// single source of truth; the dedup engine owns discovery-time fields
// and the pipeline controller owns processing-state fields, serialized
// per hearing through the store's advisory locks.
package store
