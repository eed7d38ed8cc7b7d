// Package hearing defines the canonical data model shared across the
// sync and processing subsystems: raw source records, deduplicated
// canonical hearings with provenance, the pipeline status machine, and
// the audit/run records persisted alongside them.
package hearing
