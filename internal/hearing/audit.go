package hearing

import "time"

// Decision categorizes a sync audit entry.
type Decision string

const (
	DecisionFetched     Decision = "fetched"
	DecisionAutoMerge   Decision = "auto_merge"
	DecisionPending     Decision = "pending"
	DecisionDistinct    Decision = "distinct"
	DecisionManualMerge Decision = "manual_merge"
	DecisionManualKeep  Decision = "manual_keep_separate"
	DecisionSkipped     Decision = "skipped"
	DecisionPartial     Decision = "partial"
	DecisionError       Decision = "error"
)

// SyncAuditEntry is an append-only record of one adapter pull or merge
// decision. Entries are never mutated; they exist for diagnosis and for
// tuning dedup thresholds.
type SyncAuditEntry struct {
	ID         int64
	Source     string
	SourceID   string
	HearingID  string
	Decision   Decision
	Confidence float64
	Detail     string
	CreatedAt  time.Time
}
