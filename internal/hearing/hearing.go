package hearing

import (
	"strings"
	"time"
)

// Raw is an unprocessed hearing record as returned by one source
// adapter. It is owned by the sync cycle that fetched it and is
// discarded once the dedup engine has resolved it.
type Raw struct {
	Source      string    `json:"source"`
	SourceID    string    `json:"source_id"`
	Title       string    `json:"title"`
	Date        time.Time `json:"date"`
	Committee   string    `json:"committee"`
	Type        string    `json:"type"`
	MediaURL    string    `json:"media_url"`
	DocumentURL string    `json:"document_url"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Incomplete reports whether the record lacks the fields required for
// confident merging. Incomplete pairs are always routed to manual
// review.
func (r Raw) Incomplete() bool {
	return strings.TrimSpace(r.Title) == "" || r.Date.IsZero()
}

// SourceRef records one source's contribution to a canonical hearing.
type SourceRef struct {
	SourceID     string    `json:"source_id"`
	LastSyncedAt time.Time `json:"last_synced_at"`
}

// Hearing is the single canonical record representing one real-world
// hearing, persisted in SQLite.
type Hearing struct {
	ID             string
	Committee      string
	Title          string
	Date           time.Time
	Type           string
	Provenance     map[string]SourceRef
	MediaURL       string
	DocumentURL    string
	SyncConfidence float64
	Status         Status
	StageProgress  float64
	FailedStage    string
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasSource reports whether the named source already contributed to
// this hearing's provenance.
func (h *Hearing) HasSource(source string) bool {
	if h == nil || h.Provenance == nil {
		return false
	}
	_, ok := h.Provenance[source]
	return ok
}

// RecordSource merges one source reference into the provenance map,
// never removing existing entries.
func (h *Hearing) RecordSource(source, sourceID string, syncedAt time.Time) {
	if h.Provenance == nil {
		h.Provenance = make(map[string]SourceRef, 2)
	}
	h.Provenance[source] = SourceRef{SourceID: sourceID, LastSyncedAt: syncedAt.UTC()}
}

// MostRecentSource returns the provenance source with the latest sync
// timestamp, or "" when provenance is empty.
func (h *Hearing) MostRecentSource() string {
	var (
		best     string
		bestTime time.Time
	)
	for name, ref := range h.Provenance {
		if best == "" || ref.LastSyncedAt.After(bestTime) {
			best = name
			bestTime = ref.LastSyncedAt
		}
	}
	return best
}

// SetFailed marks the hearing failed at the given stage with error
// detail attached for the status API.
func (h *Hearing) SetFailed(stage, message string) {
	h.Status = StatusFailed
	h.FailedStage = stage
	h.ErrorMessage = message
	h.StageProgress = 0
}

// PendingResolution values for a merge candidate awaiting human review.
type PendingResolution string

const (
	ResolutionPending      PendingResolution = "pending"
	ResolutionMerged       PendingResolution = "merged"
	ResolutionKeptSeparate PendingResolution = "kept_separate"
)

// PendingMergeCandidate holds a raw-record pair whose dedup confidence
// fell inside the manual-review band.
type PendingMergeCandidate struct {
	ID         int64
	RecordA    Raw
	RecordB    Raw
	Confidence float64
	Resolution PendingResolution
	HearingID  string
	CreatedAt  time.Time
	ResolvedAt *time.Time
}
