// Package api defines the wire types shared by the daemon's HTTP
// server and the CLI client.
package api

import (
	"sort"
	"time"

	"gavel/internal/hearing"
)

// HearingSummary is the list-view projection of a canonical hearing.
type HearingSummary struct {
	ID             string   `json:"id"`
	Committee      string   `json:"committee"`
	Title          string   `json:"title"`
	Date           string   `json:"date"`
	Type           string   `json:"type,omitempty"`
	Status         string   `json:"status"`
	SyncConfidence float64  `json:"sync_confidence"`
	Sources        []string `json:"sources,omitempty"`
	MediaURL       string   `json:"media_url,omitempty"`
	DocumentURL    string   `json:"document_url,omitempty"`
	FailedStage    string   `json:"failed_stage,omitempty"`
	ErrorMessage   string   `json:"error_message,omitempty"`
	UpdatedAt      string   `json:"updated_at"`
}

// HearingListResponse wraps GET /api/hearings.
type HearingListResponse struct {
	Hearings []HearingSummary `json:"hearings"`
}

// AuditEntry is one sync audit record on the detail view.
type AuditEntry struct {
	Source     string  `json:"source"`
	SourceID   string  `json:"source_id,omitempty"`
	Decision   string  `json:"decision"`
	Confidence float64 `json:"confidence"`
	Detail     string  `json:"detail,omitempty"`
	CreatedAt  string  `json:"created_at"`
}

// RunSummary is one pipeline run on the detail view.
type RunSummary struct {
	ID           string        `json:"id"`
	Stage        string        `json:"stage,omitempty"`
	ErrorStage   string        `json:"error_stage,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Cancelled    bool          `json:"cancelled"`
	CreatedAt    string        `json:"created_at"`
	Timeline     []StageRecord `json:"timeline,omitempty"`
}

// StageRecord is one timeline entry within a run.
type StageRecord struct {
	Stage      string `json:"stage"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

// HearingDetail wraps GET /api/hearings/{id}.
type HearingDetail struct {
	Hearing HearingSummary `json:"hearing"`
	Audit   []AuditEntry   `json:"audit,omitempty"`
	Runs    []RunSummary   `json:"runs,omitempty"`
}

// UnitProgress mirrors the tracker snapshot for an in-flight stage.
type UnitProgress struct {
	Total      int     `json:"total"`
	Processing int     `json:"processing"`
	Completed  int     `json:"completed"`
	Failed     int     `json:"failed"`
	Percent    float64 `json:"percent"`
}

// ProgressResponse wraps GET /api/hearings/{id}/progress.
type ProgressResponse struct {
	HearingID      string        `json:"hearing_id"`
	Status         string        `json:"status"`
	Stage          string        `json:"stage,omitempty"`
	StagePercent   float64       `json:"stage_percent"`
	OverallPercent float64       `json:"overall_percent"`
	Units          *UnitProgress `json:"units,omitempty"`
	FailedStage    string        `json:"failed_stage,omitempty"`
	ErrorMessage   string        `json:"error_message,omitempty"`
}

// SourceStatus is one source's scheduler and breaker state.
type SourceStatus struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Breaker string `json:"breaker"`
}

// DaemonStatus wraps GET /api/status.
type DaemonStatus struct {
	Running       bool           `json:"running"`
	PID           int            `json:"pid"`
	DBPath        string         `json:"db_path"`
	LockFilePath  string         `json:"lock_file_path"`
	Sources       []SourceStatus `json:"sources"`
	StatusCounts  map[string]int `json:"status_counts"`
	PendingMerges int            `json:"pending_merges"`
}

// RawRecord is one side of a pending merge pair.
type RawRecord struct {
	Source    string `json:"source"`
	SourceID  string `json:"source_id"`
	Title     string `json:"title"`
	Date      string `json:"date"`
	Committee string `json:"committee"`
}

// PendingMerge is one candidate awaiting review.
type PendingMerge struct {
	ID         int64     `json:"id"`
	Confidence float64   `json:"confidence"`
	HearingID  string    `json:"hearing_id,omitempty"`
	RecordA    RawRecord `json:"record_a"`
	RecordB    RawRecord `json:"record_b"`
	CreatedAt  string    `json:"created_at"`
}

// PendingMergeListResponse wraps GET /api/pending-merges.
type PendingMergeListResponse struct {
	Candidates []PendingMerge `json:"candidates"`
}

// ResolveRequest is the body of POST /api/pending-merges/{id}/resolve.
type ResolveRequest struct {
	Action string `json:"action"`
}

// ResolveResponse reports where the resolved record landed.
type ResolveResponse struct {
	Decision  string `json:"decision"`
	HearingID string `json:"hearing_id"`
}

// CaptureResponse wraps POST /api/hearings/{id}/capture.
type CaptureResponse struct {
	RunID string `json:"run_id"`
}

// SyncTriggerResponse wraps POST /api/sync/{source}.
type SyncTriggerResponse struct {
	Source    string `json:"source"`
	Triggered bool   `json:"triggered"`
}

// ErrorResponse is the error envelope every endpoint uses.
type ErrorResponse struct {
	Error string `json:"error"`
}

const timeFormat = time.RFC3339

// FromHearing projects a stored hearing into its wire form.
func FromHearing(h *hearing.Hearing) HearingSummary {
	summary := HearingSummary{
		ID:             h.ID,
		Committee:      h.Committee,
		Title:          h.Title,
		Date:           h.Date.Format("2006-01-02"),
		Type:           h.Type,
		Status:         string(h.Status),
		SyncConfidence: h.SyncConfidence,
		MediaURL:       h.MediaURL,
		DocumentURL:    h.DocumentURL,
		FailedStage:    h.FailedStage,
		ErrorMessage:   h.ErrorMessage,
		UpdatedAt:      h.UpdatedAt.Format(timeFormat),
	}
	for source := range h.Provenance {
		summary.Sources = append(summary.Sources, source)
	}
	sort.Strings(summary.Sources)
	return summary
}

// FromAudit projects an audit entry.
func FromAudit(entry *hearing.SyncAuditEntry) AuditEntry {
	return AuditEntry{
		Source:     entry.Source,
		SourceID:   entry.SourceID,
		Decision:   string(entry.Decision),
		Confidence: entry.Confidence,
		Detail:     entry.Detail,
		CreatedAt:  entry.CreatedAt.Format(timeFormat),
	}
}

// FromRun projects a pipeline run with its stage timeline.
func FromRun(run *hearing.PipelineRun) RunSummary {
	summary := RunSummary{
		ID:           run.ID,
		Stage:        string(run.Stage),
		ErrorStage:   run.ErrorStage,
		ErrorMessage: run.ErrorMessage,
		Cancelled:    run.Cancelled,
		CreatedAt:    run.CreatedAt.Format(timeFormat),
	}
	for _, record := range run.Timeline {
		wire := StageRecord{
			Stage:     string(record.Stage),
			StartedAt: record.StartedAt.Format(timeFormat),
		}
		if record.FinishedAt != nil {
			wire.FinishedAt = record.FinishedAt.Format(timeFormat)
		}
		summary.Timeline = append(summary.Timeline, wire)
	}
	return summary
}

// FromRaw projects one side of a merge pair.
func FromRaw(raw hearing.Raw) RawRecord {
	record := RawRecord{
		Source:    raw.Source,
		SourceID:  raw.SourceID,
		Title:     raw.Title,
		Committee: raw.Committee,
	}
	if !raw.Date.IsZero() {
		record.Date = raw.Date.Format("2006-01-02")
	}
	return record
}

// FromCandidate projects a pending merge candidate.
func FromCandidate(candidate *hearing.PendingMergeCandidate) PendingMerge {
	return PendingMerge{
		ID:         candidate.ID,
		Confidence: candidate.Confidence,
		HearingID:  candidate.HearingID,
		RecordA:    FromRaw(candidate.RecordA),
		RecordB:    FromRaw(candidate.RecordB),
		CreatedAt:  candidate.CreatedAt.Format(timeFormat),
	}
}
