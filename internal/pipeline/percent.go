package pipeline

import (
	"context"
	"fmt"

	"gavel/internal/hearing"
	"gavel/internal/progress"
)

// Report is the progress view served by the status API.
type Report struct {
	HearingID      string             `json:"hearing_id"`
	Status         hearing.Status     `json:"status"`
	Stage          hearing.Stage      `json:"stage,omitempty"`
	StagePercent   float64            `json:"stage_percent"`
	OverallPercent float64            `json:"overall_percent"`
	Units          *progress.Snapshot `json:"units,omitempty"`
	FailedStage    string             `json:"failed_stage,omitempty"`
	ErrorMessage   string             `json:"error_message,omitempty"`
}

// Progress assembles the live progress report for a hearing, combining
// persisted status with the in-memory unit tracker of its latest run.
func (c *Controller) Progress(ctx context.Context, hearingID string) (Report, error) {
	h, err := c.store.GetHearing(ctx, hearingID)
	if err != nil {
		return Report{}, err
	}
	if h == nil {
		return Report{}, fmt.Errorf("%s: %w", hearingID, ErrHearingNotFound)
	}

	report := Report{
		HearingID:    h.ID,
		Status:       h.Status,
		StagePercent: h.StageProgress,
		FailedStage:  h.FailedStage,
		ErrorMessage: h.ErrorMessage,
	}
	if stage, ok := hearing.StageForStatus(h.Status); ok {
		report.Stage = stage
	}

	if run, err := c.store.LatestRunForHearing(ctx, hearingID); err == nil && run != nil {
		if snap, ok := c.tracker.Snapshot(run.ID); ok {
			report.Units = &snap
			if h.Status.IsProcessing() {
				report.StagePercent = snap.Percent
			}
		}
	}

	report.OverallPercent = OverallPercent(c.cfg.StageWeights, h.Status, report.StagePercent)
	return report, nil
}

// OverallPercent folds per-stage weights into a single completion
// figure: finished stages contribute their full weight, the current
// stage contributes proportionally, completed reads 100.
func OverallPercent(weights map[string]int, status hearing.Status, stagePercent float64) float64 {
	if status == hearing.StatusCompleted {
		return 100
	}
	stage, ok := hearing.StageForStatus(status)
	if !ok {
		return 0
	}
	if stagePercent < 0 {
		stagePercent = 0
	}
	if stagePercent > 100 {
		stagePercent = 100
	}

	var total, done float64
	for _, s := range hearing.Stages {
		total += float64(weights[string(s)])
	}
	if total == 0 {
		return 0
	}
	for _, s := range hearing.Stages {
		weight := float64(weights[string(s)])
		if s == stage {
			done += weight * stagePercent / 100
			break
		}
		done += weight
	}

	percent := done * 100 / total
	if percent > 100 {
		percent = 100
	}
	return percent
}
