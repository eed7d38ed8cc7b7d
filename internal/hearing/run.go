package hearing

import "time"

// StageRecord captures start/end timestamps for one stage within a
// pipeline run.
type StageRecord struct {
	Stage      Stage      `json:"stage"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// PipelineRun is one execution of the pipeline controller for a
// hearing. Runs are retained after completion for audit and replay.
type PipelineRun struct {
	ID           string
	HearingID    string
	Stage        Stage
	Timeline     []StageRecord
	ErrorStage   string
	ErrorMessage string
	Cancelled    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// BeginStage appends a timeline record for a newly started stage and
// sets it as the current stage.
func (r *PipelineRun) BeginStage(stage Stage, at time.Time) {
	r.Stage = stage
	r.Timeline = append(r.Timeline, StageRecord{Stage: stage, StartedAt: at.UTC()})
}

// FinishStage closes the most recent timeline record for the stage, if
// it is still open.
func (r *PipelineRun) FinishStage(stage Stage, at time.Time) {
	for i := len(r.Timeline) - 1; i >= 0; i-- {
		if r.Timeline[i].Stage == stage && r.Timeline[i].FinishedAt == nil {
			ts := at.UTC()
			r.Timeline[i].FinishedAt = &ts
			return
		}
	}
}
