package hearing

import "strings"

// Status represents the processing lifecycle of a hearing.
type Status string

const (
	StatusDiscovered       Status = "discovered"
	StatusCaptureRequested Status = "capture_requested"
	StatusCapturing        Status = "capturing"
	StatusConverting       Status = "converting"
	StatusTrimming         Status = "trimming"
	StatusTranscribing     Status = "transcribing"
	StatusLabeling         Status = "labeling"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
	StatusCancelled        Status = "cancelled"
)

// Stage names one discrete unit of processing work.
type Stage string

const (
	StageCapture    Stage = "capture"
	StageConvert    Stage = "convert"
	StageTrim       Stage = "trim"
	StageTranscribe Stage = "transcribe"
	StageLabel      Stage = "label"
)

var allStatuses = []Status{
	StatusDiscovered,
	StatusCaptureRequested,
	StatusCapturing,
	StatusConverting,
	StatusTrimming,
	StatusTranscribing,
	StatusLabeling,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// Stages lists the active processing stages in execution order.
var Stages = []Stage{StageCapture, StageConvert, StageTrim, StageTranscribe, StageLabel}

// ActiveStatuses lists the statuses a hearing can hold while inside the
// pipeline, in lifecycle order.
var ActiveStatuses = []Status{
	StatusCaptureRequested,
	StatusCapturing,
	StatusConverting,
	StatusTrimming,
	StatusTranscribing,
	StatusLabeling,
}

var stageByStatus = map[Status]Stage{
	StatusCapturing:    StageCapture,
	StatusConverting:   StageConvert,
	StatusTrimming:     StageTrim,
	StatusTranscribing: StageTranscribe,
	StatusLabeling:     StageLabel,
}

var statusByStage = map[Stage]Status{
	StageCapture:    StatusCapturing,
	StageConvert:    StatusConverting,
	StageTrim:       StatusTrimming,
	StageTranscribe: StatusTranscribing,
	StageLabel:      StatusLabeling,
}

// successor maps each processing status to the status reached when its
// stage completes successfully.
var successor = map[Status]Status{
	StatusCaptureRequested: StatusCapturing,
	StatusCapturing:        StatusConverting,
	StatusConverting:       StatusTrimming,
	StatusTrimming:         StatusTranscribing,
	StatusTranscribing:     StatusLabeling,
	StatusLabeling:         StatusCompleted,
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// StageForStatus maps a processing status to its stage name.
func StageForStatus(status Status) (Stage, bool) {
	stage, ok := stageByStatus[status]
	return stage, ok
}

// StatusForStage maps a stage name to its processing status.
func StatusForStage(stage Stage) (Status, bool) {
	status, ok := statusByStage[stage]
	return status, ok
}

// Successor returns the status reached when the current stage succeeds.
func Successor(status Status) (Status, bool) {
	next, ok := successor[status]
	return next, ok
}

// IsTerminal reports whether a status ends the pipeline lifecycle.
// Failed hearings can be re-triggered by a human, so failed is terminal
// only until the next explicit start.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsActive reports whether the hearing is inside the pipeline: queued
// for capture or in one of the processing stages.
func (s Status) IsActive() bool {
	switch s {
	case StatusCaptureRequested, StatusCapturing, StatusConverting,
		StatusTrimming, StatusTranscribing, StatusLabeling:
		return true
	default:
		return false
	}
}

// IsProcessing reports whether a status reflects an in-flight stage.
func (s Status) IsProcessing() bool {
	_, ok := stageByStatus[s]
	return ok
}

// CanTransition reports whether moving from one status to another is a
// legal pipeline transition. Stage skipping is never legal; failed is
// reachable from any active state; cancelled from any active state
// except the start-request itself having already terminated.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	switch to {
	case StatusCaptureRequested:
		// The only human entry point: fresh discovery or re-trigger
		// after failure.
		return from == StatusDiscovered || from == StatusFailed
	case StatusFailed:
		return from.IsActive()
	case StatusCancelled:
		return from.IsActive()
	default:
		return successor[from] == to
	}
}
