package pipeline

import (
	"context"

	"gavel/internal/hearing"
	"gavel/internal/progress"
)

// Job is the unit of work handed to stage collaborators. Collaborators
// that split their work into sub-units report them through the job so
// the progress tracker and the failed-unit tolerance see them.
type Job struct {
	Hearing *hearing.Hearing
	Run     *hearing.PipelineRun
	tracker *progress.Tracker
}

// BeginUnits declares how many sub-units the current stage will
// process.
func (j *Job) BeginUnits(total int) {
	j.tracker.Begin(j.Run.ID, total)
}

// StartUnit marks one sub-unit in flight.
func (j *Job) StartUnit() {
	j.tracker.StartUnit(j.Run.ID)
}

// CompleteUnit marks one in-flight sub-unit done.
func (j *Job) CompleteUnit() {
	j.tracker.CompleteUnit(j.Run.ID)
}

// FailUnit marks one in-flight sub-unit failed. Failed units do not
// abort the stage by themselves; the controller applies the configured
// tolerance when the collaborator returns.
func (j *Job) FailUnit() {
	j.tracker.FailUnit(j.Run.ID)
}

// Capturer downloads the hearing's source media.
type Capturer interface {
	Capture(ctx context.Context, job *Job) error
}

// Converter transforms captured media into the working format.
type Converter interface {
	Convert(ctx context.Context, job *Job) error
}

// Trimmer removes dead air and pre-gavel content.
type Trimmer interface {
	Trim(ctx context.Context, job *Job) error
}

// Transcriber produces the transcript, typically in chunked sub-units.
type Transcriber interface {
	Transcribe(ctx context.Context, job *Job) error
}

// Labeler attaches speaker and segment labels to the transcript.
type Labeler interface {
	Label(ctx context.Context, job *Job) error
}

// Discarder is an optional collaborator hook invoked after a
// cancellation to remove partial stage output.
type Discarder interface {
	Discard(ctx context.Context, job *Job) error
}
