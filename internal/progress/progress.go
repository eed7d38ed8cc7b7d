// Package progress tracks sub-unit completion for long-running pipeline
// stages. A stage that splits its work into units (transcription
// chunks, download segments) reports unit transitions here and the
// status API reads back a percentage.
package progress

import "sync"

// Snapshot is a point-in-time view of one tracked job.
type Snapshot struct {
	Total      int
	Processing int
	Completed  int
	Failed     int
	Percent    float64
}

type jobState struct {
	total      int
	processing int
	completed  int
	failed     int
}

// Tracker aggregates unit counts per job key. Safe for concurrent use;
// workers report units while the API reads snapshots.
type Tracker struct {
	mu   sync.Mutex
	jobs map[string]*jobState
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{jobs: make(map[string]*jobState)}
}

// Begin registers a job with its total unit count, resetting any prior
// state under the same key.
func (t *Tracker) Begin(key string, total int) {
	if total < 0 {
		total = 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[key] = &jobState{total: total}
}

// StartUnit marks one unit as in flight.
func (t *Tracker) StartUnit(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if job, ok := t.jobs[key]; ok {
		job.processing++
	}
}

// CompleteUnit moves one in-flight unit to completed.
func (t *Tracker) CompleteUnit(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if job, ok := t.jobs[key]; ok {
		if job.processing > 0 {
			job.processing--
		}
		job.completed++
	}
}

// FailUnit moves one in-flight unit to failed.
func (t *Tracker) FailUnit(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if job, ok := t.jobs[key]; ok {
		if job.processing > 0 {
			job.processing--
		}
		job.failed++
	}
}

// Snapshot reads the current state of a job. The second return is false
// when the key is not tracked.
func (t *Tracker) Snapshot(key string) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[key]
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{
		Total:      job.total,
		Processing: job.processing,
		Completed:  job.completed,
		Failed:     job.failed,
		Percent:    percent(job),
	}, true
}

// Finish drops a job from the tracker once its stage has ended.
func (t *Tracker) Finish(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.jobs, key)
}

// percent credits completed units fully and in-flight units at half,
// clamped to [0, 100]. A zero-total job reads as 0 until finished.
func percent(job *jobState) float64 {
	if job.total == 0 {
		return 0
	}
	value := (float64(job.completed) + 0.5*float64(job.processing)) / float64(job.total) * 100
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}
