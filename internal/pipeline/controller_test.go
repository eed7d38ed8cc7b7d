package pipeline

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"testing"
	"time"

	"gavel/internal/hearing"
	"gavel/internal/logging"
	"gavel/internal/progress"
	"gavel/internal/store"
	"gavel/internal/testsupport"
)

// stageRecorder implements every collaborator, recording invocation
// order and optionally failing, blocking, or reporting sub-units.
type stageRecorder struct {
	mu        stdsync.Mutex
	order     []hearing.Stage
	failAt    hearing.Stage
	failErr   error
	blockAt   hearing.Stage
	block     chan struct{}
	entered   chan hearing.Stage
	units     func(*Job)
	discarded bool
}

func newRecorder() *stageRecorder {
	return &stageRecorder{entered: make(chan hearing.Stage, 16)}
}

func (r *stageRecorder) run(ctx context.Context, stage hearing.Stage, job *Job) error {
	r.mu.Lock()
	r.order = append(r.order, stage)
	failAt, failErr := r.failAt, r.failErr
	blockAt, block := r.blockAt, r.block
	units := r.units
	r.mu.Unlock()

	select {
	case r.entered <- stage:
	default:
	}

	if blockAt == stage && block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if units != nil && stage == hearing.StageTranscribe {
		units(job)
	}
	if failAt == stage {
		if failErr != nil {
			return failErr
		}
		return fmt.Errorf("stage %s exploded", stage)
	}
	return nil
}

func (r *stageRecorder) Capture(ctx context.Context, job *Job) error {
	return r.run(ctx, hearing.StageCapture, job)
}
func (r *stageRecorder) Convert(ctx context.Context, job *Job) error {
	return r.run(ctx, hearing.StageConvert, job)
}
func (r *stageRecorder) Trim(ctx context.Context, job *Job) error {
	return r.run(ctx, hearing.StageTrim, job)
}
func (r *stageRecorder) Transcribe(ctx context.Context, job *Job) error {
	return r.run(ctx, hearing.StageTranscribe, job)
}
func (r *stageRecorder) Label(ctx context.Context, job *Job) error {
	return r.run(ctx, hearing.StageLabel, job)
}
func (r *stageRecorder) Discard(ctx context.Context, job *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discarded = true
	return nil
}

func (r *stageRecorder) recorded() []hearing.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]hearing.Stage, len(r.order))
	copy(cp, r.order)
	return cp
}

func stagesFor(r *stageRecorder) Stages {
	return Stages{Capture: r, Convert: r, Trim: r, Transcribe: r, Label: r, Discard: r}
}

func newTestController(t *testing.T, r *stageRecorder, opts ...Option) (*Controller, *store.Store, *hearing.Hearing) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	h := testsupport.NewHearing(t, st, "SCOM", "Hearing on Spectrum Policy", time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC))

	controller := New(context.Background(), st, cfg.Pipeline, stagesFor(r), progress.NewTracker(), logging.NewNop(), opts...)
	return controller, st, h
}

func TestPipelineRunsEveryStageInOrder(t *testing.T) {
	recorder := newRecorder()
	controller, st, h := newTestController(t, recorder)

	run, err := controller.StartCapture(context.Background(), h.ID)
	if err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	controller.Wait()

	got, err := st.GetHearing(context.Background(), h.ID)
	if err != nil {
		t.Fatalf("GetHearing: %v", err)
	}
	if got.Status != hearing.StatusCompleted {
		t.Fatalf("status = %s, want completed (error %q)", got.Status, got.ErrorMessage)
	}

	order := recorder.recorded()
	if len(order) != len(hearing.Stages) {
		t.Fatalf("stage order %v", order)
	}
	for i, stage := range hearing.Stages {
		if order[i] != stage {
			t.Fatalf("stage %d = %s, want %s", i, order[i], stage)
		}
	}

	stored, err := st.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if len(stored.Timeline) != len(hearing.Stages) {
		t.Fatalf("timeline has %d records", len(stored.Timeline))
	}
	for _, record := range stored.Timeline {
		if record.FinishedAt == nil {
			t.Fatalf("stage %s never finished", record.Stage)
		}
	}
}

func TestStageFailureLandsFailedWithDetail(t *testing.T) {
	recorder := newRecorder()
	recorder.failAt = hearing.StageConvert
	recorder.failErr = errors.New("unsupported container")
	controller, st, h := newTestController(t, recorder)

	if _, err := controller.StartCapture(context.Background(), h.ID); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	controller.Wait()

	got, err := st.GetHearing(context.Background(), h.ID)
	if err != nil {
		t.Fatalf("GetHearing: %v", err)
	}
	if got.Status != hearing.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.FailedStage != "convert" {
		t.Fatalf("failed stage = %q", got.FailedStage)
	}
	if got.ErrorMessage == "" {
		t.Fatal("error message empty")
	}

	for _, stage := range recorder.recorded() {
		if stage == hearing.StageTrim || stage == hearing.StageTranscribe || stage == hearing.StageLabel {
			t.Fatalf("stage %s ran after the failure", stage)
		}
	}

	// A failed hearing is re-triggerable; with the fault cleared the
	// second run completes.
	recorder.mu.Lock()
	recorder.failAt = ""
	recorder.mu.Unlock()
	if _, err := controller.StartCapture(context.Background(), h.ID); err != nil {
		t.Fatalf("re-trigger: %v", err)
	}
	controller.Wait()

	got, err = st.GetHearing(context.Background(), h.ID)
	if err != nil {
		t.Fatalf("GetHearing: %v", err)
	}
	if got.Status != hearing.StatusCompleted {
		t.Fatalf("status after re-trigger = %s, want completed", got.Status)
	}
	if got.FailedStage != "" || got.ErrorMessage != "" {
		t.Fatalf("stale failure detail: %q %q", got.FailedStage, got.ErrorMessage)
	}
}

func TestCancelDuringStageDiscardsAndStops(t *testing.T) {
	recorder := newRecorder()
	recorder.blockAt = hearing.StageConvert
	recorder.block = make(chan struct{})
	controller, st, h := newTestController(t, recorder)

	if _, err := controller.StartCapture(context.Background(), h.ID); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}

	// Wait until the convert collaborator is in flight, then cancel.
	deadline := time.After(5 * time.Second)
	for {
		var entered hearing.Stage
		select {
		case entered = <-recorder.entered:
		case <-deadline:
			t.Fatal("convert stage never started")
		}
		if entered == hearing.StageConvert {
			break
		}
	}
	if err := controller.RequestCancel(context.Background(), h.ID); err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}
	close(recorder.block)
	controller.Wait()

	got, err := st.GetHearing(context.Background(), h.ID)
	if err != nil {
		t.Fatalf("GetHearing: %v", err)
	}
	if got.Status != hearing.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}
	if !recorder.discarded {
		t.Fatal("discard hook not invoked")
	}
	for _, stage := range recorder.recorded() {
		if stage == hearing.StageTrim {
			t.Fatal("trim ran after cancellation")
		}
	}

	run, err := st.LatestRunForHearing(context.Background(), h.ID)
	if err != nil {
		t.Fatalf("LatestRunForHearing: %v", err)
	}
	if !run.Cancelled {
		t.Fatal("run not marked cancelled")
	}
}

func TestStartCaptureGate(t *testing.T) {
	recorder := newRecorder()
	recorder.blockAt = hearing.StageCapture
	recorder.block = make(chan struct{})
	controller, st, h := newTestController(t, recorder)

	if _, err := controller.StartCapture(context.Background(), h.ID); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	// Active hearings cannot be re-triggered.
	if _, err := controller.StartCapture(context.Background(), h.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double start err = %v, want invalid transition", err)
	}
	close(recorder.block)
	controller.Wait()

	got, _ := st.GetHearing(context.Background(), h.ID)
	if got.Status != hearing.StatusCompleted {
		t.Fatalf("status = %s", got.Status)
	}
	// Completed hearings cannot be re-triggered either.
	if _, err := controller.StartCapture(context.Background(), h.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("restart err = %v, want invalid transition", err)
	}

	if _, err := controller.StartCapture(context.Background(), "no-such-id"); !errors.Is(err, ErrHearingNotFound) {
		t.Fatalf("missing hearing err = %v", err)
	}
}

func TestFailedUnitToleranceFailsStage(t *testing.T) {
	recorder := newRecorder()
	recorder.units = func(job *Job) {
		job.BeginUnits(4)
		for i := 0; i < 3; i++ {
			job.StartUnit()
			job.CompleteUnit()
		}
		job.StartUnit()
		job.FailUnit()
	}
	controller, st, h := newTestController(t, recorder)

	if _, err := controller.StartCapture(context.Background(), h.ID); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	controller.Wait()

	got, _ := st.GetHearing(context.Background(), h.ID)
	// Default tolerance is zero failed units.
	if got.Status != hearing.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.FailedStage != "transcribe" {
		t.Fatalf("failed stage = %q", got.FailedStage)
	}
}

func TestFailedUnitsWithinToleranceComplete(t *testing.T) {
	recorder := newRecorder()
	recorder.units = func(job *Job) {
		job.BeginUnits(4)
		for i := 0; i < 3; i++ {
			job.StartUnit()
			job.CompleteUnit()
		}
		job.StartUnit()
		job.FailUnit()
	}

	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.MaxFailedUnits = 1
	st := testsupport.MustOpenStore(t, cfg)
	h := testsupport.NewHearing(t, st, "SCOM", "Hearing on Spectrum Policy", time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC))
	controller := New(context.Background(), st, cfg.Pipeline, stagesFor(recorder), progress.NewTracker(), logging.NewNop())

	if _, err := controller.StartCapture(context.Background(), h.ID); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	controller.Wait()

	got, _ := st.GetHearing(context.Background(), h.ID)
	if got.Status != hearing.StatusCompleted {
		t.Fatalf("status = %s, want completed (error %q)", got.Status, got.ErrorMessage)
	}
}

func TestStageTimeoutFailsWithoutRetry(t *testing.T) {
	recorder := newRecorder()
	recorder.blockAt = hearing.StageTrim
	recorder.block = make(chan struct{})
	controller, st, h := newTestController(t, recorder, WithStageTimeout(50*time.Millisecond))
	defer close(recorder.block)

	if _, err := controller.StartCapture(context.Background(), h.ID); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	controller.Wait()

	got, _ := st.GetHearing(context.Background(), h.ID)
	if got.Status != hearing.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.FailedStage != "trim" {
		t.Fatalf("failed stage = %q", got.FailedStage)
	}

	trims := 0
	for _, stage := range recorder.recorded() {
		if stage == hearing.StageTrim {
			trims++
		}
	}
	if trims != 1 {
		t.Fatalf("trim invoked %d times, timeouts must not auto-retry", trims)
	}
}

func TestMaxConcurrentPipelines(t *testing.T) {
	recorder := newRecorder()
	recorder.blockAt = hearing.StageCapture
	recorder.block = make(chan struct{})

	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.MaxConcurrent = 1
	st := testsupport.MustOpenStore(t, cfg)
	first := testsupport.NewHearing(t, st, "SCOM", "Hearing A", time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC))
	second := testsupport.NewHearing(t, st, "SCOM", "Hearing B", time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))
	controller := New(context.Background(), st, cfg.Pipeline, stagesFor(recorder), progress.NewTracker(), logging.NewNop())

	if _, err := controller.StartCapture(context.Background(), first.ID); err != nil {
		t.Fatalf("StartCapture first: %v", err)
	}
	select {
	case <-recorder.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first pipeline never started")
	}

	if _, err := controller.StartCapture(context.Background(), second.ID); err != nil {
		t.Fatalf("StartCapture second: %v", err)
	}
	// The second run must hold at the semaphore while the first blocks.
	time.Sleep(50 * time.Millisecond)
	if len(recorder.recorded()) != 1 {
		t.Fatalf("second pipeline ran concurrently: %v", recorder.recorded())
	}

	close(recorder.block)
	controller.Wait()

	for _, id := range []string{first.ID, second.ID} {
		got, _ := st.GetHearing(context.Background(), id)
		if got.Status != hearing.StatusCompleted {
			t.Fatalf("hearing %s status = %s", id, got.Status)
		}
	}
}

func TestProgressReportWeightsStages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	weights := cfg.Pipeline.StageWeights

	if got := OverallPercent(weights, hearing.StatusCompleted, 0); got != 100 {
		t.Fatalf("completed percent = %v", got)
	}
	if got := OverallPercent(weights, hearing.StatusDiscovered, 0); got != 0 {
		t.Fatalf("discovered percent = %v", got)
	}
	// Transcribing at 50%: capture+convert+trim done (30) plus half of
	// transcribe's 50.
	if got := OverallPercent(weights, hearing.StatusTranscribing, 50); got != 55 {
		t.Fatalf("transcribing percent = %v, want 55", got)
	}
	if got := OverallPercent(weights, hearing.StatusLabeling, 0); got != 80 {
		t.Fatalf("labeling percent = %v, want 80", got)
	}
}

func TestRecoverInterruptedFailsStrandedHearings(t *testing.T) {
	recorder := newRecorder()
	controller, st, h := newTestController(t, recorder)
	ctx := context.Background()

	// Simulate a process that died mid-convert: status and run persisted,
	// no live goroutine owning them.
	h.Status = hearing.StatusCaptureRequested
	if err := st.UpdateHearing(ctx, h); err != nil {
		t.Fatalf("UpdateHearing: %v", err)
	}
	run, err := st.CreateRun(ctx, h.ID)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	h.Status = hearing.StatusConverting
	if err := st.UpdateHearing(ctx, h); err != nil {
		t.Fatalf("UpdateHearing: %v", err)
	}
	run.BeginStage(hearing.StageConvert, time.Now().UTC())
	if err := st.UpdateRun(ctx, run); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}

	recovered, err := controller.RecoverInterrupted(ctx)
	if err != nil {
		t.Fatalf("RecoverInterrupted: %v", err)
	}
	if recovered != 1 {
		t.Fatalf("recovered = %d, want 1", recovered)
	}

	got, err := st.GetHearing(ctx, h.ID)
	if err != nil {
		t.Fatalf("GetHearing: %v", err)
	}
	if got.Status != hearing.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.FailedStage != string(hearing.StageConvert) {
		t.Fatalf("failed stage = %q, want convert", got.FailedStage)
	}
	if got.ErrorMessage != "interrupted by daemon restart" {
		t.Fatalf("error message = %q", got.ErrorMessage)
	}
	latest, err := st.LatestRunForHearing(ctx, h.ID)
	if err != nil {
		t.Fatalf("LatestRunForHearing: %v", err)
	}
	if latest.ErrorStage != string(hearing.StageConvert) {
		t.Fatalf("run error stage = %q", latest.ErrorStage)
	}

	// The failed hearing goes back through the normal human gate.
	if _, err := controller.StartCapture(ctx, h.ID); err != nil {
		t.Fatalf("StartCapture after recovery: %v", err)
	}
	controller.Wait()
	got, _ = st.GetHearing(ctx, h.ID)
	if got.Status != hearing.StatusCompleted {
		t.Fatalf("status after re-trigger = %s", got.Status)
	}
}

func TestRecoverInterruptedLeavesSettledHearingsAlone(t *testing.T) {
	recorder := newRecorder()
	controller, st, h := newTestController(t, recorder)
	ctx := context.Background()

	if _, err := controller.StartCapture(ctx, h.ID); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	controller.Wait()

	recovered, err := controller.RecoverInterrupted(ctx)
	if err != nil {
		t.Fatalf("RecoverInterrupted: %v", err)
	}
	if recovered != 0 {
		t.Fatalf("recovered = %d, want 0", recovered)
	}
	got, _ := st.GetHearing(ctx, h.ID)
	if got.Status != hearing.StatusCompleted {
		t.Fatalf("status = %s, want completed untouched", got.Status)
	}
}
