package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"gavel/internal/config"
	"gavel/internal/hearing"
	"gavel/internal/logging"
	"gavel/internal/progress"
	"gavel/internal/store"
)

var (
	// ErrHearingNotFound is returned when the id resolves to nothing.
	ErrHearingNotFound = errors.New("hearing not found")
	// ErrInvalidTransition is returned for operations illegal in the
	// hearing's current status.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Stages bundles the collaborators the controller drives.
type Stages struct {
	Capture    Capturer
	Convert    Converter
	Trim       Trimmer
	Transcribe Transcriber
	Label      Labeler
	// Discard, when set, is called after a cancellation to clean up
	// partial output.
	Discard Discarder
}

// Completion reports one finished run to the completion hook.
type Completion struct {
	HearingID string
	RunID     string
	Status    hearing.Status
	Stage     hearing.Stage
	Err       error
}

// Controller owns the hearing state machine. One goroutine per run
// consumes stage results; a semaphore bounds how many runs process at
// once.
type Controller struct {
	store   *store.Store
	cfg     config.Pipeline
	stages  Stages
	tracker *progress.Tracker
	log     *slog.Logger

	sem          chan struct{}
	baseCtx      context.Context
	onFinish     func(Completion)
	stageTimeout time.Duration

	mu        stdsync.Mutex
	cancelled map[string]bool

	wg stdsync.WaitGroup
}

// Option adjusts controller construction.
type Option func(*Controller)

// WithCompletionHook registers a callback fired when a run reaches a
// terminal status.
func WithCompletionHook(hook func(Completion)) Option {
	return func(c *Controller) { c.onFinish = hook }
}

// WithStageTimeout overrides the configured per-stage deadline; tests
// use this for sub-minute timeouts.
func WithStageTimeout(timeout time.Duration) Option {
	return func(c *Controller) { c.stageTimeout = timeout }
}

// New builds a controller. ctx bounds all stage work; cancelling it
// stops in-flight runs at their next boundary.
func New(ctx context.Context, st *store.Store, cfg config.Pipeline, stages Stages, tracker *progress.Tracker, logger *slog.Logger, opts ...Option) *Controller {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if ctx == nil {
		ctx = context.Background()
	}
	c := &Controller{
		store:        st,
		cfg:          cfg,
		stages:       stages,
		tracker:      tracker,
		log:          logging.NewComponentLogger(logger, "pipeline"),
		sem:          make(chan struct{}, maxConcurrent),
		baseCtx:      ctx,
		stageTimeout: time.Duration(cfg.StageTimeoutMinutes) * time.Minute,
		cancelled:    make(map[string]bool),
	}
	if c.stageTimeout <= 0 {
		c.stageTimeout = 2 * time.Hour
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartCapture is the explicit human gate into the pipeline. Legal only
// for discovered and failed hearings; the capture_requested transition
// and the new run are persisted before any stage work begins.
func (c *Controller) StartCapture(ctx context.Context, hearingID string) (*hearing.PipelineRun, error) {
	unlock := c.store.LockHearing(hearingID)
	defer unlock()

	h, err := c.store.GetHearing(ctx, hearingID)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("%s: %w", hearingID, ErrHearingNotFound)
	}
	if !hearing.CanTransition(h.Status, hearing.StatusCaptureRequested) {
		return nil, fmt.Errorf("start capture from %s: %w", h.Status, ErrInvalidTransition)
	}

	h.Status = hearing.StatusCaptureRequested
	h.FailedStage = ""
	h.ErrorMessage = ""
	h.StageProgress = 0
	if err := c.store.UpdateHearing(ctx, h); err != nil {
		return nil, err
	}

	run, err := c.store.CreateRun(ctx, h.ID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	delete(c.cancelled, h.ID)
	c.mu.Unlock()

	c.log.Info("capture requested",
		logging.String(logging.FieldHearingID, h.ID),
		logging.String(logging.FieldRunID, run.ID))

	c.wg.Add(1)
	go c.execute(h.ID, run.ID)
	return run, nil
}

// RecoverInterrupted sweeps hearings stranded in an active status by a
// previous process that died mid-run. Each is failed with a restart
// error so the normal re-trigger path applies; the run's error fields
// are set when a run record survives. Called once at daemon startup,
// before any new runs begin. Returns how many hearings were swept.
func (c *Controller) RecoverInterrupted(ctx context.Context) (int, error) {
	recovered := 0
	for _, status := range hearing.ActiveStatuses {
		hearings, err := c.store.ListHearings(ctx, store.HearingFilter{Status: status})
		if err != nil {
			return recovered, err
		}
		for _, h := range hearings {
			stage, ok := hearing.StageForStatus(h.Status)
			if !ok {
				// capture_requested never reached a stage; the first
				// stage is what the interrupted run would have done.
				stage = hearing.StageCapture
			}
			h.SetFailed(string(stage), "interrupted by daemon restart")
			if err := c.store.UpdateHearing(ctx, h); err != nil {
				return recovered, err
			}
			run, err := c.store.LatestRunForHearing(ctx, h.ID)
			if err != nil {
				return recovered, err
			}
			if run != nil && run.ErrorStage == "" && !run.Cancelled {
				run.ErrorStage = string(stage)
				run.ErrorMessage = "interrupted by daemon restart"
				if err := c.store.UpdateRun(ctx, run); err != nil {
					return recovered, err
				}
			}
			recovered++
			c.log.Warn("recovered interrupted hearing",
				logging.String(logging.FieldHearingID, h.ID),
				logging.String(logging.FieldStage, string(stage)))
		}
	}
	return recovered, nil
}

// RequestCancel flags an active hearing for cancellation. The flag is
// consulted at each stage boundary; in-flight stage work is not
// interrupted.
func (c *Controller) RequestCancel(ctx context.Context, hearingID string) error {
	h, err := c.store.GetHearing(ctx, hearingID)
	if err != nil {
		return err
	}
	if h == nil {
		return fmt.Errorf("%s: %w", hearingID, ErrHearingNotFound)
	}
	if !h.Status.IsActive() {
		return fmt.Errorf("cancel from %s: %w", h.Status, ErrInvalidTransition)
	}

	c.mu.Lock()
	c.cancelled[hearingID] = true
	c.mu.Unlock()

	c.log.Info("cancellation requested", logging.String(logging.FieldHearingID, hearingID))
	return nil
}

// Wait blocks until every started run has reached a terminal status.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) cancelRequested(hearingID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled[hearingID]
}

func (c *Controller) execute(hearingID, runID string) {
	defer c.wg.Done()

	select {
	case c.sem <- struct{}{}:
	case <-c.baseCtx.Done():
		return
	}
	defer func() { <-c.sem }()

	ctx := c.baseCtx
	h, err := c.store.GetHearing(ctx, hearingID)
	if err != nil || h == nil {
		c.log.Error("run aborted, hearing unreadable",
			logging.String(logging.FieldHearingID, hearingID),
			logging.Error(err))
		return
	}
	run, err := c.store.GetRun(ctx, runID)
	if err != nil || run == nil {
		c.log.Error("run aborted, run unreadable",
			logging.String(logging.FieldRunID, runID),
			logging.Error(err))
		return
	}

	job := &Job{Hearing: h, Run: run, tracker: c.tracker}
	defer c.tracker.Finish(run.ID)

	for _, stage := range hearing.Stages {
		if c.cancelRequested(h.ID) {
			c.finishCancelled(ctx, job)
			return
		}
		if err := c.runStage(ctx, job, stage); err != nil {
			c.finishFailed(ctx, job, stage, err)
			return
		}
	}

	if c.cancelRequested(h.ID) {
		c.finishCancelled(ctx, job)
		return
	}
	c.finishCompleted(ctx, job)
}

// runStage persists the stage transition, then supervises the
// collaborator goroutine until it posts a result or the stage deadline
// passes.
func (c *Controller) runStage(ctx context.Context, job *Job, stage hearing.Stage) error {
	status, ok := hearing.StatusForStage(stage)
	if !ok {
		return fmt.Errorf("no status for stage %s", stage)
	}
	if !hearing.CanTransition(job.Hearing.Status, status) {
		return fmt.Errorf("%s to %s: %w", job.Hearing.Status, status, ErrInvalidTransition)
	}

	now := time.Now().UTC()
	job.Hearing.Status = status
	job.Hearing.StageProgress = 0
	if err := c.store.UpdateHearing(ctx, job.Hearing); err != nil {
		return err
	}
	job.Run.BeginStage(stage, now)
	if err := c.store.UpdateRun(ctx, job.Run); err != nil {
		return err
	}
	c.tracker.Begin(job.Run.ID, 0)

	c.log.Info("stage started",
		logging.String(logging.FieldHearingID, job.Hearing.ID),
		logging.String(logging.FieldRunID, job.Run.ID),
		logging.String(logging.FieldStage, string(stage)))

	timeout := c.stageTimeout
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make(chan error, 1)
	go func() {
		results <- c.invoke(stageCtx, job, stage)
	}()

	var err error
	select {
	case err = <-results:
	case <-stageCtx.Done():
		err = fmt.Errorf("stage %s timed out after %s", stage, timeout)
	}
	if err != nil {
		return err
	}

	if snap, ok := c.tracker.Snapshot(job.Run.ID); ok && snap.Failed > c.cfg.MaxFailedUnits {
		return fmt.Errorf("stage %s: %d sub-units failed, tolerance %d", stage, snap.Failed, c.cfg.MaxFailedUnits)
	}

	job.Run.FinishStage(stage, time.Now().UTC())
	if err := c.store.UpdateRun(ctx, job.Run); err != nil {
		return err
	}
	job.Hearing.StageProgress = 100
	if err := c.store.UpdateHearing(ctx, job.Hearing); err != nil {
		return err
	}

	c.log.Info("stage finished",
		logging.String(logging.FieldHearingID, job.Hearing.ID),
		logging.String(logging.FieldStage, string(stage)))
	return nil
}

func (c *Controller) invoke(ctx context.Context, job *Job, stage hearing.Stage) error {
	switch stage {
	case hearing.StageCapture:
		return c.stages.Capture.Capture(ctx, job)
	case hearing.StageConvert:
		return c.stages.Convert.Convert(ctx, job)
	case hearing.StageTrim:
		return c.stages.Trim.Trim(ctx, job)
	case hearing.StageTranscribe:
		return c.stages.Transcribe.Transcribe(ctx, job)
	case hearing.StageLabel:
		return c.stages.Label.Label(ctx, job)
	default:
		return fmt.Errorf("unknown stage %s", stage)
	}
}

func (c *Controller) finishCompleted(ctx context.Context, job *Job) {
	job.Hearing.Status = hearing.StatusCompleted
	job.Hearing.StageProgress = 100
	if err := c.store.UpdateHearing(ctx, job.Hearing); err != nil {
		c.log.Error("persist completion", logging.Error(err))
	}
	c.log.Info("pipeline completed",
		logging.String(logging.FieldHearingID, job.Hearing.ID),
		logging.String(logging.FieldRunID, job.Run.ID))
	c.notify(Completion{
		HearingID: job.Hearing.ID,
		RunID:     job.Run.ID,
		Status:    hearing.StatusCompleted,
	})
}

func (c *Controller) finishFailed(ctx context.Context, job *Job, stage hearing.Stage, cause error) {
	job.Hearing.SetFailed(string(stage), cause.Error())
	if err := c.store.UpdateHearing(ctx, job.Hearing); err != nil {
		c.log.Error("persist failure", logging.Error(err))
	}
	job.Run.ErrorStage = string(stage)
	job.Run.ErrorMessage = cause.Error()
	if err := c.store.UpdateRun(ctx, job.Run); err != nil {
		c.log.Error("persist run failure", logging.Error(err))
	}
	c.log.Error("pipeline failed",
		logging.String(logging.FieldHearingID, job.Hearing.ID),
		logging.String(logging.FieldStage, string(stage)),
		logging.Error(cause))
	c.notify(Completion{
		HearingID: job.Hearing.ID,
		RunID:     job.Run.ID,
		Status:    hearing.StatusFailed,
		Stage:     stage,
		Err:       cause,
	})
}

func (c *Controller) finishCancelled(ctx context.Context, job *Job) {
	job.Hearing.Status = hearing.StatusCancelled
	job.Hearing.StageProgress = 0
	if err := c.store.UpdateHearing(ctx, job.Hearing); err != nil {
		c.log.Error("persist cancellation", logging.Error(err))
	}
	job.Run.Cancelled = true
	if err := c.store.UpdateRun(ctx, job.Run); err != nil {
		c.log.Error("persist run cancellation", logging.Error(err))
	}
	if c.stages.Discard != nil {
		if err := c.stages.Discard.Discard(ctx, job); err != nil {
			c.log.Warn("discard partial output", logging.Error(err))
		}
	}
	c.mu.Lock()
	delete(c.cancelled, job.Hearing.ID)
	c.mu.Unlock()

	c.log.Info("pipeline cancelled",
		logging.String(logging.FieldHearingID, job.Hearing.ID),
		logging.String(logging.FieldRunID, job.Run.ID))
	c.notify(Completion{
		HearingID: job.Hearing.ID,
		RunID:     job.Run.ID,
		Status:    hearing.StatusCancelled,
	})
}

func (c *Controller) notify(completion Completion) {
	if c.onFinish != nil {
		c.onFinish(completion)
	}
}
