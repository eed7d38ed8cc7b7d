// Package stages backs the pipeline collaborators with external
// commands from configuration. Media handling itself lives in whatever
// toolchain the deployment configures; this package only owns the
// contract: work directory layout, environment handoff, and cleanup.
package stages

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"gavel/internal/config"
	"gavel/internal/hearing"
	"gavel/internal/logging"
	"gavel/internal/pipeline"
)

// Runner implements every stage collaborator by invoking the command
// configured for the stage. Stages without a command pass through, so a
// minimal deployment can run the state machine end to end before any
// media tooling is installed.
type Runner struct {
	commands map[hearing.Stage]string
	workRoot string
	log      *slog.Logger
}

var (
	_ pipeline.Capturer    = (*Runner)(nil)
	_ pipeline.Converter   = (*Runner)(nil)
	_ pipeline.Trimmer     = (*Runner)(nil)
	_ pipeline.Transcriber = (*Runner)(nil)
	_ pipeline.Labeler     = (*Runner)(nil)
	_ pipeline.Discarder   = (*Runner)(nil)
)

// NewRunner builds a runner rooted under the data directory.
func NewRunner(cfg *config.Config, logger *slog.Logger) *Runner {
	commands := make(map[hearing.Stage]string, len(cfg.Pipeline.StageCommands))
	for name, command := range cfg.Pipeline.StageCommands {
		commands[hearing.Stage(name)] = command
	}
	return &Runner{
		commands: commands,
		workRoot: filepath.Join(cfg.Paths.DataDir, "work"),
		log:      logging.NewComponentLogger(logger, "stages"),
	}
}

// Stages bundles the runner into the controller's collaborator set.
func (r *Runner) Stages() pipeline.Stages {
	return pipeline.Stages{
		Capture:    r,
		Convert:    r,
		Trim:       r,
		Transcribe: r,
		Label:      r,
		Discard:    r,
	}
}

// WorkDir returns the per-hearing working directory.
func (r *Runner) WorkDir(hearingID string) string {
	return filepath.Join(r.workRoot, hearingID)
}

func (r *Runner) Capture(ctx context.Context, job *pipeline.Job) error {
	return r.run(ctx, hearing.StageCapture, job)
}

func (r *Runner) Convert(ctx context.Context, job *pipeline.Job) error {
	return r.run(ctx, hearing.StageConvert, job)
}

func (r *Runner) Trim(ctx context.Context, job *pipeline.Job) error {
	return r.run(ctx, hearing.StageTrim, job)
}

func (r *Runner) Transcribe(ctx context.Context, job *pipeline.Job) error {
	return r.run(ctx, hearing.StageTranscribe, job)
}

func (r *Runner) Label(ctx context.Context, job *pipeline.Job) error {
	return r.run(ctx, hearing.StageLabel, job)
}

// Discard removes the hearing's working directory after a cancellation.
func (r *Runner) Discard(ctx context.Context, job *pipeline.Job) error {
	dir := r.WorkDir(job.Hearing.ID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("discard work dir: %w", err)
	}
	r.log.Info("work dir discarded",
		logging.String(logging.FieldHearingID, job.Hearing.ID),
		logging.String("dir", dir))
	return nil
}

func (r *Runner) run(ctx context.Context, stage hearing.Stage, job *pipeline.Job) error {
	command := strings.TrimSpace(r.commands[stage])
	if command == "" {
		r.log.Debug("stage has no command, passing through",
			logging.String(logging.FieldHearingID, job.Hearing.ID),
			logging.String(logging.FieldStage, string(stage)))
		return nil
	}

	workDir := r.WorkDir(job.Hearing.ID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(),
		"GAVEL_HEARING_ID="+job.Hearing.ID,
		"GAVEL_RUN_ID="+job.Run.ID,
		"GAVEL_STAGE="+string(stage),
		"GAVEL_WORK_DIR="+workDir,
		"GAVEL_MEDIA_URL="+job.Hearing.MediaURL,
		"GAVEL_DOCUMENT_URL="+job.Hearing.DocumentURL,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("stage %s command: %w: %s", stage, err, tail(output, 512))
	}
	r.log.Info("stage command finished",
		logging.String(logging.FieldHearingID, job.Hearing.ID),
		logging.String(logging.FieldStage, string(stage)))
	return nil
}

func tail(output []byte, max int) string {
	text := strings.TrimSpace(string(output))
	if len(text) > max {
		text = "..." + text[len(text)-max:]
	}
	return text
}
