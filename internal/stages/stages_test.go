package stages

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gavel/internal/hearing"
	"gavel/internal/logging"
	"gavel/internal/pipeline"
	"gavel/internal/testsupport"
)

func testJob() *pipeline.Job {
	return &pipeline.Job{
		Hearing: &hearing.Hearing{
			ID:       "h-1",
			MediaURL: "https://example.gov/video/1",
			Date:     time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		},
		Run: &hearing.PipelineRun{ID: "r-1", HearingID: "h-1"},
	}
}

func TestStageWithoutCommandPassesThrough(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	runner := NewRunner(cfg, logging.NewNop())

	if err := runner.Capture(context.Background(), testJob()); err != nil {
		t.Fatalf("Capture: %v", err)
	}
}

func TestStageCommandRunsWithEnvironment(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.StageCommands = map[string]string{
		"capture": `printf '%s %s' "$GAVEL_HEARING_ID" "$GAVEL_STAGE" > "$GAVEL_WORK_DIR/env.txt"`,
	}
	runner := NewRunner(cfg, logging.NewNop())

	if err := runner.Capture(context.Background(), testJob()); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(runner.WorkDir("h-1"), "env.txt"))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "h-1 capture" {
		t.Fatalf("command environment wrong: %q", data)
	}
}

func TestStageCommandFailureIncludesOutput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.StageCommands = map[string]string{
		"transcribe": `echo "model not found" >&2; exit 3`,
	}
	runner := NewRunner(cfg, logging.NewNop())

	err := runner.Transcribe(context.Background(), testJob())
	if err == nil {
		t.Fatal("expected command failure")
	}
	if got := err.Error(); !strings.Contains(got, "model not found") {
		t.Fatalf("error lost command output: %q", got)
	}
}

func TestDiscardRemovesWorkDir(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.StageCommands = map[string]string{
		"capture": `touch "$GAVEL_WORK_DIR/raw.mp4"`,
	}
	runner := NewRunner(cfg, logging.NewNop())
	job := testJob()

	if err := runner.Capture(context.Background(), job); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if err := runner.Discard(context.Background(), job); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if _, err := os.Stat(runner.WorkDir("h-1")); !os.IsNotExist(err) {
		t.Fatalf("work dir survived discard: %v", err)
	}
}
