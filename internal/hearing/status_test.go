package hearing_test

import (
	"testing"
	"time"

	"gavel/internal/hearing"
)

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse time %q: %v", value, err)
	}
	return ts
}

func TestParseStatus(t *testing.T) {
	cases := []struct {
		input string
		want  hearing.Status
		ok    bool
	}{
		{"discovered", hearing.StatusDiscovered, true},
		{"  Capturing  ", hearing.StatusCapturing, true},
		{"TRANSCRIBING", hearing.StatusTranscribing, true},
		{"", "", false},
		{"encoding", "", false},
	}
	for _, tc := range cases {
		got, ok := hearing.ParseStatus(tc.input)
		if ok != tc.ok {
			t.Fatalf("ParseStatus(%q) ok = %v, want %v", tc.input, ok, tc.ok)
		}
		if ok && got != tc.want {
			t.Fatalf("ParseStatus(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestCanTransitionFollowsStageOrder(t *testing.T) {
	legal := []struct{ from, to hearing.Status }{
		{hearing.StatusDiscovered, hearing.StatusCaptureRequested},
		{hearing.StatusFailed, hearing.StatusCaptureRequested},
		{hearing.StatusCaptureRequested, hearing.StatusCapturing},
		{hearing.StatusCapturing, hearing.StatusConverting},
		{hearing.StatusConverting, hearing.StatusTrimming},
		{hearing.StatusTrimming, hearing.StatusTranscribing},
		{hearing.StatusTranscribing, hearing.StatusLabeling},
		{hearing.StatusLabeling, hearing.StatusCompleted},
		{hearing.StatusConverting, hearing.StatusCancelled},
		{hearing.StatusCapturing, hearing.StatusFailed},
	}
	for _, tc := range legal {
		if !hearing.CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be legal", tc.from, tc.to)
		}
	}

	illegal := []struct{ from, to hearing.Status }{
		{hearing.StatusCapturing, hearing.StatusTranscribing}, // stage skip
		{hearing.StatusDiscovered, hearing.StatusCapturing},
		{hearing.StatusCompleted, hearing.StatusCaptureRequested},
		{hearing.StatusCancelled, hearing.StatusCapturing},
		{hearing.StatusDiscovered, hearing.StatusCancelled},
		{hearing.StatusDiscovered, hearing.StatusFailed},
		{hearing.StatusConverting, hearing.StatusConverting},
		{hearing.StatusLabeling, hearing.StatusCapturing},
	}
	for _, tc := range illegal {
		if hearing.CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be rejected", tc.from, tc.to)
		}
	}
}

func TestSuccessorCoversEveryActiveStatus(t *testing.T) {
	current := hearing.StatusCaptureRequested
	visited := 0
	for {
		next, ok := hearing.Successor(current)
		if !ok {
			t.Fatalf("no successor for %s", current)
		}
		visited++
		if next == hearing.StatusCompleted {
			break
		}
		current = next
	}
	if visited != len(hearing.Stages)+1 {
		t.Fatalf("expected %d hops through the stage chain, got %d", len(hearing.Stages)+1, visited)
	}
}

func TestRecordSourceUnionsProvenance(t *testing.T) {
	h := &hearing.Hearing{}
	h.RecordSource("govinfo", "GI-1", mustTime(t, "2025-06-10T08:00:00Z"))
	h.RecordSource("scom-web", "W-9", mustTime(t, "2025-06-10T09:00:00Z"))
	h.RecordSource("govinfo", "GI-1", mustTime(t, "2025-06-10T10:00:00Z"))

	if len(h.Provenance) != 2 {
		t.Fatalf("expected provenance union of 2 sources, got %d", len(h.Provenance))
	}
	if !h.HasSource("scom-web") {
		t.Fatal("expected scom-web in provenance")
	}
	if got := h.MostRecentSource(); got != "govinfo" {
		t.Fatalf("MostRecentSource = %q, want govinfo", got)
	}
}

func TestPipelineRunTimeline(t *testing.T) {
	run := &hearing.PipelineRun{ID: "run-1", HearingID: "h-1"}
	start := mustTime(t, "2025-06-10T12:00:00Z")
	run.BeginStage(hearing.StageCapture, start)
	run.FinishStage(hearing.StageCapture, start.Add(time.Minute))
	run.BeginStage(hearing.StageConvert, start.Add(time.Minute))

	if len(run.Timeline) != 2 {
		t.Fatalf("expected 2 timeline records, got %d", len(run.Timeline))
	}
	if run.Timeline[0].FinishedAt == nil {
		t.Fatal("expected capture record to be closed")
	}
	if run.Timeline[1].FinishedAt != nil {
		t.Fatal("expected convert record to remain open")
	}
	if run.Stage != hearing.StageConvert {
		t.Fatalf("current stage = %s, want convert", run.Stage)
	}
}
