package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"gavel/internal/config"
	"gavel/internal/dedup"
	"gavel/internal/logging"
	"gavel/internal/sources"
	"gavel/internal/testsupport"
)

func TestTriggerNowRunsCycle(t *testing.T) {
	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	adapter := &scriptedAdapter{
		name:      "committee-site",
		responses: []func() (sources.FetchResult, error){records(testsupport.Raw("committee-site", "W-1", "Hearing on Spectrum Policy", "SCOM", date))},
	}

	cfg := testsupport.NewConfig(t)
	// A huge interval ensures only the manual trigger fires.
	cfg.Sources = map[string]config.Source{
		"committee-site": {Kind: "scraper", BaseURL: "https://example.gov", IntervalMinutes: 24 * 60, WindowDays: 14},
	}
	st := testsupport.MustOpenStore(t, cfg)
	engine := dedup.New(st, cfg.Dedup, logging.NewNop())
	registry := sources.NewRegistry()
	if err := registry.Register(adapter); err != nil {
		t.Fatalf("Register: %v", err)
	}
	orchestrator := NewOrchestrator(registry, engine, st, cfg, logging.NewNop(),
		WithRetryIntervals(time.Millisecond, time.Millisecond))

	scheduler := NewScheduler(orchestrator, cfg.Sources, logging.NewNop())
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	if err := scheduler.TriggerNow("committee-site"); err != nil {
		t.Fatalf("TriggerNow: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for adapter.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("trigger never ran a cycle")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestManualTriggerKeepsSchedule(t *testing.T) {
	adapter := &scriptedAdapter{
		name:      "committee-site",
		responses: []func() (sources.FetchResult, error){records()},
	}

	cfg := testsupport.NewConfig(t)
	cfg.Sources = map[string]config.Source{
		"committee-site": {Kind: "scraper", BaseURL: "https://example.gov", IntervalMinutes: 1, WindowDays: 14},
	}
	st := testsupport.MustOpenStore(t, cfg)
	engine := dedup.New(st, cfg.Dedup, logging.NewNop())
	registry := sources.NewRegistry()
	if err := registry.Register(adapter); err != nil {
		t.Fatalf("Register: %v", err)
	}
	orchestrator := NewOrchestrator(registry, engine, st, cfg, logging.NewNop(),
		WithRetryIntervals(time.Millisecond, time.Millisecond))

	scheduler := NewScheduler(orchestrator, cfg.Sources, logging.NewNop())
	scheduler.intervalOverride = 500 * time.Millisecond

	start := time.Now()
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	time.Sleep(250 * time.Millisecond)
	if err := scheduler.TriggerNow("committee-site"); err != nil {
		t.Fatalf("TriggerNow: %v", err)
	}

	// The manual cycle must not push the scheduled fire out: the second
	// cycle is still due ~500ms after Start, not ~500ms after the
	// trigger.
	deadline := time.After(2 * time.Second)
	for adapter.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("scheduled cycle never fired after the manual trigger")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	if elapsed := time.Since(start); elapsed > 650*time.Millisecond {
		t.Fatalf("scheduled cycle fired %v after start, want the original ~500ms slot", elapsed)
	}
}

func TestTriggerNowUnknownSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Sources = map[string]config.Source{}
	st := testsupport.MustOpenStore(t, cfg)
	engine := dedup.New(st, cfg.Dedup, logging.NewNop())
	orchestrator := NewOrchestrator(sources.NewRegistry(), engine, st, cfg, logging.NewNop())

	scheduler := NewScheduler(orchestrator, cfg.Sources, logging.NewNop())
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	if err := scheduler.TriggerNow("nope"); !errors.Is(err, ErrUnknownSource) {
		t.Fatalf("err = %v, want unknown source", err)
	}
}

func TestTriggerAfterStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Sources = map[string]config.Source{
		"committee-site": {Kind: "scraper", BaseURL: "https://example.gov", IntervalMinutes: 24 * 60},
	}
	st := testsupport.MustOpenStore(t, cfg)
	engine := dedup.New(st, cfg.Dedup, logging.NewNop())
	orchestrator := NewOrchestrator(sources.NewRegistry(), engine, st, cfg, logging.NewNop())

	scheduler := NewScheduler(orchestrator, cfg.Sources, logging.NewNop())
	scheduler.Start(context.Background())
	scheduler.Stop()

	if err := scheduler.TriggerNow("committee-site"); !errors.Is(err, ErrSchedulerStopped) {
		t.Fatalf("err = %v, want stopped", err)
	}
}

func TestJitteredStaysPositive(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := jittered(time.Minute, 0.5)
		if d <= 0 {
			t.Fatalf("jittered returned %v", d)
		}
		if d < 30*time.Second || d > 90*time.Second {
			t.Fatalf("jittered %v outside +/-50%% band", d)
		}
	}
	if jittered(time.Minute, 0) != time.Minute {
		t.Fatal("zero fraction should return the interval unchanged")
	}
}
