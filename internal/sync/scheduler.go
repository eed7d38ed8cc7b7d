package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	stdsync "sync"
	"time"

	"gavel/internal/config"
	"gavel/internal/logging"
)

// ErrSchedulerStopped is returned for triggers after Stop.
var ErrSchedulerStopped = errors.New("scheduler stopped")

// Scheduler runs one loop per configured source, firing cycles on a
// jittered interval and on manual triggers. Loops are independent; a
// stalled source never delays the others.
type Scheduler struct {
	orchestrator *Orchestrator
	sources      map[string]config.Source
	log          *slog.Logger

	mu       stdsync.Mutex
	triggers map[string]chan struct{}
	cancel   context.CancelFunc
	wg       stdsync.WaitGroup
	started  bool
	stopped  bool

	// intervalOverride substitutes every source's cadence; tests use it
	// for sub-minute intervals.
	intervalOverride time.Duration
}

// NewScheduler builds a scheduler over the configured sources.
func NewScheduler(orchestrator *Orchestrator, srcCfg map[string]config.Source, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		orchestrator: orchestrator,
		sources:      srcCfg,
		log:          logging.NewComponentLogger(logger, "scheduler"),
		triggers:     make(map[string]chan struct{}),
	}
}

// Start launches the per-source loops. Each loop waits a jittered
// interval, runs a cycle, and also wakes on TriggerNow.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for name, cfg := range s.sources {
		trigger := make(chan struct{}, 1)
		s.triggers[name] = trigger
		s.wg.Add(1)
		go s.runLoop(ctx, name, cfg, trigger)
	}
}

// TriggerNow requests an immediate cycle for the source. A trigger
// while one is already queued coalesces.
func (s *Scheduler) TriggerNow(source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSchedulerStopped
	}
	trigger, ok := s.triggers[source]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}
	select {
	case trigger <- struct{}{}:
	default:
	}
	return nil
}

// Stop cancels all loops and waits for in-flight cycles to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

func (s *Scheduler) runLoop(ctx context.Context, source string, cfg config.Source, trigger <-chan struct{}) {
	defer s.wg.Done()

	interval := time.Duration(cfg.IntervalMinutes) * time.Minute
	if s.intervalOverride > 0 {
		interval = s.intervalOverride
	}
	if interval <= 0 {
		interval = 6 * time.Hour
	}

	timer := time.NewTimer(jittered(interval, cfg.JitterFraction))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.runCycle(ctx, source)
			timer.Reset(jittered(interval, cfg.JitterFraction))
		case <-trigger:
			// A manual cycle leaves the scheduled cadence untouched.
			s.runCycle(ctx, source)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context, source string) {
	result, err := s.orchestrator.RunCycle(ctx, source)
	switch {
	case errors.Is(err, ErrBreakerOpen), errors.Is(err, ErrCycleInProgress):
		// Already audited or harmless; the next tick retries.
	case err != nil:
		s.log.Error("scheduled cycle failed",
			logging.String(logging.FieldSource, source),
			logging.Error(err))
	default:
		s.log.Debug("scheduled cycle finished",
			logging.String(logging.FieldSource, source),
			logging.Int("fetched", result.Fetched))
	}
}

// jittered spreads an interval by up to fraction in either direction so
// sources sharing an interval drift apart.
func jittered(interval time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return interval
	}
	if fraction > 1 {
		fraction = 1
	}
	offset := (rand.Float64()*2 - 1) * fraction * float64(interval)
	result := interval + time.Duration(offset)
	if result <= 0 {
		result = interval
	}
	return result
}
