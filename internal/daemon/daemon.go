// Package daemon composes the sync scheduler, dedup engine, pipeline
// controller and HTTP API into the single background process gaveld
// runs, with flock-enforced single-instance execution.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"gavel/internal/config"
	"gavel/internal/dedup"
	"gavel/internal/logging"
	"gavel/internal/pipeline"
	"gavel/internal/progress"
	"gavel/internal/sources"
	"gavel/internal/sources/govinfo"
	"gavel/internal/sources/scraper"
	"gavel/internal/stages"
	gsync "gavel/internal/sync"
	"gavel/internal/store"
)

// Daemon owns the long-running services and their lifecycle.
type Daemon struct {
	cfg    *config.Config
	log    *slog.Logger
	store  *store.Store
	engine *dedup.Engine

	registry     *sources.Registry
	orchestrator *gsync.Orchestrator
	scheduler    *gsync.Scheduler
	tracker      *progress.Tracker
	controller   *pipeline.Controller
	api          *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon with its store open and all adapters
// registered. The pipeline controller is created at Start so its stage
// work is bound to the daemon's run context.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires configuration")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	registry := sources.NewRegistry()
	if err := registerAdapters(registry, cfg); err != nil {
		st.Close()
		return nil, err
	}

	engine := dedup.New(st, cfg.Dedup, logger)
	orchestrator := gsync.NewOrchestrator(registry, engine, st, cfg, logger)

	lockPath := filepath.Join(cfg.Paths.LogDir, "gaveld.lock")
	d := &Daemon{
		cfg:          cfg,
		log:          logging.NewComponentLogger(logger, "daemon"),
		store:        st,
		engine:       engine,
		registry:     registry,
		orchestrator: orchestrator,
		scheduler:    gsync.NewScheduler(orchestrator, cfg.Sources, logger),
		tracker:      progress.NewTracker(),
		lockPath:     lockPath,
		lock:         flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

func registerAdapters(registry *sources.Registry, cfg *config.Config) error {
	for name, src := range cfg.Sources {
		timeout := time.Duration(src.TimeoutSeconds) * time.Second
		var (
			adapter sources.Adapter
			err     error
		)
		switch src.Kind {
		case "govinfo":
			adapter, err = govinfo.New(name, src.APIKey, src.BaseURL, timeout)
		case "scraper":
			committee := ""
			if len(src.Committees) > 0 {
				committee = src.Committees[0]
			}
			adapter, err = scraper.New(name, src.BaseURL, committee, timeout)
		default:
			err = fmt.Errorf("unknown source kind %q", src.Kind)
		}
		if err != nil {
			return fmt.Errorf("source %s: %w", name, err)
		}
		if err := registry.Register(adapter); err != nil {
			return fmt.Errorf("source %s: %w", name, err)
		}
	}
	return nil
}

// Start acquires the single-instance lock and launches the scheduler,
// pipeline controller and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another gaveld instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	runner := stages.NewRunner(d.cfg, d.log)
	d.controller = pipeline.New(runCtx, d.store, d.cfg.Pipeline, runner.Stages(), d.tracker, d.log)

	// A previous process may have died mid-run; fail those hearings so
	// the operator can re-trigger them.
	recovered, err := d.controller.RecoverInterrupted(runCtx)
	if err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("recover interrupted hearings: %w", err)
	}
	if recovered > 0 {
		d.log.Warn("failed interrupted hearings from a previous run",
			logging.Int("count", recovered))
	}

	d.scheduler.Start(runCtx)
	if err := d.api.start(runCtx); err != nil {
		d.scheduler.Stop()
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.running.Store(true)
	d.log.Info("daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("sources", len(d.registry.Names())))
	return nil
}

// Stop shuts the services down, waiting for in-flight pipeline runs to
// reach a boundary.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.scheduler.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.controller != nil {
		d.controller.Wait()
	}
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.log.Warn("release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.log.Info("daemon stopped")
}

// Close stops the daemon and releases the store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// APIAddr reports the bound API address, empty before Start.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

// Status summarizes the daemon for the status endpoint.
type Status struct {
	Running       bool
	PID           int
	DBPath        string
	LockFilePath  string
	Sources       []SourceState
	StatusCounts  map[string]int
	PendingMerges int
}

// SourceState is one source's breaker position.
type SourceState struct {
	Name    string
	Kind    string
	Breaker string
}

// Status assembles the runtime summary.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DBPath:       d.store.Path(),
		LockFilePath: d.lockPath,
		StatusCounts: make(map[string]int),
	}

	for _, name := range d.registry.Names() {
		status.Sources = append(status.Sources, SourceState{
			Name:    name,
			Kind:    d.cfg.Sources[name].Kind,
			Breaker: string(d.orchestrator.BreakerState(name)),
		})
	}

	counts, err := d.store.StatusCounts(ctx)
	if err != nil {
		return status, err
	}
	for s, count := range counts {
		status.StatusCounts[string(s)] = count
	}

	pending, err := d.store.PendingCandidates(ctx)
	if err != nil {
		return status, err
	}
	status.PendingMerges = len(pending)
	return status, nil
}
