package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"gavel/internal/config"
	"gavel/internal/dedup"
	"gavel/internal/hearing"
	"gavel/internal/logging"
	"gavel/internal/sources"
	"gavel/internal/store"
)

var (
	// ErrCycleInProgress means a cycle for the source is already
	// running; per-source cycles never overlap.
	ErrCycleInProgress = errors.New("sync cycle already in progress")
	// ErrBreakerOpen means the source's circuit breaker is refusing
	// pulls until its cooldown elapses.
	ErrBreakerOpen = errors.New("circuit breaker open")
	// ErrUnknownSource means no adapter is registered under the name.
	ErrUnknownSource = errors.New("unknown source")
)

// CycleResult summarizes one completed pull.
type CycleResult struct {
	Source   string
	Fetched  int
	Merged   int
	Pending  int
	Distinct int
	Skipped  int
}

// Orchestrator runs sync cycles: fetch with retry, classify failures
// through the breaker, and hand every record to the dedup engine.
type Orchestrator struct {
	registry *sources.Registry
	engine   *dedup.Engine
	store    *store.Store
	cfg      config.Sync
	srcCfg   map[string]config.Source
	log      *slog.Logger

	retryBase     time.Duration
	rateLimitBase time.Duration

	mu       stdsync.Mutex
	breakers map[string]*CircuitBreaker
	inFlight map[string]*stdsync.Mutex
}

// Option adjusts orchestrator construction.
type Option func(*Orchestrator)

// WithRetryIntervals overrides the backoff bases; tests use this to
// avoid real sleeps.
func WithRetryIntervals(base, rateLimit time.Duration) Option {
	return func(o *Orchestrator) {
		o.retryBase = base
		o.rateLimitBase = rateLimit
	}
}

// NewOrchestrator wires the registry, dedup engine and store together
// under one sync policy.
func NewOrchestrator(registry *sources.Registry, engine *dedup.Engine, st *store.Store, cfg *config.Config, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:      registry,
		engine:        engine,
		store:         st,
		cfg:           cfg.Sync,
		srcCfg:        cfg.Sources,
		log:           logging.NewComponentLogger(logger, "sync"),
		retryBase:     time.Duration(cfg.Sync.RetryBaseSeconds) * time.Second,
		rateLimitBase: time.Duration(cfg.Sync.RateLimitBaseSeconds) * time.Second,
		breakers:      make(map[string]*CircuitBreaker),
		inFlight:      make(map[string]*stdsync.Mutex),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// BreakerState exposes the breaker position for the status API.
func (o *Orchestrator) BreakerState(source string) BreakerState {
	return o.breaker(source).State()
}

// RunCycle executes one pull for the named source. Overlapping calls
// for the same source return ErrCycleInProgress; an open breaker
// returns ErrBreakerOpen after writing a skipped audit entry.
func (o *Orchestrator) RunCycle(ctx context.Context, source string) (CycleResult, error) {
	result := CycleResult{Source: source}

	adapter, ok := o.registry.Lookup(source)
	if !ok {
		return result, fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}

	lock := o.cycleLock(source)
	if !lock.TryLock() {
		return result, fmt.Errorf("source %s: %w", source, ErrCycleInProgress)
	}
	defer lock.Unlock()

	breaker := o.breaker(source)
	if !breaker.Allow() {
		entry := &hearing.SyncAuditEntry{
			Source:   source,
			Decision: hearing.DecisionSkipped,
			Detail:   "circuit breaker open",
		}
		if err := o.store.AppendAudit(ctx, entry); err != nil {
			return result, err
		}
		o.log.Warn("cycle skipped",
			logging.String(logging.FieldSource, source),
			logging.String("reason", "breaker open"))
		return result, ErrBreakerOpen
	}

	window := o.window(source)
	fetched, err := o.fetchWithRetry(ctx, adapter, window)
	if err != nil {
		breaker.RecordFailure()
		kind := sources.Classify(err)
		entry := &hearing.SyncAuditEntry{
			Source:   source,
			Decision: hearing.DecisionError,
			Detail:   fmt.Sprintf("%s: %v", kind, err),
		}
		if auditErr := o.store.AppendAudit(ctx, entry); auditErr != nil {
			return result, auditErr
		}
		o.log.Error("cycle failed",
			logging.String(logging.FieldSource, source),
			logging.String("kind", string(kind)),
			logging.Error(err))
		return result, err
	}
	breaker.RecordSuccess()

	result.Fetched = len(fetched.Records)
	result.Skipped = fetched.Skipped

	entry := &hearing.SyncAuditEntry{
		Source:   source,
		Decision: hearing.DecisionFetched,
		Detail:   fmt.Sprintf("%d records, %d skipped", len(fetched.Records), fetched.Skipped),
	}
	if err := o.store.AppendAudit(ctx, entry); err != nil {
		return result, err
	}
	if fetched.Skipped > 0 {
		partial := &hearing.SyncAuditEntry{
			Source:   source,
			Decision: hearing.DecisionPartial,
			Detail:   fetched.SkipDetail,
		}
		if err := o.store.AppendAudit(ctx, partial); err != nil {
			return result, err
		}
	}

	for _, record := range fetched.Records {
		outcome, err := o.engine.Resolve(ctx, record)
		if err != nil {
			return result, fmt.Errorf("resolve %s:%s: %w", record.Source, record.SourceID, err)
		}
		switch outcome.Decision {
		case hearing.DecisionAutoMerge, hearing.DecisionManualMerge:
			result.Merged++
		case hearing.DecisionPending:
			result.Pending++
		case hearing.DecisionDistinct:
			result.Distinct++
		}
	}

	o.log.Info("cycle complete",
		logging.String(logging.FieldSource, source),
		logging.Int("fetched", result.Fetched),
		logging.Int("merged", result.Merged),
		logging.Int("pending", result.Pending),
		logging.Int("distinct", result.Distinct),
		logging.Int("skipped", result.Skipped))
	return result, nil
}

// fetchWithRetry pulls with exponential backoff. Rate-limit errors
// raise the floor of the next delay; malformed-record errors from the
// pull itself are permanent.
func (o *Orchestrator) fetchWithRetry(ctx context.Context, adapter sources.Adapter, window sources.FetchWindow) (sources.FetchResult, error) {
	var (
		result  sources.FetchResult
		lastErr error
	)

	operation := func() error {
		res, err := adapter.Fetch(ctx, window)
		if err != nil {
			lastErr = err
			if !sources.Retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = res
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = o.retryBase
	policy.RandomizationFactor = 0.2
	policy.MaxElapsedTime = 0

	kindAware := &kindAwareBackOff{
		base:           policy,
		rateLimitFloor: o.rateLimitBase,
		lastKind: func() sources.ErrorKind {
			return sources.Classify(lastErr)
		},
	}

	maxRetries := o.cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(kindAware, uint64(maxRetries)), ctx))
	if err != nil {
		return sources.FetchResult{}, err
	}
	return result, nil
}

// kindAwareBackOff stretches delays for rate-limited failures while
// leaving ordinary network failures on the configured base.
type kindAwareBackOff struct {
	base           *backoff.ExponentialBackOff
	rateLimitFloor time.Duration
	lastKind       func() sources.ErrorKind
}

func (k *kindAwareBackOff) NextBackOff() time.Duration {
	next := k.base.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if k.lastKind() == sources.KindRateLimit && next < k.rateLimitFloor {
		return k.rateLimitFloor
	}
	return next
}

func (k *kindAwareBackOff) Reset() {
	k.base.Reset()
}

func (o *Orchestrator) window(source string) sources.FetchWindow {
	cfg := o.srcCfg[source]
	window := sources.FetchWindow{Committees: cfg.Committees}
	if cfg.WindowDays > 0 {
		window.Since = time.Now().UTC().AddDate(0, 0, -cfg.WindowDays)
	}
	return window
}

func (o *Orchestrator) breaker(source string) *CircuitBreaker {
	o.mu.Lock()
	defer o.mu.Unlock()
	breaker, ok := o.breakers[source]
	if !ok {
		breaker = NewCircuitBreaker(
			o.cfg.BreakerFailureThreshold,
			time.Duration(o.cfg.BreakerCooldownMinutes)*time.Minute,
		)
		o.breakers[source] = breaker
	}
	return breaker
}

func (o *Orchestrator) cycleLock(source string) *stdsync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.inFlight[source]
	if !ok {
		lock = &stdsync.Mutex{}
		o.inFlight[source] = lock
	}
	return lock
}
