package sources

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gavel/internal/hearing"
)

// FetchWindow bounds one adapter pull.
type FetchWindow struct {
	Committees []string
	Since      time.Time
}

// Adapter is the uniform contract each data source implements. Fetch
// returns raw hearing records for the window; failures must be wrapped
// with the taxonomy in this package so the orchestrator can classify
// them. A malformed individual record is reported in the Skipped count
// rather than failing the pull.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, window FetchWindow) (FetchResult, error)
}

// FetchResult carries one pull's records plus per-record skip detail.
type FetchResult struct {
	Records []hearing.Raw
	// Skipped counts records dropped because they were malformed.
	Skipped int
	// SkipDetail summarizes why records were dropped, for the audit
	// trail.
	SkipDetail string
}

// Registry resolves adapters by source name. Adapters register at
// daemon construction; lookup is read-mostly.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry returns an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its name. Re-registering a name is a
// programming error.
func (r *Registry) Register(adapter Adapter) error {
	if adapter == nil {
		return fmt.Errorf("adapter is nil")
	}
	name := adapter.Name()
	if name == "" {
		return fmt.Errorf("adapter name is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("adapter %q already registered", name)
	}
	r.adapters[name] = adapter
	return nil
}

// Lookup returns the adapter registered under name.
func (r *Registry) Lookup(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[name]
	return adapter, ok
}

// Names returns the registered source names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
