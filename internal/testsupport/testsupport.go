// Package testsupport provides shared helpers for package tests: a
// temp-dir backed config and store constructors with registered
// cleanup.
package testsupport

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gavel/internal/config"
	"gavel/internal/hearing"
	"gavel/internal/store"
)

// NewConfig returns a validated config rooted in a test temp dir.
func NewConfig(t testing.TB) *config.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(dir, "data")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return &cfg
}

// MustOpenStore opens a store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewHearing inserts a discovered hearing for tests.
func NewHearing(t testing.TB, st *store.Store, committee, title string, date time.Time) *hearing.Hearing {
	t.Helper()

	h := &hearing.Hearing{
		Committee: committee,
		Title:     title,
		Date:      date,
		Status:    hearing.StatusDiscovered,
	}
	if err := st.InsertHearing(context.Background(), h); err != nil {
		t.Fatalf("InsertHearing: %v", err)
	}
	return h
}

// Raw builds a raw hearing record for tests.
func Raw(source, sourceID, title, committee string, date time.Time) hearing.Raw {
	return hearing.Raw{
		Source:    source,
		SourceID:  sourceID,
		Title:     title,
		Committee: committee,
		Date:      date,
		FetchedAt: time.Now().UTC(),
	}
}
