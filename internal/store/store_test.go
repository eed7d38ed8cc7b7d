package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"gavel/internal/hearing"
	"gavel/internal/store"
	"gavel/internal/testsupport"
)

func day(t *testing.T, value string) time.Time {
	t.Helper()
	date, err := time.Parse("2006-01-02", value)
	if err != nil {
		t.Fatalf("parse date %q: %v", value, err)
	}
	return date
}

func TestInsertAndGetHearing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	h := &hearing.Hearing{
		Committee: "SCOM",
		Title:     "Oversight Hearing on X",
		Date:      day(t, "2025-06-10"),
	}
	h.RecordSource("govinfo", "GI-100", time.Now())
	if err := st.InsertHearing(ctx, h); err != nil {
		t.Fatalf("InsertHearing: %v", err)
	}
	if h.ID == "" {
		t.Fatal("expected generated hearing id")
	}

	fetched, err := st.GetHearing(ctx, h.ID)
	if err != nil {
		t.Fatalf("GetHearing: %v", err)
	}
	if fetched == nil {
		t.Fatal("expected hearing")
	}
	if fetched.Status != hearing.StatusDiscovered {
		t.Fatalf("status = %s, want discovered", fetched.Status)
	}
	if !fetched.Date.Equal(day(t, "2025-06-10")) {
		t.Fatalf("date = %v", fetched.Date)
	}
	if ref, ok := fetched.Provenance["govinfo"]; !ok || ref.SourceID != "GI-100" {
		t.Fatalf("provenance = %#v", fetched.Provenance)
	}
}

func TestGetHearingMissingReturnsNil(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	h, err := st.GetHearing(context.Background(), "no-such-id")
	if err != nil {
		t.Fatalf("GetHearing: %v", err)
	}
	if h != nil {
		t.Fatalf("expected nil, got %#v", h)
	}
}

func TestListHearingsFilters(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := testsupport.NewHearing(t, st, "SCOM", "Hearing A", day(t, "2025-06-10"))
	testsupport.NewHearing(t, st, "SJUD", "Hearing B", day(t, "2025-06-11"))
	a.Status = hearing.StatusCompleted
	if err := st.UpdateHearing(ctx, a); err != nil {
		t.Fatalf("UpdateHearing: %v", err)
	}

	byCommittee, err := st.ListHearings(ctx, store.HearingFilter{Committee: "SCOM"})
	if err != nil {
		t.Fatalf("ListHearings: %v", err)
	}
	if len(byCommittee) != 1 || byCommittee[0].ID != a.ID {
		t.Fatalf("unexpected committee filter result: %#v", byCommittee)
	}

	byStatus, err := st.ListHearings(ctx, store.HearingFilter{Status: hearing.StatusCompleted})
	if err != nil {
		t.Fatalf("ListHearings by status: %v", err)
	}
	if len(byStatus) != 1 || byStatus[0].ID != a.ID {
		t.Fatalf("unexpected status filter result: %#v", byStatus)
	}

	counts, err := st.StatusCounts(ctx)
	if err != nil {
		t.Fatalf("StatusCounts: %v", err)
	}
	if counts[hearing.StatusCompleted] != 1 || counts[hearing.StatusDiscovered] != 1 {
		t.Fatalf("unexpected counts: %#v", counts)
	}
}

func TestAuditAppendOnlyAndLookup(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	h := testsupport.NewHearing(t, st, "SCOM", "Hearing A", day(t, "2025-06-10"))

	entry := &hearing.SyncAuditEntry{
		Source:     "govinfo",
		SourceID:   "GI-1",
		HearingID:  h.ID,
		Decision:   hearing.DecisionAutoMerge,
		Confidence: 0.95,
	}
	if err := st.AppendAudit(ctx, entry); err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}
	if entry.ID == 0 {
		t.Fatal("expected audit id")
	}

	has, err := st.HasMergeAudit(ctx, "govinfo", "GI-1", h.ID, hearing.DecisionAutoMerge)
	if err != nil {
		t.Fatalf("HasMergeAudit: %v", err)
	}
	if !has {
		t.Fatal("expected merge audit to exist")
	}

	trail, err := st.AuditForHearing(ctx, h.ID)
	if err != nil {
		t.Fatalf("AuditForHearing: %v", err)
	}
	if len(trail) != 1 || trail[0].Decision != hearing.DecisionAutoMerge {
		t.Fatalf("unexpected trail: %#v", trail)
	}
}

func TestUpsertCandidateIsIdempotentPerPair(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := testsupport.Raw("govinfo", "GI-1", "Oversight Hearing on X", "SCOM", day(t, "2025-06-10"))
	b := testsupport.Raw("scom-web", "W-1", "Oversight Hearing on X (webcast)", "SCOM", day(t, "2025-06-10"))

	first, err := st.UpsertCandidate(ctx, a, b, 0.85, "")
	if err != nil {
		t.Fatalf("UpsertCandidate: %v", err)
	}
	// Same pair in reversed order must resolve to the same row.
	second, err := st.UpsertCandidate(ctx, b, a, 0.87, "")
	if err != nil {
		t.Fatalf("UpsertCandidate again: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected one candidate row, got %d and %d", first.ID, second.ID)
	}
	if second.Confidence != 0.87 {
		t.Fatalf("confidence = %v, want refreshed 0.87", second.Confidence)
	}

	pending, err := st.PendingCandidates(ctx)
	if err != nil {
		t.Fatalf("PendingCandidates: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending candidate, got %d", len(pending))
	}
	if pending[0].RecordA.SourceID == "" || pending[0].RecordB.SourceID == "" {
		t.Fatalf("raw records not round-tripped: %#v", pending[0])
	}
}

func TestRunLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	h := testsupport.NewHearing(t, st, "SCOM", "Hearing A", day(t, "2025-06-10"))
	run, err := st.CreateRun(ctx, h.ID)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	run.BeginStage(hearing.StageCapture, time.Now())
	run.FinishStage(hearing.StageCapture, time.Now())
	run.BeginStage(hearing.StageConvert, time.Now())
	if err := st.UpdateRun(ctx, run); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}

	latest, err := st.LatestRunForHearing(ctx, h.ID)
	if err != nil {
		t.Fatalf("LatestRunForHearing: %v", err)
	}
	if latest == nil || latest.ID != run.ID {
		t.Fatalf("unexpected latest run: %#v", latest)
	}
	if latest.Stage != hearing.StageConvert {
		t.Fatalf("stage = %s, want convert", latest.Stage)
	}
	if len(latest.Timeline) != 2 {
		t.Fatalf("timeline length = %d, want 2", len(latest.Timeline))
	}
	if latest.Timeline[0].FinishedAt == nil || latest.Timeline[1].FinishedAt != nil {
		t.Fatalf("timeline round-trip broken: %#v", latest.Timeline)
	}
}

func TestLockHearingSerializes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := st.LockHearing("SCOM")
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("advisory lock admitted %d holders concurrently", maxSeen)
	}
}
