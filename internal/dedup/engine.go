package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gavel/internal/config"
	"gavel/internal/hearing"
	"gavel/internal/logging"
	"gavel/internal/store"
)

// ErrCandidateNotFound is returned when a manual resolution names a
// candidate that does not exist.
var ErrCandidateNotFound = errors.New("merge candidate not found")

// Outcome describes what happened to one raw record.
type Outcome struct {
	Decision   hearing.Decision
	Hearing    *hearing.Hearing
	Candidate  *hearing.PendingMergeCandidate
	Confidence float64
}

// Engine applies the scoring thresholds and merge policy. All writes go
// through the store under a per-committee advisory lock so concurrent
// sync cycles cannot race on the same pool.
type Engine struct {
	store  *store.Store
	scorer *Scorer
	cfg    config.Dedup
	log    *slog.Logger
}

// New builds a dedup engine.
func New(st *store.Store, cfg config.Dedup, logger *slog.Logger) *Engine {
	return &Engine{
		store:  st,
		scorer: NewScorer(cfg),
		cfg:    cfg,
		log:    logging.NewComponentLogger(logger, "dedup"),
	}
}

// Resolve routes one raw record: refresh an already-linked hearing,
// auto-merge at or above the merge threshold, queue a review candidate
// inside the band, or create a distinct hearing below it. Re-running
// Resolve with the same record is a no-op beyond timestamp refreshes.
func (e *Engine) Resolve(ctx context.Context, raw hearing.Raw) (Outcome, error) {
	committee := strings.ToUpper(strings.TrimSpace(raw.Committee))
	raw.Committee = committee

	unlock := e.store.LockHearing("committee:" + committee)
	defer unlock()

	pool, err := e.store.HearingsByCommittee(ctx, committee)
	if err != nil {
		return Outcome{}, err
	}

	// A record whose source id is already in some hearing's provenance
	// was resolved on an earlier cycle.
	for _, h := range pool {
		ref, ok := h.Provenance[raw.Source]
		if ok && ref.SourceID == raw.SourceID {
			e.applyFields(h, raw)
			h.RecordSource(raw.Source, raw.SourceID, syncTime(raw))
			if err := e.store.UpdateHearing(ctx, h); err != nil {
				return Outcome{}, err
			}
			return Outcome{Decision: hearing.DecisionSkipped, Hearing: h, Confidence: h.SyncConfidence}, nil
		}
	}

	// Incomplete records are scored over the fields they carry and can
	// only ever land in the review queue.
	scoreFn := e.scorer.Score
	if raw.Incomplete() {
		scoreFn = e.scorer.PartialScore
	}
	var (
		best      *hearing.Hearing
		bestScore float64
	)
	for _, h := range pool {
		score := scoreFn(raw, rawFromHearing(h))
		if score > bestScore {
			best, bestScore = h, score
		}
	}

	if raw.Incomplete() {
		if best != nil && bestScore >= e.cfg.SimilarityThreshold {
			return e.queueCandidate(ctx, raw, best, bestScore)
		}
		e.log.Warn("incomplete record skipped",
			logging.String(logging.FieldSource, raw.Source),
			logging.String("source_id", raw.SourceID))
		entry := &hearing.SyncAuditEntry{
			Source:   raw.Source,
			SourceID: raw.SourceID,
			Decision: hearing.DecisionSkipped,
			Detail:   "incomplete record, no review counterpart",
		}
		if err := e.store.AppendAudit(ctx, entry); err != nil {
			return Outcome{}, err
		}
		return Outcome{Decision: hearing.DecisionSkipped}, nil
	}

	switch {
	case best != nil && bestScore >= e.cfg.AutoMergeThreshold:
		return e.autoMerge(ctx, raw, best, bestScore)
	case best != nil && bestScore >= e.cfg.SimilarityThreshold:
		return e.queueCandidate(ctx, raw, best, bestScore)
	default:
		return e.createDistinct(ctx, raw, bestScore)
	}
}

func (e *Engine) autoMerge(ctx context.Context, raw hearing.Raw, target *hearing.Hearing, score float64) (Outcome, error) {
	e.applyFields(target, raw)
	target.RecordSource(raw.Source, raw.SourceID, syncTime(raw))
	if score > target.SyncConfidence {
		target.SyncConfidence = score
	}
	if err := e.store.UpdateHearing(ctx, target); err != nil {
		return Outcome{}, err
	}

	seen, err := e.store.HasMergeAudit(ctx, raw.Source, raw.SourceID, target.ID, hearing.DecisionAutoMerge)
	if err != nil {
		return Outcome{}, err
	}
	if !seen {
		entry := &hearing.SyncAuditEntry{
			Source:     raw.Source,
			SourceID:   raw.SourceID,
			HearingID:  target.ID,
			Decision:   hearing.DecisionAutoMerge,
			Confidence: score,
		}
		if err := e.store.AppendAudit(ctx, entry); err != nil {
			return Outcome{}, err
		}
	}

	e.log.Info("records merged",
		logging.String(logging.FieldSource, raw.Source),
		logging.String(logging.FieldHearingID, target.ID),
		logging.String(logging.FieldDecision, string(hearing.DecisionAutoMerge)),
		logging.Float64("confidence", score))
	return Outcome{Decision: hearing.DecisionAutoMerge, Hearing: target, Confidence: score}, nil
}

func (e *Engine) queueCandidate(ctx context.Context, raw hearing.Raw, target *hearing.Hearing, score float64) (Outcome, error) {
	candidate, err := e.store.UpsertCandidate(ctx, raw, rawFromHearing(target), score, target.ID)
	if err != nil {
		return Outcome{}, err
	}

	seen, err := e.store.HasMergeAudit(ctx, raw.Source, raw.SourceID, target.ID, hearing.DecisionPending)
	if err != nil {
		return Outcome{}, err
	}
	if !seen {
		entry := &hearing.SyncAuditEntry{
			Source:     raw.Source,
			SourceID:   raw.SourceID,
			HearingID:  target.ID,
			Decision:   hearing.DecisionPending,
			Confidence: score,
			Detail:     fmt.Sprintf("candidate %d queued for review", candidate.ID),
		}
		if err := e.store.AppendAudit(ctx, entry); err != nil {
			return Outcome{}, err
		}
	}

	e.log.Info("merge review queued",
		logging.String(logging.FieldSource, raw.Source),
		logging.String(logging.FieldHearingID, target.ID),
		logging.String(logging.FieldDecision, string(hearing.DecisionPending)),
		logging.Float64("confidence", score))
	return Outcome{Decision: hearing.DecisionPending, Hearing: target, Candidate: candidate, Confidence: score}, nil
}

func (e *Engine) createDistinct(ctx context.Context, raw hearing.Raw, score float64) (Outcome, error) {
	h := hearingFromRaw(raw)
	if err := e.store.InsertHearing(ctx, h); err != nil {
		return Outcome{}, err
	}
	entry := &hearing.SyncAuditEntry{
		Source:     raw.Source,
		SourceID:   raw.SourceID,
		HearingID:  h.ID,
		Decision:   hearing.DecisionDistinct,
		Confidence: score,
	}
	if err := e.store.AppendAudit(ctx, entry); err != nil {
		return Outcome{}, err
	}

	e.log.Info("distinct hearing created",
		logging.String(logging.FieldSource, raw.Source),
		logging.String(logging.FieldHearingID, h.ID),
		logging.String(logging.FieldDecision, string(hearing.DecisionDistinct)))
	return Outcome{Decision: hearing.DecisionDistinct, Hearing: h, Confidence: score}, nil
}

// ResolveCandidate applies a human review decision. "merged" folds the
// incoming record into the matched hearing; "kept_separate" promotes it
// to its own hearing. The candidate row is deleted once its outcome is
// in the audit trail, so resolving the same id twice reports
// ErrCandidateNotFound.
func (e *Engine) ResolveCandidate(ctx context.Context, id int64, resolution hearing.PendingResolution) (Outcome, error) {
	if resolution != hearing.ResolutionMerged && resolution != hearing.ResolutionKeptSeparate {
		return Outcome{}, fmt.Errorf("unsupported resolution %q", resolution)
	}

	candidate, err := e.store.GetCandidate(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	if candidate == nil {
		return Outcome{}, fmt.Errorf("candidate %d: %w", id, ErrCandidateNotFound)
	}

	committee := strings.ToUpper(strings.TrimSpace(candidate.RecordA.Committee))
	unlock := e.store.LockHearing("committee:" + committee)
	defer unlock()

	// Re-read under the committee lock; a concurrent resolve may have
	// deleted the row between the lookup and the lock.
	candidate, err = e.store.GetCandidate(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	if candidate == nil {
		return Outcome{}, fmt.Errorf("candidate %d: %w", id, ErrCandidateNotFound)
	}

	switch resolution {
	case hearing.ResolutionMerged:
		return e.manualMerge(ctx, candidate)
	default:
		return e.manualKeepSeparate(ctx, candidate)
	}
}

func (e *Engine) manualMerge(ctx context.Context, candidate *hearing.PendingMergeCandidate) (Outcome, error) {
	raw := candidate.RecordA
	target, err := e.store.GetHearing(ctx, candidate.HearingID)
	if err != nil {
		return Outcome{}, err
	}
	if target == nil {
		// The matched hearing vanished; promote the pair to one fresh
		// hearing instead of failing the review.
		target = hearingFromRaw(candidate.RecordB)
		if err := e.store.InsertHearing(ctx, target); err != nil {
			return Outcome{}, err
		}
	}

	e.applyFields(target, raw)
	target.RecordSource(raw.Source, raw.SourceID, syncTime(raw))
	if candidate.Confidence > target.SyncConfidence {
		target.SyncConfidence = candidate.Confidence
	}
	if err := e.store.UpdateHearing(ctx, target); err != nil {
		return Outcome{}, err
	}

	entry := &hearing.SyncAuditEntry{
		Source:     raw.Source,
		SourceID:   raw.SourceID,
		HearingID:  target.ID,
		Decision:   hearing.DecisionManualMerge,
		Confidence: candidate.Confidence,
	}
	if err := e.store.AppendAudit(ctx, entry); err != nil {
		return Outcome{}, err
	}
	if err := e.store.DeleteResolvedCandidate(ctx, candidate.ID); err != nil {
		return Outcome{}, err
	}
	candidate.Resolution = hearing.ResolutionMerged
	candidate.HearingID = target.ID

	e.log.Info("review resolved",
		logging.String(logging.FieldHearingID, target.ID),
		logging.String(logging.FieldDecision, string(hearing.DecisionManualMerge)),
		logging.Int64("candidate_id", candidate.ID))
	return Outcome{Decision: hearing.DecisionManualMerge, Hearing: target, Candidate: candidate, Confidence: candidate.Confidence}, nil
}

func (e *Engine) manualKeepSeparate(ctx context.Context, candidate *hearing.PendingMergeCandidate) (Outcome, error) {
	raw := candidate.RecordA
	h := hearingFromRaw(raw)
	if err := e.store.InsertHearing(ctx, h); err != nil {
		return Outcome{}, err
	}

	entry := &hearing.SyncAuditEntry{
		Source:     raw.Source,
		SourceID:   raw.SourceID,
		HearingID:  h.ID,
		Decision:   hearing.DecisionManualKeep,
		Confidence: candidate.Confidence,
	}
	if err := e.store.AppendAudit(ctx, entry); err != nil {
		return Outcome{}, err
	}
	if err := e.store.DeleteResolvedCandidate(ctx, candidate.ID); err != nil {
		return Outcome{}, err
	}
	candidate.Resolution = hearing.ResolutionKeptSeparate
	candidate.HearingID = h.ID

	e.log.Info("review resolved",
		logging.String(logging.FieldHearingID, h.ID),
		logging.String(logging.FieldDecision, string(hearing.DecisionManualKeep)),
		logging.Int64("candidate_id", candidate.ID))
	return Outcome{Decision: hearing.DecisionManualKeep, Hearing: h, Candidate: candidate, Confidence: candidate.Confidence}, nil
}

// applyFields folds non-empty incoming fields into the hearing. The
// incoming record is by definition the most recently synced, so it wins
// conflicts; empty incoming fields never erase stored values.
func (e *Engine) applyFields(h *hearing.Hearing, raw hearing.Raw) {
	if strings.TrimSpace(raw.Title) != "" {
		h.Title = raw.Title
	}
	if !raw.Date.IsZero() {
		h.Date = raw.Date
	}
	if strings.TrimSpace(raw.Type) != "" {
		h.Type = raw.Type
	}
	if strings.TrimSpace(raw.MediaURL) != "" {
		h.MediaURL = raw.MediaURL
	}
	if strings.TrimSpace(raw.DocumentURL) != "" {
		h.DocumentURL = raw.DocumentURL
	}
}

func hearingFromRaw(raw hearing.Raw) *hearing.Hearing {
	h := &hearing.Hearing{
		Committee:   strings.ToUpper(strings.TrimSpace(raw.Committee)),
		Title:       raw.Title,
		Date:        raw.Date,
		Type:        raw.Type,
		MediaURL:    raw.MediaURL,
		DocumentURL: raw.DocumentURL,
		Status:      hearing.StatusDiscovered,
	}
	h.RecordSource(raw.Source, raw.SourceID, syncTime(raw))
	return h
}

// rawFromHearing projects a stored hearing back into record form so it
// can be scored and stored in a review pair. The provenance entry with
// the latest sync supplies the source identity.
func rawFromHearing(h *hearing.Hearing) hearing.Raw {
	source := h.MostRecentSource()
	var ref hearing.SourceRef
	if source != "" {
		ref = h.Provenance[source]
	}
	return hearing.Raw{
		Source:      source,
		SourceID:    ref.SourceID,
		Title:       h.Title,
		Date:        h.Date,
		Committee:   h.Committee,
		Type:        h.Type,
		MediaURL:    h.MediaURL,
		DocumentURL: h.DocumentURL,
		FetchedAt:   ref.LastSyncedAt,
	}
}

func syncTime(raw hearing.Raw) time.Time {
	if raw.FetchedAt.IsZero() {
		return time.Now().UTC()
	}
	return raw.FetchedAt
}
