package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gavel/internal/hearing"
)

const candidateColumns = "id, pair_key, record_a_json, record_b_json, confidence, resolution, hearing_id, created_at, resolved_at"

// PairKey builds the stable identity of a raw-record pair, independent
// of argument order.
func PairKey(a, b hearing.Raw) string {
	ka := a.Source + ":" + a.SourceID
	kb := b.Source + ":" + b.SourceID
	if strings.Compare(ka, kb) > 0 {
		ka, kb = kb, ka
	}
	return ka + "|" + kb
}

// UpsertCandidate creates a pending merge candidate for the pair, or
// refreshes the confidence of an existing unresolved one. hearingID
// names the stored hearing the pair matched against, empty when the
// pair is raw-to-raw. Returns the stored candidate.
func (s *Store) UpsertCandidate(ctx context.Context, a, b hearing.Raw, confidence float64, hearingID string) (*hearing.PendingMergeCandidate, error) {
	key := PairKey(a, b)

	existing, err := s.candidateByPairKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Resolution != hearing.ResolutionPending {
			return existing, nil
		}
		if existing.Confidence != confidence {
			if _, err := s.execWithRetry(ctx,
				`UPDATE pending_merges SET confidence = ? WHERE id = ?`,
				confidence, existing.ID,
			); err != nil {
				return nil, fmt.Errorf("refresh candidate confidence: %w", err)
			}
			existing.Confidence = confidence
		}
		return existing, nil
	}

	rawA, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal record a: %w", err)
	}
	rawB, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshal record b: %w", err)
	}

	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO pending_merges (pair_key, record_a_json, record_b_json, confidence, resolution, hearing_id, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key,
		string(rawA),
		string(rawB),
		confidence,
		hearing.ResolutionPending,
		nullableString(hearingID),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert candidate: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("candidate insert id: %w", err)
	}
	return &hearing.PendingMergeCandidate{
		ID:         id,
		RecordA:    a,
		RecordB:    b,
		Confidence: confidence,
		Resolution: hearing.ResolutionPending,
		HearingID:  hearingID,
		CreatedAt:  now,
	}, nil
}

// GetCandidate fetches a candidate by id, nil when absent.
func (s *Store) GetCandidate(ctx context.Context, id int64) (*hearing.PendingMergeCandidate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+candidateColumns+` FROM pending_merges WHERE id = ?`, id)
	candidate, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get candidate: %w", err)
	}
	return candidate, nil
}

// PendingCandidates lists unresolved candidates, oldest first.
func (s *Store) PendingCandidates(ctx context.Context) ([]*hearing.PendingMergeCandidate, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+candidateColumns+` FROM pending_merges WHERE resolution = ? ORDER BY id`,
		hearing.ResolutionPending,
	)
	if err != nil {
		return nil, fmt.Errorf("pending candidates: %w", err)
	}
	defer rows.Close()

	var candidates []*hearing.PendingMergeCandidate
	for rows.Next() {
		candidate, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate)
	}
	return candidates, rows.Err()
}

// DeleteResolvedCandidate removes a candidate after its resolution has
// been converted into hearing updates and audit entries.
func (s *Store) DeleteResolvedCandidate(ctx context.Context, id int64) error {
	if _, err := s.execWithRetry(ctx, `DELETE FROM pending_merges WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete candidate: %w", err)
	}
	return nil
}

func (s *Store) candidateByPairKey(ctx context.Context, key string) (*hearing.PendingMergeCandidate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+candidateColumns+` FROM pending_merges WHERE pair_key = ?`, key)
	candidate, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("candidate by pair: %w", err)
	}
	return candidate, nil
}

func scanCandidate(scanner interface{ Scan(dest ...any) error }) (*hearing.PendingMergeCandidate, error) {
	var (
		id          int64
		pairKey     string
		rawA        string
		rawB        string
		confidence  float64
		resolution  string
		hearingID   sql.NullString
		createdRaw  string
		resolvedRaw sql.NullString
	)
	if err := scanner.Scan(&id, &pairKey, &rawA, &rawB, &confidence, &resolution, &hearingID, &createdRaw, &resolvedRaw); err != nil {
		return nil, err
	}

	candidate := &hearing.PendingMergeCandidate{
		ID:         id,
		Confidence: confidence,
		Resolution: hearing.PendingResolution(resolution),
		HearingID:  hearingID.String,
	}
	if err := json.Unmarshal([]byte(rawA), &candidate.RecordA); err != nil {
		return nil, fmt.Errorf("unmarshal record a: %w", err)
	}
	if err := json.Unmarshal([]byte(rawB), &candidate.RecordB); err != nil {
		return nil, fmt.Errorf("unmarshal record b: %w", err)
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		candidate.CreatedAt = created
	}
	if resolvedRaw.Valid {
		if resolved, err := parseTimeString(resolvedRaw.String); err == nil {
			candidate.ResolvedAt = &resolved
		}
	}
	return candidate, nil
}
