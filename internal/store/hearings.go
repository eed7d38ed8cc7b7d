package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gavel/internal/hearing"
)

const hearingColumns = "id, committee, title, date, type, provenance_json, media_url, document_url, sync_confidence, status, stage_progress, failed_stage, error_message, created_at, updated_at"

// dateFormat stores hearing dates at day precision.
const dateFormat = "2006-01-02"

// InsertHearing persists a new canonical hearing. A missing ID is
// assigned.
func (s *Store) InsertHearing(ctx context.Context, h *hearing.Hearing) error {
	if h == nil {
		return errors.New("hearing is nil")
	}
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	h.CreatedAt = now
	h.UpdatedAt = now
	if h.Status == "" {
		h.Status = hearing.StatusDiscovered
	}

	provenance, err := json.Marshal(h.Provenance)
	if err != nil {
		return fmt.Errorf("marshal provenance: %w", err)
	}

	_, err = s.execWithRetry(
		ctx,
		`INSERT INTO hearings (`+hearingColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID,
		h.Committee,
		h.Title,
		h.Date.UTC().Format(dateFormat),
		nullableString(h.Type),
		string(provenance),
		nullableString(h.MediaURL),
		nullableString(h.DocumentURL),
		h.SyncConfidence,
		h.Status,
		h.StageProgress,
		nullableString(h.FailedStage),
		nullableString(h.ErrorMessage),
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert hearing: %w", err)
	}
	return nil
}

// UpdateHearing persists changes to an existing hearing.
func (s *Store) UpdateHearing(ctx context.Context, h *hearing.Hearing) error {
	if h == nil {
		return errors.New("hearing is nil")
	}
	h.UpdatedAt = time.Now().UTC()

	provenance, err := json.Marshal(h.Provenance)
	if err != nil {
		return fmt.Errorf("marshal provenance: %w", err)
	}

	_, err = s.execWithRetry(
		ctx,
		`UPDATE hearings
         SET committee = ?, title = ?, date = ?, type = ?, provenance_json = ?,
             media_url = ?, document_url = ?, sync_confidence = ?, status = ?,
             stage_progress = ?, failed_stage = ?, error_message = ?, updated_at = ?
         WHERE id = ?`,
		h.Committee,
		h.Title,
		h.Date.UTC().Format(dateFormat),
		nullableString(h.Type),
		string(provenance),
		nullableString(h.MediaURL),
		nullableString(h.DocumentURL),
		h.SyncConfidence,
		h.Status,
		h.StageProgress,
		nullableString(h.FailedStage),
		nullableString(h.ErrorMessage),
		h.UpdatedAt.Format(time.RFC3339Nano),
		h.ID,
	)
	if err != nil {
		return fmt.Errorf("update hearing: %w", err)
	}
	return nil
}

// GetHearing fetches a hearing by identifier, returning nil when it
// does not exist.
func (s *Store) GetHearing(ctx context.Context, id string) (*hearing.Hearing, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+hearingColumns+` FROM hearings WHERE id = ?`, id)
	h, err := scanHearing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get hearing: %w", err)
	}
	return h, nil
}

// HearingFilter narrows ListHearings results.
type HearingFilter struct {
	Committee string
	Status    hearing.Status
}

// ListHearings returns hearings matching the filter ordered by date
// descending then creation time.
func (s *Store) ListHearings(ctx context.Context, filter HearingFilter) ([]*hearing.Hearing, error) {
	query := `SELECT ` + hearingColumns + ` FROM hearings`
	var (
		clauses []string
		args    []any
	)
	if filter.Committee != "" {
		clauses = append(clauses, "committee = ?")
		args = append(args, filter.Committee)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}
	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY date DESC, created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list hearings: %w", err)
	}
	defer rows.Close()

	var hearings []*hearing.Hearing
	for rows.Next() {
		h, err := scanHearing(rows)
		if err != nil {
			return nil, err
		}
		hearings = append(hearings, h)
	}
	return hearings, rows.Err()
}

// HearingsByCommittee returns all hearings for one committee; the dedup
// engine resolves incoming raw records against this pool.
func (s *Store) HearingsByCommittee(ctx context.Context, committee string) ([]*hearing.Hearing, error) {
	return s.ListHearings(ctx, HearingFilter{Committee: committee})
}

// StatusCounts returns a count of hearings grouped by status.
func (s *Store) StatusCounts(ctx context.Context) (map[hearing.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM hearings GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[hearing.Status]int)
	for rows.Next() {
		var status hearing.Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func scanHearing(scanner interface{ Scan(dest ...any) error }) (*hearing.Hearing, error) {
	var (
		id             string
		committee      string
		title          string
		dateRaw        string
		hearingType    sql.NullString
		provenanceJSON sql.NullString
		mediaURL       sql.NullString
		documentURL    sql.NullString
		syncConfidence float64
		statusStr      string
		stageProgress  float64
		failedStage    sql.NullString
		errorMessage   sql.NullString
		createdRaw     string
		updatedRaw     string
	)

	if err := scanner.Scan(
		&id,
		&committee,
		&title,
		&dateRaw,
		&hearingType,
		&provenanceJSON,
		&mediaURL,
		&documentURL,
		&syncConfidence,
		&statusStr,
		&stageProgress,
		&failedStage,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	h := &hearing.Hearing{
		ID:             id,
		Committee:      committee,
		Title:          title,
		Type:           hearingType.String,
		MediaURL:       mediaURL.String,
		DocumentURL:    documentURL.String,
		SyncConfidence: syncConfidence,
		Status:         hearing.Status(statusStr),
		StageProgress:  stageProgress,
		FailedStage:    failedStage.String,
		ErrorMessage:   errorMessage.String,
	}

	if provenanceJSON.Valid && provenanceJSON.String != "" {
		if err := json.Unmarshal([]byte(provenanceJSON.String), &h.Provenance); err != nil {
			return nil, fmt.Errorf("unmarshal provenance for %s: %w", id, err)
		}
	}
	if date, err := time.Parse(dateFormat, dateRaw); err == nil {
		h.Date = date
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		h.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		h.UpdatedAt = updated
	}
	return h, nil
}
