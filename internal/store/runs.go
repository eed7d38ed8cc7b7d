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

const runColumns = "id, hearing_id, stage, timeline_json, error_stage, error_message, cancelled, created_at, updated_at"

// CreateRun persists a new pipeline run for a hearing.
func (s *Store) CreateRun(ctx context.Context, hearingID string) (*hearing.PipelineRun, error) {
	now := time.Now().UTC()
	run := &hearing.PipelineRun{
		ID:        uuid.NewString(),
		HearingID: hearingID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO pipeline_runs (id, hearing_id, stage, timeline_json, cancelled, created_at, updated_at)
         VALUES (?, ?, ?, '[]', 0, ?, ?)`,
		run.ID,
		run.HearingID,
		nullableString(string(run.Stage)),
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert pipeline run: %w", err)
	}
	return run, nil
}

// UpdateRun persists changes to an existing pipeline run.
func (s *Store) UpdateRun(ctx context.Context, run *hearing.PipelineRun) error {
	if run == nil {
		return errors.New("run is nil")
	}
	run.UpdatedAt = time.Now().UTC()

	timeline, err := json.Marshal(run.Timeline)
	if err != nil {
		return fmt.Errorf("marshal timeline: %w", err)
	}

	_, err = s.execWithRetry(
		ctx,
		`UPDATE pipeline_runs
         SET stage = ?, timeline_json = ?, error_stage = ?, error_message = ?, cancelled = ?, updated_at = ?
         WHERE id = ?`,
		nullableString(string(run.Stage)),
		string(timeline),
		nullableString(run.ErrorStage),
		nullableString(run.ErrorMessage),
		boolToInt(run.Cancelled),
		run.UpdatedAt.Format(time.RFC3339Nano),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("update pipeline run: %w", err)
	}
	return nil
}

// GetRun fetches a pipeline run by id, nil when absent.
func (s *Store) GetRun(ctx context.Context, id string) (*hearing.PipelineRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM pipeline_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// LatestRunForHearing returns the most recent run for a hearing, nil
// when the hearing was never processed.
func (s *Store) LatestRunForHearing(ctx context.Context, hearingID string) (*hearing.PipelineRun, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+runColumns+` FROM pipeline_runs WHERE hearing_id = ? ORDER BY created_at DESC LIMIT 1`,
		hearingID,
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	return run, nil
}

// RunsForHearing returns every run for a hearing, oldest first.
func (s *Store) RunsForHearing(ctx context.Context, hearingID string) ([]*hearing.PipelineRun, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+runColumns+` FROM pipeline_runs WHERE hearing_id = ? ORDER BY created_at`,
		hearingID,
	)
	if err != nil {
		return nil, fmt.Errorf("runs for hearing: %w", err)
	}
	defer rows.Close()

	var runs []*hearing.PipelineRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*hearing.PipelineRun, error) {
	var (
		id           string
		hearingID    string
		stage        sql.NullString
		timelineJSON string
		errorStage   sql.NullString
		errorMessage sql.NullString
		cancelled    int
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(&id, &hearingID, &stage, &timelineJSON, &errorStage, &errorMessage, &cancelled, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	run := &hearing.PipelineRun{
		ID:           id,
		HearingID:    hearingID,
		Stage:        hearing.Stage(stage.String),
		ErrorStage:   errorStage.String,
		ErrorMessage: errorMessage.String,
		Cancelled:    cancelled != 0,
	}
	if timelineJSON != "" {
		if err := json.Unmarshal([]byte(timelineJSON), &run.Timeline); err != nil {
			return nil, fmt.Errorf("unmarshal timeline for %s: %w", id, err)
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		run.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		run.UpdatedAt = updated
	}
	return run, nil
}
