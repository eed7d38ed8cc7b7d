package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gavel/internal/hearing"
)

const auditColumns = "id, source, source_id, hearing_id, decision, confidence, detail, created_at"

// AppendAudit writes one append-only sync audit entry.
func (s *Store) AppendAudit(ctx context.Context, entry *hearing.SyncAuditEntry) error {
	now := time.Now().UTC()
	entry.CreatedAt = now
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO sync_audit (source, source_id, hearing_id, decision, confidence, detail, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Source,
		nullableString(entry.SourceID),
		nullableString(entry.HearingID),
		entry.Decision,
		entry.Confidence,
		nullableString(entry.Detail),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

// HasMergeAudit reports whether a merge decision was already recorded
// for the given source record and hearing. The dedup engine consults
// this to keep re-resolution idempotent.
func (s *Store) HasMergeAudit(ctx context.Context, source, sourceID, hearingID string, decision hearing.Decision) (bool, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM sync_audit WHERE source = ? AND source_id = ? AND hearing_id = ? AND decision = ?`,
		source, sourceID, hearingID, decision,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check merge audit: %w", err)
	}
	return count > 0, nil
}

// AuditForHearing returns the audit trail for one hearing, oldest
// first.
func (s *Store) AuditForHearing(ctx context.Context, hearingID string) ([]*hearing.SyncAuditEntry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+auditColumns+` FROM sync_audit WHERE hearing_id = ? ORDER BY id`,
		hearingID,
	)
	if err != nil {
		return nil, fmt.Errorf("audit for hearing: %w", err)
	}
	defer rows.Close()
	return collectAudit(rows)
}

// RecentAudit returns the most recent audit entries across all sources.
func (s *Store) RecentAudit(ctx context.Context, limit int) ([]*hearing.SyncAuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+auditColumns+` FROM sync_audit ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent audit: %w", err)
	}
	defer rows.Close()
	return collectAudit(rows)
}

func collectAudit(rows *sql.Rows) ([]*hearing.SyncAuditEntry, error) {
	var entries []*hearing.SyncAuditEntry
	for rows.Next() {
		var (
			entry      hearing.SyncAuditEntry
			sourceID   sql.NullString
			hearingID  sql.NullString
			detail     sql.NullString
			createdRaw string
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.Source,
			&sourceID,
			&hearingID,
			&entry.Decision,
			&entry.Confidence,
			&detail,
			&createdRaw,
		); err != nil {
			return nil, err
		}
		entry.SourceID = sourceID.String
		entry.HearingID = hearingID.String
		entry.Detail = detail.String
		if created, err := parseTimeString(createdRaw); err == nil {
			entry.CreatedAt = created
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}
