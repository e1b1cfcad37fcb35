package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

const defaultListLimit = 50

// Store persists the audit trail in Postgres.
type Store struct {
	db *sql.DB
}

// NewStore creates a new audit store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record appends one event to the trail. The caller decides whether a
// recording failure aborts the operation; for most flows it should not.
func (s *Store) Record(ctx context.Context, event *Event) error {
	var detail interface{}
	if len(event.Detail) > 0 {
		data, err := json.Marshal(event.Detail)
		if err != nil {
			return fmt.Errorf("failed to marshal event detail: %w", err)
		}
		detail = string(data)
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO audit_events (tenant_id, event_type, actor_id, subject_id, detail)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, event.TenantID, event.Type, event.ActorID, event.SubjectID, detail).
		Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

// List returns the tenant's events newest first, narrowed by the filter.
func (s *Store) List(ctx context.Context, tenantID int64, filter Filter) ([]Event, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = defaultListLimit
	}

	query := `
		SELECT id, tenant_id, event_type, actor_id, subject_id, detail, created_at
		FROM audit_events
		WHERE tenant_id = $1
	`
	args := []interface{}{tenantID}

	if filter.Type != "" {
		args = append(args, filter.Type)
		query += fmt.Sprintf(" AND event_type = $%d", len(args))
	}
	if filter.SubjectID != 0 {
		args = append(args, filter.SubjectID)
		query += fmt.Sprintf(" AND subject_id = $%d", len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		var actorID, subjectID sql.NullInt64
		var detail sql.NullString

		err := rows.Scan(&event.ID, &event.TenantID, &event.Type, &actorID, &subjectID, &detail, &event.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}

		if actorID.Valid {
			id := actorID.Int64
			event.ActorID = &id
		}
		if subjectID.Valid {
			id := subjectID.Int64
			event.SubjectID = &id
		}
		if detail.Valid && detail.String != "" {
			if err := json.Unmarshal([]byte(detail.String), &event.Detail); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event detail: %w", err)
			}
		}

		events = append(events, event)
	}

	return events, rows.Err()
}

// Prune removes events older than the retention window, across all
// tenants, and returns how many rows were deleted. Invoked from the
// janitor on its sweep schedule.
func (s *Store) Prune(ctx context.Context, olderThanDays int) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM audit_events
		WHERE created_at < NOW() - ($1 || ' days')::INTERVAL
	`, olderThanDays)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit events: %w", err)
	}
	return result.RowsAffected()
}
