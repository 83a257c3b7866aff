package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// EventType identifies what happened.
type EventType string

const (
	EventWorkspaceCreated EventType = "workspace.created"
	EventProjectCreated   EventType = "project.created"
	EventMemberAdded      EventType = "member.added"
	EventMemberRemoved    EventType = "member.removed"
	EventRoleChanged      EventType = "member.role_changed"
	EventInviteAccepted   EventType = "invitation.accepted"
	EventAccessDenied     EventType = "access.denied"
)

// Event is one audit record. Scope is "workspace" or "project", ResourceID
// the id within that scope. Details carries event-specific fields.
type Event struct {
	ID         int64             `json:"id"`
	Type       EventType         `json:"type"`
	ActorID    int64             `json:"actor_id"`
	Scope      string            `json:"scope"`
	ResourceID int64             `json:"resource_id"`
	Details    map[string]string `json:"details,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Recorder persists audit events.
type Recorder interface {
	Record(ctx context.Context, event *Event) error
	ListResourceEvents(ctx context.Context, scope string, resourceID int64, limit int) ([]*Event, error)
}

// PostgresRecorder implements Recorder on PostgreSQL.
type PostgresRecorder struct {
	db *sql.DB
}

// NewPostgresRecorder creates a new PostgresRecorder.
func NewPostgresRecorder(db *sql.DB) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

// Record inserts one event. Details are stored as JSONB.
func (r *PostgresRecorder) Record(ctx context.Context, event *Event) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal details: %w", err)
	}

	err = r.db.QueryRowContext(ctx, `
		INSERT INTO audit_events (type, actor_id, scope, resource_id, details)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, event.Type, event.ActorID, event.Scope, event.ResourceID, details).
		Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}

	return nil
}

// ListResourceEvents returns the newest events for one resource.
func (r *PostgresRecorder) ListResourceEvents(ctx context.Context, scope string, resourceID int64, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, actor_id, scope, resource_id, details, created_at
		FROM audit_events
		WHERE scope = $1 AND resource_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, scope, resourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		var details []byte
		if err := rows.Scan(&e.ID, &e.Type, &e.ActorID, &e.Scope, &e.ResourceID, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal details: %w", err)
			}
		}
		events = append(events, e)
	}

	return events, rows.Err()
}
