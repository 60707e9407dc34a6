package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditEvent is one append-only audit log row.
type AuditEvent struct {
	ID        string    `json:"id" db:"id"`
	ActorID   string    `json:"actor_id" db:"actor_id"`
	Action    string    `json:"action" db:"action"`
	EntityID  string    `json:"entity_id,omitempty" db:"entity_id"`
	Detail    []byte    `json:"detail,omitempty" db:"detail"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func (r *Repository) InsertAuditEvent(ctx context.Context, e *AuditEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_events (id, actor_id, action, entity_id, detail, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query, e.ID, e.ActorID, e.Action, e.EntityID, e.Detail, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}
