package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AdminUser is a notification recipient resolved from the admin_users table.
type AdminUser struct {
	ID       string     `json:"id" db:"id"`
	Email    string     `json:"email" db:"email"`
	Name     string     `json:"name" db:"name"`
	Role     string     `json:"role" db:"role"`
	LockedAt *time.Time `json:"locked_at,omitempty" db:"locked_at"`
}

// Notification is one in-app alert row delivered to one admin.
type Notification struct {
	ID        string     `json:"id" db:"id"`
	UserID    string     `json:"user_id" db:"user_id"`
	Type      string     `json:"type" db:"type"`
	Title     string     `json:"title" db:"title"`
	Message   string     `json:"message" db:"message"`
	Href      string     `json:"href,omitempty" db:"href"`
	Severity  string     `json:"severity" db:"severity"`
	Payload   []byte     `json:"payload,omitempty" db:"payload"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty" db:"read_at"`
}

const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
)

// AdminRecipients returns all unlocked admin-role users.
func (r *Repository) AdminRecipients(ctx context.Context) ([]AdminUser, error) {
	query := `
		SELECT id, email, name, role, locked_at
		FROM admin_users
		WHERE role = $1 AND locked_at IS NULL
		ORDER BY email
	`

	rows, err := r.db.QueryContext(ctx, query, RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("failed to query admin recipients: %w", err)
	}
	defer rows.Close()

	var users []AdminUser
	for rows.Next() {
		var u AdminUser
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.LockedAt); err != nil {
			return nil, fmt.Errorf("failed to scan admin user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return users, nil
}

// AdminByKeyID looks up an admin or editor by API key id for the auth
// middleware. The caller verifies the token against TokenHash.
func (r *Repository) AdminByKeyID(ctx context.Context, keyID string) (*AdminUser, string, error) {
	query := `
		SELECT id, email, name, role, locked_at, token_hash
		FROM admin_users
		WHERE api_key_id = $1
	`

	var u AdminUser
	var tokenHash string
	err := r.db.QueryRowContext(ctx, query, keyID).Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.LockedAt, &tokenHash)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to look up admin by key id: %w", err)
	}
	return &u, tokenHash, nil
}

// LastAlertOfType returns the creation time of the most recent notification
// of the given alert type, or nil if none exists. The notification sink uses
// this for dedupe-window checks.
func (r *Repository) LastAlertOfType(ctx context.Context, alertType string) (*time.Time, error) {
	query := `SELECT MAX(created_at) FROM notifications WHERE type = $1`

	var last sql.NullTime
	if err := r.db.QueryRowContext(ctx, query, alertType).Scan(&last); err != nil {
		return nil, fmt.Errorf("failed to query last alert of type %s: %w", alertType, err)
	}
	if !last.Valid {
		return nil, nil
	}
	return &last.Time, nil
}

func (r *Repository) InsertNotification(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO notifications (id, user_id, type, title, message, href, severity, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.Href, n.Severity, n.Payload, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// RecentNotifications returns the latest notifications for one admin.
func (r *Repository) RecentNotifications(ctx context.Context, userID string, limit int) ([]Notification, error) {
	query := `
		SELECT id, user_id, type, title, message, COALESCE(href, ''), severity, payload, created_at, read_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Href, &n.Severity, &n.Payload, &n.CreatedAt, &n.ReadAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return out, nil
}
