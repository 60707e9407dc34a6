package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Login attempt outcomes recorded by the auth middleware.
const (
	LoginOutcomeSuccess     = "success"
	LoginOutcomeFailed      = "failed"
	LoginOutcomeRateLimited = "rate_limited"
)

// Email delivery outcomes recorded by the notification sink.
const (
	DeliverySent   = "sent"
	DeliveryFailed = "failed"
)

// Audit actions the health monitor treats as risky.
var riskyAuditActions = []string{"account_deleted", "member_banned", "member_timeout"}

func (r *Repository) RecordLoginAttempt(ctx context.Context, email, outcome, remoteAddr string) error {
	query := `
		INSERT INTO login_attempts (id, email, outcome, remote_addr, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query, uuid.NewString(), email, outcome, remoteAddr, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record login attempt: %w", err)
	}
	return nil
}

func (r *Repository) RecordEmailDelivery(ctx context.Context, recipient, subject, outcome, deliveryErr string) error {
	query := `
		INSERT INTO email_deliveries (id, recipient, subject, outcome, error, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
	`
	_, err := r.db.ExecContext(ctx, query, uuid.NewString(), recipient, subject, outcome, deliveryErr, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record email delivery: %w", err)
	}
	return nil
}

func (r *Repository) CountFailedEmails(ctx context.Context, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM email_deliveries WHERE outcome = $1 AND created_at >= $2`

	var n int
	if err := r.db.QueryRowContext(ctx, query, DeliveryFailed, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count failed emails: %w", err)
	}
	return n, nil
}

// CountLoginFailures returns failed and rate-limited admin login attempts
// since the given instant.
func (r *Repository) CountLoginFailures(ctx context.Context, since time.Time) (failed, rateLimited int, err error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE outcome = $1),
			COUNT(*) FILTER (WHERE outcome = $2)
		FROM login_attempts WHERE created_at >= $3
	`
	if err := r.db.QueryRowContext(ctx, query, LoginOutcomeFailed, LoginOutcomeRateLimited, since).Scan(&failed, &rateLimited); err != nil {
		return 0, 0, fmt.Errorf("failed to count login failures: %w", err)
	}
	return failed, rateLimited, nil
}

func (r *Repository) CountLockedAdmins(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM admin_users WHERE locked_at IS NOT NULL`

	var n int
	if err := r.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count locked admins: %w", err)
	}
	return n, nil
}

func (r *Repository) CountRiskyAuditActions(ctx context.Context, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM audit_events WHERE action = ANY($1) AND created_at >= $2`

	var n int
	if err := r.db.QueryRowContext(ctx, query, riskyAuditActions, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count risky audit actions: %w", err)
	}
	return n, nil
}
