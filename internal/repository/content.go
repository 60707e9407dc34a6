package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/inkpress/inkpress-backend/internal/content"
)

var (
	// ErrNotFound is returned when an item does not exist.
	ErrNotFound = errors.New("item not found")
	// ErrNotDraft is returned when a schedule operation targets an item
	// that is no longer in draft.
	ErrNotDraft = errors.New("item is not a draft")
)

func tableFor(kind content.Kind) string {
	if kind == content.KindReview {
		return "reviews"
	}
	return "posts"
}

const itemColumns = `id, title, slug, body, status, scheduled_at, scheduled_by_id, published_at, reviewed_at, created_at, updated_at`

func scanItem(row interface{ Scan(...any) error }, kind content.Kind) (*content.Item, error) {
	var it content.Item
	it.Kind = kind
	err := row.Scan(
		&it.ID,
		&it.Title,
		&it.Slug,
		&it.Body,
		&it.Status,
		&it.ScheduledAt,
		&it.ScheduledByID,
		&it.PublishedAt,
		&it.ReviewedAt,
		&it.CreatedAt,
		&it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *Repository) GetItem(ctx context.Context, kind content.Kind, id string) (*content.Item, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, itemColumns, tableFor(kind))

	it, err := scanItem(r.db.QueryRowContext(ctx, query, id), kind)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s: %w", kind, err)
	}
	return it, nil
}

// DueItems returns all drafts of the given kind whose scheduled_at is at or
// before now. The boundary is inclusive: an item scheduled for exactly now
// is due.
func (r *Repository) DueItems(ctx context.Context, kind content.Kind, now time.Time) ([]content.Item, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE status = $1 AND scheduled_at IS NOT NULL AND scheduled_at <= $2
		ORDER BY scheduled_at
	`, itemColumns, tableFor(kind))

	rows, err := r.db.QueryContext(ctx, query, content.StatusDraft, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due %ss: %w", kind, err)
	}
	defer rows.Close()

	var items []content.Item
	for rows.Next() {
		it, err := scanItem(rows, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", kind, err)
		}
		items = append(items, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return items, nil
}

// PublishDueItem transitions one due draft to published. The WHERE clause
// re-checks the due precondition so that two concurrent processes cannot
// both publish the same item: exactly one UPDATE matches, the other sees
// zero affected rows and must treat the item as already handled. This
// conditional write, not the in-process run guard, is the correctness
// boundary under concurrent invocations.
//
// published_at is only set if still null, so a re-publish never overwrites
// the original publish time.
func (r *Repository) PublishDueItem(ctx context.Context, kind content.Kind, id string, now time.Time) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $1,
		    published_at = COALESCE(published_at, $2),
		    reviewed_at = $2,
		    scheduled_at = NULL,
		    scheduled_by_id = NULL,
		    updated_at = $2
		WHERE id = $3 AND status = $4 AND scheduled_at IS NOT NULL AND scheduled_at <= $2
	`, tableFor(kind))

	res, err := r.db.ExecContext(ctx, query, content.StatusPublished, now, id, content.StatusDraft)
	if err != nil {
		return false, fmt.Errorf("failed to publish %s %s: %w", kind, id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected == 1, nil
}

// SetSchedule sets or overwrites the publish schedule on a draft. Returns
// ErrNotDraft when the item exists but is no longer schedulable.
func (r *Repository) SetSchedule(ctx context.Context, kind content.Kind, id string, at time.Time, actorID string) (*content.Item, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET scheduled_at = $1, scheduled_by_id = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4
		RETURNING %s
	`, tableFor(kind), itemColumns)

	it, err := scanItem(r.db.QueryRowContext(ctx, query, at, actorID, id, content.StatusDraft), kind)
	if err != nil {
		if err == sql.ErrNoRows {
			if _, getErr := r.GetItem(ctx, kind, id); getErr == nil {
				return nil, ErrNotDraft
			}
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to schedule %s %s: %w", kind, id, err)
	}
	return it, nil
}

// ClearSchedule nulls scheduled_at and scheduled_by_id together. The single
// UPDATE keeps the invariant that the two columns are set or cleared as one.
func (r *Repository) ClearSchedule(ctx context.Context, kind content.Kind, id string) (*content.Item, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET scheduled_at = NULL, scheduled_by_id = NULL, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING %s
	`, tableFor(kind), itemColumns)

	it, err := scanItem(r.db.QueryRowContext(ctx, query, id, content.StatusDraft), kind)
	if err != nil {
		if err == sql.ErrNoRows {
			if _, getErr := r.GetItem(ctx, kind, id); getErr == nil {
				return nil, ErrNotDraft
			}
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to clear schedule on %s %s: %w", kind, id, err)
	}
	return it, nil
}

// ListPublished returns the newest published items of the given kind.
func (r *Repository) ListPublished(ctx context.Context, kind content.Kind, limit int) ([]content.Item, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE status = $1
		ORDER BY published_at DESC
		LIMIT $2
	`, itemColumns, tableFor(kind))

	rows, err := r.db.QueryContext(ctx, query, content.StatusPublished, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list published %ss: %w", kind, err)
	}
	defer rows.Close()

	var items []content.Item
	for rows.Next() {
		it, err := scanItem(rows, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", kind, err)
		}
		items = append(items, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return items, nil
}

// CountOverdue counts drafts still scheduled for before the threshold. Used
// by the health monitor as the scheduler-backlog signal.
func (r *Repository) CountOverdue(ctx context.Context, kind content.Kind, threshold time.Time) (int, error) {
	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM %s
		WHERE status = $1 AND scheduled_at IS NOT NULL AND scheduled_at <= $2
	`, tableFor(kind))

	var n int
	if err := r.db.QueryRowContext(ctx, query, content.StatusDraft, threshold).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count overdue %ss: %w", kind, err)
	}
	return n, nil
}

// CreateRevision appends one revision for the entity, computing the next
// version as max(existing)+1 inside the INSERT so concurrent writers cannot
// both claim the same version (the unique index on (entity_id, version)
// rejects the loser).
func (r *Repository) CreateRevision(ctx context.Context, entityID, reason, actorID string, snapshot []byte) (*content.Revision, error) {
	query := `
		INSERT INTO revisions (id, entity_id, version, snapshot, reason, actor_id, created_at)
		SELECT $1, $2, COALESCE(MAX(version), 0) + 1, $3, $4, $5, $6
		FROM revisions WHERE entity_id = $2
		RETURNING id, entity_id, version, snapshot, reason, actor_id, created_at
	`

	var rev content.Revision
	err := r.db.QueryRowContext(ctx, query,
		uuid.NewString(),
		entityID,
		snapshot,
		reason,
		actorID,
		time.Now().UTC(),
	).Scan(
		&rev.ID,
		&rev.EntityID,
		&rev.Version,
		&rev.Snapshot,
		&rev.Reason,
		&rev.ActorID,
		&rev.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create revision for %s: %w", entityID, err)
	}
	return &rev, nil
}
