package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/inkpress/inkpress-backend/internal/content"
	"go.uber.org/zap"
)

// SystemActorID is the actor recorded on revisions written by engine runs.
const SystemActorID = "system:scheduler"

// ContentStore is the slice of the repository the engine depends on.
type ContentStore interface {
	DueItems(ctx context.Context, kind content.Kind, now time.Time) ([]content.Item, error)
	PublishDueItem(ctx context.Context, kind content.Kind, id string, now time.Time) (bool, error)
}

// RevisionWriter appends one revision per scheduler-driven transition.
type RevisionWriter interface {
	CreateRevision(ctx context.Context, entityID, reason, actorID string, snapshot []byte) (*content.Revision, error)
}

// PublishedItem is handed to the publish side-effect exactly once per
// transition.
type PublishedItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Slug  string `json:"slug"`
}

// PublishNotifier runs the item's published side-effect (newsletter and the
// like). Failures are logged and never roll back the publish.
type PublishNotifier interface {
	NotifyOnPublish(ctx context.Context, item PublishedItem) error
}

// Metrics is the subset of metric recording the engine uses.
type Metrics interface {
	RecordSchedulerRun(ctx context.Context, trigger string, published int, failed bool)
	RecordSchedulerSkip(ctx context.Context, reason string)
}

// Engine scans for due drafts and transitions them to published. One
// instance per process; all trigger surfaces share it.
type Engine struct {
	store     ContentStore
	revisions RevisionWriter
	notifier  PublishNotifier
	guard     *RunGuard
	logger    *zap.SugaredLogger
	metrics   Metrics
	now       func() time.Time

	retryAttempts int
	retryBackoff  time.Duration
}

type EngineConfig struct {
	Cooldown      time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
}

func NewEngine(store ContentStore, revisions RevisionWriter, notifier PublishNotifier, logger *zap.SugaredLogger, metrics Metrics, cfg EngineConfig) *Engine {
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}
	return &Engine{
		store:         store,
		revisions:     revisions,
		notifier:      notifier,
		guard:         NewRunGuard(cfg.Cooldown),
		logger:        logger,
		metrics:       metrics,
		now:           time.Now,
		retryAttempts: cfg.RetryAttempts,
		retryBackoff:  cfg.RetryBackoff,
	}
}

// Run scans both item kinds for due drafts and publishes each one. Scan
// errors propagate; a failure publishing an individual item is collected
// into the summary and its siblings continue.
func (e *Engine) Run(ctx context.Context, trigger string) (*content.RunSummary, error) {
	now := e.now().UTC()
	summary := &content.RunSummary{RanAt: now}

	for _, kind := range []content.Kind{content.KindPost, content.KindReview} {
		items, err := e.store.DueItems(ctx, kind, now)
		if err != nil {
			if e.metrics != nil {
				e.metrics.RecordSchedulerRun(ctx, trigger, summary.Total(), true)
			}
			return nil, fmt.Errorf("due-item scan failed for %ss: %w", kind, err)
		}

		for i := range items {
			published, err := e.publishOne(ctx, &items[i], now)
			if err != nil {
				e.logger.Errorw("Failed to publish due item",
					"kind", kind,
					"id", items[i].ID,
					"error", err,
				)
				summary.Errors = append(summary.Errors, content.ItemError{
					Kind: kind,
					ID:   items[i].ID,
					Err:  err.Error(),
				})
				continue
			}
			if !published {
				// Another process won the conditional update. Nothing to do.
				continue
			}

			switch kind {
			case content.KindReview:
				summary.PublishedReviews++
			default:
				summary.PublishedPosts++
			}
		}
	}

	if e.metrics != nil {
		e.metrics.RecordSchedulerRun(ctx, trigger, summary.Total(), false)
	}

	if summary.Total() > 0 || len(summary.Errors) > 0 {
		e.logger.Infow("Scheduled publishing run complete",
			"trigger", trigger,
			"published_posts", summary.PublishedPosts,
			"published_reviews", summary.PublishedReviews,
			"errors", len(summary.Errors),
		)
	}

	return summary, nil
}

// publishOne performs the conditional transition for a single due item and
// its side effects. Returns false when the conditional update matched no
// row, meaning the item was already handled elsewhere.
func (e *Engine) publishOne(ctx context.Context, item *content.Item, now time.Time) (bool, error) {
	won, err := e.store.PublishDueItem(ctx, item.Kind, item.ID, now)
	if err != nil {
		return false, err
	}
	if !won {
		return false, nil
	}

	// Reflect the transition in the snapshot we record.
	item.Status = content.StatusPublished
	if item.PublishedAt == nil {
		item.PublishedAt = &now
	}
	item.ReviewedAt = &now
	item.ScheduledAt = nil
	item.ScheduledByID = nil

	snapshot, err := json.Marshal(item)
	if err != nil {
		return true, fmt.Errorf("snapshot marshal failed: %w", err)
	}
	if _, err := e.revisions.CreateRevision(ctx, item.ID, content.ScheduledPublishReason(item.Kind), SystemActorID, snapshot); err != nil {
		return true, fmt.Errorf("revision write failed: %w", err)
	}

	// Side-effect failures must not undo the publish.
	if e.notifier != nil {
		if err := e.notifier.NotifyOnPublish(ctx, PublishedItem{ID: item.ID, Title: item.Title, Slug: item.Slug}); err != nil {
			e.logger.Warnw("Publish side-effect failed",
				"kind", item.Kind,
				"id", item.ID,
				"error", err,
			)
		}
	}

	return true, nil
}

// PassiveOutcome is the result of a throttled trigger invocation.
type PassiveOutcome struct {
	Skipped bool                `json:"skipped"`
	Reason  string              `json:"reason,omitempty"`
	Summary *content.RunSummary `json:"summary,omitempty"`
}

// MaybeRun is the passive trigger embedded in page-render and list-view
// paths. It is a no-op without touching the store while a run is in flight
// or the cooldown has not elapsed.
func (e *Engine) MaybeRun(ctx context.Context) (*PassiveOutcome, error) {
	ok, reason := e.guard.TryAcquire(e.now())
	if !ok {
		if e.metrics != nil {
			e.metrics.RecordSchedulerSkip(ctx, reason)
		}
		return &PassiveOutcome{Skipped: true, Reason: reason}, nil
	}
	defer func() {
		e.guard.Release(e.now())
	}()

	summary, err := e.Run(ctx, "passive")
	if err != nil {
		return nil, err
	}
	return &PassiveOutcome{Summary: summary}, nil
}

// RunWithRetry wraps Run for the cron path, which has no human available to
// retry by hand. Backoff grows linearly with the attempt number.
func (e *Engine) RunWithRetry(ctx context.Context, trigger string) (*content.RunSummary, error) {
	var lastErr error

	for attempt := 1; attempt <= e.retryAttempts; attempt++ {
		summary, err := e.Run(ctx, trigger)
		if err == nil {
			return summary, nil
		}
		lastErr = err

		if attempt == e.retryAttempts {
			break
		}

		delay := time.Duration(attempt) * e.retryBackoff
		e.logger.Warnw("Scheduler run failed, retrying",
			"trigger", trigger,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("scheduler run failed after %d attempts: %w", e.retryAttempts, lastErr)
}

// Guard exposes the run guard for wiring and tests.
func (e *Engine) Guard() *RunGuard {
	return e.guard
}

// SetClock overrides the engine's time source in tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}
