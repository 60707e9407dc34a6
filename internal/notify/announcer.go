package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/inkpress/inkpress-backend/internal/scheduler"
	"github.com/inkpress/inkpress-backend/internal/store"
	"go.uber.org/zap"
)

// PublishAnnouncer is the "published" side-effect fired once per scheduler
// transition. It announces the item on the cache pub/sub channel so reader
// surfaces (feeds, search reindexers, newsletter workers) can react.
type PublishAnnouncer struct {
	cache  *store.Cache
	logger *zap.SugaredLogger
}

func NewPublishAnnouncer(cache *store.Cache, logger *zap.SugaredLogger) *PublishAnnouncer {
	return &PublishAnnouncer{cache: cache, logger: logger}
}

func (a *PublishAnnouncer) NotifyOnPublish(ctx context.Context, item scheduler.PublishedItem) error {
	msg := map[string]any{
		"id":           item.ID,
		"title":        item.Title,
		"slug":         item.Slug,
		"published_at": time.Now().UTC(),
	}
	if err := a.cache.Publish(ctx, store.ChannelPublished, msg); err != nil {
		return fmt.Errorf("publish announcement failed: %w", err)
	}

	a.logger.Infow("Announced published item", "id", item.ID, "slug", item.Slug)
	return nil
}
