package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryCache_SetGet(t *testing.T) {
	cache := NewMemoryCache(zap.NewNop().Sugar())
	ctx := context.Background()

	type payload struct {
		Published int    `json:"published"`
		Trigger   string `json:"trigger"`
	}

	require.NoError(t, cache.Set(ctx, KeySchedulerLastRun, payload{Published: 3, Trigger: "cron"}, time.Minute))

	var got payload
	require.NoError(t, cache.Get(ctx, KeySchedulerLastRun, &got))
	assert.Equal(t, 3, got.Published)
	assert.Equal(t, "cron", got.Trigger)
}

func TestMemoryCache_Miss(t *testing.T) {
	cache := NewMemoryCache(zap.NewNop().Sugar())

	var got map[string]any
	err := cache.Get(context.Background(), "ink:absent", &got)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_Expiry(t *testing.T) {
	cache := NewMemoryCache(zap.NewNop().Sugar())
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "ink:ttl", "v", 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	var got string
	assert.ErrorIs(t, cache.Get(ctx, "ink:ttl", &got), ErrCacheMiss)
}

func TestMemoryCache_ZeroTTLNeverExpires(t *testing.T) {
	cache := NewMemoryCache(zap.NewNop().Sugar())
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "ink:forever", "v", 0))

	var got string
	require.NoError(t, cache.Get(ctx, "ink:forever", &got))
	assert.Equal(t, "v", got)
}

func TestMemoryCache_PublishIsDropped(t *testing.T) {
	cache := NewMemoryCache(zap.NewNop().Sugar())
	assert.NoError(t, cache.Publish(context.Background(), ChannelPublished, map[string]string{"id": "p-1"}))
}
