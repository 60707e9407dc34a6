package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrCacheMiss is returned when a key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// Cache keys and pub/sub channels.
const (
	KeySchedulerLastRun = "ink:scheduler:last_run"
	KeyMonitorLastRun   = "ink:monitor:last_run"
	ChannelPublished    = "ink:content:published"
	ChannelAlerts       = "ink:admin:alerts"
)

// Cache is a Redis-backed cache that degrades to an in-process map when
// Redis is unreachable, so a missing Redis never blocks startup in dev.
type Cache struct {
	client *redis.Client
	mem    *memStore
	logger *zap.SugaredLogger
}

func NewCache(addr string, logger *zap.SugaredLogger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		if logger != nil {
			logger.Warnw("Redis unavailable; using in-memory cache", "error", err)
		}
		return &Cache{mem: newMemStore(), logger: logger}, nil
	}

	return &Cache{client: client, logger: logger}, nil
}

// NewMemoryCache returns a cache with no Redis backing. Used when no Redis
// address is configured and in tests.
func NewMemoryCache(logger *zap.SugaredLogger) *Cache {
	return &Cache{mem: newMemStore(), logger: logger}
}

func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	var data []byte

	if c.client != nil {
		val, err := c.client.Get(ctx, key).Result()
		if err != nil {
			if err == redis.Nil {
				return ErrCacheMiss
			}
			return fmt.Errorf("cache get error: %w", err)
		}
		data = []byte(val)
	} else {
		var ok bool
		data, ok = c.mem.get(key)
		if !ok {
			return ErrCacheMiss
		}
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache unmarshal error: %w", err)
	}
	return nil
}

func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}

	if c.client != nil {
		if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
			return fmt.Errorf("cache set error: %w", err)
		}
		return nil
	}

	c.mem.set(key, data, ttl)
	return nil
}

// Publish sends a message on a pub/sub channel. In-memory mode drops it;
// live fan-out is a best-effort enrichment, not a durability path.
func (c *Cache) Publish(ctx context.Context, channel string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("pubsub marshal error: %w", err)
	}

	if c.client != nil {
		if err := c.client.Publish(ctx, channel, data).Err(); err != nil {
			return fmt.Errorf("pubsub publish error: %w", err)
		}
		return nil
	}

	if c.logger != nil {
		c.logger.Debugw("Redis unavailable, dropping pubsub message", "channel", channel)
	}
	return nil
}

func (c *Cache) Ping(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// memStore is the fallback map with per-key expiry.
type memStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry
}

type memEntry struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]memEntry)}
}

func (m *memStore) get(key string) ([]byte, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false
	}
	return e.data, true
}

func (m *memStore) set(key string, data []byte, ttl time.Duration) {
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = memEntry{data: data, expiresAt: expires}
	m.mu.Unlock()
}
