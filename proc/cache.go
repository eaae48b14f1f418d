package proc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leeineian/tempo/sys"
)

// MetadataCache stores resolved tracks without their requester.
type MetadataCache interface {
	Get(ctx context.Context, key string) (*Track, bool)
	Set(ctx context.Context, key string, t *Track)
}

func cacheKey(class ProviderClass, locator string) string {
	return string(class) + "|" + locator
}

// --- In-process cache ---

type memoryEntry struct {
	track   Track
	expires time.Time
}

// MemoryCache is a bounded TTL map.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	max     int
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration, max int) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		max:     max,
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*Track, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	t := e.track
	return &t, true
}

func (c *MemoryCache) Set(_ context.Context, key string, t *Track) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if len(c.entries) >= c.max {
		for k, e := range c.entries {
			if now.After(e.expires) {
				delete(c.entries, k)
			}
		}
		// Still full: drop the entry closest to expiry.
		if len(c.entries) >= c.max {
			var oldest string
			var oldestAt time.Time
			for k, e := range c.entries {
				if oldest == "" || e.expires.Before(oldestAt) {
					oldest, oldestAt = k, e.expires
				}
			}
			delete(c.entries, oldest)
		}
	}
	stored := *t
	stored.Requester = Requester{}
	c.entries[key] = memoryEntry{track: stored, expires: now.Add(c.ttl)}
}

// --- Redis cache ---

// RedisCache shares resolved metadata across restarts.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache connects to url (redis://...) and verifies the connection.
func NewRedisCache(ctx context.Context, url string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisCache{client: client, ttl: ttl, prefix: sys.GetProjectName() + ":track:"}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (*Track, bool) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			sys.LogCache(sys.MsgCacheReadFail, key, err)
		}
		return nil, false
	}
	var t Track
	if err := json.Unmarshal(data, &t); err != nil {
		sys.LogCache(sys.MsgCacheDecodeFail, key, err)
		return nil, false
	}
	return &t, true
}

func (c *RedisCache) Set(ctx context.Context, key string, t *Track) {
	data, err := json.Marshal(t)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		sys.LogCache(sys.MsgCacheWriteFail, key, err)
	}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
