package reporting

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"voicecall-platform/pkg/utils"
)

// ErrCacheMiss is returned by Cache.Get when nothing is stored under key.
var ErrCacheMiss = utils.ErrCacheMiss

type Cache interface {
	Get(ctx context.Context, key string, dst *Stats) error
	Set(ctx context.Context, key string, st Stats) error
}

func cacheKey(agentID string) string { return "voicecall:stats:" + agentID }

// RedisCache stores stats as JSON with a fixed TTL.
type RedisCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisCache(rdb redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string, dst *Stats) error {
	return utils.GetJSON(ctx, c.rdb, key, dst)
}

func (c *RedisCache) Set(ctx context.Context, key string, st Stats) error {
	st.Cached = false
	return utils.SetJSON(ctx, c.rdb, key, st, c.ttl)
}

// MemoryCache is an in-process cache for tests and single-replica runs.
type MemoryCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[string]memoryItem
}

type memoryItem struct {
	st      Stats
	expires time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, now: time.Now, items: make(map[string]memoryItem)}
}

func (c *MemoryCache) Get(_ context.Context, key string, dst *Stats) error {
	if dst == nil {
		return errors.New("reporting: nil destination")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[key]
	if !ok || (!it.expires.IsZero() && c.now().After(it.expires)) {
		delete(c.items, key)
		return ErrCacheMiss
	}
	*dst = it.st
	return nil
}

func (c *MemoryCache) Set(_ context.Context, key string, st Stats) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	it := memoryItem{st: st}
	if c.ttl > 0 {
		it.expires = c.now().Add(c.ttl)
	}
	c.items[key] = it
	return nil
}
