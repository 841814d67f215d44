package calls

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"voicecall-platform/pkg/utils"
)

// ErrTooManyPolls is returned by Submit when every active-poll slot is taken.
var ErrTooManyPolls = errors.New("too many batches are being polled, try again later")

// SlotLimiter caps how many polling tasks may run at once for a key.
type SlotLimiter interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisSlots shares the cap across every API replica.
type RedisSlots struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
}

// NewRedisSlots returns a Redis-backed limiter. ttl should exceed the longest
// polling task so a crashed replica's slots expire on their own.
func NewRedisSlots(rdb *redis.Client, limit int, ttl time.Duration) *RedisSlots {
	return &RedisSlots{rdb: rdb, limit: limit, ttl: ttl}
}

func (s *RedisSlots) Acquire(ctx context.Context, key string) (bool, error) {
	return utils.AcquireSlot(ctx, s.rdb, slotKey(key), s.limit, s.ttl)
}

func (s *RedisSlots) Release(ctx context.Context, key string) error {
	return utils.ReleaseSlot(ctx, s.rdb, slotKey(key))
}

func slotKey(key string) string { return "voicecall:active_polls:" + key }

// LocalSlots is an in-process limiter for single-replica runs and tests.
type LocalSlots struct {
	mu    sync.Mutex
	limit int
	used  map[string]int
}

func NewLocalSlots(limit int) *LocalSlots {
	return &LocalSlots{limit: limit, used: make(map[string]int)}
}

func (s *LocalSlots) Acquire(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.limit > 0 && s.used[key] >= s.limit {
		return false, nil
	}
	s.used[key]++
	return true, nil
}

func (s *LocalSlots) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.used[key] <= 1 {
		delete(s.used, key)
		return nil
	}
	s.used[key]--
	return nil
}
