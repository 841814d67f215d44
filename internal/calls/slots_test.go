package calls

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisSlots(t *testing.T, limit int, ttl time.Duration) (*miniredis.Miniredis, *RedisSlots) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewRedisSlots(rdb, limit, ttl)
}

func TestRedisSlots_CapIsPerAgent(t *testing.T) {
	ctx := context.Background()
	mr, slots := newRedisSlots(t, 1, time.Minute)

	ok, err := slots.Acquire(ctx, "agent_a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = slots.Acquire(ctx, "agent_a")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = slots.Acquire(ctx, "agent_b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("voicecall:active_polls:agent_b"))

	require.NoError(t, slots.Release(ctx, "agent_a"))
	ok, err = slots.Acquire(ctx, "agent_a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisSlots_HoldersSurviveFirstTTL(t *testing.T) {
	ctx := context.Background()
	mr, slots := newRedisSlots(t, 2, time.Minute)

	ok, err := slots.Acquire(ctx, "agent_a")
	require.NoError(t, err)
	require.True(t, ok)
	mr.FastForward(50 * time.Second)

	ok, err = slots.Acquire(ctx, "agent_a")
	require.NoError(t, err)
	require.True(t, ok)
	mr.FastForward(15 * time.Second)

	for i := 0; i < 2; i++ {
		ok, err = slots.Acquire(ctx, "agent_a")
		require.NoError(t, err)
		assert.False(t, ok, "both slots are still held")
	}

	require.NoError(t, slots.Release(ctx, "agent_a"))
	ok, err = slots.Acquire(ctx, "agent_a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisSlots_ReportsRedisErrors(t *testing.T) {
	ctx := context.Background()
	mr, slots := newRedisSlots(t, 1, time.Minute)
	mr.SetError("READONLY")

	_, err := slots.Acquire(ctx, "agent_a")
	assert.Error(t, err)
}

func TestLocalSlots(t *testing.T) {
	ctx := context.Background()
	slots := NewLocalSlots(1)

	ok, _ := slots.Acquire(ctx, "a")
	assert.True(t, ok)
	ok, _ = slots.Acquire(ctx, "a")
	assert.False(t, ok)
	require.NoError(t, slots.Release(ctx, "a"))
	require.NoError(t, slots.Release(ctx, "a"))
	ok, _ = slots.Acquire(ctx, "a")
	assert.True(t, ok)
}
