package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livekit/admission-server/pkg/service"
)

func redisStore(t *testing.T) *service.RedisWaitingStore {
	t.Helper()
	if testing.Short() {
		t.SkipNow()
	}

	rc := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
	})
	if err := rc.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	return service.NewRedisWaitingStore(rc)
}

func TestRedisWaitingStore(t *testing.T) {
	s := redisStore(t)
	ctx := context.Background()
	roomName := "redis-store-test"

	// drain anything a previous run left behind
	pending, err := s.ListPending(ctx, roomName)
	require.NoError(t, err)
	for _, p := range pending {
		_, err = s.RemovePending(ctx, roomName, p.Identity)
		require.NoError(t, err)
	}

	first, err := s.Enqueue(ctx, roomName, "alice")
	require.NoError(t, err)
	second, err := s.Enqueue(ctx, roomName, "bob")
	require.NoError(t, err)

	t.Run("list preserves arrival order", func(t *testing.T) {
		pending, err := s.ListPending(ctx, roomName)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, first.Identity, pending[0].Identity)
		assert.Equal(t, second.Identity, pending[1].Identity)
		assert.Equal(t, "alice", pending[0].Name)
		assert.WithinDuration(t, time.Now(), pending[0].JoinedAt, time.Minute)
	})

	t.Run("remove is exactly once", func(t *testing.T) {
		removed, err := s.RemovePending(ctx, roomName, first.Identity)
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = s.RemovePending(ctx, roomName, first.Identity)
		require.NoError(t, err)
		assert.False(t, removed)

		pending, err := s.ListPending(ctx, roomName)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, second.Identity, pending[0].Identity)
	})

	t.Run("sweep evicts stale entries", func(t *testing.T) {
		time.Sleep(20 * time.Millisecond)
		evicted, err := s.SweepPending(ctx, 10*time.Millisecond)
		require.NoError(t, err)

		found := false
		for _, p := range evicted {
			if p.Identity == second.Identity {
				found = true
			}
		}
		assert.True(t, found)

		pending, err := s.ListPending(ctx, roomName)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})
}
