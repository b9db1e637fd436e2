package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryLock(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	t.Run("second contender is refused without blocking", func(t *testing.T) {
		first := NewLocker(client, "lock:evt-1")
		second := NewLocker(client, "lock:evt-1")

		ok, err := first.TryLock(ctx, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = second.TryLock(ctx, time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unlock frees the key for the next contender", func(t *testing.T) {
		first := NewLocker(client, "lock:evt-2")
		ok, err := first.TryLock(ctx, time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, first.Unlock(ctx))

		second := NewLocker(client, "lock:evt-2")
		ok, err = second.TryLock(ctx, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("stale holder cannot release the new owner's lock", func(t *testing.T) {
		stale := NewLocker(client, "lock:evt-3")
		ok, err := stale.TryLock(ctx, 50*time.Millisecond)
		require.NoError(t, err)
		require.True(t, ok)

		// 模拟锁过期后被新的持有者抢到
		mr.FastForward(time.Second)
		owner := NewLocker(client, "lock:evt-3")
		ok, err = owner.TryLock(ctx, time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, stale.Unlock(ctx))
		assert.True(t, mr.Exists("lock:evt-3"), "owner's lock must survive the stale unlock")
	})
}
