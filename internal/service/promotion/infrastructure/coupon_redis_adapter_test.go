package infrastructure

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promo/internal/pkg/keys"
	"promo/internal/pkg/redis"
	"promo/internal/service/promotion/domain/port"
)

func newCouponAdapter(t *testing.T) (*miniredis.Miniredis, *CouponRedisAdapter) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	adapter, err := NewCouponRedisAdapter(client, keys.NewBuilder("test"))
	require.NoError(t, err)
	return mr, adapter
}

func TestCouponIssue(t *testing.T) {
	ctx := context.Background()

	t.Run("issue decrements stock and sets the marker", func(t *testing.T) {
		mr, adapter := newCouponAdapter(t)
		require.NoError(t, adapter.Hydrate(ctx, "C1", 5, time.Hour))

		code, err := adapter.Issue(ctx, "C1", "u-1", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, port.CodeSuccess, code)

		stock, err := mr.Get("test:coupon:stock:C1")
		require.NoError(t, err)
		assert.Equal(t, "4", stock)
		assert.True(t, mr.Exists("test:coupon:issued:C1:u-1"))
	})

	t.Run("same user twice is a duplicate", func(t *testing.T) {
		mr, adapter := newCouponAdapter(t)
		require.NoError(t, adapter.Hydrate(ctx, "C1", 5, time.Hour))

		code, err := adapter.Issue(ctx, "C1", "u-1", time.Hour)
		require.NoError(t, err)
		require.Equal(t, port.CodeSuccess, code)

		code, err = adapter.Issue(ctx, "C1", "u-1", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, port.CodeAlreadyIssued, code)

		stock, err := mr.Get("test:coupon:stock:C1")
		require.NoError(t, err)
		assert.Equal(t, "4", stock, "duplicate must not burn stock")
	})

	t.Run("missing counter reports not found", func(t *testing.T) {
		_, adapter := newCouponAdapter(t)
		code, err := adapter.Issue(ctx, "C-ghost", "u-1", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, port.CodeNotFound, code)
	})

	t.Run("zero stock reports sold out", func(t *testing.T) {
		_, adapter := newCouponAdapter(t)
		require.NoError(t, adapter.Hydrate(ctx, "C1", 0, time.Hour))

		code, err := adapter.Issue(ctx, "C1", "u-1", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, port.CodeSoldOut, code)
	})

	t.Run("one unit and many contenders issues exactly once", func(t *testing.T) {
		mr, adapter := newCouponAdapter(t)
		require.NoError(t, adapter.Hydrate(ctx, "C1", 1, time.Hour))

		const contenders = 20
		results := make([]port.Code, contenders)
		var wg sync.WaitGroup
		for i := 0; i < contenders; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				code, err := adapter.Issue(ctx, "C1", fmt.Sprintf("u-%d", i), time.Hour)
				assert.NoError(t, err)
				results[i] = code
			}(i)
		}
		wg.Wait()

		successes := 0
		for _, code := range results {
			if code == port.CodeSuccess {
				successes++
			} else {
				assert.Equal(t, port.CodeSoldOut, code)
			}
		}
		assert.Equal(t, 1, successes)

		stock, err := mr.Get("test:coupon:stock:C1")
		require.NoError(t, err)
		assert.Equal(t, "0", stock, "stock must never go negative")
	})
}

func TestCouponHydrate(t *testing.T) {
	ctx := context.Background()

	t.Run("hydrate is first writer wins", func(t *testing.T) {
		mr, adapter := newCouponAdapter(t)
		require.NoError(t, adapter.Hydrate(ctx, "C1", 5, time.Hour))
		require.NoError(t, adapter.Hydrate(ctx, "C1", 99, time.Hour))

		stock, err := mr.Get("test:coupon:stock:C1")
		require.NoError(t, err)
		assert.Equal(t, "5", stock)
	})

	t.Run("hydrate aligns the counter TTL with the validity window", func(t *testing.T) {
		mr, adapter := newCouponAdapter(t)
		require.NoError(t, adapter.Hydrate(ctx, "C1", 5, time.Hour))
		assert.Equal(t, time.Hour, mr.TTL("test:coupon:stock:C1"))
	})

	t.Run("stock exists reflects hydration", func(t *testing.T) {
		_, adapter := newCouponAdapter(t)

		exists, err := adapter.StockExists(ctx, "C1")
		require.NoError(t, err)
		assert.False(t, exists)

		require.NoError(t, adapter.Hydrate(ctx, "C1", 5, time.Hour))
		exists, err = adapter.StockExists(ctx, "C1")
		require.NoError(t, err)
		assert.True(t, exists)
	})
}

func TestCouponRollback(t *testing.T) {
	ctx := context.Background()

	t.Run("rollback returns stock and clears the marker", func(t *testing.T) {
		mr, adapter := newCouponAdapter(t)
		require.NoError(t, adapter.Hydrate(ctx, "C1", 5, time.Hour))

		_, err := adapter.Issue(ctx, "C1", "u-1", time.Hour)
		require.NoError(t, err)
		require.NoError(t, adapter.Rollback(ctx, "C1", "u-1"))

		stock, err := mr.Get("test:coupon:stock:C1")
		require.NoError(t, err)
		assert.Equal(t, "5", stock)
		assert.False(t, mr.Exists("test:coupon:issued:C1:u-1"))

		// 补偿之后用户可以重新领取
		code, err := adapter.Issue(ctx, "C1", "u-1", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, port.CodeSuccess, code)
	})

	t.Run("rollback without a marker is idempotent", func(t *testing.T) {
		mr, adapter := newCouponAdapter(t)
		require.NoError(t, adapter.Hydrate(ctx, "C1", 5, time.Hour))

		require.NoError(t, adapter.Rollback(ctx, "C1", "u-1"))
		require.NoError(t, adapter.Rollback(ctx, "C1", "u-1"))

		stock, err := mr.Get("test:coupon:stock:C1")
		require.NoError(t, err)
		assert.Equal(t, "5", stock, "repeated compensation must not inflate stock")
	})
}
