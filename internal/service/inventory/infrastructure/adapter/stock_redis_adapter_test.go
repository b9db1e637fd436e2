package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promo/internal/pkg/keys"
	"promo/internal/pkg/redis"
	"promo/internal/service/inventory/domain/port"
)

func newTestAdapter(t *testing.T) (*miniredis.Miniredis, *StockRedisAdapter) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	adapter, err := NewStockRedisAdapter(client, keys.NewBuilder("test"))
	require.NoError(t, err)
	return mr, adapter
}

func counters(t *testing.T, mr *miniredis.Miniredis, sku string) (available, reserved string) {
	t.Helper()
	available, err := mr.Get("test:stock:available:" + sku)
	require.NoError(t, err)
	reserved, err = mr.Get("test:stock:reserved:" + sku)
	require.NoError(t, err)
	return available, reserved
}

func TestReserve(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path moves quantity into reserved", func(t *testing.T) {
		mr, adapter := newTestAdapter(t)
		require.NoError(t, adapter.PrepareStock(ctx, "P-100", 10))

		code, err := adapter.Reserve(ctx, "P-100", "ord-1", 7, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, port.CodeSuccess, code)

		available, reserved := counters(t, mr, "P-100")
		assert.Equal(t, "10", available)
		assert.Equal(t, "7", reserved)
		assert.True(t, mr.Exists("test:stock:hold:P-100:ord-1"))
	})

	t.Run("replay for the same order is idempotent", func(t *testing.T) {
		mr, adapter := newTestAdapter(t)
		require.NoError(t, adapter.PrepareStock(ctx, "P-100", 10))

		code, err := adapter.Reserve(ctx, "P-100", "ord-1", 7, time.Minute)
		require.NoError(t, err)
		require.Equal(t, port.CodeSuccess, code)

		code, err = adapter.Reserve(ctx, "P-100", "ord-1", 7, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, port.CodeSuccess, code)

		_, reserved := counters(t, mr, "P-100")
		assert.Equal(t, "7", reserved, "second reserve must not produce a second effect")
	})

	t.Run("exact remaining succeeds, one more is rejected", func(t *testing.T) {
		_, adapter := newTestAdapter(t)
		require.NoError(t, adapter.PrepareStock(ctx, "P-100", 10))

		code, err := adapter.Reserve(ctx, "P-100", "ord-1", 7, time.Minute)
		require.NoError(t, err)
		require.Equal(t, port.CodeSuccess, code)

		code, err = adapter.Reserve(ctx, "P-100", "ord-2", 3, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, port.CodeSuccess, code, "remaining is exactly 3")

		code, err = adapter.Reserve(ctx, "P-100", "ord-3", 1, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, port.CodeInsufficient, code)
	})

	t.Run("unknown sku", func(t *testing.T) {
		_, adapter := newTestAdapter(t)
		code, err := adapter.Reserve(ctx, "NOPE", "ord-1", 1, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, port.CodeNotFound, code)
	})
}

func TestConfirm(t *testing.T) {
	ctx := context.Background()

	t.Run("full lifecycle reserve then confirm", func(t *testing.T) {
		mr, adapter := newTestAdapter(t)
		require.NoError(t, adapter.PrepareStock(ctx, "P-100", 10))

		code, err := adapter.Reserve(ctx, "P-100", "ord-1", 7, time.Minute)
		require.NoError(t, err)
		require.Equal(t, port.CodeSuccess, code)

		code, qty, err := adapter.Confirm(ctx, "P-100", "ord-1")
		require.NoError(t, err)
		assert.Equal(t, port.CodeSuccess, code)
		assert.Equal(t, int64(7), qty)

		available, reserved := counters(t, mr, "P-100")
		assert.Equal(t, "3", available)
		assert.Equal(t, "0", reserved)
		assert.False(t, mr.Exists("test:stock:hold:P-100:ord-1"))
	})

	t.Run("confirm without hold reports expired", func(t *testing.T) {
		_, adapter := newTestAdapter(t)
		require.NoError(t, adapter.PrepareStock(ctx, "P-100", 10))

		code, _, err := adapter.Confirm(ctx, "P-100", "ord-ghost")
		require.NoError(t, err)
		assert.Equal(t, port.CodeHoldExpired, code)
	})

	t.Run("confirm replay reports expired", func(t *testing.T) {
		_, adapter := newTestAdapter(t)
		require.NoError(t, adapter.PrepareStock(ctx, "P-100", 10))

		_, err := adapter.Reserve(ctx, "P-100", "ord-1", 2, time.Minute)
		require.NoError(t, err)
		code, _, err := adapter.Confirm(ctx, "P-100", "ord-1")
		require.NoError(t, err)
		require.Equal(t, port.CodeSuccess, code)

		code, _, err = adapter.Confirm(ctx, "P-100", "ord-1")
		require.NoError(t, err)
		assert.Equal(t, port.CodeHoldExpired, code)
	})

	t.Run("reserved counter below hold is an integrity violation", func(t *testing.T) {
		mr, adapter := newTestAdapter(t)
		require.NoError(t, adapter.PrepareStock(ctx, "P-100", 10))

		_, err := adapter.Reserve(ctx, "P-100", "ord-1", 5, time.Minute)
		require.NoError(t, err)
		mr.Set("test:stock:reserved:P-100", "1")

		code, _, err := adapter.Confirm(ctx, "P-100", "ord-1")
		require.NoError(t, err)
		assert.Equal(t, port.CodeIntegrityViolation, code)
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("cancel returns the hold to available", func(t *testing.T) {
		mr, adapter := newTestAdapter(t)
		require.NoError(t, adapter.PrepareStock(ctx, "P-100", 10))

		_, err := adapter.Reserve(ctx, "P-100", "ord-1", 4, time.Minute)
		require.NoError(t, err)

		code, err := adapter.Cancel(ctx, "P-100", "ord-1")
		require.NoError(t, err)
		assert.Equal(t, port.CodeSuccess, code)

		available, reserved := counters(t, mr, "P-100")
		assert.Equal(t, "10", available, "cancel must not touch the available counter")
		assert.Equal(t, "0", reserved)
	})

	t.Run("cancel of a missing hold is reported", func(t *testing.T) {
		_, adapter := newTestAdapter(t)
		require.NoError(t, adapter.PrepareStock(ctx, "P-100", 10))

		code, err := adapter.Cancel(ctx, "P-100", "ord-ghost")
		require.NoError(t, err)
		assert.Equal(t, port.CodeNotFound, code)
	})
}

func TestReapExpiredHold(t *testing.T) {
	ctx := context.Background()

	t.Run("reap reclaims reserved after the hold key is gone", func(t *testing.T) {
		mr, adapter := newTestAdapter(t)
		require.NoError(t, adapter.PrepareStock(ctx, "P-100", 10))

		_, err := adapter.Reserve(ctx, "P-100", "ord-1", 6, 2*time.Second)
		require.NoError(t, err)

		// 模拟预占记录 TTL 到期后静默消失
		mr.Del("test:stock:hold:P-100:ord-1")

		members, err := adapter.ExpiredHoldMembers(ctx, time.Now().Add(time.Minute))
		require.NoError(t, err)
		require.Equal(t, []string{"P-100|ord-1|6"}, members)

		code, err := adapter.ReapExpiredHold(ctx, members[0], time.Now().Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, port.CodeSuccess, code)

		_, reserved := counters(t, mr, "P-100")
		assert.Equal(t, "0", reserved)
	})

	t.Run("second reap of the same member is already settled", func(t *testing.T) {
		_, adapter := newTestAdapter(t)
		require.NoError(t, adapter.PrepareStock(ctx, "P-100", 10))

		_, err := adapter.Reserve(ctx, "P-100", "ord-1", 6, 2*time.Second)
		require.NoError(t, err)

		code, err := adapter.ReapExpiredHold(ctx, "P-100|ord-1|6", time.Now().Add(time.Minute))
		require.NoError(t, err)
		require.Equal(t, port.CodeSuccess, code)

		code, err = adapter.ReapExpiredHold(ctx, "P-100|ord-1|6", time.Now().Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, port.CodeAlreadySettled, code)
	})

	t.Run("member recycled by an order retry is left alone", func(t *testing.T) {
		mr, adapter := newTestAdapter(t)
		require.NoError(t, adapter.PrepareStock(ctx, "P-100", 20))

		_, err := adapter.Reserve(ctx, "P-100", "ord-1", 7, time.Second)
		require.NoError(t, err)
		mr.Del("test:stock:hold:P-100:ord-1")

		// 清扫器先枚举到了过期成员
		members, err := adapter.ExpiredHoldMembers(ctx, time.Now().Add(time.Minute))
		require.NoError(t, err)
		require.Equal(t, []string{"P-100|ord-1|7"}, members)

		// 枚举和回收之间，同一订单重试预占，成员被重新登记到未来
		code, err := adapter.Reserve(ctx, "P-100", "ord-1", 7, time.Minute)
		require.NoError(t, err)
		require.Equal(t, port.CodeSuccess, code)
		_, reserved := counters(t, mr, "P-100")
		require.Equal(t, "7", reserved, "retry must not count the same quantity twice")

		// 回收必须识别出成员已属于新预占：不动记录、不动计数
		code, err = adapter.ReapExpiredHold(ctx, members[0], time.Now())
		require.NoError(t, err)
		assert.Equal(t, port.CodeAlreadySettled, code)
		assert.True(t, mr.Exists("test:stock:hold:P-100:ord-1"))
		_, reserved = counters(t, mr, "P-100")
		assert.Equal(t, "7", reserved)

		// 新预占照常可以确认，账目收平
		code, qty, err := adapter.Confirm(ctx, "P-100", "ord-1")
		require.NoError(t, err)
		assert.Equal(t, port.CodeSuccess, code)
		assert.Equal(t, int64(7), qty)
		available, reserved := counters(t, mr, "P-100")
		assert.Equal(t, "13", available)
		assert.Equal(t, "0", reserved)
	})

	t.Run("confirmed hold is not visible to the sweep", func(t *testing.T) {
		_, adapter := newTestAdapter(t)
		require.NoError(t, adapter.PrepareStock(ctx, "P-100", 10))

		_, err := adapter.Reserve(ctx, "P-100", "ord-1", 6, time.Second)
		require.NoError(t, err)
		code, _, err := adapter.Confirm(ctx, "P-100", "ord-1")
		require.NoError(t, err)
		require.Equal(t, port.CodeSuccess, code)

		members, err := adapter.ExpiredHoldMembers(ctx, time.Now().Add(time.Minute))
		require.NoError(t, err)
		assert.Empty(t, members)
	})
}
