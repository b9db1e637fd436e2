// internal/service/inventory/infrastructure/adapter/stock_redis_adapter.go
package adapter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"promo/internal/pkg/keys"
	"promo/internal/pkg/redis"
	"promo/internal/service/inventory/domain/port"
)

const (
	reserveScriptName = "stock_reserve"
	confirmScriptName = "stock_confirm"
	cancelScriptName  = "stock_cancel"
	reapScriptName    = "stock_reap_expired"
)

// StockRedisAdapter 是 port.ReservationStore 接口的 Redis 实现。
// 创建时加载所有需要的 Lua 脚本到客户端的脚本目录。
type StockRedisAdapter struct {
	redisClient *redis.Client
	keys        *keys.Builder
}

// NewStockRedisAdapter 创建库存预占适配器实例。
func NewStockRedisAdapter(redisClient *redis.Client, keyBuilder *keys.Builder) (*StockRedisAdapter, error) {
	scripts := map[string]string{
		reserveScriptName: reserveScript,
		confirmScriptName: confirmScript,
		cancelScriptName:  cancelScript,
		reapScriptName:    reapScript,
	}
	for name, content := range scripts {
		if err := redisClient.LoadScriptFromContent(name, content); err != nil {
			return nil, errors.Wrapf(err, "failed to load critical stock script %s", name)
		}
	}
	return &StockRedisAdapter{redisClient: redisClient, keys: keyBuilder}, nil
}

func (a *StockRedisAdapter) holdKeys(sku, orderID string) ([]string, error) {
	availableKey, err := a.keys.StockAvailable(sku)
	if err != nil {
		return nil, err
	}
	reservedKey, err := a.keys.StockReserved(sku)
	if err != nil {
		return nil, err
	}
	holdKey, err := a.keys.StockHold(sku, orderID)
	if err != nil {
		return nil, err
	}
	return []string{availableKey, reservedKey, holdKey, a.keys.StockHoldIndex()}, nil
}

// Reserve 执行预占脚本。
func (a *StockRedisAdapter) Reserve(ctx context.Context, sku, orderID string, qty int64, ttl time.Duration) (port.Code, error) {
	ks, err := a.holdKeys(sku, orderID)
	if err != nil {
		return 0, err
	}
	ttlSec := int64(ttl / time.Second)
	if ttlSec <= 0 {
		ttlSec = 1
	}
	args := []interface{}{qty, ttlSec, time.Now().Unix(), keys.HoldMemberPrefix(sku, orderID)}
	return a.run(ctx, reserveScriptName, ks, args...)
}

// Confirm 执行确认脚本：预占转实扣。成功时返回预占数量。
func (a *StockRedisAdapter) Confirm(ctx context.Context, sku, orderID string) (port.Code, int64, error) {
	ks, err := a.holdKeys(sku, orderID)
	if err != nil {
		return 0, 0, err
	}
	result, err := a.redisClient.RunScript(ctx, confirmScriptName, ks, keys.HoldMemberPrefix(sku, orderID))
	if err != nil {
		return 0, 0, errors.Wrapf(err, "stock adapter failed to run script %s", confirmScriptName)
	}
	pair, ok := result.([]interface{})
	if !ok || len(pair) != 2 {
		return 0, 0, fmt.Errorf("unexpected result shape from Lua script %s: %T", confirmScriptName, result)
	}
	code, ok1 := pair[0].(int64)
	qty, ok2 := pair[1].(int64)
	if !ok1 || !ok2 {
		return 0, 0, fmt.Errorf("unexpected result types from Lua script %s: %T/%T", confirmScriptName, pair[0], pair[1])
	}
	return port.Code(code), qty, nil
}

// Cancel 执行取消脚本：释放预占。
func (a *StockRedisAdapter) Cancel(ctx context.Context, sku, orderID string) (port.Code, error) {
	ks, err := a.holdKeys(sku, orderID)
	if err != nil {
		return 0, err
	}
	// 取消不动可售计数，脚本只用 reserved/hold/index 三个 Key
	return a.run(ctx, cancelScriptName, ks[1:], keys.HoldMemberPrefix(sku, orderID))
}

// ExpiredHoldMembers 枚举到期索引中已过期的成员，单次最多 256 条，
// 剩余的留给下一轮清扫。
func (a *StockRedisAdapter) ExpiredHoldMembers(ctx context.Context, now time.Time) ([]string, error) {
	return a.redisClient.GetClient().ZRangeByScore(ctx, a.keys.StockHoldIndex(), &goredis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: 256,
	}).Result()
}

// ReapExpiredHold 原子回收一条过期预占。now 用于识别枚举之后被同
// 订单重新预占顶上去的成员：score 已在未来的成员不再属于本次清扫。
func (a *StockRedisAdapter) ReapExpiredHold(ctx context.Context, member string, now time.Time) (port.Code, error) {
	sku, orderID, qty, err := keys.ParseHoldMember(member)
	if err != nil {
		return 0, err
	}
	ks, err := a.holdKeys(sku, orderID)
	if err != nil {
		return 0, err
	}
	return a.run(ctx, reapScriptName, ks[1:], member, qty, now.Unix())
}

// PrepareStock 初始化 sku 的可售/预占计数（管理和测试用）。
func (a *StockRedisAdapter) PrepareStock(ctx context.Context, sku string, available int64) error {
	availableKey, err := a.keys.StockAvailable(sku)
	if err != nil {
		return err
	}
	reservedKey, err := a.keys.StockReserved(sku)
	if err != nil {
		return err
	}
	pipe := a.redisClient.GetClient().Pipeline()
	pipe.Set(ctx, availableKey, available, 0)
	pipe.Set(ctx, reservedKey, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(err, "failed to prepare stock for %s", sku)
	}
	return nil
}

func (a *StockRedisAdapter) run(ctx context.Context, script string, ks []string, args ...interface{}) (port.Code, error) {
	result, err := a.redisClient.RunScript(ctx, script, ks, args...)
	if err != nil {
		return 0, errors.Wrapf(err, "stock adapter failed to run script %s", script)
	}
	code, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected result type from Lua script %s: %T", script, result)
	}
	return port.Code(code), nil
}

var reserveScript = `
-- KEYS[1]: 可售计数    e.g. stock:available:P-100
-- KEYS[2]: 预占计数    e.g. stock:reserved:P-100
-- KEYS[3]: 预占记录    e.g. stock:hold:P-100:ord-1
-- KEYS[4]: 到期索引    e.g. stock:holds
-- ARGV[1]: 预占数量
-- ARGV[2]: 预占 TTL 秒
-- ARGV[3]: 当前时间戳
-- ARGV[4]: 索引成员前缀 "sku|orderId|"

-- 1. 同一订单重复预占：幂等返回成功，不产生第二笔效果
if redis.call('exists', KEYS[3]) == 1 then
    return 1
end

-- 2. 可售计数不存在视为 sku 未知
local available = redis.call('get', KEYS[1])
if not available then
    return -1
end

local qty = tonumber(ARGV[1])
local member = ARGV[4] .. qty

-- 3. 同订单的旧预占静默过期后还挂在索引里：reserved 仍然包含这笔
--    数量，只重建记录、顺延索引到期时间，不再加计数
if redis.call('zscore', KEYS[4], member) then
    local created = redis.call('set', KEYS[3], ARGV[1], 'EX', ARGV[2], 'NX')
    if not created then
        return -2
    end
    redis.call('zadd', KEYS[4], tonumber(ARGV[3]) + tonumber(ARGV[2]), member)
    return 1
end

-- 4. 余量 = available - reserved
local reserved = tonumber(redis.call('get', KEYS[2]) or '0')
if tonumber(available) - reserved < qty then
    return 0
end

-- 5. 先加预占计数，再建预占记录；记录创建失败则回滚计数
redis.call('incrby', KEYS[2], qty)
local created = redis.call('set', KEYS[3], ARGV[1], 'EX', ARGV[2], 'NX')
if not created then
    redis.call('decrby', KEYS[2], qty)
    return -2
end

-- 6. 数量编码进索引成员：预占记录过期后清扫器还能拿回数量
redis.call('zadd', KEYS[4], tonumber(ARGV[3]) + tonumber(ARGV[2]), member)
return 1
`

var confirmScript = `
-- KEYS[1]: 可售计数  KEYS[2]: 预占计数  KEYS[3]: 预占记录  KEYS[4]: 到期索引
-- ARGV[1]: 索引成员前缀
-- 返回 {哨兵码, 预占数量}

local qty = redis.call('get', KEYS[3])
if not qty then
    return {-3, 0}
end
qty = tonumber(qty)

local reserved = tonumber(redis.call('get', KEYS[2]) or '0')
if reserved < qty then
    return {-4, 0}
end

redis.call('decrby', KEYS[2], qty)
redis.call('decrby', KEYS[1], qty)
redis.call('del', KEYS[3])
redis.call('zrem', KEYS[4], ARGV[1] .. qty)
return {1, qty}
`

var cancelScript = `
-- KEYS[1]: 预占计数  KEYS[2]: 预占记录  KEYS[3]: 到期索引
-- ARGV[1]: 索引成员前缀

local qty = redis.call('get', KEYS[2])
if not qty then
    return -1
end
qty = tonumber(qty)

local reserved = tonumber(redis.call('get', KEYS[1]) or '0')
if reserved < qty then
    return -4
end

redis.call('decrby', KEYS[1], qty)
redis.call('del', KEYS[2])
redis.call('zrem', KEYS[3], ARGV[1] .. qty)
return 1
`

var reapScript = `
-- KEYS[1]: 预占计数  KEYS[2]: 预占记录  KEYS[3]: 到期索引
-- ARGV[1]: 完整索引成员 "sku|orderId|qty"
-- ARGV[2]: 数量
-- ARGV[3]: 当前时间戳

-- 成员已不在索引里：已被 confirm/cancel 或别的清扫实例处理
local score = redis.call('zscore', KEYS[3], ARGV[1])
if not score then
    return 2
end

-- score 在未来：枚举之后同订单重新预占复用了这个成员，它现在记的
-- 是一笔活着的预占，不能动
if tonumber(score) > tonumber(ARGV[3]) then
    return 2
end

local qty = tonumber(ARGV[2])

-- 预占记录可能因 TTL 与 score 的毫秒差还活着，数量对得上才一并清掉；
-- 对不上说明是同订单的新预占，记录留下，只回收旧账
local held = redis.call('get', KEYS[2])
if held and tonumber(held) == qty then
    redis.call('del', KEYS[2])
end

local reserved = tonumber(redis.call('get', KEYS[1]) or '0')
if reserved < qty then
    redis.call('zrem', KEYS[3], ARGV[1])
    return -4
end

redis.call('decrby', KEYS[1], qty)
redis.call('zrem', KEYS[3], ARGV[1])
return 1
`
