// internal/service/promotion/infrastructure/coupon_redis_adapter.go
package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"promo/internal/pkg/keys"
	"promo/internal/pkg/redis"
	"promo/internal/service/promotion/domain/port"
)

const (
	couponIssueScriptName    = "coupon_issue"
	couponRollbackScriptName = "coupon_rollback"
	couponHydrateScriptName  = "coupon_hydrate"
)

// CouponRedisAdapter 是 port.CouponCache 接口的 Redis 实现。
// 创建时加载所有需要的 Lua 脚本。
type CouponRedisAdapter struct {
	redisClient *redis.Client
	keys        *keys.Builder
}

func NewCouponRedisAdapter(redisClient *redis.Client, keyBuilder *keys.Builder) (*CouponRedisAdapter, error) {
	scripts := map[string]string{
		couponIssueScriptName:    couponIssueScript,
		couponRollbackScriptName: couponRollbackScript,
		couponHydrateScriptName:  couponHydrateScript,
	}
	for name, content := range scripts {
		if err := redisClient.LoadScriptFromContent(name, content); err != nil {
			return nil, errors.Wrapf(err, "failed to load critical coupon script %s", name)
		}
	}
	return &CouponRedisAdapter{redisClient: redisClient, keys: keyBuilder}, nil
}

func (a *CouponRedisAdapter) StockExists(ctx context.Context, couponCode string) (bool, error) {
	stockKey, err := a.keys.CouponStock(couponCode)
	if err != nil {
		return false, err
	}
	n, err := a.redisClient.GetClient().Exists(ctx, stockKey).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Hydrate 原子预热：SETNX + 按需补 TTL，并发调用只有第一个写入生效。
func (a *CouponRedisAdapter) Hydrate(ctx context.Context, couponCode string, remaining int64, ttl time.Duration) error {
	stockKey, err := a.keys.CouponStock(couponCode)
	if err != nil {
		return err
	}
	ttlSec := int64(ttl / time.Second)
	_, err = a.redisClient.RunScript(ctx, couponHydrateScriptName, []string{stockKey}, remaining, ttlSec)
	if err != nil {
		return errors.Wrap(err, "coupon adapter failed to hydrate stock")
	}
	return nil
}

func (a *CouponRedisAdapter) Issue(ctx context.Context, couponCode, userID string, markerTTL time.Duration) (port.Code, error) {
	stockKey, err := a.keys.CouponStock(couponCode)
	if err != nil {
		return 0, err
	}
	markerKey, err := a.keys.CouponIssued(couponCode, userID)
	if err != nil {
		return 0, err
	}
	ttlSec := int64(markerTTL / time.Second)
	if ttlSec <= 0 {
		ttlSec = 1
	}

	result, err := a.redisClient.RunScript(ctx, couponIssueScriptName,
		[]string{stockKey, markerKey}, ttlSec, string(domainStatusIssued))
	if err != nil {
		return 0, errors.Wrap(err, "coupon adapter failed to run issue script")
	}
	code, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected result type from Lua script: %T", result)
	}
	return port.Code(code), nil
}

func (a *CouponRedisAdapter) Rollback(ctx context.Context, couponCode, userID string) error {
	stockKey, err := a.keys.CouponStock(couponCode)
	if err != nil {
		return err
	}
	markerKey, err := a.keys.CouponIssued(couponCode, userID)
	if err != nil {
		return err
	}
	_, err = a.redisClient.RunScript(ctx, couponRollbackScriptName, []string{stockKey, markerKey})
	if err != nil {
		return errors.Wrap(err, "coupon adapter failed to run rollback script")
	}
	return nil
}

const domainStatusIssued = "ISSUED"

var couponIssueScript = `
-- KEYS[1]: 券库存计数  e.g. coupon:stock:C1
-- KEYS[2]: 用户去重标记 e.g. coupon:issued:C1:user-1
-- ARGV[1]: 标记 TTL 秒（与券有效期对齐）
-- ARGV[2]: 标记值

-- 1. 用户已领取过
if redis.call('exists', KEYS[2]) == 1 then
    return 2
end

-- 2. 库存计数未预热
local stock = redis.call('get', KEYS[1])
if not stock then
    return -1
end

-- 3. 已发完
if tonumber(stock) <= 0 then
    return 0
end

-- 4. 扣库存 + 写标记
redis.call('decr', KEYS[1])
redis.call('set', KEYS[2], ARGV[2], 'EX', ARGV[1])
return 1
`

var couponRollbackScript = `
-- KEYS[1]: 券库存计数  KEYS[2]: 用户去重标记
-- 标记不存在说明已经补偿过，不再归还库存，保证补偿幂等

if redis.call('exists', KEYS[2]) == 0 then
    return 0
end
redis.call('del', KEYS[2])
redis.call('incr', KEYS[1])
return 1
`

var couponHydrateScript = `
-- KEYS[1]: 券库存计数
-- ARGV[1]: 剩余量  ARGV[2]: TTL 秒

redis.call('set', KEYS[1], ARGV[1], 'NX')
if redis.call('ttl', KEYS[1]) == -1 and tonumber(ARGV[2]) > 0 then
    redis.call('expire', KEYS[1], ARGV[2])
end
return 1
`
