// internal/service/promotion/domain/port/coupon_cache.go
package port

import (
	"context"
	"time"
)

// Code 是发券脚本返回的哨兵码。
type Code int

const (
	CodeSoldOut       Code = 0  // 库存已扣完
	CodeSuccess       Code = 1  // 发放成功
	CodeAlreadyIssued Code = 2  // 用户重复领取
	CodeNotFound      Code = -1 // 库存计数不存在
)

// CouponCache 是券库存缓存的出站端口，由 Redis 适配器实现。
// 扣库存 + 写去重标记是一个原子脚本。
type CouponCache interface {
	// StockExists 检查库存计数是否已预热。
	StockExists(ctx context.Context, couponCode string) (bool, error)

	// Hydrate 惰性预热：SETNX 写入剩余量；计数没有 TTL 且剩余有效
	// 期为正时补上过期时间。并发预热安全。
	Hydrate(ctx context.Context, couponCode string, remaining int64, ttl time.Duration) error

	// Issue 原子发券：去重标记存在返回 CodeAlreadyIssued；库存缺失
	// 返回 CodeNotFound；库存 ≤0 返回 CodeSoldOut；否则扣一并写入
	// 带 TTL 的标记。
	Issue(ctx context.Context, couponCode, userID string, markerTTL time.Duration) (Code, error)

	// Rollback 补偿：归还一个库存并删除用户的去重标记。死信补偿
	// 路径调用。
	Rollback(ctx context.Context, couponCode, userID string) error
}
