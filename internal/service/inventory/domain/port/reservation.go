// internal/service/inventory/domain/port/reservation.go
package port

import (
	"context"
	"time"
)

// Code 是原子脚本返回的哨兵码。调用方只做哨兵码到领域错误的翻译，
// 绝不在别处对原始数字做二次解释。
type Code int

const (
	CodeInsufficient       Code = 0  // 可售余量不足 / 已售罄
	CodeSuccess            Code = 1  // 成功（含幂等重放）
	CodeAlreadySettled     Code = 2  // 目标已被别的实例处理过
	CodeNotFound           Code = -1 // 计数或记录不存在
	CodeWriteConflict      Code = -2 // 预占创建撞上并发写入，已回滚
	CodeHoldExpired        Code = -3 // 预占记录已过期
	CodeIntegrityViolation Code = -4 // 计数对账异常
)

// ReservationStore 是库存预占的出站端口，由 Redis 适配器实现。
// 每个操作在存储端是单round-trip的原子脚本，多 Key 不变量
// （reserved ≤ available、一单至多一笔预占）全部由脚本原子性保证，
// 进程内不加任何锁。
type ReservationStore interface {
	// Reserve 为订单预占 qty 件库存，预占带 TTL。对同一
	// (sku, orderID) 重复调用幂等返回成功。
	Reserve(ctx context.Context, sku, orderID string, qty int64, ttl time.Duration) (Code, error)

	// Confirm 支付成功后把预占转为实际扣减，成功时一并返回预占
	// 数量，供调用方发布持久化扣减事件。
	Confirm(ctx context.Context, sku, orderID string) (Code, int64, error)

	// Cancel 释放预占。预占不存在视为已结算，返回 CodeNotFound
	// 由调用方按 no-op 处理。
	Cancel(ctx context.Context, sku, orderID string) (Code, error)

	// ExpiredHoldMembers 枚举到期索引中 score ≤ now 的成员，
	// 供清扫器回收静默过期的预占。
	ExpiredHoldMembers(ctx context.Context, now time.Time) ([]string, error)

	// ReapExpiredHold 原子回收一条过期预占：恢复 reserved 计数并
	// 清掉索引成员。成员已被处理、或在枚举之后被同订单的新预占
	// 重新登记（score > now）时返回 CodeAlreadySettled，不产生效果。
	ReapExpiredHold(ctx context.Context, member string, now time.Time) (Code, error)

	// PrepareStock 初始化某个 sku 的缓存计数（管理和测试用）。
	PrepareStock(ctx context.Context, sku string, available int64) error
}
