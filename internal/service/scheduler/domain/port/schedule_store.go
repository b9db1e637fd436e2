// internal/service/scheduler/domain/port/schedule_store.go
package port

import (
	"context"
	"time"
)

// ScheduleStore 是活动排期存储的出站端口，由 Redis 适配器实现。
// 每个活动有三样东西：带 TTL 的开抢引信、状态键、兜底 zset 里的
// 一条到期记录。
type ScheduleStore interface {
	// Schedule 原子登记一个活动：状态置 PENDING，引信键按 delay
	// 设置 TTL，zset 记录理论开抢时刻。重复登记会重置引信。
	Schedule(ctx context.Context, eventID string, delay time.Duration) error

	// TryOpen 原子地把状态从 PENDING 拨到 OPEN。已经 OPEN 返回
	// false，本次完成迁移返回 true。状态键缺失时也强制置 OPEN，
	// 宁可早开不可漏开。
	TryOpen(ctx context.Context, eventID string) (bool, error)

	// DueEvents 返回 zset 中到期时刻 <= now 的活动 ID。
	DueEvents(ctx context.Context, now time.Time) ([]string, error)

	// RemoveFromSchedule 把活动从兜底 zset 里摘掉。
	RemoveFromSchedule(ctx context.Context, eventID string) error
}
