// internal/service/scheduler/domain/event.go
package domain

import "time"

// 活动状态机：PENDING --(开抢时刻)--> OPEN。只有这一条合法迁移，
// 重复开启是 no-op。
const (
	StatusPending = "PENDING"
	StatusOpen    = "OPEN"
)

// EventTypeEventOpened 活动开启事件，下游据此放开入口。
const EventTypeEventOpened = "promotion.event.opened"

// 开启触发来源
const (
	TriggerExpiry = "expiry" // Redis 键过期通知
	TriggerSweep  = "sweep"  // 兜底轮询
)

// EventOpened 描述一次活动开启。
type EventOpened struct {
	EventID  string    `json:"eventId"`
	OpenedAt time.Time `json:"openedAt"`
	Trigger  string    `json:"trigger"`
}
