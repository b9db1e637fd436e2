// internal/service/inventory/domain/event.go
package domain

import "time"

// EventTypeStockConfirmed 预占确认事件，经 outbox 投递，消费侧执行
// 关系库的持久化扣减。
const EventTypeStockConfirmed = "inventory.stock.confirmed"

// StockConfirmed 描述一笔已确认的库存扣减。
type StockConfirmed struct {
	EventID     string    `json:"eventId"`
	OrderID     string    `json:"orderId"`
	Sku         string    `json:"sku"`
	Quantity    int64     `json:"quantity"`
	ConfirmedAt time.Time `json:"confirmedAt"`
}

// HoldReleased 描述一笔被释放的预占（显式取消或过期清扫）。
type HoldReleased struct {
	EventID    string    `json:"eventId"`
	OrderID    string    `json:"orderId"`
	Sku        string    `json:"sku"`
	Quantity   int64     `json:"quantity"`
	Reason     string    `json:"reason"` // "cancelled" / "expired"
	ReleasedAt time.Time `json:"releasedAt"`
}

// EventTypeHoldReleased 预占释放事件。
const EventTypeHoldReleased = "inventory.hold.released"
