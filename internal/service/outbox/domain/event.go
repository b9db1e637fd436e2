// internal/service/outbox/domain/event.go
package domain

import (
	"encoding/json"
	"time"
)

// 事件状态。SENT 是唯一的稳定终态；FAILED 的行会按退避继续重试，
// 重试耗尽后保持 FAILED 等待人工介入。行永不删除，保留审计。
const (
	StatusPending = "PENDING"
	StatusSent    = "SENT"
	StatusFailed  = "FAILED"
)

// OutboxEvent 对应 outbox_event 表：与业务写入同一个本地事务落库，
// 由投递 worker 异步发往 broker。
type OutboxEvent struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	EventID     string    `gorm:"column:event_id;type:varchar(64);uniqueIndex"`
	Type        string    `gorm:"type:varchar(128);not null"`
	AggregateID string    `gorm:"column:aggregate_id;type:varchar(64);not null"`
	Payload     string    `gorm:"type:json;not null"`
	Status      string    `gorm:"type:varchar(16);not null;default:PENDING;index:idx_status_next_retry,priority:1"`
	RetryCount  int       `gorm:"column:retry_count;not null;default:0"`
	NextRetryAt time.Time `gorm:"column:next_retry_at;index:idx_status_next_retry,priority:2"`
	LastError   string    `gorm:"column:last_error;type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (OutboxEvent) TableName() string { return "outbox_event" }

// NewEvent 序列化 payload 并构造一条待投递记录，nextRetryAt 置为当前
// 时间，首轮轮询即可投递。
func NewEvent(eventID, eventType, aggregateID string, payload interface{}) (*OutboxEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &OutboxEvent{
		EventID:     eventID,
		Type:        eventType,
		AggregateID: aggregateID,
		Payload:     string(data),
		Status:      StatusPending,
		NextRetryAt: time.Now(),
	}, nil
}
