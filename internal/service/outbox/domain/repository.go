// internal/service/outbox/domain/repository.go
package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Disposition 是投递回调对单条记录的处理结论。
type Disposition int

const (
	// DispositionSent 发布成功，标记 SENT。
	DispositionSent Disposition = iota
	// DispositionSkip 不动这一行（没有匹配的 publisher 时留在 PENDING
	// 等运维处理）。
	DispositionSkip
	// DispositionFailed 发布失败，累加重试计数并按退避重排。
	DispositionFailed
)

// Store 是 outbox 表的持久化接口。
type Store interface {
	// Save 在调用方已有的事务里插入一条待投递记录，与业务写入
	// 共生共灭。
	Save(ctx context.Context, tx *gorm.DB, event *OutboxEvent) error

	// DispatchBatch 在单个事务内认领一批到期记录并逐条调用 handle，
	// 按其结论更新行状态。认领必须允许多个 worker 实例互不阻塞地
	// 拿到互斥的批次（SKIP LOCKED 语义）。
	DispatchBatch(ctx context.Context, now time.Time, limit, maxAttempts int,
		handle func(event *OutboxEvent) (Disposition, error)) (int, error)
}
