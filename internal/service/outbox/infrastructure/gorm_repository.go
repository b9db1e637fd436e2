// internal/service/outbox/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"promo/internal/pkg/logger"
	"promo/internal/pkg/metrics"
	"promo/internal/service/outbox/domain"
)

// 线性退避步长：第 n 次失败后等 10s × (n+1)。
const retryBackoffStep = 10 * time.Second

// GormOutboxStore 是 domain.Store 的 GORM 实现。
type GormOutboxStore struct {
	db *gorm.DB
}

func NewGormOutboxStore(db *gorm.DB) *GormOutboxStore {
	return &GormOutboxStore{db: db}
}

// Save 在调用方事务里插入 outbox 行。tx 为空时退化为独立写入
// （热路径上没有关系库事务的场景，如券发放）。
func (s *GormOutboxStore) Save(ctx context.Context, tx *gorm.DB, event *domain.OutboxEvent) error {
	if tx == nil {
		tx = s.db
	}
	return tx.WithContext(ctx).Create(event).Error
}

// DispatchBatch 认领并投递一批到期记录。整个批次在一个事务里完成：
// SELECT ... FOR UPDATE SKIP LOCKED 保证多实例 worker 各拿各的行，
// 互不阻塞，部署多实例即水平扩容。
func (s *GormOutboxStore) DispatchBatch(ctx context.Context, now time.Time, limit, maxAttempts int,
	handle func(event *domain.OutboxEvent) (domain.Disposition, error)) (int, error) {

	dispatched := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []*domain.OutboxEvent
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status IN ? AND next_retry_at <= ? AND retry_count < ?",
				[]string{domain.StatusPending, domain.StatusFailed}, now, maxAttempts).
			Order("next_retry_at, id").
			Limit(limit).
			Find(&rows).Error
		if err != nil {
			return err
		}

		for _, ev := range rows {
			disposition, handleErr := handle(ev)
			switch disposition {
			case domain.DispositionSent:
				if err := tx.Model(ev).Updates(map[string]interface{}{
					"status":     domain.StatusSent,
					"last_error": "",
				}).Error; err != nil {
					return err
				}
				dispatched++
				metrics.OutboxDispatch.WithLabelValues("sent").Inc()

			case domain.DispositionSkip:
				// 行保持原样，留给运维
				metrics.OutboxDispatch.WithLabelValues("no_publisher").Inc()

			case domain.DispositionFailed:
				ev.RetryCount++
				next := now.Add(retryBackoffStep * time.Duration(ev.RetryCount+1))
				if err := tx.Model(ev).Updates(map[string]interface{}{
					"status":        domain.StatusFailed,
					"retry_count":   ev.RetryCount,
					"next_retry_at": next,
					"last_error":    handleErr.Error(),
				}).Error; err != nil {
					return err
				}
				metrics.OutboxDispatch.WithLabelValues("failed").Inc()
				if ev.RetryCount >= maxAttempts {
					// 重试预算耗尽，行离开认领窗口，必须有人看
					metrics.OutboxDispatch.WithLabelValues("exhausted").Inc()
					logger.Ctx(ctx).Error().
						Str("event_id", ev.EventID).
						Str("type", ev.Type).
						Int("retry_count", ev.RetryCount).
						Str("last_error", handleErr.Error()).
						Msg("🚨 Outbox event exhausted its retry budget, operator action required")
				}
			}
		}
		return nil
	})
	return dispatched, err
}
