// internal/service/scheduler/application/service.go
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"promo/internal/pkg/errkind"
	"promo/internal/pkg/keys"
	"promo/internal/pkg/lock"
	"promo/internal/pkg/logger"
	"promo/internal/pkg/metrics"
	"promo/internal/pkg/redis"
	outboxdomain "promo/internal/service/outbox/domain"
	"promo/internal/service/scheduler/domain"
	"promo/internal/service/scheduler/domain/port"
)

// SchedulerService 管理活动的定时开启。主通道是 Redis 键过期通知，
// 兜底是定期扫 zset；两条路径汇在 OpenEvent，分布式锁 + 状态机迁移
// 保证每个活动只开启一次。
type SchedulerService struct {
	store   port.ScheduleStore
	outbox  outboxdomain.Store
	keys    *keys.Builder
	redis   *redis.Client
	lockTTL time.Duration
	tracer  trace.Tracer
}

func NewSchedulerService(
	store port.ScheduleStore,
	outbox outboxdomain.Store,
	keyBuilder *keys.Builder,
	redisClient *redis.Client,
	lockTTL time.Duration,
	tracer trace.Tracer,
) *SchedulerService {
	return &SchedulerService{
		store:   store,
		outbox:  outbox,
		keys:    keyBuilder,
		redis:   redisClient,
		lockTTL: lockTTL,
		tracer:  tracer,
	}
}

// ScheduleEvent 登记一个 delay 之后开启的活动。
func (s *SchedulerService) ScheduleEvent(ctx context.Context, eventID string, delay time.Duration) error {
	ctx, span := s.tracer.Start(ctx, "scheduler.ScheduleEvent", trace.WithAttributes(
		attribute.String("event.id", eventID),
		attribute.String("delay", delay.String()),
	))
	defer span.End()

	if delay <= 0 {
		return errkind.New(errkind.KindConflict, "schedule delay must be positive, got %s", delay)
	}
	if err := s.store.Schedule(ctx, eventID, delay); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "schedule failed")
		return errkind.Wrap(errkind.KindTransient, err)
	}
	logger.Ctx(ctx).Info().
		Str("event_id", eventID).Dur("delay", delay).
		Msg("Event scheduled")
	return nil
}

// OpenEvent 把活动拨到 OPEN 并通过 outbox 广播。trigger 标记触发
// 来源（过期通知还是兜底扫描）。锁被别的实例持有时直接跳过：对方正
// 在做同一件事。
func (s *SchedulerService) OpenEvent(ctx context.Context, eventID, trigger string) error {
	ctx, span := s.tracer.Start(ctx, "scheduler.OpenEvent", trace.WithAttributes(
		attribute.String("event.id", eventID),
		attribute.String("trigger", trigger),
	))
	defer span.End()

	lockKey, err := s.keys.EventLock(eventID)
	if err != nil {
		return err
	}
	locker := lock.NewLocker(s.redis.GetClient(), lockKey)
	acquired, err := locker.TryLock(ctx, s.lockTTL)
	if err != nil {
		span.RecordError(err)
		return errkind.Wrap(errkind.KindTransient, err)
	}
	if !acquired {
		logger.Ctx(ctx).Debug().Str("event_id", eventID).Msg("Open lock held elsewhere, skipping")
		return nil
	}
	defer locker.Unlock(ctx)

	opened, openErr := s.store.TryOpen(ctx, eventID)
	if openErr != nil {
		span.RecordError(openErr)
		span.SetStatus(codes.Error, "open transition failed")
	}

	// 不管迁移结果如何（包括失败），都把兜底记录摘掉：一个坏条目
	// 不能一轮轮堵在兜底扫描里
	if err := s.store.RemoveFromSchedule(ctx, eventID); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("event_id", eventID).Msg("Failed to remove event from schedule zset")
	}

	if openErr != nil {
		return errkind.Wrap(errkind.KindTransient, openErr)
	}

	if !opened {
		logger.Ctx(ctx).Debug().Str("event_id", eventID).Str("trigger", trigger).Msg("Event already open")
		return nil
	}

	metrics.EventsOpened.WithLabelValues(trigger).Inc()
	logger.Ctx(ctx).Info().
		Str("event_id", eventID).Str("trigger", trigger).
		Msg("Event opened")
	return s.emitEventOpened(ctx, eventID, trigger)
}

// RecoverySweep 兜底路径：把 zset 里所有已到期但还没开的活动强制
// 开启。过期通知是 fire-and-forget 的，实例重启窗口内丢的通知靠这
// 里补上。
func (s *SchedulerService) RecoverySweep(ctx context.Context, now time.Time) error {
	due, err := s.store.DueEvents(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list due events: %w", err)
	}
	for _, eventID := range due {
		if err := s.OpenEvent(ctx, eventID, domain.TriggerSweep); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("event_id", eventID).Msg("Recovery sweep failed to open event")
		}
	}
	return nil
}

func (s *SchedulerService) emitEventOpened(ctx context.Context, eventID, trigger string) error {
	outboxID := uuid.New().String()
	event, err := outboxdomain.NewEvent(outboxID, domain.EventTypeEventOpened, eventID, &domain.EventOpened{
		EventID:  eventID,
		OpenedAt: time.Now(),
		Trigger:  trigger,
	})
	if err != nil {
		return errkind.Wrap(errkind.KindTerminal, fmt.Errorf("failed to build event opened event: %w", err))
	}
	if err := s.outbox.Save(ctx, nil, event); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("event_id", eventID).
			Msg("CRITICAL: event opened but outbox save failed")
		return errkind.Wrap(errkind.KindTransient, err)
	}
	return nil
}
