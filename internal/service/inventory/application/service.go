// internal/service/inventory/application/service.go
package application

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"promo/internal/pkg/errkind"
	"promo/internal/pkg/keys"
	"promo/internal/pkg/logger"
	"promo/internal/pkg/metrics"
	"promo/internal/service/inventory/domain"
	"promo/internal/service/inventory/domain/port"
	outboxdomain "promo/internal/service/outbox/domain"
)

// ReservationService 是库存预占的业务入口：hold/confirm/cancel 生命
// 周期，外加对静默过期预占的清扫。所有计数变更都经过原子脚本，
// 这里只做哨兵码到领域错误的翻译和事件编排。
type ReservationService struct {
	store  port.ReservationStore
	outbox outboxdomain.Store
	tracer trace.Tracer
}

func NewReservationService(store port.ReservationStore, outbox outboxdomain.Store, tracer trace.Tracer) *ReservationService {
	return &ReservationService{store: store, outbox: outbox, tracer: tracer}
}

// Reserve 为订单预占库存。对同一 (sku, orderID) 幂等。
func (s *ReservationService) Reserve(ctx context.Context, sku, orderID string, qty int64, ttl time.Duration) error {
	ctx, span := s.tracer.Start(ctx, "inventory.Reserve", trace.WithAttributes(
		attribute.String("sku", sku),
		attribute.String("order.id", orderID),
		attribute.Int64("qty", qty),
	))
	defer span.End()

	if qty <= 0 {
		return errkind.New(errkind.KindConflict, "reserve quantity must be positive, got %d", qty)
	}

	code, err := s.store.Reserve(ctx, sku, orderID, qty, ttl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reserve script failed")
		metrics.ReservationOps.WithLabelValues("reserve", "error").Inc()
		return errkind.Wrap(errkind.KindTransient, err)
	}

	switch code {
	case port.CodeSuccess:
		metrics.ReservationOps.WithLabelValues("reserve", "success").Inc()
		logger.Ctx(ctx).Info().
			Str("sku", sku).Str("order_id", orderID).Int64("qty", qty).
			Msg("Stock reserved")
		return nil
	case port.CodeNotFound:
		metrics.ReservationOps.WithLabelValues("reserve", "not_found").Inc()
		logger.Ctx(ctx).Warn().Str("sku", sku).Str("order_id", orderID).Msg("Stock counter not found")
		return errkind.Wrap(errkind.KindNotFound, domain.ErrStockNotFound)
	case port.CodeInsufficient:
		metrics.ReservationOps.WithLabelValues("reserve", "sold_out").Inc()
		logger.Ctx(ctx).Info().Str("sku", sku).Str("order_id", orderID).Int64("qty", qty).Msg("Insufficient stock")
		return errkind.Wrap(errkind.KindConflict, domain.ErrInsufficientStock)
	case port.CodeWriteConflict:
		metrics.ReservationOps.WithLabelValues("reserve", "conflict").Inc()
		logger.Ctx(ctx).Warn().Str("sku", sku).Str("order_id", orderID).Msg("Hold write conflict, rolled back")
		return errkind.Wrap(errkind.KindTransient, domain.ErrWriteConflict)
	default:
		return errkind.New(errkind.KindUnknown, "unknown reserve sentinel code: %d", code)
	}
}

// Confirm 支付成功后确认预占。成功时通过 outbox 发布持久化扣减事件，
// 热路径不直接写关系库。
func (s *ReservationService) Confirm(ctx context.Context, sku, orderID string) error {
	ctx, span := s.tracer.Start(ctx, "inventory.Confirm", trace.WithAttributes(
		attribute.String("sku", sku),
		attribute.String("order.id", orderID),
	))
	defer span.End()

	code, qty, err := s.store.Confirm(ctx, sku, orderID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "confirm script failed")
		metrics.ReservationOps.WithLabelValues("confirm", "error").Inc()
		return errkind.Wrap(errkind.KindTransient, err)
	}

	switch code {
	case port.CodeSuccess:
		metrics.ReservationOps.WithLabelValues("confirm", "success").Inc()
		logger.Ctx(ctx).Info().
			Str("sku", sku).Str("order_id", orderID).Int64("qty", qty).
			Msg("Hold confirmed")
		return s.emitStockConfirmed(ctx, sku, orderID, qty)
	case port.CodeHoldExpired:
		metrics.ReservationOps.WithLabelValues("confirm", "expired").Inc()
		logger.Ctx(ctx).Warn().Str("sku", sku).Str("order_id", orderID).Msg("Hold missing or expired on confirm")
		return errkind.Wrap(errkind.KindConflict, domain.ErrHoldExpired)
	case port.CodeIntegrityViolation:
		metrics.ReservationOps.WithLabelValues("confirm", "integrity").Inc()
		logger.Ctx(ctx).Error().Str("sku", sku).Str("order_id", orderID).
			Msg("Reserved counter below hold quantity, accounting bug")
		return errkind.Wrap(errkind.KindIntegrity, domain.ErrIntegrityViolation)
	default:
		return errkind.New(errkind.KindUnknown, "unknown confirm sentinel code: %d", code)
	}
}

// Cancel 显式释放预占（业务事务回滚触发）。预占已不存在按 no-op 处理。
func (s *ReservationService) Cancel(ctx context.Context, sku, orderID string) error {
	ctx, span := s.tracer.Start(ctx, "inventory.Cancel", trace.WithAttributes(
		attribute.String("sku", sku),
		attribute.String("order.id", orderID),
	))
	defer span.End()

	code, err := s.store.Cancel(ctx, sku, orderID)
	if err != nil {
		span.RecordError(err)
		metrics.ReservationOps.WithLabelValues("cancel", "error").Inc()
		return errkind.Wrap(errkind.KindTransient, err)
	}

	switch code {
	case port.CodeSuccess:
		metrics.ReservationOps.WithLabelValues("cancel", "success").Inc()
		logger.Ctx(ctx).Info().Str("sku", sku).Str("order_id", orderID).Msg("Hold cancelled")
		return nil
	case port.CodeNotFound:
		// 已过期或已结算，取消等价于无事发生
		metrics.ReservationOps.WithLabelValues("cancel", "noop").Inc()
		logger.Ctx(ctx).Info().Str("sku", sku).Str("order_id", orderID).Msg("Cancel on missing hold, treated as settled")
		return nil
	case port.CodeIntegrityViolation:
		metrics.ReservationOps.WithLabelValues("cancel", "integrity").Inc()
		logger.Ctx(ctx).Error().Str("sku", sku).Str("order_id", orderID).
			Msg("Reserved counter below hold quantity, accounting bug")
		return errkind.Wrap(errkind.KindIntegrity, domain.ErrIntegrityViolation)
	default:
		return errkind.New(errkind.KindUnknown, "unknown cancel sentinel code: %d", code)
	}
}

// CancelBestEffort 是补偿路径专用的取消：吞掉所有错误只记日志，
// 保证回滚/清理流程不会被二次失败打断。
func (s *ReservationService) CancelBestEffort(ctx context.Context, sku, orderID string) {
	if err := s.Cancel(ctx, sku, orderID); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("sku", sku).Str("order_id", orderID).
			Msg("Best-effort cancel failed, ignoring")
	}
}

// SweepExpiredHolds 回收静默过期的预占：预占记录靠 TTL 消失时没人
// 归还 reserved 计数，这里按到期索引补上这笔账。返回本轮回收条数。
func (s *ReservationService) SweepExpiredHolds(ctx context.Context, now time.Time) (int, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.SweepExpiredHolds")
	defer span.End()

	members, err := s.store.ExpiredHoldMembers(ctx, now)
	if err != nil {
		span.RecordError(err)
		return 0, errkind.Wrap(errkind.KindTransient, err)
	}

	// 单条回收是独立的原子脚本，成员之间没有顺序依赖，并发收割
	var reaped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, member := range members {
		member := member
		g.Go(func() error {
			sku, orderID, qty, err := keys.ParseHoldMember(member)
			if err != nil {
				// 脏成员挡不住整批，记日志跳过
				logger.Ctx(gctx).Error().Err(err).Str("member", member).Msg("Malformed hold index member, skipping")
				return nil
			}

			code, err := s.store.ReapExpiredHold(gctx, member, now)
			if err != nil {
				logger.Ctx(gctx).Error().Err(err).Str("member", member).Msg("Failed to reap expired hold")
				return nil
			}
			switch code {
			case port.CodeSuccess:
				reaped.Add(1)
				metrics.ExpiredHoldsReaped.Inc()
				logger.Ctx(gctx).Warn().
					Str("sku", sku).Str("order_id", orderID).Int64("qty", qty).
					Msg("Expired hold reaped, reserved counter reclaimed")
				s.emitHoldReleased(gctx, sku, orderID, qty, "expired")
			case port.CodeAlreadySettled:
				// 被 confirm/cancel 或别的清扫实例抢先处理了
			case port.CodeIntegrityViolation:
				logger.Ctx(gctx).Error().
					Str("sku", sku).Str("order_id", orderID).Int64("qty", qty).
					Msg("Reserved counter below expired hold quantity, accounting bug")
			}
			return nil
		})
	}
	g.Wait()
	span.SetAttributes(attribute.Int64("reaped", reaped.Load()))
	return int(reaped.Load()), nil
}

func (s *ReservationService) emitStockConfirmed(ctx context.Context, sku, orderID string, qty int64) error {
	eventID := uuid.New().String()
	event, err := outboxdomain.NewEvent(eventID, domain.EventTypeStockConfirmed, orderID, &domain.StockConfirmed{
		EventID:     eventID,
		OrderID:     orderID,
		Sku:         sku,
		Quantity:    qty,
		ConfirmedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to build stock confirmed event: %w", err)
	}
	if err := s.outbox.Save(ctx, nil, event); err != nil {
		// 缓存里的确认已生效而 outbox 落库失败：这笔持久化扣减会
		// 丢失，必须按错误级别暴露出去
		logger.Ctx(ctx).Error().Err(err).
			Str("sku", sku).Str("order_id", orderID).
			Msg("CRITICAL: confirmed hold but failed to stage durable decrement event")
		return errkind.Wrap(errkind.KindTransient, err)
	}
	return nil
}

func (s *ReservationService) emitHoldReleased(ctx context.Context, sku, orderID string, qty int64, reason string) {
	eventID := uuid.New().String()
	event, err := outboxdomain.NewEvent(eventID, domain.EventTypeHoldReleased, orderID, &domain.HoldReleased{
		EventID:    eventID,
		OrderID:    orderID,
		Sku:        sku,
		Quantity:   qty,
		Reason:     reason,
		ReleasedAt: time.Now(),
	})
	if err == nil {
		err = s.outbox.Save(ctx, nil, event)
	}
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("sku", sku).Str("order_id", orderID).
			Msg("Failed to stage hold released event")
	}
}
