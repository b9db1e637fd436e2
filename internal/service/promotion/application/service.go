// internal/service/promotion/application/service.go
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"promo/internal/pkg/errkind"
	"promo/internal/pkg/logger"
	"promo/internal/pkg/metrics"
	"promo/internal/service/promotion/domain"
	"promo/internal/service/promotion/domain/port"
	outboxdomain "promo/internal/service/outbox/domain"
)

// CouponService 是发券流程的业务入口。热路径只碰 Redis 计数和
// outbox 表，用户券行由 coupon.issued 事件的消费者异步落库。
type CouponService struct {
	repo   domain.CouponRepository
	cache  port.CouponCache
	rules  domain.RuleEngine
	outbox outboxdomain.Store
	tracer trace.Tracer

	// now 可注入，测试里固定时钟；过期时间与 TTL 必须基于同一次读取
	now func() time.Time
}

func NewCouponService(
	repo domain.CouponRepository,
	cache port.CouponCache,
	rules domain.RuleEngine,
	outbox outboxdomain.Store,
	tracer trace.Tracer,
) *CouponService {
	return &CouponService{
		repo:   repo,
		cache:  cache,
		rules:  rules,
		outbox: outbox,
		tracer: tracer,
		now:    time.Now,
	}
}

// IssuanceResult 是一次成功发放的回执。
type IssuanceResult struct {
	CouponCode string    `json:"couponCode"`
	UserID     string    `json:"userId"`
	IssuedAt   time.Time `json:"issuedAt"`
	ValidTo    time.Time `json:"validTo"`
}

// Issue 给用户发一张券。
// 流程：查模板 → 资格求值 → 有效期前置检查 → 缓存计数惰性预热 →
// 原子扣减+去重 → outbox 发布 coupon.issued。
func (s *CouponService) Issue(ctx context.Context, couponCode, userID string, isVip bool) (*IssuanceResult, error) {
	ctx, span := s.tracer.Start(ctx, "promotion.IssueCoupon", trace.WithAttributes(
		attribute.String("coupon.code", couponCode),
		attribute.String("user.id", userID),
	))
	defer span.End()

	template, err := s.repo.FindTemplateByCode(ctx, couponCode)
	if err != nil {
		if errors.Is(err, domain.ErrCouponNotFound) {
			metrics.CouponIssueOps.WithLabelValues("not_found").Inc()
			return nil, errkind.Wrap(errkind.KindNotFound, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "template lookup failed")
		return nil, errkind.Wrap(errkind.KindTransient, err)
	}

	eligible, err := s.rules.Evaluate(template.EligibilityRule, domain.Fact{UserID: userID, IsVip: isVip})
	if err != nil {
		// 规则写坏了是配置问题，重试不会好
		span.RecordError(err)
		return nil, errkind.Wrap(errkind.KindTerminal, err)
	}
	if !eligible {
		metrics.CouponIssueOps.WithLabelValues("not_eligible").Inc()
		logger.Ctx(ctx).Info().Str("coupon_code", couponCode).Str("user_id", userID).Msg("User not eligible for coupon")
		return nil, errkind.Wrap(errkind.KindConflict, domain.ErrNotEligible)
	}

	// 过期时间和所有 TTL 基于同一次时钟读取
	now := s.now()
	validTo := template.EffectiveExpiry(now)
	ttl := validTo.Sub(now)
	if ttl < 0 {
		metrics.CouponIssueOps.WithLabelValues("expired").Inc()
		return nil, errkind.Wrap(errkind.KindConflict, domain.ErrCouponExpired)
	}
	// 有效期不足一秒时取整到 1s，避免标记永不过期
	if ttl < time.Second {
		ttl = time.Second
	}

	if err := s.ensureHydrated(ctx, template, ttl); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stock hydration failed")
		metrics.CouponIssueOps.WithLabelValues("error").Inc()
		return nil, errkind.Wrap(errkind.KindTransient, err)
	}

	code, err := s.cache.Issue(ctx, couponCode, userID, ttl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "issue script failed")
		metrics.CouponIssueOps.WithLabelValues("error").Inc()
		return nil, errkind.Wrap(errkind.KindTransient, err)
	}

	switch code {
	case port.CodeSuccess:
		if err := s.emitCouponIssued(ctx, couponCode, userID, now, validTo); err != nil {
			return nil, err
		}
		metrics.CouponIssueOps.WithLabelValues("success").Inc()
		logger.Ctx(ctx).Info().
			Str("coupon_code", couponCode).Str("user_id", userID).Time("valid_to", validTo).
			Msg("Coupon issued")
		return &IssuanceResult{CouponCode: couponCode, UserID: userID, IssuedAt: now, ValidTo: validTo}, nil
	case port.CodeAlreadyIssued:
		metrics.CouponIssueOps.WithLabelValues("duplicate").Inc()
		return nil, errkind.Wrap(errkind.KindConflict, domain.ErrAlreadyIssued)
	case port.CodeSoldOut:
		metrics.CouponIssueOps.WithLabelValues("sold_out").Inc()
		return nil, errkind.Wrap(errkind.KindConflict, domain.ErrCouponSoldOut)
	case port.CodeNotFound:
		// 刚预热过还拿不到计数，多半是 Redis 被清了，交给上层重试
		return nil, errkind.New(errkind.KindTransient, "coupon stock counter missing after hydration: %s", couponCode)
	default:
		return nil, errkind.New(errkind.KindUnknown, "unknown issue sentinel code: %d", code)
	}
}

// ensureHydrated 缓存计数缺失时从数据库惰性预热：剩余量 = 总量 -
// 已发放量，下限钳到 0。SETNX 保证并发预热只有一个写入生效。
func (s *CouponService) ensureHydrated(ctx context.Context, template *domain.CouponTemplate, ttl time.Duration) error {
	exists, err := s.cache.StockExists(ctx, template.TemplateCode)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	issued, err := s.repo.CountIssued(ctx, template.TemplateCode)
	if err != nil {
		return fmt.Errorf("failed to count issued coupons: %w", err)
	}
	remaining := template.TotalQuantity - issued
	if remaining < 0 {
		remaining = 0
	}

	logger.Ctx(ctx).Info().
		Str("coupon_code", template.TemplateCode).Int64("remaining", remaining).
		Msg("Hydrating coupon stock counter")
	return s.cache.Hydrate(ctx, template.TemplateCode, remaining, ttl)
}

// Rollback 死信补偿：归还库存并删除用户去重标记，让用户可以重领。
func (s *CouponService) Rollback(ctx context.Context, couponCode, userID string) error {
	ctx, span := s.tracer.Start(ctx, "promotion.RollbackCoupon", trace.WithAttributes(
		attribute.String("coupon.code", couponCode),
		attribute.String("user.id", userID),
	))
	defer span.End()

	if err := s.cache.Rollback(ctx, couponCode, userID); err != nil {
		span.RecordError(err)
		return errkind.Wrap(errkind.KindTransient, err)
	}
	logger.Ctx(ctx).Warn().
		Str("coupon_code", couponCode).Str("user_id", userID).
		Msg("Coupon issuance compensated, stock returned")
	return nil
}

func (s *CouponService) emitCouponIssued(ctx context.Context, couponCode, userID string, issuedAt, validTo time.Time) error {
	eventID := uuid.New().String()
	event, err := outboxdomain.NewEvent(eventID, domain.EventTypeCouponIssued, couponCode, &domain.CouponIssued{
		EventID:    eventID,
		CouponCode: couponCode,
		UserID:     userID,
		IssuedAt:   issuedAt,
		ValidTo:    validTo,
	})
	if err != nil {
		return errkind.Wrap(errkind.KindTerminal, fmt.Errorf("failed to build coupon issued event: %w", err))
	}
	if err := s.outbox.Save(ctx, nil, event); err != nil {
		// 扣减已经成功但事件没落库，留给死信补偿或人工核对
		logger.Ctx(ctx).Error().Err(err).
			Str("coupon_code", couponCode).Str("user_id", userID).
			Msg("CRITICAL: coupon issued but outbox save failed")
		return errkind.Wrap(errkind.KindTransient, err)
	}
	return nil
}
