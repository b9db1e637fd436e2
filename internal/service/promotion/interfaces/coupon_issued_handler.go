// internal/service/promotion/interfaces/coupon_issued_handler.go
package interfaces

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"promo/internal/pkg/errkind"
	"promo/internal/pkg/logger"
	"promo/internal/pkg/mq"
	"promo/internal/service/promotion/domain"
)

// CouponIssuedHandler 消费 coupon.issued 事件，把用户券行异步落库。
// 发券热路径只动了缓存计数，这里是持久化的唯一入口。
type CouponIssuedHandler struct {
	repo   domain.CouponRepository
	tracer trace.Tracer
}

func NewCouponIssuedHandler(repo domain.CouponRepository, tracer trace.Tracer) *CouponIssuedHandler {
	return &CouponIssuedHandler{repo: repo, tracer: tracer}
}

func (h *CouponIssuedHandler) Handle(ctx context.Context, msg kafka.Message) error {
	var event domain.CouponIssued
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		// 反序列化失败是毒消息，重试没有意义，直接进死信
		return errkind.Wrap(errkind.KindConflict, err)
	}

	ctx, span := h.tracer.Start(ctx, "promotion.PersistUserCoupon", trace.WithAttributes(
		attribute.String("coupon.code", event.CouponCode),
		attribute.String("user.id", event.UserID),
	))
	defer span.End()

	coupon := &domain.UserCoupon{
		CouponCode: event.CouponCode,
		UserID:     event.UserID,
		Status:     domain.StatusUnused,
		IssuedAt:   event.IssuedAt,
		ValidTo:    event.ValidTo,
	}

	err := mq.WithLocalRetry(ctx, func(ctx context.Context) error {
		return h.repo.SaveUserCoupon(ctx, coupon)
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	logger.Ctx(ctx).Info().
		Str("coupon_code", event.CouponCode).Str("user_id", event.UserID).
		Msg("User coupon persisted")
	return nil
}
