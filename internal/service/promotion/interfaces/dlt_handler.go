// internal/service/promotion/interfaces/dlt_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/segmentio/kafka-go"

	"promo/internal/pkg/logger"
	"promo/internal/pkg/metrics"
	"promo/internal/pkg/mq"
	"promo/internal/service/promotion/application"
	"promo/internal/service/promotion/domain"
)

// DltConsumerAdapter 监听死信队列：记录详情，并按原始主题执行补偿。
// coupon.issued 落库失败意味着用户占了库存却拿不到券，这里归还库存
// 并清掉去重标记。补偿自身失败只记日志，绝不再抛回流水线。
type DltConsumerAdapter struct {
	reader        *kafka.Reader
	couponService *application.CouponService
	couponTopic   string
	wg            sync.WaitGroup
	stopped       bool
}

func NewDltConsumerAdapter(reader *kafka.Reader, couponService *application.CouponService, couponTopic string) *DltConsumerAdapter {
	return &DltConsumerAdapter{
		reader:        reader,
		couponService: couponService,
		couponTopic:   couponTopic,
	}
}

func (a *DltConsumerAdapter) Start(ctx context.Context) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Ctx(ctx).Info().Str("topic", a.reader.Config().Topic).Msg("✅ DLT Consumer Adapter started.")
		for {
			if a.stopped {
				return
			}
			msg, err := a.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Info().Msg("🛑 DLT Consumer Adapter shutting down.")
					return
				}
				continue
			}

			a.handleDeadLetter(ctx, msg)

			// 死信总是直接提交：日志和补偿就是它的"处理"
			a.reader.CommitMessages(ctx, msg)
		}
	}()
	return nil
}

func (a *DltConsumerAdapter) Stop(ctx context.Context) {
	a.stopped = true
	a.reader.Close()
	a.wg.Wait()
	logger.Ctx(ctx).Info().Str("topic", a.reader.Config().Topic).Msg("✅ DLT Consumer Adapter stopped.")
}

func (a *DltConsumerAdapter) handleDeadLetter(ctx context.Context, msg kafka.Message) {
	originalTopic := mq.GetHeader(msg.Headers, mq.HeaderOriginalTopic)

	logger.Ctx(ctx).Error().
		Str("reason", "dead_letter_message_received").
		Str("original_topic", originalTopic).
		Str("original_partition", mq.GetHeader(msg.Headers, mq.HeaderOriginalPartition)).
		Str("original_offset", mq.GetHeader(msg.Headers, mq.HeaderOriginalOffset)).
		Str("exception_kind", mq.GetHeader(msg.Headers, mq.HeaderExceptionKind)).
		Str("exception_message", mq.GetHeader(msg.Headers, mq.HeaderExceptionMessage)).
		Str("key", string(msg.Key)).
		Str("value", string(msg.Value)).
		Msg("🚨 CRITICAL: Dead letter message received")

	if originalTopic == a.couponTopic {
		a.compensateCouponIssue(ctx, msg)
	}
}

func (a *DltConsumerAdapter) compensateCouponIssue(ctx context.Context, msg kafka.Message) {
	var event domain.CouponIssued
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("Cannot decode dead coupon event, manual compensation required")
		return
	}
	if err := a.couponService.Rollback(ctx, event.CouponCode, event.UserID); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("coupon_code", event.CouponCode).Str("user_id", event.UserID).
			Msg("Coupon compensation failed, manual intervention required")
		return
	}
	metrics.DeadLetters.WithLabelValues("compensated").Inc()
}
