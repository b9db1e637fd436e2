// internal/service/inventory/interfaces/dlt_handler.go
package interfaces

import (
	"context"

	"github.com/segmentio/kafka-go"

	"promo/internal/pkg/logger"
	"promo/internal/pkg/metrics"
	"promo/internal/pkg/mq"
)

// NewDeadLetterHandler 返回库存死信队列的处理函数：记录详情供人工
// 对账。库存的持久化扣减没有自动补偿——Redis 侧的预占已经确认，
// 差异只能由运营核对后修正。永远返回 nil，死信读完即提交。
func NewDeadLetterHandler() mq.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		logger.Ctx(ctx).Error().
			Str("reason", "dead_letter_message_received").
			Str("original_topic", mq.GetHeader(msg.Headers, mq.HeaderOriginalTopic)).
			Str("original_partition", mq.GetHeader(msg.Headers, mq.HeaderOriginalPartition)).
			Str("original_offset", mq.GetHeader(msg.Headers, mq.HeaderOriginalOffset)).
			Str("exception_kind", mq.GetHeader(msg.Headers, mq.HeaderExceptionKind)).
			Str("exception_message", mq.GetHeader(msg.Headers, mq.HeaderExceptionMessage)).
			Str("key", string(msg.Key)).
			Str("value", string(msg.Value)).
			Msg("🚨 CRITICAL: Dead letter message received, manual reconciliation required")
		metrics.DeadLetters.WithLabelValues("logged").Inc()
		return nil
	}
}
