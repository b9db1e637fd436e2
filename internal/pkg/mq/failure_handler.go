// internal/pkg/mq/failure_handler.go
package mq

import (
	"context"
	"strconv"
	"sync"

	"github.com/segmentio/kafka-go"

	"promo/internal/pkg/errkind"
	"promo/internal/pkg/logger"
	"promo/internal/pkg/metrics"
)

// RetryLevel 描述一级 broker 重试：一个独立的重试主题和它的投递延迟。
// 延迟由该主题的消费者按消息时间戳实现（见 RetryConsumerAdapter）。
type RetryLevel struct {
	Topic string
	Delay string // 仅用于日志展示, e.g. "1s"
}

// FailureHandler 决定一条处理失败的消息去哪：
//   - 业务性错误（NotFound/Conflict/Integrity）重试不会改变结果，
//     直接进死信主题；
//   - 瞬时错误按 x-retry-attempt 升级到下一级重试主题；
//   - 重试级别耗尽后进死信主题。
//
// 这是本地重试（消费者内部）之上的第二层失败处理。
type FailureHandler struct {
	levels   []RetryLevel
	dltTopic string

	mu        sync.Mutex
	writers   map[string]messageWriter
	newWriter func(topic string) messageWriter
}

// messageWriter 是 kafka.Writer 的最小写入面，便于替换。
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewFailureHandler(brokers []string, levels []RetryLevel, dltTopic string) *FailureHandler {
	return &FailureHandler{
		levels:   levels,
		dltTopic: dltTopic,
		writers:  make(map[string]messageWriter),
		newWriter: func(topic string) messageWriter {
			return NewKafkaWriter(brokers, topic)
		},
	}
}

// Handle 路由一条处理失败的消息。路由本身失败时只能记日志——offset
// 已经要提交了，这里是尽力而为。
func (h *FailureHandler) Handle(ctx context.Context, msg kafka.Message, procErr error) {
	kind := errkind.Of(procErr)

	if !errkind.Retryable(kind) {
		h.sendToDLT(ctx, msg, kind, procErr)
		return
	}

	attempt := 0
	if v := GetHeader(msg.Headers, HeaderRetryAttempt); v != "" {
		attempt, _ = strconv.Atoi(v)
	}
	if attempt >= len(h.levels) {
		// broker 层重试也耗尽了
		h.sendToDLT(ctx, msg, errkind.KindTerminal, procErr)
		return
	}

	level := h.levels[attempt]
	out := kafka.Message{Key: msg.Key, Value: msg.Value, Headers: msg.Headers}
	out.Headers = SetHeader(out.Headers, HeaderRetryAttempt, strconv.Itoa(attempt+1))
	if GetHeader(out.Headers, HeaderOriginalTopic) == "" {
		out.Headers = SetHeader(out.Headers, HeaderOriginalTopic, msg.Topic)
	}
	InjectTraceContext(ctx, &out.Headers)

	if err := h.writer(level.Topic).WriteMessages(ctx, out); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("retry_topic", level.Topic).
			Str("key", string(msg.Key)).
			Msg("Failed to route message to retry topic")
		return
	}
	metrics.ConsumerRetries.WithLabelValues(level.Topic).Inc()
	logger.Ctx(ctx).Warn().
		Str("retry_topic", level.Topic).
		Str("delay", level.Delay).
		Int("attempt", attempt+1).
		Str("kind", kind.String()).
		Msg("Message routed to retry topic")
}

func (h *FailureHandler) sendToDLT(ctx context.Context, msg kafka.Message, kind errkind.Kind, procErr error) {
	out := kafka.Message{Key: msg.Key, Value: msg.Value, Headers: msg.Headers}
	if GetHeader(out.Headers, HeaderOriginalTopic) == "" {
		out.Headers = SetHeader(out.Headers, HeaderOriginalTopic, msg.Topic)
	}
	out.Headers = SetHeader(out.Headers, HeaderOriginalPartition, strconv.Itoa(msg.Partition))
	out.Headers = SetHeader(out.Headers, HeaderOriginalOffset, strconv.FormatInt(msg.Offset, 10))
	out.Headers = SetHeader(out.Headers, HeaderExceptionKind, kind.String())
	out.Headers = SetHeader(out.Headers, HeaderExceptionMessage, procErr.Error())
	InjectTraceContext(ctx, &out.Headers)

	if err := h.writer(h.dltTopic).WriteMessages(ctx, out); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("dlt_topic", h.dltTopic).
			Str("key", string(msg.Key)).
			Msg("CRITICAL: failed to route message to dead letter topic")
		return
	}
	metrics.DeadLetters.WithLabelValues(kind.String()).Inc()
	logger.Ctx(ctx).Error().Err(procErr).
		Str("dlt_topic", h.dltTopic).
		Str("kind", kind.String()).
		Str("key", string(msg.Key)).
		Msg("Message routed to dead letter topic")
}

func (h *FailureHandler) writer(topic string) messageWriter {
	h.mu.Lock()
	defer h.mu.Unlock()
	w, ok := h.writers[topic]
	if !ok {
		w = h.newWriter(topic)
		h.writers[topic] = w
	}
	return w
}

// Close 关闭所有惰性创建的 writer。
func (h *FailureHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic, w := range h.writers {
		if err := w.Close(); err != nil {
			logger.Ctx(context.Background()).Error().Err(err).Str("topic", topic).Msg("Failed to close writer")
		}
	}
}
