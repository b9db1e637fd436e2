// internal/pkg/mq/consumer.go
package mq

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"promo/internal/pkg/logger"
)

// MessageHandler 处理一条已解出追踪上下文的消息。返回的错误会交给
// FailureHandler 按错误分类路由（重试主题或死信）。
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// ConsumerAdapter 是驱动适配器：监听一个主题并驱动业务处理。
// 失败的消息交给 FailureHandler 移交后提交 offset，消费循环本身
// 永不因业务错误卡住。
type ConsumerAdapter struct {
	reader         *kafka.Reader
	handler        MessageHandler
	failureHandler *FailureHandler

	// delay 非零时本适配器消费的是一个重试主题：按消息时间戳 + delay
	// 实现固定延迟投递
	delay time.Duration

	wg      sync.WaitGroup
	stopped atomic.Bool
}

func NewConsumerAdapter(reader *kafka.Reader, handler MessageHandler, failureHandler *FailureHandler) *ConsumerAdapter {
	return &ConsumerAdapter{
		reader:         reader,
		handler:        handler,
		failureHandler: failureHandler,
	}
}

// SetDelay 配置重试主题的投递延迟。
func (a *ConsumerAdapter) SetDelay(d time.Duration) {
	a.delay = d
}

// Start 开始监听。长期运行，直到 ctx 取消或 Stop 被调用。
func (a *ConsumerAdapter) Start(ctx context.Context) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Ctx(ctx).Info().Str("topic", a.reader.Config().Topic).Msg("✅ Consumer adapter started.")
		for {
			if a.stopped.Load() {
				return
			}
			// 用 FetchMessage 而不是 ReadMessage，自己控制提交时机
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Info().Str("topic", a.reader.Config().Topic).Msg("🛑 Consumer adapter shutting down.")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Msg("could not read message, retrying")
				time.Sleep(1 * time.Second) // 避免快速失败循环
				continue
			}

			if a.delay > 0 {
				deliveryTime := msg.Time.Add(a.delay)
				if wait := time.Until(deliveryTime); wait > 0 {
					select {
					case <-time.After(wait):
					case <-ctx.Done():
						return
					}
				}
			}

			newCtx := ExtractTraceContext(ctx, msg.Headers)
			if processingErr := a.handler(newCtx, msg); processingErr != nil {
				if a.failureHandler != nil {
					a.failureHandler.Handle(newCtx, msg, processingErr)
				} else {
					// 终点消费者（死信）没有下一站，只能记日志
					logger.Ctx(newCtx).Error().Err(processingErr).
						Str("topic", a.reader.Config().Topic).
						Msg("Message processing failed with no failure handler")
				}
			}

			// 无论成功还是已移交失败处理，都提交 offset
			if err := a.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("Failed to commit messages")
			}
		}
	}()
	return nil
}

// Stop 优雅停止消费者。
func (a *ConsumerAdapter) Stop(ctx context.Context) {
	a.stopped.Store(true)
	a.reader.Close()
	a.wg.Wait()
	logger.Ctx(ctx).Info().Str("topic", a.reader.Config().Topic).Msg("✅ Consumer adapter stopped.")
}
