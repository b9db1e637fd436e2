// internal/service/scheduler/infrastructure/expiry_listener.go
package infrastructure

import (
	"context"
	"strings"
	"sync"

	"promo/internal/pkg/keys"
	"promo/internal/pkg/logger"
	"promo/internal/pkg/redis"
	"promo/internal/service/scheduler/application"
	"promo/internal/service/scheduler/domain"
)

// 需要 Redis 开启过期事件通知：notify-keyspace-events 至少包含 "Ex"
const expiredChannelPattern = "__keyevent@*__:expired"

// ExpiryListener 订阅键过期通知，开抢引信键一过期就触发活动开启。
// 通知是 fire-and-forget 的，丢失由 RecoverySweeper 兜底。
type ExpiryListener struct {
	redisClient *redis.Client
	keys        *keys.Builder
	svc         *application.SchedulerService

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewExpiryListener(redisClient *redis.Client, keyBuilder *keys.Builder, svc *application.SchedulerService) *ExpiryListener {
	return &ExpiryListener{redisClient: redisClient, keys: keyBuilder, svc: svc}
}

func (l *ExpiryListener) Start(ctx context.Context) error {
	ctx, l.cancel = context.WithCancel(ctx)
	pubsub := l.redisClient.GetClient().PSubscribe(ctx, expiredChannelPattern)

	// 订阅握手失败要在启动期暴露，而不是在第一条消息时
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return err
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer pubsub.Close()
		logger.Ctx(ctx).Info().Str("pattern", expiredChannelPattern).Msg("✅ Expiry listener started.")

		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				l.handleExpiredKey(ctx, msg.Payload)
			case <-ctx.Done():
				logger.Ctx(ctx).Info().Msg("🛑 Expiry listener shutting down.")
				return
			}
		}
	}()
	return nil
}

func (l *ExpiryListener) Stop(ctx context.Context) {
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
	logger.Ctx(ctx).Info().Msg("✅ Expiry listener stopped.")
}

func (l *ExpiryListener) handleExpiredKey(ctx context.Context, key string) {
	// 过期事件覆盖整个实例的所有键，先按前缀过滤掉不相关的
	if !strings.HasPrefix(key, l.keys.EventStartPrefix()) {
		return
	}
	eventID, err := keys.EventIDFromKey(key)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("Malformed event start key, ignoring")
		return
	}
	if err := l.svc.OpenEvent(ctx, eventID, domain.TriggerExpiry); err != nil {
		// 开启失败不致命，兜底扫描会重试
		logger.Ctx(ctx).Error().Err(err).Str("event_id", eventID).Msg("Failed to open event from expiry notification")
	}
}
