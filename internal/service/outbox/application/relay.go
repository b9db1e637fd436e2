// internal/service/outbox/application/relay.go
package application

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"promo/internal/pkg/logger"
	"promo/internal/service/outbox/domain"
)

// Relay 是 outbox 的投递 worker：按固定间隔认领到期记录并发布。
// 多个 Relay 实例可以并行跑在不同进程里，认领语义保证互不重叠。
type Relay struct {
	store       domain.Store
	registry    *Registry
	interval    time.Duration
	batchSize   int
	maxAttempts int

	wg      sync.WaitGroup
	stopped atomic.Bool
}

func NewRelay(store domain.Store, registry *Registry, interval time.Duration, batchSize, maxAttempts int) *Relay {
	return &Relay{
		store:       store,
		registry:    registry,
		interval:    interval,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
	}
}

// Start 启动轮询循环。
func (r *Relay) Start(ctx context.Context) error {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		logger.Ctx(ctx).Info().Dur("interval", r.interval).Msg("✅ Outbox relay started.")
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if r.stopped.Load() {
					return
				}
				r.DispatchOnce(ctx)
			case <-ctx.Done():
				logger.Ctx(ctx).Info().Msg("🛑 Outbox relay shutting down.")
				return
			}
		}
	}()
	return nil
}

// Stop 停止轮询。
func (r *Relay) Stop(ctx context.Context) {
	r.stopped.Store(true)
	r.wg.Wait()
	logger.Ctx(ctx).Info().Msg("✅ Outbox relay stopped.")
}

// DispatchOnce 跑一轮认领+投递。单独暴露出来方便测试和手工触发。
func (r *Relay) DispatchOnce(ctx context.Context) {
	sent, err := r.store.DispatchBatch(ctx, time.Now(), r.batchSize, r.maxAttempts, func(ev *domain.OutboxEvent) (domain.Disposition, error) {
		publisher, ok := r.registry.Lookup(ev.Type)
		if !ok {
			// 没有对应的 publisher 说明部署配置有问题，行留在
			// PENDING 等运维处理，不计入失败重试
			logger.Ctx(ctx).Error().
				Str("event_id", ev.EventID).
				Str("type", ev.Type).
				Msg("No publisher registered for event type")
			return domain.DispositionSkip, nil
		}
		if err := publisher.Publish(ctx, []byte(ev.Payload)); err != nil {
			logger.Ctx(ctx).Warn().Err(err).
				Str("event_id", ev.EventID).
				Str("type", ev.Type).
				Int("retry_count", ev.RetryCount).
				Msg("Outbox publish failed, will retry with backoff")
			return domain.DispositionFailed, err
		}
		return domain.DispositionSent, nil
	})
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("Outbox dispatch batch failed")
		return
	}
	if sent > 0 {
		logger.Ctx(ctx).Info().Int("sent", sent).Msg("Outbox events dispatched")
	}
}
