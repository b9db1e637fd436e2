// internal/service/scheduler/application/recovery.go
package application

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"promo/internal/pkg/logger"
)

// RecoverySweeper 周期性执行兜底扫描。多实例部署安全：OpenEvent
// 内部有分布式锁和状态机去重。
type RecoverySweeper struct {
	svc      *SchedulerService
	interval time.Duration

	wg      sync.WaitGroup
	stopped atomic.Bool
}

func NewRecoverySweeper(svc *SchedulerService, interval time.Duration) *RecoverySweeper {
	return &RecoverySweeper{svc: svc, interval: interval}
}

func (s *RecoverySweeper) Start(ctx context.Context) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		logger.Ctx(ctx).Info().Dur("interval", s.interval).Msg("✅ Schedule recovery sweeper started.")
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if s.stopped.Load() {
					return
				}
				if err := s.svc.RecoverySweep(ctx, time.Now()); err != nil {
					logger.Ctx(ctx).Error().Err(err).Msg("Schedule recovery sweep failed")
				}
			case <-ctx.Done():
				logger.Ctx(ctx).Info().Msg("🛑 Schedule recovery sweeper shutting down.")
				return
			}
		}
	}()
	return nil
}

func (s *RecoverySweeper) Stop(ctx context.Context) {
	s.stopped.Store(true)
	s.wg.Wait()
	logger.Ctx(ctx).Info().Msg("✅ Schedule recovery sweeper stopped.")
}
