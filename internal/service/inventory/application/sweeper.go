// internal/service/inventory/application/sweeper.go
package application

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"promo/internal/pkg/logger"
)

// HoldSweeper 周期性回收静默过期的预占。多实例部署安全：单条回收
// 是原子脚本，重复枚举到同一成员时只有一个实例能回收成功。
type HoldSweeper struct {
	svc      *ReservationService
	interval time.Duration

	wg      sync.WaitGroup
	stopped atomic.Bool
}

func NewHoldSweeper(svc *ReservationService, interval time.Duration) *HoldSweeper {
	return &HoldSweeper{svc: svc, interval: interval}
}

func (s *HoldSweeper) Start(ctx context.Context) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		logger.Ctx(ctx).Info().Dur("interval", s.interval).Msg("✅ Expired hold sweeper started.")
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if s.stopped.Load() {
					return
				}
				if _, err := s.svc.SweepExpiredHolds(ctx, time.Now()); err != nil {
					logger.Ctx(ctx).Error().Err(err).Msg("Expired hold sweep failed")
				}
			case <-ctx.Done():
				logger.Ctx(ctx).Info().Msg("🛑 Expired hold sweeper shutting down.")
				return
			}
		}
	}()
	return nil
}

func (s *HoldSweeper) Stop(ctx context.Context) {
	s.stopped.Store(true)
	s.wg.Wait()
	logger.Ctx(ctx).Info().Msg("✅ Expired hold sweeper stopped.")
}
