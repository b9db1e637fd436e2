// internal/pkg/mq/retry.go
package mq

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"promo/internal/pkg/errkind"
	"promo/internal/pkg/logger"
)

const (
	localMaxRetries       = 3
	localBaseDelay        = 100 * time.Millisecond
	localMaxDelay         = 2 * time.Second
	localJitter           = 0.2
	localBackoffMultipler = 2.0
)

// WithLocalRetry 是消费者内部的第一层重试：最多 3 次，指数退避
// （基础间隔 ×2^n，封顶），带 ±20% 抖动避免重试风暴。
// 不可重试的错误分类（业务冲突、对账异常等）立即返回，不消耗
// 重试预算。
func WithLocalRetry(ctx context.Context, op func(ctx context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = localBaseDelay
	bo.MaxInterval = localMaxDelay
	bo.Multiplier = localBackoffMultipler
	bo.RandomizationFactor = localJitter

	attempt := 0
	return backoff.Retry(func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		kind := errkind.Of(err)
		if !errkind.Retryable(kind) {
			return backoff.Permanent(err)
		}
		attempt++
		logger.Ctx(ctx).Warn().Err(err).
			Int("attempt", attempt).
			Str("kind", kind.String()).
			Msg("Transient failure, retrying locally")
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, localMaxRetries), ctx))
}
