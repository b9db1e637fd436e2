package mq

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"promo/internal/pkg/errkind"
)

func TestWithLocalRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("transient failures are retried until success", func(t *testing.T) {
		calls := 0
		err := WithLocalRetry(ctx, func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return errkind.Wrap(errkind.KindTransient, errors.New("db down"))
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("budget is bounded", func(t *testing.T) {
		calls := 0
		err := WithLocalRetry(ctx, func(ctx context.Context) error {
			calls++
			return errkind.Wrap(errkind.KindTransient, errors.New("db down"))
		})
		assert.Error(t, err)
		assert.Equal(t, 4, calls, "initial attempt plus three retries")
	})

	t.Run("business errors do not consume the budget", func(t *testing.T) {
		calls := 0
		sentinel := errors.New("duplicate")
		err := WithLocalRetry(ctx, func(ctx context.Context) error {
			calls++
			return errkind.Wrap(errkind.KindConflict, sentinel)
		})
		assert.ErrorIs(t, err, sentinel)
		assert.Equal(t, 1, calls)
	})
}
