package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promo/internal/service/promotion/domain"
)

func TestEvaluate(t *testing.T) {
	engine, err := NewCELRuleEngineAdapter()
	require.NoError(t, err)

	t.Run("empty rule admits everyone", func(t *testing.T) {
		ok, err := engine.Evaluate("", domain.Fact{UserID: "u-1"})
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("vip gate", func(t *testing.T) {
		ok, err := engine.Evaluate("isVip == true", domain.Fact{UserID: "u-1", IsVip: true})
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = engine.Evaluate("isVip == true", domain.Fact{UserID: "u-1", IsVip: false})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("string functions work on the user id", func(t *testing.T) {
		ok, err := engine.Evaluate(`userId.startsWith("vip-")`, domain.Fact{UserID: "vip-42"})
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("broken rule is a hard error", func(t *testing.T) {
		_, err := engine.Evaluate("this is not CEL", domain.Fact{UserID: "u-1"})
		assert.Error(t, err)
	})

	t.Run("non-boolean rule is rejected", func(t *testing.T) {
		_, err := engine.Evaluate(`userId`, domain.Fact{UserID: "u-1"})
		assert.Error(t, err)
	})
}
