package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderPrefix(t *testing.T) {
	t.Run("prefix is normalized to a trailing separator", func(t *testing.T) {
		b := NewBuilder("prod")
		key, err := b.StockAvailable("P-100")
		require.NoError(t, err)
		assert.Equal(t, "prod:stock:available:P-100", key)
	})

	t.Run("trailing separator is not doubled", func(t *testing.T) {
		b := NewBuilder("prod:")
		key, err := b.StockAvailable("P-100")
		require.NoError(t, err)
		assert.Equal(t, "prod:stock:available:P-100", key)
	})

	t.Run("empty prefix means no environment isolation", func(t *testing.T) {
		b := NewBuilder("")
		key, err := b.CouponStock("C1")
		require.NoError(t, err)
		assert.Equal(t, "coupon:stock:C1", key)
	})
}

func TestBuilderRejectsBlankIDs(t *testing.T) {
	b := NewBuilder("test")

	_, err := b.StockAvailable("")
	assert.ErrorIs(t, err, ErrBlankID)

	_, err = b.StockHold("P-100", "  ")
	assert.ErrorIs(t, err, ErrBlankID)

	_, err = b.CouponIssued("", "u-1")
	assert.ErrorIs(t, err, ErrBlankID)

	_, err = b.EventStartFlag("\t")
	assert.ErrorIs(t, err, ErrBlankID)
}

func TestEventIDFromKey(t *testing.T) {
	b := NewBuilder("prod")
	key, err := b.EventStartFlag("evt-618")
	require.NoError(t, err)

	id, err := EventIDFromKey(key)
	require.NoError(t, err)
	assert.Equal(t, "evt-618", id)

	_, err = EventIDFromKey("prod:event:start:no-hashtag")
	assert.Error(t, err)

	_, err = EventIDFromKey("prod:event:start:{unterminated")
	assert.Error(t, err)

	_, err = EventIDFromKey("prod:event:start:{}")
	assert.ErrorIs(t, err, ErrBlankID)
}

func TestHoldMemberRoundTrip(t *testing.T) {
	member := HoldMember("P-100", "ord-1", 7)
	assert.Equal(t, "P-100|ord-1|7", member)
	assert.Equal(t, "P-100|ord-1|", HoldMemberPrefix("P-100", "ord-1"))

	sku, orderID, qty, err := ParseHoldMember(member)
	require.NoError(t, err)
	assert.Equal(t, "P-100", sku)
	assert.Equal(t, "ord-1", orderID)
	assert.Equal(t, int64(7), qty)

	_, _, _, err = ParseHoldMember("garbage")
	assert.Error(t, err)

	_, _, _, err = ParseHoldMember("P-100|ord-1|not-a-number")
	assert.Error(t, err)
}
