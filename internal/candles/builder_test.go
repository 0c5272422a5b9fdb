package candles

import (
	"testing"

	"tradecore/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderEmitsOnBoundary(t *testing.T) {
	var closed []model.Candle
	b := NewBuilder("BTC/USDT", model.TimeFrame1m, func(c model.Candle) {
		closed = append(closed, c)
	})

	require.NoError(t, b.OnPrices("BTC/USDT", []model.PriceTick{
		*tick("100", "1", 1_000),
		*tick("105", "1", 20_000),
		*tick("98", "1", 59_999),
	}))
	assert.Empty(t, closed)

	require.NoError(t, b.OnPrices("BTC/USDT", []model.PriceTick{
		*tick("99", "3", 180_500),
	}))
	require.Len(t, closed, 1)

	first := closed[0]
	assert.Equal(t, int64(0), first.OpenTime)
	assert.Equal(t, int64(60_000), first.CloseTime)
	assert.True(t, first.Open.Decimal.Equal(decimal.NewFromInt(100)))
	assert.True(t, first.High.Decimal.Equal(decimal.NewFromInt(105)))
	assert.True(t, first.Low.Decimal.Equal(decimal.NewFromInt(98)))
	assert.True(t, first.Close.Decimal.Equal(decimal.NewFromInt(98)))
	assert.True(t, first.Volume.Decimal.Equal(decimal.NewFromInt(3)))

	current := b.Current()
	assert.Equal(t, int64(180_000), current.OpenTime)
	assert.True(t, current.Open.Decimal.Equal(decimal.NewFromInt(98)))
	assert.True(t, current.Close.Decimal.Equal(decimal.NewFromInt(99)))
	assert.True(t, current.Volume.Decimal.Equal(decimal.NewFromInt(3)))

	require.NoError(t, b.OnPrices("BTC/USDT", []model.PriceTick{*tick("97", "1", 100)}))
	assert.Len(t, closed, 1)
	assert.True(t, b.Current().Low.Decimal.Equal(decimal.NewFromInt(97)))
}

func TestBuilderSkipsEmptyTicks(t *testing.T) {
	b := NewBuilder("BTC/USDT", model.TimeFrame1m, nil)
	require.NoError(t, b.OnPrices("BTC/USDT", []model.PriceTick{{}}))
	assert.False(t, b.Current().Close.Valid)

	require.NoError(t, b.OnPrices("BTC/USDT", []model.PriceTick{*tick("100", "1", 120_500), {}}))
	current := b.Current()
	assert.Equal(t, int64(120_000), current.OpenTime)
	assert.True(t, current.Low.Decimal.Equal(decimal.NewFromInt(100)))
	assert.True(t, current.Volume.Decimal.Equal(decimal.NewFromInt(1)))
}
