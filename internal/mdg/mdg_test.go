package mdg

import (
	"testing"
	"time"

	"tradecore/internal/model"
	"tradecore/internal/obs"
	"tradecore/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"
)

func TestNormalize(t *testing.T) {
	metrics := obs.NewMetrics()
	n := NewNormalizer(metrics, "BTC/USDT")

	tick, err := n.Normalize(RawTick{
		Symbol:  "BTC/USDT",
		Price:   "42000.5",
		Volume:  "0.25",
		Side:    "SELL",
		TsEvent: 1_000,
		TsRecv:  1_004,
	})
	require.NoError(t, err)
	assert.Equal(t, "BTC/USDT", tick.Symbol)
	assert.True(t, tick.Price.Equal(decimal.RequireFromString("42000.5")))
	assert.True(t, tick.Volume.Equal(decimal.RequireFromString("0.25")))
	assert.Equal(t, model.SideSell, tick.Side)
	assert.Equal(t, int64(1_000), tick.Timestamp)
	assert.Equal(t, uint64(1), metrics.Count(obs.CounterTicks))

	tick, err = n.Normalize(RawTick{Symbol: "BTC/USDT", Price: "1", TsRecv: 77})
	require.NoError(t, err)
	assert.Equal(t, int64(77), tick.Timestamp)
	assert.True(t, tick.Volume.IsZero())
	assert.Equal(t, model.SideUnknown, tick.Side)
}

func TestNormalizeRejects(t *testing.T) {
	n := NewNormalizer(nil, "BTC/USDT")

	testCases := []struct {
		desc string
		tick RawTick
		err  error
	}{
		{desc: "malformed symbol", tick: RawTick{Symbol: "BTCUSDT", Price: "1"}, err: exception.ErrInvalidSymbol},
		{desc: "unknown symbol", tick: RawTick{Symbol: "ETH/USDT", Price: "1"}, err: exception.ErrUnknownSymbol},
		{desc: "bad price", tick: RawTick{Symbol: "BTC/USDT", Price: "abc"}, err: exception.ErrValidation},
		{desc: "zero price", tick: RawTick{Symbol: "BTC/USDT", Price: "0"}, err: exception.ErrValidation},
		{desc: "negative volume", tick: RawTick{Symbol: "BTC/USDT", Price: "1", Volume: "-1"}, err: exception.ErrValidation},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := n.Normalize(tc.tick)
			assert.True(t, errors.Is(err, tc.err), "%+v", err)
		})
	}

	_, err := NewNormalizer(nil).Normalize(RawTick{Symbol: "ETH/USDT", Price: "1"})
	assert.NoError(t, err)
}

func TestGenerator(t *testing.T) {
	_, err := NewGenerator(nil, decimal.NewFromInt(100), decimal.NewFromInt(1), decimal.Zero, 1)
	assert.True(t, errors.Is(err, exception.ErrInvalidArgument))

	_, err = NewGenerator([]string{"BTC"}, decimal.NewFromInt(100), decimal.NewFromInt(1), decimal.Zero, 1)
	assert.True(t, errors.Is(err, exception.ErrInvalidSymbol))

	symbols := []string{"BTC/USDT", "ETH/USDT"}
	g, err := NewGenerator(symbols, decimal.NewFromInt(100), decimal.NewFromInt(2), decimal.Zero, 42)
	require.NoError(t, err)

	n := NewNormalizer(nil, symbols...)
	last := map[string]decimal.Decimal{"BTC/USDT": decimal.NewFromInt(100), "ETH/USDT": decimal.NewFromInt(100)}
	now := time.UnixMilli(1_700_000_000_000)

	for i := 0; i < 200; i++ {
		raw := g.Next(now)
		assert.Equal(t, symbols[i%2], raw.Symbol)

		tick, err := n.Normalize(raw)
		require.NoError(t, err)
		assert.True(t, tick.Price.IsPositive())
		assert.True(t, tick.Price.Sub(last[raw.Symbol]).Abs().LessThanOrEqual(decimal.NewFromInt(2)))
		assert.True(t, tick.Volume.Equal(decimal.NewFromInt(1)))
		assert.Equal(t, now.UnixMilli(), tick.Timestamp)
		last[raw.Symbol] = tick.Price
	}

	again, err := NewGenerator(symbols, decimal.NewFromInt(100), decimal.NewFromInt(2), decimal.Zero, 42)
	require.NoError(t, err)
	g2, err := NewGenerator(symbols, decimal.NewFromInt(100), decimal.NewFromInt(2), decimal.Zero, 42)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		assert.Equal(t, again.Next(now), g2.Next(now))
	}
}
