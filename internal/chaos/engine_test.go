package chaos

import (
	"context"
	"testing"
	"time"

	"tradecore/internal/model"
	"tradecore/internal/og"
	"tradecore/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"
)

type collector struct {
	batches []Batch
}

func (c *collector) Publish(symbol string, ticks []model.PriceTick) error {
	c.batches = append(c.batches, Batch{Symbol: symbol, Ticks: ticks})
	return nil
}

func tick(ts int64) []model.PriceTick {
	return []model.PriceTick{{Symbol: "BTC/USDT", Price: decimal.NewFromInt(100), Volume: decimal.NewFromInt(1), Timestamp: ts}}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		desc string
		cfg  Config
	}{
		{desc: "drop", cfg: Config{DropRate: 1.5}},
		{desc: "duplicate", cfg: Config{DuplicateRate: -0.1}},
		{desc: "confirm", cfg: Config{ConfirmFailRate: 2}},
		{desc: "delay", cfg: Config{MaxDelay: -time.Second}},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := NewEngine(tc.cfg)
			assert.True(t, errors.Is(err, exception.ErrInvalidArgument), "%+v", err)
		})
	}
}

func TestEnabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.False(t, Config{ReorderWindow: 1}.Enabled())
	assert.True(t, Config{ReorderWindow: 2}.Enabled())
	assert.True(t, Config{ConfirmFailRate: 0.1}.Enabled())
}

func TestDropAndDuplicate(t *testing.T) {
	drop, err := NewEngine(Config{Seed: 1, DropRate: 1})
	require.NoError(t, err)
	out := &collector{}
	s := drop.Publisher(out)
	require.NoError(t, s.Publish("BTC/USDT", tick(1)))
	require.NoError(t, s.Flush())
	assert.Empty(t, out.batches)

	dup, err := NewEngine(Config{Seed: 1, DuplicateRate: 1})
	require.NoError(t, err)
	out = &collector{}
	s = dup.Publisher(out)
	require.NoError(t, s.Publish("BTC/USDT", tick(1)))
	assert.Len(t, out.batches, 2)
}

func TestReorderWindow(t *testing.T) {
	e, err := NewEngine(Config{Seed: 7, ReorderWindow: 3})
	require.NoError(t, err)

	out := &collector{}
	s := e.Publisher(out)
	require.NoError(t, s.Publish("BTC/USDT", tick(1)))
	require.NoError(t, s.Publish("BTC/USDT", tick(2)))
	assert.Empty(t, out.batches)

	require.NoError(t, s.Publish("BTC/USDT", tick(3)))
	assert.Len(t, out.batches, 1)

	require.NoError(t, s.Flush())
	require.Len(t, out.batches, 3)

	seen := map[int64]bool{}
	for _, b := range out.batches {
		seen[b.Ticks[0].Timestamp] = true
	}
	assert.Equal(t, map[int64]bool{1: true, 2: true, 3: true}, seen)
}

func TestDelayKeepsInput(t *testing.T) {
	e, err := NewEngine(Config{Seed: 3, MaxDelay: 50 * time.Millisecond})
	require.NoError(t, err)

	in := tick(1_000)
	for i := 0; i < 20; i++ {
		out := e.Process(Batch{Symbol: "BTC/USDT", Ticks: in})
		require.Len(t, out, 1)
		ts := out[0].Ticks[0].Timestamp
		assert.GreaterOrEqual(t, ts, int64(1_000))
		assert.LessOrEqual(t, ts, int64(1_050))
	}
	assert.Equal(t, int64(1_000), in[0].Timestamp)
}

func TestGateway(t *testing.T) {
	req := og.ConfirmRequest{
		Order: og.Order{ID: 1, Symbol: "BTC/USDT", Side: model.SideBuy, Quantity: decimal.NewFromInt(1)},
		Price: decimal.NewFromInt(100),
	}

	failing, err := NewEngine(Config{Seed: 1, ConfirmFailRate: 1})
	require.NoError(t, err)
	_, err = failing.Gateway(og.NewSimulatedGateway(decimal.Zero)).Confirm(context.Background(), req)
	assert.True(t, errors.Is(err, exception.ErrTransientConfirmation), "%+v", err)

	passing, err := NewEngine(Config{Seed: 1})
	require.NoError(t, err)
	fill, err := passing.Gateway(og.NewSimulatedGateway(decimal.Zero)).Confirm(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), fill.OrderID)
	assert.True(t, fill.Price.Equal(decimal.NewFromInt(100)))
}
