package pricefeed

import (
	"context"
	"sync"
	"testing"
	"time"

	"tradecore/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	batches [][]model.PriceTick
}

func (r *recorder) OnPrices(_ string, ticks []model.PriceTick) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, ticks)
	return nil
}

func (r *recorder) prices() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int64
	for _, b := range r.batches {
		for _, t := range b {
			out = append(out, t.Price.IntPart())
		}
	}
	return out
}

type watcherStub struct {
	mu    sync.Mutex
	calls [][]string
}

func (w *watcherStub) Watch(_ context.Context, symbols []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, symbols)
	return nil
}

func (w *watcherStub) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.calls)
}

func ticks(symbol string, prices ...int64) []model.PriceTick {
	out := make([]model.PriceTick, 0, len(prices))
	for i, p := range prices {
		out = append(out, model.PriceTick{
			Symbol:    symbol,
			Price:     decimal.NewFromInt(p),
			Volume:    decimal.NewFromInt(1),
			Timestamp: int64(i + 1),
		})
	}
	return out
}

func TestSubscribeIdempotent(t *testing.T) {
	d := NewDistributor()
	r := &recorder{}
	require.NoError(t, d.Subscribe("BTC/USDT", r))
	require.NoError(t, d.Subscribe("BTC/USDT", r))
	assert.Equal(t, 1, d.Subscribers("BTC/USDT"))

	require.NoError(t, d.Publish("BTC/USDT", ticks("BTC/USDT", 1, 2)))
	assert.Equal(t, []int64{1, 2}, r.prices())

	d.Unsubscribe("BTC/USDT", r)
	d.Unsubscribe("BTC/USDT", r)
	assert.Equal(t, 0, d.Subscribers("BTC/USDT"))

	require.NoError(t, d.Publish("BTC/USDT", ticks("BTC/USDT", 3)))
	assert.Equal(t, []int64{1, 2}, r.prices())

	require.Error(t, d.Subscribe("BTCUSDT", r))
	require.Error(t, d.Subscribe("BTC/USDT", nil))
}

func TestPublishKeepsOrderPerSymbol(t *testing.T) {
	d := NewDistributor()
	btc, eth := &recorder{}, &recorder{}
	require.NoError(t, d.Subscribe("BTC/USDT", btc))
	require.NoError(t, d.Subscribe("ETH/USDT", eth))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range int64(100) {
			assert.NoError(t, d.Publish("BTC/USDT", ticks("BTC/USDT", i)))
		}
	}()
	go func() {
		defer wg.Done()
		for i := range int64(100) {
			assert.NoError(t, d.Publish("ETH/USDT", ticks("ETH/USDT", i)))
		}
	}()
	wg.Wait()

	for _, r := range []*recorder{btc, eth} {
		got := r.prices()
		require.Len(t, got, 100)
		for i, p := range got {
			assert.Equal(t, int64(i), p)
		}
	}
}

func TestPublishDeliversEmptyBatch(t *testing.T) {
	d := NewDistributor()
	r := &recorder{}
	require.NoError(t, d.Subscribe("BTC/USDT", r))
	require.NoError(t, d.Publish("BTC/USDT", nil))
	assert.Len(t, r.batches, 1)
	assert.Empty(t, d.Watched())
}

func TestRequestWatchDeduplicates(t *testing.T) {
	d := NewDistributor()
	d.RequestWatch("XRP/USDT")
	d.RequestWatch("XRP/USDT")
	d.RequestWatch("XRP/USDT", "XRP/USDT")
	assert.Equal(t, 1, d.PendingWatchRequests())
	assert.Equal(t, []string{"XRP/USDT"}, d.InFlight())

	require.NoError(t, d.Publish("XRP/USDT", ticks("XRP/USDT", 1)))
	assert.Empty(t, d.InFlight())
	assert.Equal(t, []string{"XRP/USDT"}, d.Watched())

	d.RequestWatch("XRP/USDT")
	assert.Equal(t, 1, d.PendingWatchRequests())
}

func TestRequestWatchDropsWhenFull(t *testing.T) {
	d := NewDistributor(WithWatchQueueSize(1))
	d.RequestWatch("A/USDT")
	d.RequestWatch("B/USDT")
	assert.Equal(t, 1, d.PendingWatchRequests())
	assert.Equal(t, []string{"A/USDT"}, d.InFlight())
}

func TestRunForwardsRequests(t *testing.T) {
	d := NewDistributor()
	w := &watcherStub{}
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- d.Run(ctx, w)
	}()

	d.RequestWatch("ADA/USDT")
	assert.Eventually(t, func() bool { return w.count() == 1 }, time.Second, 5*time.Millisecond)

	d.Close()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not stop after close")
	}
}
