package portfolio

import (
	"testing"

	"tradecore/internal/pricefeed"
	"tradecore/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"
)

func newHolder(t *testing.T, totals map[string]string, opts ...Option) (*Portfolio, *ValueHolder) {
	t.Helper()
	amounts := make(map[string]decimal.Decimal, len(totals))
	for c, v := range totals {
		amounts[c] = dec(v)
	}
	p, err := NewPortfolio(amounts)
	require.NoError(t, err)
	return p, NewValueHolder("USDT", p, opts...)
}

func assertNear(t *testing.T, want, got decimal.Decimal, tolerance string) {
	t.Helper()
	assert.Truef(t, got.Sub(want).Abs().LessThanOrEqual(dec(tolerance)), "want %s, got %s", want, got)
}

func TestCurrentValueAndHoldingRatio(t *testing.T) {
	_, h := newHolder(t, map[string]string{"BTC": "10", "USDT": "1000"}, WithMode(ModeSimulated))
	h.UpdatePrice("BTC/USDT", dec("1000"))

	assert.True(t, h.CurrentValue().Equal(dec("11000")))
	assertNear(t, dec("0.90909091"), h.HoldingRatio("BTC"), "0.00000001")
	assertNear(t, dec("0.09090909"), h.HoldingRatio("USDT"), "0.00000001")
	assert.True(t, h.HoldingRatio("ETH").IsZero())
}

func TestHoldingRatioZeroValue(t *testing.T) {
	_, h := newHolder(t, map[string]string{}, WithMode(ModeSimulated))
	assert.True(t, h.CurrentValue().IsZero())
	assert.True(t, h.HoldingRatio("USDT").IsZero())
}

func TestHoldingRatiosSumToOne(t *testing.T) {
	_, h := newHolder(t, map[string]string{
		"BTC":  "0.5",
		"ETH":  "3",
		"EUR":  "200",
		"USDT": "1234.5",
		"DOGE": "0",
	}, WithMode(ModeSimulated))
	h.UpdatePrice("BTC/USDT", dec("30000"))
	h.UpdatePrice("ETH/USDT", dec("1800.25"))
	h.UpdatePrice("USDT/EUR", dec("0.92"))

	sum := decimal.Zero
	for _, c := range []string{"BTC", "ETH", "EUR", "USDT"} {
		sum = sum.Add(h.HoldingRatio(c))
	}
	assertNear(t, decimal.NewFromInt(1), sum, "0.0000000001")
	assert.Empty(t, h.Missing())

	values := h.HoldingsValues()
	assert.True(t, values["BTC"].Equal(dec("15000")))
	assert.True(t, values["ETH"].Equal(dec("5400.75")))
}

func TestEvaluateValueReferenceIdentity(t *testing.T) {
	_, h := newHolder(t, nil, WithMode(ModeLive))
	for _, q := range []string{"0", "1", "123.456789", "0.00000001"} {
		v, err := h.EvaluateValue("USDT", dec(q))
		require.NoError(t, err)
		assert.True(t, v.Equal(dec(q)))
	}

	v, err := h.EvaluateValue("XRP", decimal.Zero)
	require.NoError(t, err)
	assert.True(t, v.IsZero())
	assert.Empty(t, h.Missing())
}

func TestEvaluateValueInversePair(t *testing.T) {
	_, h := newHolder(t, nil, WithMode(ModeLive))
	h.UpdatePrice("USDT/EUR", dec("0.8"))
	v, err := h.EvaluateValue("EUR", dec("8"))
	require.NoError(t, err)
	assert.True(t, v.Equal(dec("10")))
}

func TestLiveMissingPriceRequestsWatchOnce(t *testing.T) {
	dist := pricefeed.NewDistributor()
	_, h := newHolder(t, map[string]string{"XRP": "5"}, WithMode(ModeLive), WithWatchRequester(dist))

	_, err := h.EvaluateValue("XRP", dec("5"))
	assert.True(t, errors.Is(err, exception.ErrDataUnavailable))
	assert.Equal(t, 1, dist.PendingWatchRequests())
	assert.Equal(t, []string{"XRP/USDT"}, dist.InFlight())
	assert.Equal(t, []string{"XRP"}, h.Missing())
	assert.Equal(t, []string{"XRP"}, h.Initializing())

	_, err = h.EvaluateValue("XRP", dec("5"))
	assert.True(t, errors.Is(err, exception.ErrDataUnavailable))
	assert.Equal(t, 1, dist.PendingWatchRequests())

	h.UpdatePrice("XRP/USDT", dec("0.5"))
	v, err := h.EvaluateValue("XRP", dec("5"))
	require.NoError(t, err)
	assert.True(t, v.Equal(dec("2.5")))
	assert.Empty(t, h.Missing())
	assert.Empty(t, h.Initializing())
}

type watchCounter struct {
	requests [][]string
}

func (w *watchCounter) RequestWatch(symbols ...string) {
	w.requests = append(w.requests, symbols)
}

func TestMissingPriceUsesListedMarket(t *testing.T) {
	w := &watchCounter{}
	_, h := newHolder(t, map[string]string{"EUR": "10"}, WithMode(ModeSimulated), WithWatchRequester(w), WithMarkets("USDT/EUR", "BTC/USDT"))

	v, err := h.EvaluateValue("EUR", dec("10"))
	require.NoError(t, err)
	assert.True(t, v.IsZero())
	require.Len(t, w.requests, 1)
	assert.Equal(t, []string{"USDT/EUR"}, w.requests[0])

	_, err = h.EvaluateValue("JPY", dec("10"))
	require.NoError(t, err)
	assert.Len(t, w.requests, 1)
}

func TestBacktestingMissingPriceIsSilent(t *testing.T) {
	w := &watchCounter{}
	_, h := newHolder(t, map[string]string{"ETH": "2", "USDT": "10"}, WithMode(ModeBacktesting), WithWatchRequester(w))

	assert.True(t, h.CurrentValue().Equal(dec("10")))
	assert.Equal(t, []string{"ETH"}, h.Missing())
	assert.Empty(t, w.requests)
}

func TestOriginValueFollowsPriceCoverage(t *testing.T) {
	p, h := newHolder(t, map[string]string{"BTC": "1", "ETH": "10", "USDT": "500"}, WithMode(ModeSimulated))
	_, err := h.OriginPortfolioCurrentValue(false)
	assert.True(t, errors.Is(err, exception.ErrOriginNotInitialized))

	h.UpdatePrice("BTC/USDT", dec("20000"))
	h.Initialize()
	assert.True(t, h.OriginValue().Equal(dec("20500")), h.OriginValue().String())

	assert.True(t, h.UpdatePrice("ETH/USDT", dec("1000")))
	assert.True(t, h.OriginValue().Equal(dec("30500")), h.OriginValue().String())

	assert.False(t, h.UpdatePrice("ETH/USDT", dec("2000")))
	assert.True(t, h.OriginValue().Equal(dec("30500")))
	assert.True(t, h.CurrentValue().Equal(dec("40500")))

	gain, percent := h.Profitability()
	assert.True(t, gain.Equal(dec("10000")))
	assert.True(t, percent.IsPositive())

	originNow, err := h.OriginPortfolioCurrentValue(true)
	require.NoError(t, err)
	assert.True(t, originNow.Equal(dec("40500")))

	require.NoError(t, p.Deposit("USDT", dec("1000")))
	h.HandleProfitabilityRecalculation(true)
	assert.True(t, h.OriginValue().Equal(dec("30500")))
	assert.True(t, h.CurrentValue().Equal(dec("41500")))
}
