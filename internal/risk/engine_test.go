package risk

import (
	"testing"
	"time"

	"tradecore/internal/model"
	"tradecore/internal/og"
	"tradecore/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/yanun0323/errors"
)

func limitBuy(qty, price string) og.OrderSpec {
	return og.OrderSpec{
		Symbol:     "BTC/USDT",
		Side:       model.SideBuy,
		Type:       og.OrderTypeBuyLimit,
		Quantity:   decimal.RequireFromString(qty),
		LimitPrice: decimal.NewNullDecimal(decimal.RequireFromString(price)),
	}
}

func TestEvaluate(t *testing.T) {
	ref := StateView{ReferencePrice: decimal.NewFromInt(100), Now: 1_000}

	testCases := []struct {
		desc   string
		cfg    Config
		spec   og.OrderSpec
		state  StateView
		reason Reason
	}{
		{desc: "no limits", spec: limitBuy("1", "100"), state: ref, reason: ReasonNone},
		{desc: "kill switch", cfg: Config{KillSwitch: true}, spec: limitBuy("1", "100"), state: ref, reason: ReasonKillSwitch},
		{desc: "max qty", cfg: Config{MaxOrderQty: decimal.NewFromInt(2)}, spec: limitBuy("3", "100"), state: ref, reason: ReasonMaxQty},
		{desc: "qty at max", cfg: Config{MaxOrderQty: decimal.NewFromInt(2)}, spec: limitBuy("2", "100"), state: ref, reason: ReasonNone},
		{desc: "price band", cfg: Config{MaxPriceDeviationBps: 500}, spec: limitBuy("1", "94"), state: ref, reason: ReasonPriceBand},
		{desc: "inside band", cfg: Config{MaxPriceDeviationBps: 500}, spec: limitBuy("1", "95"), state: ref, reason: ReasonNone},
		{desc: "band without reference", cfg: Config{MaxPriceDeviationBps: 500}, spec: limitBuy("1", "50"), reason: ReasonNone},
		{desc: "max notional", cfg: Config{MaxOrderNotional: decimal.NewFromInt(1000)}, spec: limitBuy("11", "100"), state: ref, reason: ReasonMaxNotional},
		{desc: "market notional uses reference", cfg: Config{MaxOrderNotional: decimal.NewFromInt(1000)},
			spec: og.OrderSpec{Symbol: "BTC/USDT", Side: model.SideSell, Type: og.OrderTypeMarket, Quantity: decimal.NewFromInt(11)},
			state: ref, reason: ReasonMaxNotional},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.reason, NewEngine(tc.cfg).Evaluate(tc.spec, tc.state))
		})
	}
}

func TestRateLimit(t *testing.T) {
	e := NewEngine(Config{OrderRateLimit: 2, OrderRateWindow: time.Second})
	spec := limitBuy("1", "100")

	assert.Equal(t, ReasonNone, e.Evaluate(spec, StateView{Now: 1_000}))
	assert.Equal(t, ReasonNone, e.Evaluate(spec, StateView{Now: 1_100}))
	assert.Equal(t, ReasonRateLimit, e.Evaluate(spec, StateView{Now: 1_200}))
	assert.Equal(t, ReasonRateLimit, e.Evaluate(spec, StateView{Now: 1_999}))
	assert.Equal(t, ReasonNone, e.Evaluate(spec, StateView{Now: 2_000}))

	e.Update(Config{KillSwitch: true})
	assert.True(t, e.KillSwitch())
	err := e.Check(spec, StateView{Now: 2_100})
	assert.True(t, errors.Is(err, exception.ErrRiskDenied))
	assert.Equal(t, "kill switch", e.Evaluate(spec, StateView{}).String())

	e.Update(Config{})
	assert.NoError(t, e.Check(spec, StateView{}))
}
