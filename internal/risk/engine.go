// Package risk gates new orders with static pre-trade limits.
package risk

import (
	"sync"
	"time"

	"tradecore/internal/og"
	"tradecore/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

var _bps = decimal.NewFromInt(10_000)

// Config defines simple risk limits. Zero values disable a limit.
type Config struct {
	KillSwitch           bool
	MaxOrderQty          decimal.Decimal
	MaxOrderNotional     decimal.Decimal
	OrderRateLimit       int
	OrderRateWindow      time.Duration
	MaxPriceDeviationBps int64
}

// Reason tells why an order was denied.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonKillSwitch
	ReasonRateLimit
	ReasonMaxQty
	ReasonPriceBand
	ReasonMaxNotional
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonKillSwitch:
		return "kill switch"
	case ReasonRateLimit:
		return "rate limit"
	case ReasonMaxQty:
		return "max quantity"
	case ReasonPriceBand:
		return "price band"
	case ReasonMaxNotional:
		return "max notional"
	default:
		return "unknown"
	}
}

// StateView is the market state an order is checked against.
type StateView struct {
	// ReferencePrice is the last traded price, zero when unknown.
	ReferencePrice decimal.Decimal
	// Now is unix ms.
	Now int64
}

// Engine evaluates risk decisions.
type Engine struct {
	mu              sync.Mutex
	cfg             Config
	rateWindowStart int64
	rateCount       int
}

// NewEngine creates a risk engine with static limits.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Update swaps the limits. The rate window restarts.
func (e *Engine) Update(cfg Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
	e.rateWindowStart = 0
	e.rateCount = 0
}

func (e *Engine) KillSwitch() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.KillSwitch
}

// Evaluate applies the limits to spec. Accepted orders count towards the rate limit.
func (e *Engine) Evaluate(spec og.OrderSpec, state StateView) Reason {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := state.Now
	if now == 0 {
		now = time.Now().UTC().UnixMilli()
	}

	if e.cfg.KillSwitch {
		return ReasonKillSwitch
	}

	if e.cfg.MaxOrderQty.IsPositive() && spec.Quantity.GreaterThan(e.cfg.MaxOrderQty) {
		return ReasonMaxQty
	}

	ref := state.ReferencePrice
	if e.cfg.MaxPriceDeviationBps > 0 && spec.LimitPrice.Valid && ref.IsPositive() {
		diff := spec.LimitPrice.Decimal.Sub(ref).Abs()
		if diff.Mul(_bps).GreaterThan(ref.Mul(decimal.NewFromInt(e.cfg.MaxPriceDeviationBps))) {
			return ReasonPriceBand
		}
	}

	if e.cfg.MaxOrderNotional.IsPositive() {
		if price := orderPrice(spec, ref); price.Mul(spec.Quantity).GreaterThan(e.cfg.MaxOrderNotional) {
			return ReasonMaxNotional
		}
	}

	if e.cfg.OrderRateLimit > 0 && e.cfg.OrderRateWindow > 0 {
		window := e.cfg.OrderRateWindow.Milliseconds()
		if e.rateWindowStart == 0 || now-e.rateWindowStart >= window {
			e.rateWindowStart = now
			e.rateCount = 0
		}
		if e.rateCount >= e.cfg.OrderRateLimit {
			return ReasonRateLimit
		}
		e.rateCount++
	}

	return ReasonNone
}

// Check is Evaluate as an error wrapping exception.ErrRiskDenied.
func (e *Engine) Check(spec og.OrderSpec, state StateView) error {
	if reason := e.Evaluate(spec, state); reason != ReasonNone {
		return errors.Wrapf(exception.ErrRiskDenied, "%s %s %s: %s", spec.Side, spec.Type, spec.Symbol, reason)
	}
	return nil
}

// orderPrice is the price an order is expected to trade at.
func orderPrice(spec og.OrderSpec, ref decimal.Decimal) decimal.Decimal {
	switch {
	case spec.LimitPrice.Valid:
		return spec.LimitPrice.Decimal
	case spec.TriggerPrice.Valid:
		return spec.TriggerPrice.Decimal
	default:
		return ref
	}
}
