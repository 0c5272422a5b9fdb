// Package portfolio tracks holdings and values them in a reference currency.
package portfolio

import (
	"maps"
	"slices"
	"sync"

	"tradecore/internal/model"
	"tradecore/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

// Asset is the balance of one currency.
type Asset struct {
	Total     decimal.Decimal
	Available decimal.Decimal
}

// Snapshot maps currency to balance.
type Snapshot map[string]Asset

// Clone returns an independent copy.
func (s Snapshot) Clone() Snapshot {
	return maps.Clone(s)
}

// Currencies returns the currencies in lexical order.
func (s Snapshot) Currencies() []string {
	return slices.Sorted(maps.Keys(s))
}

// Portfolio holds the current balances and applies fills to them.
type Portfolio struct {
	mu     sync.RWMutex
	assets map[string]Asset
}

// NewPortfolio returns a portfolio holding totals, all available.
func NewPortfolio(totals map[string]decimal.Decimal) (*Portfolio, error) {
	p := &Portfolio{assets: make(map[string]Asset, len(totals))}
	for currency, total := range totals {
		if total.IsNegative() {
			return nil, errors.Wrapf(exception.ErrNegativeAmount, "initial %s balance %s", currency, total)
		}
		p.assets[currency] = Asset{Total: total, Available: total}
	}
	return p, nil
}

// Snapshot returns a copy of the balances.
func (p *Portfolio) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return maps.Clone(p.assets)
}

// Total returns the total balance of currency.
func (p *Portfolio) Total(currency string) decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.assets[currency].Total
}

// ApplyFill moves the base and quote balances of a fill and debits its fee.
// Conversion fills are ignored. A fill that would make a balance negative is
// rejected without changing anything.
func (p *Portfolio) ApplyFill(fill model.Fill) error {
	if fill.Conversion {
		return nil
	}
	base, quote, ok := model.SplitSymbol(fill.Symbol)
	if !ok {
		return errors.Wrapf(exception.ErrInvalidSymbol, "fill of order %d on %q", fill.OrderID, fill.Symbol)
	}

	deltas := make(map[string]decimal.Decimal, 3)
	cost := fill.Cost()
	switch fill.Side {
	case model.SideBuy:
		deltas[base] = fill.Quantity
		deltas[quote] = cost.Neg()
	case model.SideSell:
		deltas[base] = fill.Quantity.Neg()
		deltas[quote] = cost
	default:
		return errors.Wrapf(exception.ErrInvalidArgument, "fill of order %d has no side", fill.OrderID)
	}
	if fill.Fee.IsPositive() {
		feeCurrency := fill.FeeCurrency
		if feeCurrency == "" {
			feeCurrency = quote
		}
		deltas[feeCurrency] = deltas[feeCurrency].Sub(fill.Fee)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.applyLocked(deltas)
}

// Deposit credits amount to currency.
func (p *Portfolio) Deposit(currency string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.Wrapf(exception.ErrNegativeAmount, "deposit %s %s", amount, currency)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.applyLocked(map[string]decimal.Decimal{currency: amount})
}

// Withdraw debits amount from currency.
func (p *Portfolio) Withdraw(currency string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.Wrapf(exception.ErrNegativeAmount, "withdraw %s %s", amount, currency)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.applyLocked(map[string]decimal.Decimal{currency: amount.Neg()})
}

func (p *Portfolio) applyLocked(deltas map[string]decimal.Decimal) error {
	next := make(map[string]Asset, len(deltas))
	for currency, delta := range deltas {
		a := p.assets[currency]
		a.Total = a.Total.Add(delta)
		a.Available = a.Available.Add(delta)
		if a.Total.IsNegative() || a.Available.IsNegative() {
			return errors.Wrapf(exception.ErrInsufficientFunds, "%s balance %s cannot absorb %s", currency, p.assets[currency].Total, delta)
		}
		next[currency] = a
	}
	maps.Copy(p.assets, next)
	return nil
}
