package portfolio

import (
	"maps"
	"slices"
	"sync"

	"tradecore/internal/model"
	"tradecore/internal/obs"
	"tradecore/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

var one = decimal.NewFromInt(1)

// Holdings provides the current balances.
type Holdings interface {
	Snapshot() Snapshot
}

// WatchRequester starts price production for more symbols without blocking.
type WatchRequester interface {
	RequestWatch(symbols ...string)
}

// ValueHolder values the origin and current portfolio in the reference
// currency. Every cache is guarded by one lock so readers never observe a
// half-applied price update.
type ValueHolder struct {
	reference string
	mode      Mode
	holdings  Holdings
	watcher   WatchRequester
	markets   map[string]struct{}
	metrics   *obs.Metrics

	mu            sync.RWMutex
	origin        Snapshot
	originValue   decimal.Decimal
	currentValue  decimal.Decimal
	lastPrices    map[string]decimal.Decimal
	originValues  map[string]decimal.Decimal
	currentValues map[string]decimal.Decimal
	missing       map[string]struct{}
	initializing  map[string]struct{}
}

// Option customizes a ValueHolder.
type Option func(*ValueHolder)

func WithMode(m Mode) Option {
	return func(h *ValueHolder) {
		h.mode = m
	}
}

func WithWatchRequester(w WatchRequester) Option {
	return func(h *ValueHolder) {
		h.watcher = w
	}
}

// WithMarkets restricts price lookups to the symbols the exchange lists.
func WithMarkets(symbols ...string) Option {
	return func(h *ValueHolder) {
		h.markets = make(map[string]struct{}, len(symbols))
		for _, s := range symbols {
			h.markets[s] = struct{}{}
		}
	}
}

func WithMetrics(m *obs.Metrics) Option {
	return func(h *ValueHolder) {
		h.metrics = m
	}
}

func NewValueHolder(reference string, holdings Holdings, opts ...Option) *ValueHolder {
	h := &ValueHolder{
		reference:     reference,
		holdings:      holdings,
		lastPrices:    make(map[string]decimal.Decimal),
		originValues:  make(map[string]decimal.Decimal),
		currentValues: make(map[string]decimal.Decimal),
		missing:       make(map[string]struct{}),
		initializing:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Reference returns the reference currency.
func (h *ValueHolder) Reference() string {
	return h.reference
}

// OnPrices records the last price of a batch.
func (h *ValueHolder) OnPrices(symbol string, ticks []model.PriceTick) error {
	if len(ticks) == 0 {
		return nil
	}
	h.UpdatePrice(symbol, ticks[len(ticks)-1].Price)
	return nil
}

// UpdatePrice records the latest price of symbol. It returns true when the
// price gives a first origin value to a currency, in which case the origin
// valuation is recomputed.
func (h *ValueHolder) UpdatePrice(symbol string, price decimal.Decimal) bool {
	base, quote, ok := model.SplitSymbol(symbol)
	if !ok {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	updated := false
	switch {
	case quote == h.reference:
		if _, known := h.originValues[base]; !known {
			h.originValues[base] = price
			updated = true
		}
		delete(h.missing, base)
	case base == h.reference && !price.IsZero():
		if _, known := h.originValues[quote]; !known {
			h.originValues[quote] = one.Div(price)
			updated = true
		}
		delete(h.missing, quote)
	}
	h.lastPrices[symbol] = price
	delete(h.currentValues, base)
	delete(h.currentValues, quote)

	if updated && h.origin != nil {
		h.recomputeOriginLocked()
	}
	return updated
}

// LastPrice returns the last recorded price of symbol.
func (h *ValueHolder) LastPrice(symbol string) (decimal.Decimal, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.lastPrices[symbol]
	return p, ok
}

// EvaluateValue converts quantity of currency into the reference currency.
func (h *ValueHolder) EvaluateValue(currency string, quantity decimal.Decimal) (decimal.Decimal, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, _, err := h.evaluateLocked(currency, quantity)
	return v, err
}

func (h *ValueHolder) hasMarket(symbol string) bool {
	if h.markets == nil {
		return true
	}
	_, ok := h.markets[symbol]
	return ok
}

// evaluateLocked reports whether a price path exists. Without one the value is
// zero, and in live mode the error wraps exception.ErrDataUnavailable.
func (h *ValueHolder) evaluateLocked(currency string, quantity decimal.Decimal) (decimal.Decimal, bool, error) {
	if currency == h.reference || quantity.IsZero() {
		return quantity, true, nil
	}

	direct := model.MergeCurrencies(currency, h.reference)
	inverse := model.MergeCurrencies(h.reference, currency)
	if p, ok := h.lastPrices[direct]; ok && h.hasMarket(direct) {
		return h.initialized(currency, p.Mul(quantity)), true, nil
	}
	if p, ok := h.lastPrices[inverse]; ok && !p.IsZero() && h.hasMarket(inverse) {
		return h.initialized(currency, quantity.Div(p)), true, nil
	}

	if _, seen := h.missing[currency]; !seen {
		h.missing[currency] = struct{}{}
		h.metrics.Inc(obs.CounterValuationMisses)
		if h.mode != ModeBacktesting {
			logs.Infof("no price between %s and %s yet, %s is not valued", currency, h.reference, currency)
		}
	}
	if h.mode != ModeBacktesting {
		h.requestWatchLocked(currency, direct, inverse)
	}
	if h.mode == ModeLive {
		return decimal.Zero, false, errors.Wrapf(exception.ErrDataUnavailable, "value %s in %s", currency, h.reference)
	}
	return decimal.Zero, false, nil
}

func (h *ValueHolder) initialized(currency string, v decimal.Decimal) decimal.Decimal {
	if v.IsPositive() {
		delete(h.initializing, currency)
	}
	return v
}

func (h *ValueHolder) requestWatchLocked(currency, direct, inverse string) {
	if h.watcher == nil {
		return
	}
	if _, waiting := h.initializing[currency]; waiting {
		return
	}

	symbol := direct
	if h.markets != nil {
		switch {
		case h.hasMarket(direct):
		case h.hasMarket(inverse):
			symbol = inverse
		default:
			return
		}
	}
	h.initializing[currency] = struct{}{}
	h.watcher.RequestWatch(symbol)
}

// evaluateCurrencies returns the unit value of every held currency that can
// be priced. Currencies already flagged missing are skipped unless ignoreMissing.
func (h *ValueHolder) evaluateCurrencies(s Snapshot, ignoreMissing bool) map[string]decimal.Decimal {
	values := make(map[string]decimal.Decimal, len(s))
	for currency, asset := range s {
		if !asset.Total.IsPositive() {
			continue
		}
		if _, miss := h.missing[currency]; miss && !ignoreMissing {
			continue
		}
		v, priced, _ := h.evaluateLocked(currency, one)
		if priced {
			values[currency] = v
		}
	}
	return values
}

// portfolioValue sums the holdings of s valued with values, skipping missing currencies.
func (h *ValueHolder) portfolioValue(s Snapshot, values map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for currency := range s {
		if _, miss := h.missing[currency]; miss {
			continue
		}
		total = total.Add(h.currencyValue(s, currency, values))
	}
	return total
}

func (h *ValueHolder) currencyValue(s Snapshot, currency string, values map[string]decimal.Decimal) decimal.Decimal {
	asset, ok := s[currency]
	if !ok || asset.Total.IsZero() {
		return decimal.Zero
	}
	if v, ok := values[currency]; ok {
		return v.Mul(asset.Total)
	}
	v, _, _ := h.evaluateLocked(currency, asset.Total)
	return v
}

func (h *ValueHolder) refreshCurrentLocked() Snapshot {
	current := h.holdings.Snapshot()
	for currency, v := range h.evaluateCurrencies(current, false) {
		if _, cached := h.currentValues[currency]; !cached {
			h.currentValues[currency] = v
		}
	}
	h.currentValue = h.portfolioValue(current, h.currentValues)
	return current
}

// CurrentValue returns the value of the current holdings, filling in unit
// values that are not cached yet.
func (h *ValueHolder) CurrentValue() decimal.Decimal {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refreshCurrentLocked()
	return h.currentValue
}

// HoldingRatio returns the share of currency in the current value, or zero
// when the current value is zero.
func (h *ValueHolder) HoldingRatio(currency string) decimal.Decimal {
	h.mu.Lock()
	defer h.mu.Unlock()

	current := h.refreshCurrentLocked()
	if h.currentValue.IsZero() {
		return decimal.Zero
	}
	if _, miss := h.missing[currency]; miss {
		return decimal.Zero
	}
	return h.currencyValue(current, currency, h.currentValues).Div(h.currentValue)
}

// HoldingsValues returns the reference value of every priced holding.
func (h *ValueHolder) HoldingsValues() map[string]decimal.Decimal {
	h.mu.Lock()
	defer h.mu.Unlock()

	current := h.refreshCurrentLocked()
	out := make(map[string]decimal.Decimal, len(h.currentValues))
	for currency := range h.currentValues {
		out[currency] = h.currencyValue(current, currency, h.currentValues)
	}
	return out
}

// Initialize captures the origin snapshot once and values it, ignoring
// currencies without price data.
func (h *ValueHolder) Initialize() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.initializeLocked()
}

func (h *ValueHolder) initializeLocked() {
	if h.origin == nil {
		h.origin = h.holdings.Snapshot()
	}
	maps.Copy(h.originValues, h.evaluateCurrencies(h.origin, true))
	h.recomputeOriginLocked()
}

// RecomputeOriginValue revalues the origin snapshot, for instance after a
// deposit or a withdrawal.
func (h *ValueHolder) RecomputeOriginValue() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.origin == nil {
		h.initializeLocked()
		return
	}
	h.recomputeOriginLocked()
}

// recomputeOriginLocked values the origin with the origin unit values, using
// current unit values for currencies that had none.
func (h *ValueHolder) recomputeOriginLocked() {
	maps.Copy(h.currentValues, h.evaluateCurrencies(h.origin, false))
	for currency, v := range h.currentValues {
		if _, ok := h.originValues[currency]; !ok {
			h.originValues[currency] = v
		}
	}
	h.originValue = h.portfolioValue(h.origin, h.originValues)
}

// HandleProfitabilityRecalculation refreshes the current value and captures
// the origin value while it is still unknown; force revalues the origin.
func (h *ValueHolder) HandleProfitabilityRecalculation(force bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.refreshCurrentLocked()
	if h.originValue.IsZero() {
		h.initializeLocked()
	}
	if force {
		h.recomputeOriginLocked()
	}
}

// OriginValue returns the cached origin valuation.
func (h *ValueHolder) OriginValue() decimal.Decimal {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.originValue
}

// OriginPortfolioCurrentValue values the origin holdings at current prices.
func (h *ValueHolder) OriginPortfolioCurrentValue(refresh bool) (decimal.Decimal, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.origin == nil {
		return decimal.Zero, exception.ErrOriginNotInitialized
	}
	if refresh {
		maps.Copy(h.currentValues, h.evaluateCurrencies(h.origin, false))
	}
	return h.portfolioValue(h.origin, h.currentValues), nil
}

// Profitability returns the gain over the origin value and its percentage.
func (h *ValueHolder) Profitability() (decimal.Decimal, decimal.Decimal) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.refreshCurrentLocked()
	gain := h.currentValue.Sub(h.originValue)
	if h.originValue.IsZero() {
		return gain, decimal.Zero
	}
	return gain, gain.Div(h.originValue).Mul(decimal.NewFromInt(100))
}

// Missing returns the currencies without a price path.
func (h *ValueHolder) Missing() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Sorted(maps.Keys(h.missing))
}

// Initializing returns the currencies waiting for requested price data.
func (h *ValueHolder) Initializing() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Sorted(maps.Keys(h.initializing))
}
