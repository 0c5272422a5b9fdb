package mdg

import (
	"time"

	"tradecore/internal/model"
	"tradecore/internal/obs"
	"tradecore/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

// RawTick is a trade as received from a source, before validation.
// Timestamps are unix milliseconds.
type RawTick struct {
	Symbol  string
	Price   string
	Volume  string
	Side    string
	TsEvent int64
	TsRecv  int64
}

// Normalizer maps raw ticks to model.PriceTick.
type Normalizer struct {
	symbols map[string]struct{}
	metrics *obs.Metrics
}

// NewNormalizer accepts ticks for the given symbols only. No symbols means any well-formed symbol.
func NewNormalizer(metrics *obs.Metrics, symbols ...string) *Normalizer {
	n := &Normalizer{metrics: metrics}
	if len(symbols) > 0 {
		n.symbols = make(map[string]struct{}, len(symbols))
		for _, s := range symbols {
			n.symbols[s] = struct{}{}
		}
	}
	return n
}

// Normalize validates a raw tick and converts it.
func (n *Normalizer) Normalize(tick RawTick) (model.PriceTick, error) {
	if !model.ValidSymbol(tick.Symbol) {
		return model.PriceTick{}, errors.Wrapf(exception.ErrInvalidSymbol, "symbol: %q", tick.Symbol)
	}
	if n.symbols != nil {
		if _, ok := n.symbols[tick.Symbol]; !ok {
			return model.PriceTick{}, errors.Wrapf(exception.ErrUnknownSymbol, "symbol: %s", tick.Symbol)
		}
	}

	price, err := decimal.NewFromString(tick.Price)
	if err != nil || !price.IsPositive() {
		return model.PriceTick{}, errors.Wrap(exception.ErrValidation, "price must be positive").With("price", tick.Price)
	}

	volume := decimal.Zero
	if tick.Volume != "" {
		volume, err = decimal.NewFromString(tick.Volume)
		if err != nil || volume.IsNegative() {
			return model.PriceTick{}, errors.Wrap(exception.ErrValidation, "volume must be >= 0").With("volume", tick.Volume)
		}
	}

	if tick.TsRecv == 0 {
		tick.TsRecv = time.Now().UTC().UnixMilli()
	}
	if tick.TsEvent == 0 {
		tick.TsEvent = tick.TsRecv
	}
	n.metrics.ObserveTick(tick.TsEvent, tick.TsRecv)

	return model.PriceTick{
		Symbol:    tick.Symbol,
		Price:     price,
		Volume:    volume,
		Timestamp: tick.TsEvent,
		Side:      model.ParseSide(tick.Side),
	}, nil
}
