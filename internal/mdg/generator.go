package mdg

import (
	"context"
	"math/rand"
	"time"

	"tradecore/internal/model"
	"tradecore/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
)

// Publisher receives normalized ticks.
type Publisher interface {
	Publish(symbol string, ticks []model.PriceTick) error
}

// Generator creates synthetic random-walk trades for paper runs.
type Generator struct {
	symbols []string
	prices  map[string]decimal.Decimal
	step    decimal.Decimal
	volume  decimal.Decimal
	rng     *rand.Rand
	index   int
}

// NewGenerator walks each symbol from basePrice by at most step per tick.
func NewGenerator(symbols []string, basePrice, step, volume decimal.Decimal, seed int64) (*Generator, error) {
	if len(symbols) == 0 {
		return nil, errors.Wrap(exception.ErrInvalidArgument, "generator has no symbols")
	}
	if !basePrice.IsPositive() {
		return nil, errors.Wrap(exception.ErrInvalidArgument, "base price must be positive")
	}
	if step.IsNegative() {
		step = step.Neg()
	}
	if !volume.IsPositive() {
		volume = decimal.NewFromInt(1)
	}

	prices := make(map[string]decimal.Decimal, len(symbols))
	for _, s := range symbols {
		if !model.ValidSymbol(s) {
			return nil, errors.Wrapf(exception.ErrInvalidSymbol, "symbol: %q", s)
		}
		prices[s] = basePrice
	}

	return &Generator{
		symbols: append([]string(nil), symbols...),
		prices:  prices,
		step:    step,
		volume:  volume,
		rng:     rand.New(rand.NewSource(seed)),
	}, nil
}

// Next creates the next raw tick, cycling through the symbols.
func (g *Generator) Next(now time.Time) RawTick {
	symbol := g.symbols[g.index]
	g.index = (g.index + 1) % len(g.symbols)

	move := g.step.Mul(decimal.NewFromFloat(g.rng.Float64()*2 - 1)).Round(8)
	price := g.prices[symbol].Add(move)
	if !price.IsPositive() {
		price = g.prices[symbol]
	}
	g.prices[symbol] = price

	side := model.SideBuy
	if move.IsNegative() {
		side = model.SideSell
	}

	ts := now.UnixMilli()
	return RawTick{
		Symbol:  symbol,
		Price:   price.String(),
		Volume:  g.volume.String(),
		Side:    side.String(),
		TsEvent: ts,
		TsRecv:  ts,
	}
}

// Run publishes one tick every interval until ctx is done.
func (g *Generator) Run(ctx context.Context, interval time.Duration, n *Normalizer, p Publisher) error {
	if n == nil || p == nil {
		return errors.Wrap(exception.ErrNilInstance, "generator normalizer or publisher")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-sys.Shutdown():
			return nil
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			tick, err := n.Normalize(g.Next(now))
			if err != nil {
				logs.Errorf("normalize generated tick, err: %+v", err)
				continue
			}
			if err := p.Publish(tick.Symbol, []model.PriceTick{tick}); err != nil {
				logs.Errorf("publish generated tick %s, err: %+v", tick.Symbol, err)
			}
		}
	}
}
