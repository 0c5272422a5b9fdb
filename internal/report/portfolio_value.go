package report

import (
	"tradecore/internal/model"
	"tradecore/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

// HistoricalPortfolioValue replays fills over candles of one symbol starting
// from the given balances. Each point values base at the candle close plus
// quote, before the fills of that candle are applied.
func HistoricalPortfolioValue(candles []model.Candle, fills []model.Fill, start map[string]decimal.Decimal) (Series, error) {
	series := Series{Name: "portfolio value", Points: make([]Point, 0, len(candles))}
	if len(candles) == 0 {
		return series, nil
	}

	symbol := candles[0].Symbol
	base, quote, ok := model.SplitSymbol(symbol)
	if !ok {
		return Series{}, errors.Wrapf(exception.ErrInvalidSymbol, "portfolio value of %q", symbol)
	}
	baseAmount, quoteAmount := start[base], start[quote]

	byBucket := make(map[int64][]model.Fill)
	for _, f := range fills {
		if f.Symbol != symbol || f.Conversion {
			continue
		}
		bucket := candles[0].TimeFrame.BucketStart(f.Timestamp)
		byBucket[bucket] = append(byBucket[bucket], f)
	}

	for _, c := range candles {
		series.Points = append(series.Points, Point{
			X: c.OpenTime,
			Y: baseAmount.Mul(c.Close.Decimal).Add(quoteAmount),
		})
		for _, f := range byBucket[c.OpenTime] {
			switch f.Side {
			case model.SideSell:
				baseAmount = baseAmount.Sub(f.Quantity)
				quoteAmount = quoteAmount.Add(f.Cost())
			case model.SideBuy:
				baseAmount = baseAmount.Add(f.Quantity)
				quoteAmount = quoteAmount.Sub(f.Cost())
			}
			if baseAmount.IsNegative() || quoteAmount.IsNegative() {
				return Series{}, errors.Wrapf(exception.ErrNegativePortfolio, "after order %d at %d", f.OrderID, f.Timestamp)
			}
		}
	}
	return series, nil
}
