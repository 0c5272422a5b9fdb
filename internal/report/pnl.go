package report

import (
	"cmp"
	"slices"

	"tradecore/internal/model"
	"tradecore/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

// Axis selects the X values of the P&L series.
type Axis uint8

const (
	AxisTradeCount Axis = iota
	AxisTime
)

type lot struct {
	price  decimal.Decimal
	volume decimal.Decimal
}

// RealizedPnL returns one point per sell that closes bought volume. Sold
// volume is matched against bought lots from the lowest price up, and the
// P&L uses the volume weighted average of the matched prices. Fees count as
// is in the quote currency, otherwise converted with the trade price.
// The series starts with a zero point.
func RealizedPnL(symbol string, fills []model.Fill, axis Axis) (Series, error) {
	_, quote, ok := model.SplitSymbol(symbol)
	if !ok {
		return Series{}, errors.Wrapf(exception.ErrInvalidSymbol, "pnl of %q", symbol)
	}

	trades := make([]model.Fill, 0, len(fills))
	for _, f := range fills {
		if f.Symbol == symbol && !f.Conversion {
			trades = append(trades, f)
		}
	}
	slices.SortStableFunc(trades, func(a, b model.Fill) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})

	series := Series{Name: "P&L", Points: []Point{{Y: decimal.Zero}}}
	if axis == AxisTime && len(trades) > 0 {
		series.Points[0].X = trades[0].Timestamp
	}

	var lots []lot
	for _, trade := range trades {
		switch trade.Side {
		case model.SideBuy:
			lots = addLot(lots, trade.Price, trade.Quantity)
		case model.SideSell:
			var matched []lot
			lots, matched = matchLots(lots, trade.Quantity)
			if len(matched) == 0 {
				continue
			}

			volume := decimal.Zero
			for _, m := range matched {
				volume = volume.Add(m.volume)
			}
			average := decimal.Zero
			for _, m := range matched {
				average = average.Add(m.price.Mul(m.volume.Div(volume)))
			}
			fee := trade.Fee
			if trade.FeeCurrency != "" && trade.FeeCurrency != quote {
				fee = fee.Mul(trade.Price)
			}
			pnl := trade.Price.Sub(average).Mul(volume).Sub(fee)

			x := int64(len(series.Points))
			if axis == AxisTime {
				x = trade.Timestamp
			}
			series.Points = append(series.Points, Point{X: x, Y: pnl})
		default:
			return Series{}, errors.Wrapf(exception.ErrInvalidArgument, "unknown side of order %d", trade.OrderID)
		}
	}
	return series, nil
}

func addLot(lots []lot, price, volume decimal.Decimal) []lot {
	idx, found := slices.BinarySearchFunc(lots, price, func(l lot, p decimal.Decimal) int {
		return l.price.Cmp(p)
	})
	if found {
		lots[idx].volume = lots[idx].volume.Add(volume)
		return lots
	}
	return slices.Insert(lots, idx, lot{price: price, volume: volume})
}

// matchLots consumes volume from the cheapest lots. lots stays sorted by price.
func matchLots(lots []lot, volume decimal.Decimal) ([]lot, []lot) {
	var matched []lot
	remaining := volume
	consumed := 0
	for i := range lots {
		if !remaining.IsPositive() {
			break
		}
		l := &lots[i]
		take := decimal.Min(l.volume, remaining)
		matched = append(matched, lot{price: l.price, volume: take})
		remaining = remaining.Sub(take)
		l.volume = l.volume.Sub(take)
		if l.volume.IsZero() {
			consumed++
		}
	}
	return lots[consumed:], matched
}
