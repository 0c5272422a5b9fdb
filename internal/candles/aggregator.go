// Package candles folds trade ticks into OHLCV candles.
package candles

import (
	"tradecore/internal/model"

	"github.com/shopspring/decimal"
)

// Aggregator maintains the in-progress candle of one symbol and time frame.
// It is owned by a single goroutine; callers snapshot with Candle.
type Aggregator struct {
	symbol    string
	timeFrame model.TimeFrame
	current   model.Candle
}

// NewAggregator returns an aggregator holding an empty candle.
func NewAggregator(symbol string, tf model.TimeFrame) *Aggregator {
	agg := &Aggregator{symbol: symbol, timeFrame: tf}
	agg.Reset(nil)
	return agg
}

// Reset starts a new candle. The close and close time of previous, when
// present, become the open and open time of the new one.
func (agg *Aggregator) Reset(previous *model.Candle) {
	agg.current = model.Candle{
		Symbol:    agg.symbol,
		TimeFrame: agg.timeFrame,
	}
	if previous == nil {
		return
	}
	agg.current.Open = previous.Close
	agg.current.OpenTime = previous.CloseTime
	if agg.current.OpenTime != 0 {
		agg.current.CloseTime = agg.current.OpenTime + agg.timeFrame.Millis()
	}
}

// ResetAt starts a new candle at openTime, carrying the previous close when present.
func (agg *Aggregator) ResetAt(previous *model.Candle, openTime int64) {
	agg.Reset(previous)
	agg.current.OpenTime = openTime
	agg.current.CloseTime = openTime + agg.timeFrame.Millis()
}

// Update folds tick into the current candle. A nil or empty tick is ignored.
func (agg *Aggregator) Update(tick *model.PriceTick) {
	if tick == nil || tick.IsEmpty() {
		return
	}
	c := &agg.current
	price := tick.Price

	if c.Volume.Valid {
		c.Volume.Decimal = c.Volume.Decimal.Add(tick.Volume)
	} else {
		c.Volume = decimal.NewNullDecimal(tick.Volume)
	}

	// the carried open participates in the first extreme so high >= open >= low
	high, low := price, price
	if !c.High.Valid && c.Open.Valid {
		high = decimal.Max(high, c.Open.Decimal)
	}
	if !c.Low.Valid && c.Open.Valid {
		low = decimal.Min(low, c.Open.Decimal)
	}

	if c.High.Valid {
		c.High.Decimal = decimal.Max(c.High.Decimal, price)
	} else {
		c.High = decimal.NewNullDecimal(high)
	}
	if c.Low.Valid {
		c.Low.Decimal = decimal.Min(c.Low.Decimal, price)
	} else {
		c.Low = decimal.NewNullDecimal(low)
	}
	if !c.Open.Valid {
		c.Open = decimal.NewNullDecimal(price)
	}

	c.Close = decimal.NewNullDecimal(price)
	if c.OpenTime == 0 {
		c.OpenTime = agg.timeFrame.BucketStart(tick.Timestamp)
		c.CloseTime = c.OpenTime + agg.timeFrame.Millis()
	}
}

// Candle returns a copy of the current candle.
func (agg *Aggregator) Candle() model.Candle {
	return agg.current
}
