package model

import "github.com/shopspring/decimal"

// Candle is an OHLCV bucket. A field with Valid == false is unset.
// OpenTime and CloseTime are unix milliseconds, 0 when unset.
type Candle struct {
	Symbol    string
	TimeFrame TimeFrame
	Open      decimal.NullDecimal
	High      decimal.NullDecimal
	Low       decimal.NullDecimal
	Close     decimal.NullDecimal
	Volume    decimal.NullDecimal
	OpenTime  int64
	CloseTime int64
}

// IsEmpty reports whether no trade has been folded into the candle yet.
func (c Candle) IsEmpty() bool {
	return !c.Close.Valid
}

// Row returns the candle as [time, open, high, low, close, volume] with unset fields as zero.
func (c Candle) Row() [6]decimal.Decimal {
	return [6]decimal.Decimal{
		decimal.NewFromInt(c.OpenTime),
		c.Open.Decimal,
		c.High.Decimal,
		c.Low.Decimal,
		c.Close.Decimal,
		c.Volume.Decimal,
	}
}

// NewCandleFromRow builds a closed candle from a [time, open, high, low, close, volume] row.
func NewCandleFromRow(symbol string, tf TimeFrame, row [6]decimal.Decimal) Candle {
	openTime := row[0].IntPart()
	return Candle{
		Symbol:    symbol,
		TimeFrame: tf,
		Open:      decimal.NewNullDecimal(row[1]),
		High:      decimal.NewNullDecimal(row[2]),
		Low:       decimal.NewNullDecimal(row[3]),
		Close:     decimal.NewNullDecimal(row[4]),
		Volume:    decimal.NewNullDecimal(row[5]),
		OpenTime:  openTime,
		CloseTime: openTime + tf.Millis(),
	}
}
