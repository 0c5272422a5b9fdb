package model

import "github.com/shopspring/decimal"

// Fill is emitted when an order reaches the filled state.
// A conversion fill marks a two-stage order turning into its resting limit
// leg and does not move balances.
type Fill struct {
	OrderID     uint64
	Symbol      string
	Side        Side
	Quantity    decimal.Decimal
	Price       decimal.Decimal
	Fee         decimal.Decimal
	FeeCurrency string
	Timestamp   int64
	Conversion  bool
}

// Cost returns quantity * price.
func (f Fill) Cost() decimal.Decimal {
	return f.Quantity.Mul(f.Price)
}
