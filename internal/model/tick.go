package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Side is the side of a trade or an order.
type Side uint8

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// ParseSide accepts "buy" and "sell" in any case.
func ParseSide(s string) Side {
	switch strings.ToLower(s) {
	case "buy":
		return SideBuy
	case "sell":
		return SideSell
	default:
		return SideUnknown
	}
}

// PriceTick is one trade reported by the market-data collaborator.
// Timestamp is in unix milliseconds.
type PriceTick struct {
	Symbol    string
	Price     decimal.Decimal
	Volume    decimal.Decimal
	Timestamp int64
	Side      Side
}

// IsEmpty reports whether t carries no trade.
func (t PriceTick) IsEmpty() bool {
	return t.Symbol == "" && t.Timestamp == 0 && t.Price.IsZero() && t.Volume.IsZero()
}
