package og

import (
	"tradecore/internal/model"

	"github.com/shopspring/decimal"
)

// OrderType tags the trigger behavior of an order.
type OrderType uint8

const (
	OrderTypeUnknown OrderType = iota
	OrderTypeBuyLimit
	OrderTypeSellLimit
	OrderTypeStopLoss
	OrderTypeStopLossLimit
	OrderTypeTakeProfit
	OrderTypeTakeProfitLimit
	OrderTypeMarket
	orderTypeCount
)

var orderTypeNames = [orderTypeCount]string{
	OrderTypeUnknown:         "unknown",
	OrderTypeBuyLimit:        "buy_limit",
	OrderTypeSellLimit:       "sell_limit",
	OrderTypeStopLoss:        "stop_loss",
	OrderTypeStopLossLimit:   "stop_loss_limit",
	OrderTypeTakeProfit:      "take_profit",
	OrderTypeTakeProfitLimit: "take_profit_limit",
	OrderTypeMarket:          "market",
}

func (t OrderType) String() string {
	if t < orderTypeCount {
		return orderTypeNames[t]
	}
	return "invalid"
}

// ParseOrderType maps a type name back to its tag.
func ParseOrderType(s string) OrderType {
	for i, name := range orderTypeNames {
		if name == s {
			return OrderType(i)
		}
	}
	return OrderTypeUnknown
}

// TwoStage reports whether the order arms on its trigger and rests as a limit afterwards.
func (t OrderType) TwoStage() bool {
	return t == OrderTypeStopLossLimit || t == OrderTypeTakeProfitLimit
}

// OrderState tracks the lifecycle of an order.
type OrderState uint8

const (
	OrderStateCreated OrderState = iota
	OrderStatePending
	OrderStateTriggered
	OrderStateFilled
	OrderStateCancelled
)

func (s OrderState) String() string {
	switch s {
	case OrderStateCreated:
		return "created"
	case OrderStatePending:
		return "pending"
	case OrderStateTriggered:
		return "triggered"
	case OrderStateFilled:
		return "filled"
	case OrderStateCancelled:
		return "cancelled"
	default:
		return "invalid"
	}
}

func isTerminal(state OrderState) bool {
	switch state {
	case OrderStateFilled, OrderStateCancelled:
		return true
	default:
		return false
	}
}

// OrderSpec describes an order to create. Dependents are created with a
// fresh group once this order fills.
type OrderSpec struct {
	Symbol       string
	Side         model.Side
	Type         OrderType
	Quantity     decimal.Decimal
	LimitPrice   decimal.NullDecimal
	TriggerPrice decimal.NullDecimal
	GroupID      string
	CreatedAt    int64
	ExpiresAt    int64
	Dependents   []OrderSpec
}

// Order is the engine's view of an order. Values returned by the engine are copies.
type Order struct {
	ID           uint64
	ParentID     uint64
	Symbol       string
	Side         model.Side
	Type         OrderType
	Quantity     decimal.Decimal
	LimitPrice   decimal.NullDecimal
	TriggerPrice decimal.NullDecimal
	State        OrderState
	GroupID      string
	CreatedAt    int64
	ExpiresAt    int64
	Armed        bool
	// AwaitingAck is set once the gateway accepted the order and the fill is
	// expected through Engine.Acknowledge.
	AwaitingAck  bool
	FillPrice    decimal.Decimal
	FilledAt     int64
	Reason       string
	Dependents   []OrderSpec

	attempts    int
	firePrice   decimal.Decimal
	fireTs      int64
	submittedAt int64
}

// Terminal reports whether the order is filled or cancelled.
func (o Order) Terminal() bool {
	return isTerminal(o.State)
}

func (o *Order) clone() Order {
	cp := *o
	if o.Dependents != nil {
		cp.Dependents = append([]OrderSpec(nil), o.Dependents...)
	}
	return cp
}

func (o *Order) cancel(reason string) {
	o.State = OrderStateCancelled
	o.Armed = false
	o.AwaitingAck = false
	o.Reason = reason
}

// limitLeg is the resting order a two-stage order turns into once armed and confirmed.
func (o *Order) limitLeg() OrderSpec {
	typ := OrderTypeSellLimit
	if o.Side == model.SideBuy {
		typ = OrderTypeBuyLimit
	}
	return OrderSpec{
		Symbol:     o.Symbol,
		Side:       o.Side,
		Type:       typ,
		Quantity:   o.Quantity,
		LimitPrice: o.LimitPrice,
		ExpiresAt:  o.ExpiresAt,
		Dependents: o.Dependents,
	}
}
