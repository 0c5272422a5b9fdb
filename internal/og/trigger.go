package og

import (
	"tradecore/internal/model"
	"tradecore/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

// Trigger evaluates the type predicate of o against tick. It returns whether
// the order fires and the price it fills (or arms) at. Ticks older than the
// order never fire.
func Trigger(o Order, tick model.PriceTick) (bool, decimal.Decimal, error) {
	if tick.Timestamp < o.CreatedAt {
		return false, decimal.Zero, nil
	}
	p := tick.Price

	switch o.Type {
	case OrderTypeBuyLimit:
		return p.LessThanOrEqual(o.LimitPrice.Decimal), o.LimitPrice.Decimal, nil
	case OrderTypeSellLimit:
		return p.GreaterThanOrEqual(o.LimitPrice.Decimal), o.LimitPrice.Decimal, nil
	case OrderTypeTakeProfit:
		return takeProfitHit(o.Side, p, o.TriggerPrice.Decimal), p, nil
	case OrderTypeStopLoss:
		return stopLossHit(o.Side, p, o.TriggerPrice.Decimal), p, nil
	case OrderTypeTakeProfitLimit:
		return takeProfitHit(o.Side, p, o.TriggerPrice.Decimal), o.TriggerPrice.Decimal, nil
	case OrderTypeStopLossLimit:
		return stopLossHit(o.Side, p, o.TriggerPrice.Decimal), o.TriggerPrice.Decimal, nil
	case OrderTypeMarket:
		return true, p, nil
	default:
		return false, decimal.Zero, errors.Wrapf(exception.ErrUnsupportedOperation, "trigger order %d of type %s", o.ID, o.Type)
	}
}

func takeProfitHit(side model.Side, price, trigger decimal.Decimal) bool {
	if side == model.SideBuy {
		return price.LessThanOrEqual(trigger)
	}
	return price.GreaterThanOrEqual(trigger)
}

func stopLossHit(side model.Side, price, trigger decimal.Decimal) bool {
	if side == model.SideBuy {
		return price.GreaterThanOrEqual(trigger)
	}
	return price.LessThanOrEqual(trigger)
}
