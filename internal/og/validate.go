package og

import (
	"slices"

	"tradecore/internal/model"
	"tradecore/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

func validateSpec(spec *OrderSpec) error {
	if !model.ValidSymbol(spec.Symbol) {
		return errors.Wrapf(exception.ErrValidation, "invalid symbol %q", spec.Symbol)
	}
	if !spec.Quantity.IsPositive() {
		return errors.Wrapf(exception.ErrValidation, "non-positive quantity %s", spec.Quantity)
	}

	switch spec.Type {
	case OrderTypeUnknown:
		return errors.Wrap(exception.ErrUnsupportedOperation, "order type is not concrete")
	case OrderTypeBuyLimit:
		if err := requireSide(spec, model.SideBuy); err != nil {
			return err
		}
	case OrderTypeSellLimit:
		if err := requireSide(spec, model.SideSell); err != nil {
			return err
		}
	case OrderTypeStopLoss, OrderTypeStopLossLimit, OrderTypeTakeProfit, OrderTypeTakeProfitLimit, OrderTypeMarket:
		if spec.Side != model.SideBuy && spec.Side != model.SideSell {
			return errors.Wrapf(exception.ErrValidation, "%s order needs a side", spec.Type)
		}
	default:
		return errors.Wrapf(exception.ErrValidation, "unknown order type %d", spec.Type)
	}

	needLimit := spec.Type == OrderTypeBuyLimit || spec.Type == OrderTypeSellLimit || spec.Type.TwoStage()
	needTrigger := spec.Type != OrderTypeBuyLimit && spec.Type != OrderTypeSellLimit && spec.Type != OrderTypeMarket
	if needLimit && !positive(spec.LimitPrice) {
		return errors.Wrapf(exception.ErrValidation, "%s order needs a positive limit price", spec.Type)
	}
	if needTrigger && !positive(spec.TriggerPrice) {
		return errors.Wrapf(exception.ErrValidation, "%s order needs a positive trigger price", spec.Type)
	}
	if spec.ExpiresAt != 0 && spec.CreatedAt != 0 && spec.ExpiresAt <= spec.CreatedAt {
		return errors.Wrapf(exception.ErrValidation, "expiry %d not after creation %d", spec.ExpiresAt, spec.CreatedAt)
	}

	for i := range spec.Dependents {
		dep := &spec.Dependents[i]
		if dep.Symbol == "" {
			dep.Symbol = spec.Symbol
		}
		if dep.Quantity.IsZero() {
			dep.Quantity = spec.Quantity
		}
		dep.Dependents = slices.Clone(dep.Dependents)
		if dep.Symbol != spec.Symbol {
			return errors.Wrapf(exception.ErrValidation, "dependent symbol %s differs from %s", dep.Symbol, spec.Symbol)
		}
		if err := validateSpec(dep); err != nil {
			return errors.Wrapf(err, "dependent %d", i)
		}
	}
	return nil
}

func requireSide(spec *OrderSpec, side model.Side) error {
	if spec.Side == model.SideUnknown {
		spec.Side = side
	}
	if spec.Side != side {
		return errors.Wrapf(exception.ErrValidation, "%s order with side %s", spec.Type, spec.Side)
	}
	return nil
}

func positive(d decimal.NullDecimal) bool {
	return d.Valid && d.Decimal.IsPositive()
}
