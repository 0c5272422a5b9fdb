package og

import (
	"context"
	"sync"

	"tradecore/internal/model"
	"tradecore/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

// ConfirmRequest asks the order-submission side to confirm a triggered order.
// Conversion is set when a two-stage order turns into its resting limit leg.
type ConfirmRequest struct {
	Order      Order
	Price      decimal.Decimal
	Timestamp  int64
	Conversion bool
}

// Gateway confirms triggered orders. Errors wrapping exception.ErrRejected
// cancel the order. exception.ErrAwaitingAck keeps it triggered until the fill
// arrives through Engine.Acknowledge. Any other error keeps it triggered for a retry.
type Gateway interface {
	Confirm(ctx context.Context, req ConfirmRequest) (model.Fill, error)
}

// SimulatedGateway confirms every request immediately. Fees are charged in
// the quote currency at FeeRate.
type SimulatedGateway struct {
	FeeRate decimal.Decimal

	mu       sync.Mutex
	failures map[uint64][]error
}

// NewSimulatedGateway returns a gateway charging feeRate on every real fill.
func NewSimulatedGateway(feeRate decimal.Decimal) *SimulatedGateway {
	return &SimulatedGateway{
		FeeRate:  feeRate,
		failures: make(map[uint64][]error),
	}
}

// FailNext makes the next confirmations of orderID return errs in order.
func (g *SimulatedGateway) FailNext(orderID uint64, errs ...error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failures == nil {
		g.failures = make(map[uint64][]error)
	}
	g.failures[orderID] = append(g.failures[orderID], errs...)
}

// Confirm builds the fill for req.
func (g *SimulatedGateway) Confirm(ctx context.Context, req ConfirmRequest) (model.Fill, error) {
	if err := ctx.Err(); err != nil {
		return model.Fill{}, errors.Wrap(exception.ErrTransientConfirmation, err.Error())
	}
	if err := g.popFailure(req.Order.ID); err != nil {
		return model.Fill{}, err
	}

	fill := model.Fill{
		OrderID:    req.Order.ID,
		Symbol:     req.Order.Symbol,
		Side:       req.Order.Side,
		Quantity:   req.Order.Quantity,
		Price:      req.Price,
		Fee:        decimal.Zero,
		Timestamp:  req.Timestamp,
		Conversion: req.Conversion,
	}
	if _, quote, ok := model.SplitSymbol(req.Order.Symbol); ok {
		fill.FeeCurrency = quote
	}
	if !req.Conversion && g.FeeRate.IsPositive() {
		fill.Fee = fill.Cost().Mul(g.FeeRate)
	}
	return fill, nil
}

func (g *SimulatedGateway) popFailure(id uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	errs := g.failures[id]
	if len(errs) == 0 {
		return nil
	}
	g.failures[id] = errs[1:]
	return errs[0]
}
