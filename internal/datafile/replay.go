package datafile

import (
	"context"
	"time"

	"tradecore/internal/model"
	"tradecore/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/pkg/sys"
)

// Publisher receives replayed ticks, one batch per tick.
type Publisher interface {
	Publish(symbol string, ticks []model.PriceTick) error
}

// Clock allows deterministic replay pacing.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Replayer turns the candles of the shortest time frame of a file into price ticks.
type Replayer struct {
	symbol  string
	candles []model.Candle
	speed   float64
	clock   Clock
}

// NewReplayer picks the shortest time frame of d. Speed 0 replays without pacing.
func NewReplayer(d *Data, speed float64) (*Replayer, error) {
	if d == nil || len(d.Candles) == 0 {
		return nil, errors.Wrap(exception.ErrInvalidDataFile, "no candles to replay")
	}
	if !model.ValidSymbol(d.Symbol) {
		return nil, errors.Wrapf(exception.ErrInvalidSymbol, "symbol: %q", d.Symbol)
	}
	if speed < 0 {
		return nil, errors.Wrapf(exception.ErrInvalidArgument, "speed must be >= 0, got %v", speed)
	}

	tf := d.TimeFrames()[0]
	return &Replayer{
		symbol:  d.Symbol,
		candles: d.Candles[tf],
		speed:   speed,
		clock:   realClock{},
	}, nil
}

// WithClock swaps the clock implementation.
func (r *Replayer) WithClock(clock Clock) *Replayer {
	if clock != nil {
		r.clock = clock
	}
	return r
}

func (r *Replayer) Symbol() string {
	return r.symbol
}

// Ticks returns every tick the replay would publish, in order.
func (r *Replayer) Ticks() []model.PriceTick {
	ticks := make([]model.PriceTick, 0, len(r.candles)*4)
	for _, c := range r.candles {
		ticks = append(ticks, CandleTicks(c)...)
	}
	return ticks
}

// Run publishes ticks until the candles are exhausted, ctx is done or the publisher fails.
func (r *Replayer) Run(ctx context.Context, p Publisher) error {
	if p == nil {
		return errors.Wrap(exception.ErrNilInstance, "replay publisher")
	}

	prevTS := int64(-1)
	for _, c := range r.candles {
		for _, tick := range CandleTicks(c) {
			select {
			case <-sys.Shutdown():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if err := r.pace(ctx, tick.Timestamp, &prevTS); err != nil {
				return err
			}
			if err := p.Publish(r.symbol, []model.PriceTick{tick}); err != nil {
				return errors.Wrapf(err, "publish tick at %d", tick.Timestamp)
			}
		}
	}
	return nil
}

func (r *Replayer) pace(ctx context.Context, ts int64, prevTS *int64) error {
	if r.speed <= 0 {
		return nil
	}
	if *prevTS >= 0 {
		delta := time.Duration(ts-*prevTS) * time.Millisecond
		if delta > 0 {
			if err := r.clock.Sleep(ctx, time.Duration(float64(delta)/r.speed)); err != nil {
				return err
			}
		}
	}
	*prevTS = ts
	return nil
}

// CandleTicks expands a closed candle into open, two extremes and close.
// A rising candle visits its low first, a falling one its high first.
// The whole volume rides on the close tick.
func CandleTicks(c model.Candle) []model.PriceTick {
	if c.IsEmpty() {
		return nil
	}

	open, high, low, cls := c.Open.Decimal, c.High.Decimal, c.Low.Decimal, c.Close.Decimal
	if !c.Open.Valid {
		open = cls
	}
	if !c.High.Valid {
		high = cls
	}
	if !c.Low.Valid {
		low = cls
	}

	first, second := high, low
	if cls.GreaterThanOrEqual(open) {
		first, second = low, high
	}

	width := c.CloseTime - c.OpenTime
	if width <= 0 {
		width = c.TimeFrame.Millis()
	}
	step := width / 4

	tick := func(i int64, price model.PriceTick) model.PriceTick {
		price.Symbol = c.Symbol
		price.Timestamp = c.OpenTime + i*step
		return price
	}

	return []model.PriceTick{
		tick(0, model.PriceTick{Price: open}),
		tick(1, model.PriceTick{Price: first}),
		tick(2, model.PriceTick{Price: second}),
		tick(3, model.PriceTick{Price: cls, Volume: c.Volume.Decimal}),
	}
}
