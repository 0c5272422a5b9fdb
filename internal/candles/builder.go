package candles

import (
	"sync"

	"tradecore/internal/model"
)

// Builder turns the tick stream of one symbol into closed candles of one
// time frame. It satisfies the price distributor's consumer contract.
type Builder struct {
	mu       sync.Mutex
	agg      *Aggregator
	tf       model.TimeFrame
	onClose  func(model.Candle)
	started  bool
	lastOpen int64
}

// NewBuilder returns a builder calling onClose with every completed candle.
func NewBuilder(symbol string, tf model.TimeFrame, onClose func(model.Candle)) *Builder {
	return &Builder{
		agg:     NewAggregator(symbol, tf),
		tf:      tf,
		onClose: onClose,
	}
}

// OnPrices folds a batch of ticks. Ticks older than the current bucket are
// folded into the current candle.
func (b *Builder) OnPrices(_ string, ticks []model.PriceTick) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range ticks {
		tick := &ticks[i]
		if tick.IsEmpty() {
			continue
		}
		bucket := b.tf.BucketStart(tick.Timestamp)
		switch {
		case !b.started:
			b.agg.ResetAt(nil, bucket)
			b.started = true
			b.lastOpen = bucket
		case bucket > b.lastOpen:
			closed := b.agg.Candle()
			if !closed.IsEmpty() && b.onClose != nil {
				b.onClose(closed)
			}
			b.agg.ResetAt(&closed, bucket)
			b.lastOpen = bucket
		}
		b.agg.Update(tick)
	}
	return nil
}

// Current returns a copy of the in-progress candle.
func (b *Builder) Current() model.Candle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.agg.Candle()
}
