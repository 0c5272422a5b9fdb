// Package pricefeed fans trade ticks out to per-symbol consumers and
// forwards watch requests to the market-data producer.
package pricefeed

import (
	"context"
	"slices"
	"sync"
	"time"

	"tradecore/internal/bus"
	"tradecore/internal/model"
	"tradecore/internal/obs"
	"tradecore/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
)

const defaultWatchQueueSize = 64

// Consumer receives every batch published for a subscribed symbol.
// Consumers are compared by identity, so implementations should be pointers.
type Consumer interface {
	OnPrices(symbol string, ticks []model.PriceTick) error
}

// Watcher is the market-data producer. Watch starts producing ticks for symbols
// and must not call back into the distributor synchronously.
type Watcher interface {
	Watch(ctx context.Context, symbols []string) error
}

// WatchRequest asks the producer to start streaming symbols.
type WatchRequest struct {
	Symbols     []string
	RequestedAt time.Time
}

// Distributor delivers ticks per symbol in publish order.
type Distributor struct {
	mu     sync.RWMutex
	topics map[string]*topic

	watchMu  sync.Mutex
	inflight map[string]struct{}
	watched  map[string]struct{}
	requests *bus.Queue[WatchRequest]

	metrics *obs.Metrics
}

type topic struct {
	deliver   sync.Mutex
	consumers []Consumer
}

// Option customizes a Distributor.
type Option func(*Distributor)

// WithMetrics records delivery and watch counters into m.
func WithMetrics(m *obs.Metrics) Option {
	return func(d *Distributor) {
		d.metrics = m
	}
}

// WithWatchQueueSize bounds the number of pending watch requests.
func WithWatchQueueSize(size int) Option {
	return func(d *Distributor) {
		d.requests = bus.NewQueue[WatchRequest](size)
	}
}

func NewDistributor(opts ...Option) *Distributor {
	d := &Distributor{
		topics:   make(map[string]*topic),
		inflight: make(map[string]struct{}),
		watched:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.requests == nil {
		d.requests = bus.NewQueue[WatchRequest](defaultWatchQueueSize)
	}
	return d
}

// Subscribe registers c for symbol. Subscribing twice is a no-op.
func (d *Distributor) Subscribe(symbol string, c Consumer) error {
	if c == nil {
		return errors.Wrapf(exception.ErrNilConsumer, "subscribe %s", symbol)
	}
	if !model.ValidSymbol(symbol) {
		return errors.Wrapf(exception.ErrInvalidSymbol, "subscribe %q", symbol)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.topics[symbol]
	if !ok {
		t = &topic{}
		d.topics[symbol] = t
	}
	if slices.Contains(t.consumers, c) {
		return nil
	}
	// copy on write so in-flight deliveries keep their snapshot
	next := make([]Consumer, 0, len(t.consumers)+1)
	next = append(next, t.consumers...)
	t.consumers = append(next, c)
	return nil
}

// Unsubscribe removes c from symbol. Unknown consumers are ignored.
func (d *Distributor) Unsubscribe(symbol string, c Consumer) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.topics[symbol]
	if !ok {
		return
	}
	idx := slices.Index(t.consumers, c)
	if idx < 0 {
		return
	}
	next := make([]Consumer, 0, len(t.consumers)-1)
	next = append(next, t.consumers[:idx]...)
	t.consumers = append(next, t.consumers[idx+1:]...)
}

// Subscribers returns the number of consumers registered for symbol.
func (d *Distributor) Subscribers(symbol string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if t, ok := d.topics[symbol]; ok {
		return len(t.consumers)
	}
	return 0
}

// Publish delivers ticks to every consumer of symbol. Batches of one symbol
// are delivered one at a time; an empty batch still counts as a cycle.
// Every consumer sees the batch even when an earlier one fails; the first
// error is returned.
func (d *Distributor) Publish(symbol string, ticks []model.PriceTick) error {
	d.mu.Lock()
	t, ok := d.topics[symbol]
	if !ok {
		t = &topic{}
		d.topics[symbol] = t
	}
	d.mu.Unlock()

	if len(ticks) > 0 {
		d.markWatched(symbol)
	}

	t.deliver.Lock()
	defer t.deliver.Unlock()

	d.mu.RLock()
	consumers := t.consumers
	d.mu.RUnlock()

	d.metrics.Inc(obs.CounterBatches)
	now := time.Now().UnixMilli()
	for i := range ticks {
		d.metrics.ObserveTick(ticks[i].Timestamp, now)
	}

	var first error
	for _, c := range consumers {
		if err := c.OnPrices(symbol, ticks); err != nil {
			logs.Errorf("deliver %s to %T, err: %+v", symbol, c, err)
			if first == nil {
				first = errors.Wrapf(err, "deliver %s", symbol)
			}
		}
	}
	return first
}

func (d *Distributor) markWatched(symbol string) {
	d.watchMu.Lock()
	defer d.watchMu.Unlock()
	delete(d.inflight, symbol)
	d.watched[symbol] = struct{}{}
}

// RequestWatch asks the producer to start streaming symbols. Symbols already
// watched or already requested are skipped. It never blocks; a full queue
// drops the request so it can be asked for again.
func (d *Distributor) RequestWatch(symbols ...string) {
	d.watchMu.Lock()
	fresh := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if !model.ValidSymbol(s) {
			logs.Infof("ignore watch request for invalid symbol %q", s)
			continue
		}
		if _, ok := d.watched[s]; ok {
			continue
		}
		if _, ok := d.inflight[s]; ok {
			continue
		}
		if slices.Contains(fresh, s) {
			continue
		}
		fresh = append(fresh, s)
	}
	if len(fresh) == 0 {
		d.watchMu.Unlock()
		return
	}
	for _, s := range fresh {
		d.inflight[s] = struct{}{}
	}
	d.watchMu.Unlock()

	err := d.requests.TryPublish(WatchRequest{Symbols: fresh, RequestedAt: time.Now()})
	if err == nil {
		d.metrics.Inc(obs.CounterWatchRequests)
		return
	}

	d.metrics.Inc(obs.CounterWatchDrops)
	logs.Errorf("drop watch request %v, err: %+v", fresh, err)
	d.watchMu.Lock()
	for _, s := range fresh {
		delete(d.inflight, s)
	}
	d.watchMu.Unlock()
}

// PendingWatchRequests returns the number of queued watch requests.
func (d *Distributor) PendingWatchRequests() int {
	return d.requests.Len()
}

// InFlight returns the requested symbols that have not produced a tick yet.
func (d *Distributor) InFlight() []string {
	d.watchMu.Lock()
	defer d.watchMu.Unlock()
	return sortedKeys(d.inflight)
}

// Watched returns the symbols that have produced at least one tick or were
// marked as watched at startup.
func (d *Distributor) Watched() []string {
	d.watchMu.Lock()
	defer d.watchMu.Unlock()
	return sortedKeys(d.watched)
}

// MarkWatched records symbols the producer streams from the start.
func (d *Distributor) MarkWatched(symbols ...string) {
	d.watchMu.Lock()
	defer d.watchMu.Unlock()
	for _, s := range symbols {
		d.watched[s] = struct{}{}
	}
}

// Run forwards watch requests to w until ctx is done, the distributor is
// closed or the process shuts down. Failed requests are released so they
// can be requested again.
func (d *Distributor) Run(ctx context.Context, w Watcher) error {
	if w == nil {
		return errors.Wrap(exception.ErrNilInstance, "watcher")
	}
	for {
		select {
		case <-sys.Shutdown():
			return nil
		case <-ctx.Done():
			return nil
		case req, ok := <-d.requests.C():
			if !ok {
				return nil
			}
			if err := w.Watch(ctx, req.Symbols); err != nil {
				logs.Errorf("watch %v, err: %+v", req.Symbols, err)
				d.release(req.Symbols)
			}
		}
	}
}

func (d *Distributor) release(symbols []string) {
	d.watchMu.Lock()
	defer d.watchMu.Unlock()
	for _, s := range symbols {
		delete(d.inflight, s)
	}
}

// Close stops accepting watch requests and ends Run.
func (d *Distributor) Close() {
	d.requests.Close()
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
