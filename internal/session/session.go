// Package session wires the price distributor, candle builders, order engine
// and portfolio valuation into one trading session.
package session

import (
	"context"
	"sync/atomic"
	"time"

	"tradecore/internal/candles"
	"tradecore/internal/datafile"
	"tradecore/internal/model"
	"tradecore/internal/obs"
	"tradecore/internal/og"
	"tradecore/internal/ops"
	"tradecore/internal/portfolio"
	"tradecore/internal/pricefeed"
	"tradecore/internal/report"
	"tradecore/internal/risk"
	"tradecore/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"golang.org/x/sync/errgroup"
)

// Session owns every component of one run.
type Session struct {
	cfg     ops.Loaded
	primary string
	minTF   model.TimeFrame

	metrics   *obs.Metrics
	dist      *pricefeed.Distributor
	engine    *og.Engine
	risk      *risk.Engine
	holdings  *portfolio.Portfolio
	values    *portfolio.ValueHolder
	recorder  *report.Recorder
	builders  []*candles.Builder
	eventTime atomic.Int64
	started   atomic.Bool
}

// Option customizes a Session.
type Option func(*options)

type options struct {
	gateway og.Gateway
}

// WithGateway replaces the simulated confirmation gateway.
func WithGateway(g og.Gateway) Option {
	return func(o *options) {
		o.gateway = g
	}
}

// New builds a session from a resolved config. Call Start before publishing prices.
func New(cfg ops.Loaded, opts ...Option) (*Session, error) {
	o := options{gateway: og.NewSimulatedGateway(cfg.FeeRate)}
	for _, opt := range opts {
		opt(&o)
	}

	if len(cfg.Symbols) == 0 {
		return nil, errors.Wrap(exception.ErrInvalidConfig, "session has no symbols")
	}
	holdings, err := portfolio.NewPortfolio(cfg.Portfolio)
	if err != nil {
		return nil, errors.Wrap(err, "new portfolio")
	}

	s := &Session{
		cfg:      cfg,
		primary:  cfg.Symbols[0],
		metrics:  obs.NewMetrics(),
		risk:     risk.NewEngine(cfg.Risk),
		holdings: holdings,
		recorder: report.NewRecorder(),
	}

	s.minTF, _ = model.MinTimeFrame(cfg.TimeFrames)

	distOpts := []pricefeed.Option{pricefeed.WithMetrics(s.metrics)}
	if cfg.WatchQueueSize > 0 {
		distOpts = append(distOpts, pricefeed.WithWatchQueueSize(cfg.WatchQueueSize))
	}
	s.dist = pricefeed.NewDistributor(distOpts...)

	valueOpts := []portfolio.Option{
		portfolio.WithMode(cfg.Mode),
		portfolio.WithMarkets(cfg.Symbols...),
		portfolio.WithMetrics(s.metrics),
	}
	if cfg.Features.EnableWatch {
		valueOpts = append(valueOpts, portfolio.WithWatchRequester(s.dist))
	}
	s.values = portfolio.NewValueHolder(cfg.Reference, holdings, valueOpts...)

	engineOpts := []og.Option{
		og.WithGateway(o.gateway),
		og.WithMetrics(s.metrics),
		og.WithMaxConfirmRetries(cfg.MaxConfirmRetries),
		og.WithSettlement(holdings.ApplyFill),
		og.WithFillHandler(s.onFill),
	}
	if cfg.Mode == portfolio.ModeBacktesting {
		engineOpts = append(engineOpts, og.WithClock(s.eventTime.Load))
	}
	s.engine = og.NewEngine(engineOpts...)

	return s, nil
}

// eventClock tracks the newest tick time so replayed orders are stamped in data time.
type eventClock struct {
	s *Session
}

func (c *eventClock) OnPrices(_ string, ticks []model.PriceTick) error {
	for i := range ticks {
		if ts := ticks[i].Timestamp; ts > c.s.eventTime.Load() {
			c.s.eventTime.Store(ts)
		}
	}
	return nil
}

// Start subscribes every consumer, values the origin portfolio and places the configured orders.
// Consumers of one symbol run in this order: clock, candle builders, valuation, orders.
func (s *Session) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}

	clock := &eventClock{s: s}
	for _, symbol := range s.cfg.Symbols {
		if err := s.dist.Subscribe(symbol, clock); err != nil {
			return err
		}
		for _, tf := range s.cfg.TimeFrames {
			b := candles.NewBuilder(symbol, tf, s.onCandle)
			s.builders = append(s.builders, b)
			if err := s.dist.Subscribe(symbol, b); err != nil {
				return err
			}
		}
		if err := s.dist.Subscribe(symbol, s.values); err != nil {
			return err
		}
		if err := s.dist.Subscribe(symbol, s.engine); err != nil {
			return err
		}
	}

	s.values.Initialize()

	if !s.cfg.Features.EnableOrders {
		return nil
	}
	for _, group := range s.cfg.OrderGroups {
		if err := s.Place(group...); err != nil {
			if errors.Is(err, exception.ErrRiskDenied) {
				logs.Errorf("skip configured orders, err: %+v", err)
				continue
			}
			return errors.Wrap(err, "place configured orders")
		}
	}
	return nil
}

// Place checks every spec against the risk limits and creates them as one group.
// A denied spec places nothing.
func (s *Session) Place(specs ...og.OrderSpec) error {
	if len(specs) == 0 {
		return nil
	}

	for _, spec := range specs {
		ref, _ := s.values.LastPrice(spec.Symbol)
		if err := s.risk.Check(spec, risk.StateView{ReferencePrice: ref, Now: s.now()}); err != nil {
			s.metrics.Inc(obs.CounterRiskDenied)
			return err
		}
	}

	if len(specs) == 1 {
		_, err := s.engine.Create(specs[0])
		return err
	}
	_, err := s.engine.CreateGroup(specs...)
	return err
}

// now is the event time in backtesting and wall time otherwise.
func (s *Session) now() int64 {
	if s.cfg.Mode == portfolio.ModeBacktesting {
		if ts := s.eventTime.Load(); ts > 0 {
			return ts
		}
	}
	return time.Now().UTC().UnixMilli()
}

func (s *Session) onCandle(c model.Candle) {
	s.recorder.OnCandle(c)
	s.metrics.Inc(obs.CounterCandles)
	if c.Symbol != s.primary || c.TimeFrame != s.minTF {
		return
	}
	s.values.HandleProfitabilityRecalculation(false)
	s.recorder.RecordValue(c.CloseTime, s.values.CurrentValue())
}

// onFill runs after the engine settled f into the holdings.
func (s *Session) onFill(f model.Fill) error {
	if err := s.recorder.OnFill(f); err != nil {
		return err
	}
	if !f.Conversion {
		logs.Infof("fill: order %d %s %s %s @ %s", f.OrderID, f.Side, f.Quantity, f.Symbol, f.Price)
	}
	s.values.HandleProfitabilityRecalculation(false)
	return nil
}

// Run forwards watch requests to w while produce feeds prices. It returns when
// produce returns or ctx is done. A nil w ignores watch requests.
func (s *Session) Run(ctx context.Context, w pricefeed.Watcher, produce func(ctx context.Context) error) error {
	if err := s.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)
	if w != nil {
		eg.Go(func() error {
			return s.dist.Run(ctx, w)
		})
	}
	eg.Go(func() error {
		defer cancel()
		return produce(ctx)
	})
	return eg.Wait()
}

// Replay runs the session over a data file.
func (s *Session) Replay(ctx context.Context, r *datafile.Replayer) error {
	if r == nil {
		return errors.Wrap(exception.ErrNilInstance, "replayer")
	}
	return s.Run(ctx, nil, func(ctx context.Context) error {
		return r.Run(ctx, tolerantPublisher{s.dist})
	})
}

// tolerantPublisher keeps a replay going past consumer failures; the distributor logs them.
type tolerantPublisher struct {
	d *pricefeed.Distributor
}

func (p tolerantPublisher) Publish(symbol string, ticks []model.PriceTick) error {
	_ = p.d.Publish(symbol, ticks)
	return nil
}

func (s *Session) Distributor() *pricefeed.Distributor {
	return s.dist
}

func (s *Session) Engine() *og.Engine {
	return s.engine
}

func (s *Session) Portfolio() *portfolio.Portfolio {
	return s.holdings
}

func (s *Session) Values() *portfolio.ValueHolder {
	return s.values
}

func (s *Session) Recorder() *report.Recorder {
	return s.recorder
}

// EventTime is the time of the newest published tick in unix ms.
func (s *Session) EventTime() int64 {
	return s.eventTime.Load()
}

func (s *Session) Metrics() *obs.Metrics {
	return s.metrics
}

// Close stops the watch request queue.
func (s *Session) Close() {
	s.dist.Close()
}

// Apply takes a reloaded config into account. Only the order switch and the
// risk limits apply at runtime. Disabling orders or turning the kill switch on
// cancels every open order.
func (s *Session) Apply(cfg ops.Loaded) int {
	s.risk.Update(cfg.Risk)
	switch {
	case !cfg.Features.EnableOrders:
		return s.Halt("orders disabled by config")
	case cfg.Risk.KillSwitch:
		return s.Halt("kill switch")
	default:
		return 0
	}
}

// Deposit credits amount to currency and revalues the origin portfolio.
func (s *Session) Deposit(currency string, amount decimal.Decimal) error {
	if err := s.holdings.Deposit(currency, amount); err != nil {
		return err
	}
	s.values.HandleProfitabilityRecalculation(true)
	logs.Infof("deposit %s %s", amount, currency)
	return nil
}

// Withdraw debits amount from currency and revalues the origin portfolio.
func (s *Session) Withdraw(currency string, amount decimal.Decimal) error {
	if err := s.holdings.Withdraw(currency, amount); err != nil {
		return err
	}
	s.values.HandleProfitabilityRecalculation(true)
	logs.Infof("withdraw %s %s", amount, currency)
	return nil
}

// Halt cancels every open order and returns how many were cancelled.
func (s *Session) Halt(reason string) int {
	cancelled := 0
	for _, symbol := range s.cfg.Symbols {
		for _, o := range s.engine.Open(symbol) {
			if err := s.engine.Cancel(o.ID, reason); err != nil {
				logs.Errorf("halt order %d, err: %+v", o.ID, err)
				continue
			}
			cancelled++
		}
	}
	if cancelled > 0 {
		logs.Infof("halted %d open orders: %s", cancelled, reason)
	}
	return cancelled
}
