// Package binance streams public trades from Binance into the price distributor.
package binance

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"tradecore/internal/mdg"
	"tradecore/internal/model"
	"tradecore/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"
)

const (
	_binanceBaseWsUrl           = "wss://stream.binance.com:9443/ws"
	_binanceBaseWsUrlMarketOnly = "wss://data-stream.binance.vision/ws"
)

type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

type subscribeResponse struct {
	ID     int64 `json:"id"`
	Result any   `json:"result"`
}

func subscribeResponseParser(m ws.Message) (subscribeResponse, bool) {
	var resp subscribeResponse
	err := m.Unmarshal(&resp)
	return resp, err == nil
}

// TradeFeed subscribes trade streams on demand and publishes every trade as a one-tick batch.
type TradeFeed struct {
	wss        *ws.WebSocket
	normalizer *mdg.Normalizer
	publisher  mdg.Publisher

	mu      sync.RWMutex
	symbols map[string]string // BTCUSDT -> BTC/USDT

	reqID atomic.Int64
}

// NewTradeFeed connects to the public stream endpoint. marketOnly selects the market-data-only host.
func NewTradeFeed(ctx context.Context, normalizer *mdg.Normalizer, publisher mdg.Publisher, marketOnly bool) *TradeFeed {
	url := _binanceBaseWsUrl
	if marketOnly {
		url = _binanceBaseWsUrlMarketOnly
	}
	return &TradeFeed{
		wss:        ws.New(ctx, url),
		normalizer: normalizer,
		publisher:  publisher,
		symbols:    make(map[string]string),
	}
}

func (f *TradeFeed) Start(ctx context.Context) error {
	if err := f.wss.Start(ctx); err != nil {
		return errors.Wrap(err, "start wss")
	}
	return nil
}

func (f *TradeFeed) Close() {
	f.wss.Close()
}

// Symbols returns the symbols currently streamed.
func (f *TradeFeed) Symbols() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.symbols))
	for _, s := range f.symbols {
		out = append(out, s)
	}
	return out
}

func (f *TradeFeed) register(symbols []string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var fresh []string
	for _, s := range symbols {
		key := model.ExchangeSymbol(s)
		if _, ok := f.symbols[key]; ok {
			continue
		}
		f.symbols[key] = s
		fresh = append(fresh, s)
	}
	return fresh
}

func (f *TradeFeed) unregister(symbols []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range symbols {
		delete(f.symbols, model.ExchangeSymbol(s))
	}
}

func (f *TradeFeed) lookup(exchangeSymbol string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, ok := f.symbols[exchangeSymbol]
	return s, ok
}

// Watch subscribes the '@trade' streams of symbols that are not streamed yet.
func (f *TradeFeed) Watch(ctx context.Context, symbols []string) error {
	for _, s := range symbols {
		if !model.ValidSymbol(s) {
			return errors.Wrapf(exception.ErrInvalidSymbol, "symbol: %q", s)
		}
	}

	fresh := f.register(symbols)
	if len(fresh) == 0 {
		return nil
	}

	params := make([]string, 0, len(fresh))
	for _, s := range fresh {
		params = append(params, tradeStream(s))
	}

	id := f.reqID.Add(1)
	appendIntoRegister := true
	if err := f.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, ws *ws.WebSocket) error {
			payload := subscribeRequest{
				Method: "SUBSCRIBE",
				Params: params,
				ID:     id,
			}

			if err := ws.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write subscribe payload").With("payload", payload)
			}

			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			resp, ok := subscribeResponseParser(m)
			if !ok || resp.ID != id {
				return false, nil
			}

			if resp.Result != nil {
				return false, errors.Errorf("subscribe and wait, err: %+v", resp.Result)
			}
			return true, nil
		},
	}, appendIntoRegister); err != nil {
		f.unregister(fresh)
		return errors.Wrap(err, "send and wait")
	}

	logs.Infof("binance trade streams subscribed: %v", params)
	return nil
}

// Observe publishes trades until ctx is done or the process shuts down.
func (f *TradeFeed) Observe(ctx context.Context) (unsubscribe func()) {
	ch, cancel := f.wss.Subscribe()

	go func() {
		defer cancel()
		for {
			select {
			case <-sys.Shutdown():
				return
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}

				evt, ok := ws.ReadMessage[TradeEvent](m)
				if !ok || evt.EventType != _tradeEvent {
					continue
				}

				if err := f.handle(evt, time.Now().UnixMilli()); err != nil {
					logs.Errorf("handle binance trade %s, err: %+v", evt.Symbol, err)
				}
			}
		}
	}()

	return cancel
}

func (f *TradeFeed) handle(evt TradeEvent, recv int64) error {
	symbol, ok := f.lookup(evt.Symbol)
	if !ok {
		return errors.Wrapf(exception.ErrUnknownSymbol, "exchange symbol: %s", evt.Symbol)
	}

	tick, err := f.normalizer.Normalize(evt.Raw(symbol, recv))
	if err != nil {
		return errors.Wrap(err, "normalize trade")
	}

	return f.publisher.Publish(symbol, []model.PriceTick{tick})
}
