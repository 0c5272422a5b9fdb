package binance

import (
	"context"
	"time"

	"tradecore/internal/model"
	"tradecore/pkg/exception"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const _klinesMaxLimit = 1000

// KlineFetcher downloads historical candles over the Binance REST API.
type KlineFetcher struct {
	client *gobinance.Client
}

// NewKlineFetcher creates a fetcher. Public market data needs no API key.
func NewKlineFetcher(apiKey, secretKey string) *KlineFetcher {
	return &KlineFetcher{client: gobinance.NewClient(apiKey, secretKey)}
}

// FetchCandles returns the candles of symbol opening in [start, end), oldest first.
func (f *KlineFetcher) FetchCandles(ctx context.Context, symbol string, tf model.TimeFrame, start, end time.Time) ([]model.Candle, error) {
	if !model.ValidSymbol(symbol) {
		return nil, errors.Wrapf(exception.ErrInvalidSymbol, "symbol: %q", symbol)
	}
	if tf.Duration() == 0 {
		return nil, errors.Wrapf(exception.ErrInvalidTimeFrame, "time frame: %q", tf)
	}

	var (
		candles []model.Candle
		from    = start.UnixMilli()
		until   = end.UnixMilli()
	)
	for from < until {
		klines, err := f.client.NewKlinesService().
			Symbol(model.ExchangeSymbol(symbol)).
			Interval(string(tf)).
			StartTime(from).
			EndTime(until - 1).
			Limit(_klinesMaxLimit).
			Do(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "fetch klines").With("symbol", symbol)
		}
		if len(klines) == 0 {
			break
		}

		for _, k := range klines {
			c, err := klineCandle(symbol, tf, k)
			if err != nil {
				return nil, err
			}
			candles = append(candles, c)
		}

		from = klines[len(klines)-1].OpenTime + tf.Millis()
		logs.Infof("fetched %d %s %s klines, next from %d", len(klines), symbol, tf, from)
		if len(klines) < _klinesMaxLimit {
			break
		}
	}
	return candles, nil
}

func klineCandle(symbol string, tf model.TimeFrame, k *gobinance.Kline) (model.Candle, error) {
	if k == nil {
		return model.Candle{}, errors.Wrap(exception.ErrNilInstance, "kline")
	}

	var row [6]decimal.Decimal
	row[0] = decimal.NewFromInt(k.OpenTime)
	for i, s := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return model.Candle{}, errors.Wrap(exception.ErrValidation, "parse kline field").With("value", s)
		}
		row[i+1] = d
	}
	return model.NewCandleFromRow(symbol, tf, row), nil
}
