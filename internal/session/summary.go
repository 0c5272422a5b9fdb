package session

import (
	"tradecore/internal/model"
	"tradecore/internal/obs"
	"tradecore/internal/portfolio"
	"tradecore/internal/report"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Summary is the end-of-run report.
type Summary struct {
	Reference    string
	OriginValue  decimal.Decimal
	CurrentValue decimal.Decimal
	Gain         decimal.Decimal
	GainPercent  decimal.Decimal
	Holdings     portfolio.Snapshot
	OpenOrders   int
	Fills        int
	RealizedPnL  map[string]decimal.Decimal
	ValueHistory report.Series
	Missing      []string
	Metrics      obs.Snapshot
}

// Summary values the session and computes per-symbol realized P&L.
func (s *Session) Summary() (Summary, error) {
	s.values.HandleProfitabilityRecalculation(false)
	gain, percent := s.values.Profitability()

	sum := Summary{
		Reference:    s.cfg.Reference,
		OriginValue:  s.values.OriginValue(),
		CurrentValue: s.values.CurrentValue(),
		Gain:         gain,
		GainPercent:  percent,
		Holdings:     s.holdings.Snapshot(),
		RealizedPnL:  make(map[string]decimal.Decimal, len(s.cfg.Symbols)),
		Missing:      s.values.Missing(),
		Metrics:      s.metrics.Snapshot(),
	}

	for _, symbol := range s.cfg.Symbols {
		sum.OpenOrders += len(s.engine.Open(symbol))

		fills := s.recorder.Fills(symbol)
		for _, f := range fills {
			if !f.Conversion {
				sum.Fills++
			}
		}

		pnl, err := report.RealizedPnL(symbol, fills, report.AxisTradeCount)
		if err != nil {
			return Summary{}, errors.Wrapf(err, "realized pnl of %s", symbol)
		}
		if last, ok := pnl.Last(); ok {
			sum.RealizedPnL[symbol] = last.Y
		}
	}

	var primary []model.Candle
	for _, c := range s.recorder.Candles(s.primary) {
		if c.TimeFrame == s.minTF {
			primary = append(primary, c)
		}
	}
	history, err := report.HistoricalPortfolioValue(primary, s.recorder.Fills(s.primary), s.cfg.Portfolio)
	if err != nil {
		logs.Errorf("historical portfolio value of %s, err: %+v", s.primary, err)
	}
	sum.ValueHistory = history

	return sum, nil
}

// Log writes the summary to the log.
func (sum Summary) Log() {
	logs.Infof("portfolio: origin %s %s, current %s %s, gain %s (%s%%)",
		sum.OriginValue.StringFixed(8), sum.Reference, sum.CurrentValue.StringFixed(8), sum.Reference,
		sum.Gain.StringFixed(8), sum.GainPercent.StringFixed(4))
	for _, currency := range sum.Holdings.Currencies() {
		asset := sum.Holdings[currency]
		logs.Infof("holding %s: total %s, available %s", currency, asset.Total, asset.Available)
	}
	for symbol, pnl := range sum.RealizedPnL {
		logs.Infof("last realized pnl %s: %s", symbol, pnl)
	}
	if len(sum.Missing) > 0 {
		logs.Infof("not valued: %v", sum.Missing)
	}
	logs.Infof("orders: %d fills, %d open; metrics: %v", sum.Fills, sum.OpenOrders, sum.Metrics.Counters)
}
