// Package report builds the read-only series consumed by plotting and summaries.
package report

import (
	"slices"
	"sync"

	"tradecore/internal/model"

	"github.com/shopspring/decimal"
)

// Point is one sample; X is a unix ms time or a trade index.
type Point struct {
	X int64
	Y decimal.Decimal
}

// Series is a named list of points.
type Series struct {
	Name   string
	Points []Point
}

// Last returns the final point.
func (s Series) Last() (Point, bool) {
	if len(s.Points) == 0 {
		return Point{}, false
	}
	return s.Points[len(s.Points)-1], true
}

// Closes returns the close of every set candle keyed by its open time.
func Closes(name string, candles []model.Candle) Series {
	s := Series{Name: name, Points: make([]Point, 0, len(candles))}
	for _, c := range candles {
		if !c.Close.Valid {
			continue
		}
		s.Points = append(s.Points, Point{X: c.OpenTime, Y: c.Close.Decimal})
	}
	return s
}

// Recorder collects closed candles, fills and portfolio values during a session.
type Recorder struct {
	mu      sync.Mutex
	candles map[string][]model.Candle
	fills   []model.Fill
	values  []Point
}

func NewRecorder() *Recorder {
	return &Recorder{candles: make(map[string][]model.Candle)}
}

// OnCandle stores a closed candle.
func (r *Recorder) OnCandle(c model.Candle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.candles[c.Symbol] = append(r.candles[c.Symbol], c)
}

// OnFill stores a fill.
func (r *Recorder) OnFill(f model.Fill) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fills = append(r.fills, f)
	return nil
}

// RecordValue appends a portfolio value sample.
func (r *Recorder) RecordValue(ts int64, v decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, Point{X: ts, Y: v})
}

// Candles returns the closed candles of symbol.
func (r *Recorder) Candles(symbol string) []model.Candle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.candles[symbol])
}

// Fills returns the fills of symbol, or every fill when symbol is empty.
func (r *Recorder) Fills(symbol string) []model.Fill {
	r.mu.Lock()
	defer r.mu.Unlock()
	if symbol == "" {
		return slices.Clone(r.fills)
	}
	var out []model.Fill
	for _, f := range r.fills {
		if f.Symbol == symbol {
			out = append(out, f)
		}
	}
	return out
}

// PortfolioValues returns the recorded value series.
func (r *Recorder) PortfolioValues() Series {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Series{Name: "portfolio value", Points: slices.Clone(r.values)}
}
