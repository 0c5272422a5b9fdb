package obs

import (
	"sync/atomic"
	"time"
)

// Counter identifies one of the engine counters.
type Counter uint8

const (
	CounterTicks Counter = iota
	CounterBatches
	CounterCycles
	CounterTriggers
	CounterFills
	CounterCancels
	CounterRejections
	CounterConfirmRetries
	CounterWatchRequests
	CounterWatchDrops
	CounterValuationMisses
	CounterCandles
	CounterRiskDenied
	counterCount
)

var counterNames = [counterCount]string{
	CounterTicks:           "ticks",
	CounterBatches:         "batches",
	CounterCycles:          "cycles",
	CounterTriggers:        "triggers",
	CounterFills:           "fills",
	CounterCancels:         "cancels",
	CounterRejections:      "rejections",
	CounterConfirmRetries:  "confirm_retries",
	CounterWatchRequests:   "watch_requests",
	CounterWatchDrops:      "watch_drops",
	CounterValuationMisses: "valuation_misses",
	CounterCandles:         "candles",
	CounterRiskDenied:      "risk_denied",
}

func (c Counter) String() string {
	if int(c) < len(counterNames) {
		return counterNames[c]
	}
	return "unknown"
}

// Metrics collects lightweight counters and latency stats.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	counters [counterCount]uint64

	tickLatency  LatencyStats
	cycleLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	Counters     map[string]uint64
	TickLatency  LatencySnapshot
	CycleLatency LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Add increments counter c by n.
func (m *Metrics) Add(c Counter, n uint64) {
	if m == nil || c >= counterCount {
		return
	}
	atomic.AddUint64(&m.counters[c], n)
}

// Inc increments counter c by one.
func (m *Metrics) Inc(c Counter) {
	m.Add(c, 1)
}

// Count returns the current value of counter c.
func (m *Metrics) Count(c Counter) uint64 {
	if m == nil || c >= counterCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[c])
}

// ObserveTick tracks the delay between the trade time and its receipt, both in unix ms.
func (m *Metrics) ObserveTick(tsEvent, tsRecv int64) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.counters[CounterTicks], 1)
	if tsEvent > 0 && tsRecv >= tsEvent {
		m.tickLatency.Observe(time.Duration(tsRecv-tsEvent) * time.Millisecond)
	}
}

// ObserveCycle measures one order evaluation cycle.
func (m *Metrics) ObserveCycle(d time.Duration) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.counters[CounterCycles], 1)
	m.cycleLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	counters := make(map[string]uint64)
	for i := range m.counters {
		if v := atomic.LoadUint64(&m.counters[i]); v > 0 {
			counters[Counter(i).String()] = v
		}
	}
	return Snapshot{
		Counters:     counters,
		TickLatency:  m.tickLatency.Snapshot(),
		CycleLatency: m.cycleLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		low := atomic.LoadUint64(&l.min)
		if low != 0 && nanos >= low {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, low, nanos) {
			break
		}
	}

	for {
		high := atomic.LoadUint64(&l.max)
		if nanos <= high {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, high, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(atomic.LoadUint64(&l.min)),
		Max:   time.Duration(atomic.LoadUint64(&l.max)),
		Avg:   time.Duration(atomic.LoadUint64(&l.sum) / count),
	}
}
