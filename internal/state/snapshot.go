// Package state persists account holdings between runs.
package state

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"tradecore/internal/portfolio"
	"tradecore/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

// Snapshot captures the holdings of an account at a point in time.
type Snapshot struct {
	Timestamp   int64     `json:"timestamp"`
	LastEventTs int64     `json:"lastEventTs"`
	Reference   string    `json:"reference"`
	Holdings    []Holding `json:"holdings"`
}

// Holding is the total balance of one currency.
type Holding struct {
	Currency string          `json:"currency"`
	Total    decimal.Decimal `json:"total"`
}

// FromPortfolio builds a snapshot of snap, skipping empty balances.
func FromPortfolio(reference string, snap portfolio.Snapshot, lastEventTs int64) Snapshot {
	holdings := make([]Holding, 0, len(snap))
	for _, currency := range snap.Currencies() {
		if total := snap[currency].Total; !total.IsZero() {
			holdings = append(holdings, Holding{Currency: currency, Total: total})
		}
	}
	return Snapshot{
		Timestamp:   time.Now().UTC().UnixMilli(),
		LastEventTs: lastEventTs,
		Reference:   reference,
		Holdings:    holdings,
	}
}

// Totals returns the holdings as the initial balances of a portfolio.
func (s Snapshot) Totals() map[string]decimal.Decimal {
	totals := make(map[string]decimal.Decimal, len(s.Holdings))
	for _, h := range s.Holdings {
		totals[h.Currency] = h.Total
	}
	return totals
}

// Write stores snapshot as JSON at path.
func Write(path string, snapshot Snapshot) error {
	sort.Slice(snapshot.Holdings, func(i, j int) bool {
		return snapshot.Holdings[i].Currency < snapshot.Holdings[j].Currency
	})
	data, err := sonic.ConfigStd.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "mkdir %s", dir)
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// Read loads a snapshot. ok is false when no snapshot exists at path.
func Read(path string) (snapshot Snapshot, ok bool, err error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, errors.Wrapf(err, "read snapshot %s", path)
	}
	if err := sonic.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, false, errors.Wrapf(exception.ErrInvalidArgument, "decode snapshot %s: %s", path, err.Error())
	}
	for _, h := range snapshot.Holdings {
		if h.Total.IsNegative() {
			return Snapshot{}, false, errors.Wrapf(exception.ErrNegativeAmount, "snapshot %s holds %s %s", path, h.Total, h.Currency)
		}
	}
	return snapshot, true, nil
}

// Compare checks that actual holds the same totals as expected.
func Compare(expected, actual Snapshot) error {
	want, got := expected.Totals(), actual.Totals()
	if len(want) != len(got) {
		return errors.Errorf("snapshot length mismatch: expected=%d actual=%d", len(want), len(got))
	}
	for currency, total := range want {
		qty, ok := got[currency]
		if !ok {
			return errors.Errorf("snapshot missing currency: %s", currency)
		}
		if !qty.Equal(total) {
			return errors.Errorf("snapshot total mismatch: currency=%s expected=%s actual=%s", currency, total, qty)
		}
	}
	return nil
}
