package state

import (
	"os"
	"path/filepath"
	"testing"

	"tradecore/internal/portfolio"
	"tradecore/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"
)

func TestWriteRead(t *testing.T) {
	p, err := portfolio.NewPortfolio(map[string]decimal.Decimal{
		"USDT": decimal.RequireFromString("10015.5"),
		"BTC":  decimal.RequireFromString("0.25"),
		"ETH":  decimal.Zero,
	})
	require.NoError(t, err)

	snap := FromPortfolio("USDT", p.Snapshot(), 150_000)
	require.Len(t, snap.Holdings, 2)
	assert.Equal(t, "BTC", snap.Holdings[0].Currency)

	path := filepath.Join(t.TempDir(), "state", "account.json")
	require.NoError(t, Write(path, snap))

	read, ok, err := Read(path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "USDT", read.Reference)
	assert.Equal(t, int64(150_000), read.LastEventTs)
	assert.NoError(t, Compare(snap, read))

	totals := read.Totals()
	assert.True(t, totals["USDT"].Equal(decimal.RequireFromString("10015.5")))
	assert.True(t, totals["BTC"].Equal(decimal.RequireFromString("0.25")))
}

func TestReadMissing(t *testing.T) {
	_, ok, err := Read(filepath.Join(t.TempDir(), "none.json"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadInvalid(t *testing.T) {
	dir := t.TempDir()

	garbage := filepath.Join(dir, "garbage.json")
	require.NoError(t, os.WriteFile(garbage, []byte("{"), 0o644))
	_, _, err := Read(garbage)
	assert.True(t, errors.Is(err, exception.ErrInvalidArgument), "%+v", err)

	negative := filepath.Join(dir, "negative.json")
	require.NoError(t, os.WriteFile(negative, []byte(`{"holdings":[{"currency":"BTC","total":"-1"}]}`), 0o644))
	_, _, err = Read(negative)
	assert.True(t, errors.Is(err, exception.ErrNegativeAmount), "%+v", err)
}

func TestCompare(t *testing.T) {
	a := Snapshot{Holdings: []Holding{{Currency: "BTC", Total: decimal.NewFromInt(1)}}}
	b := Snapshot{Holdings: []Holding{{Currency: "BTC", Total: decimal.NewFromInt(2)}}}
	c := Snapshot{Holdings: []Holding{{Currency: "ETH", Total: decimal.NewFromInt(1)}}}

	assert.NoError(t, Compare(a, a))
	assert.Error(t, Compare(a, b))
	assert.Error(t, Compare(a, c))
	assert.Error(t, Compare(a, Snapshot{}))
}
