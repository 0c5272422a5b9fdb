package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSymbol(t *testing.T) {
	base, quote, ok := SplitSymbol("BTC/USDT")
	require.True(t, ok)
	assert.Equal(t, "BTC", base)
	assert.Equal(t, "USDT", quote)

	for _, bad := range []string{"", "BTCUSDT", "/USDT", "BTC/", "A/B/C"} {
		_, _, ok := SplitSymbol(bad)
		assert.Falsef(t, ok, "symbol %q should be invalid", bad)
	}

	assert.Equal(t, "ETH/BTC", MergeCurrencies("ETH", "BTC"))
	assert.Equal(t, "ETHBTC", ExchangeSymbol("eth/btc"))
}

func TestTimeFrame(t *testing.T) {
	tf, err := ParseTimeFrame("1h")
	require.NoError(t, err)
	assert.Equal(t, int64(3_600_000), tf.Millis())
	assert.Equal(t, int64(3_600_000), tf.BucketStart(3_600_000+59_000))

	_, err = ParseTimeFrame("7m")
	require.Error(t, err)

	shortest, ok := MinTimeFrame([]TimeFrame{TimeFrame1d, TimeFrame5m, "bogus", TimeFrame1h})
	require.True(t, ok)
	assert.Equal(t, TimeFrame5m, shortest)
}
