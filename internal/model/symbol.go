package model

import "strings"

const symbolSeparator = "/"

// SplitSymbol splits "BASE/QUOTE" into its base and quote currencies.
func SplitSymbol(symbol string) (base, quote string, ok bool) {
	base, quote, ok = strings.Cut(symbol, symbolSeparator)
	if !ok || base == "" || quote == "" || strings.Contains(quote, symbolSeparator) {
		return "", "", false
	}
	return base, quote, true
}

// MergeCurrencies builds the "BASE/QUOTE" symbol.
func MergeCurrencies(base, quote string) string {
	return base + symbolSeparator + quote
}

// ValidSymbol reports whether symbol has the "BASE/QUOTE" shape.
func ValidSymbol(symbol string) bool {
	_, _, ok := SplitSymbol(symbol)
	return ok
}

// ExchangeSymbol converts "BTC/USDT" into the exchange form "BTCUSDT".
func ExchangeSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, symbolSeparator, ""))
}
