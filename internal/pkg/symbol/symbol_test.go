package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToExchange(t *testing.T) {
	cases := map[string]string{
		"BTCUSDT":       "BTCUSDT",
		"btc/usdt":      "BTCUSDT",
		"BTC/USDT:USDT": "BTCUSDT",
		" ethusdt.p ":   "ETHUSDT",
		"unknown":       "UNKNOWN",
	}
	for in, want := range cases {
		assert.Equal(t, want, Binance.ToExchange(in), in)
	}
}

func TestQuoteAndList(t *testing.T) {
	assert.Equal(t, "USDT", Quote("BTCUSDT"))
	assert.Equal(t, "", Quote("???"))
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, NormalizeList([]string{"btc/usdt", "BTCUSDT", "", "ETHUSDT"}))
	assert.Equal(t, "BTC/USDT", Binance.FromExchange("BTCUSDT"))
}
