package symbol

import "strings"

type BinanceConverter struct{}

// ToExchange maps any accepted spelling to "BTCUSDT". Unparseable input is
// upper-cased with separators stripped so the exchange can reject it.
func (BinanceConverter) ToExchange(raw string) string {
	if sym := Parse(raw); sym.Base != "" {
		return sym.Binance()
	}
	s := strings.ToUpper(strings.TrimSpace(raw))
	return strings.ReplaceAll(s, "/", "")
}

func (BinanceConverter) FromExchange(raw string) string {
	return Parse(raw).Internal()
}

var Binance = BinanceConverter{}
