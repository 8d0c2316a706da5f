package binance

import (
	"strings"
	"time"
)

const (
	defaultRESTBaseURL = "https://fapi.binance.com"
	testnetRESTBaseURL = "https://testnet.binancefuture.com"
)

type Config struct {
	APIKey      string
	APISecret   string
	RESTBaseURL string
	Testnet     bool
	HTTPTimeout time.Duration
	ProxyURL    string
	// QuoteAsset filters InstrumentSpecs to contracts settled in this asset.
	QuoteAsset string
}

func (c *Config) withDefaults() Config {
	out := *c
	out.RESTBaseURL = strings.TrimRight(strings.TrimSpace(out.RESTBaseURL), "/")
	if out.Testnet && (out.RESTBaseURL == "" || out.RESTBaseURL == defaultRESTBaseURL) {
		out.RESTBaseURL = testnetRESTBaseURL
	}
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = defaultRESTBaseURL
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	out.ProxyURL = strings.TrimSpace(out.ProxyURL)
	out.QuoteAsset = strings.ToUpper(strings.TrimSpace(out.QuoteAsset))
	if out.QuoteAsset == "" {
		out.QuoteAsset = "USDT"
	}
	return out
}
