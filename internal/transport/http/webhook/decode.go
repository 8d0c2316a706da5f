package webhookhttp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"bracketbot/internal/engine"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// numbers may arrive as JSON numbers or as numeric strings from alert templates.
const signalSchema = `{
  "type": "object",
  "properties": {
    "symbol": {"type": "string"},
    "side": {"type": "string", "pattern": "(?i)^\\s*(buy|sell|close)\\s*$"},
    "entry": {"$ref": "#/$defs/numeric"},
    "sl_distance": {"$ref": "#/$defs/numeric"},
    "tp_factor": {"$ref": "#/$defs/numeric"},
    "risk_percent": {"$ref": "#/$defs/numeric"},
    "limit_offset": {"$ref": "#/$defs/numeric"},
    "secret": {"type": "string"}
  },
  "required": ["side"],
  "$defs": {
    "numeric": {
      "oneOf": [
        {"type": "number"},
        {"type": "string", "pattern": "^\\s*-?[0-9]*\\.?[0-9]+\\s*$"}
      ]
    }
  }
}`

var compiledSignalSchema = func() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("signal.json", strings.NewReader(signalSchema)); err != nil {
		panic(err)
	}
	return compiler.MustCompile("signal.json")
}()

// Defaults fill fields an alert leaves out.
type Defaults struct {
	Symbol      string
	TPFactor    decimal.Decimal
	RiskPercent decimal.Decimal
	LimitOffset decimal.Decimal
}

// ErrBadPayload marks a body that is not a usable signal.
var ErrBadPayload = errors.New("invalid signal payload")

// Payload is a decoded signal plus the shared secret it carried.
type Payload struct {
	Signal engine.Signal
	Secret string
}

// DecodeSignal validates body against the signal schema and applies defaults.
func DecodeSignal(body []byte, def Defaults) (Payload, error) {
	if !gjson.ValidBytes(body) {
		return Payload{}, fmt.Errorf("%w: body is not valid JSON", ErrBadPayload)
	}
	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if err := compiledSignalSchema.Validate(doc); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	res := gjson.ParseBytes(body)
	sig := engine.Signal{
		Symbol: strings.TrimSpace(res.Get("symbol").String()),
		Side:   strings.ToUpper(strings.TrimSpace(res.Get("side").String())),
	}
	if sig.Symbol == "" {
		sig.Symbol = def.Symbol
	}
	fields := []struct {
		key string
		dst *decimal.Decimal
		def decimal.Decimal
	}{
		{"entry", &sig.Entry, decimal.Zero},
		{"sl_distance", &sig.StopLossDistance, decimal.Zero},
		{"tp_factor", &sig.TakeProfitFactor, def.TPFactor},
		{"risk_percent", &sig.RiskPercent, def.RiskPercent},
		{"limit_offset", &sig.LimitOffset, def.LimitOffset},
	}
	for _, f := range fields {
		v, err := numeric(res.Get(f.key), f.def)
		if err != nil {
			return Payload{}, fmt.Errorf("%w: %s: %v", ErrBadPayload, f.key, err)
		}
		*f.dst = v
	}
	return Payload{Signal: sig, Secret: res.Get("secret").String()}, nil
}

func numeric(r gjson.Result, def decimal.Decimal) (decimal.Decimal, error) {
	switch r.Type {
	case gjson.Number:
		return decimal.NewFromString(r.Raw)
	case gjson.String:
		s := strings.TrimSpace(r.Str)
		if s == "" {
			return def, nil
		}
		return decimal.NewFromString(s)
	default:
		return def, nil
	}
}
