// Package precision derives per-symbol rounding rules from exchange filter
// metadata and provides the truncation primitive used for every displayed
// or submitted number.
package precision

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	MaxDecimals = 12

	DefaultPriceDecimals    = 4
	DefaultQuantityDecimals = 4
	DefaultNotionalDecimals = 2

	StatusUnknown = "UNKNOWN"
	StatusTrading = "TRADING"
)

// Filter is the raw trading-filter record of one symbol, as sent by the venue.
// Numeric fields keep their wire representation.
type Filter struct {
	Symbol              string `json:"symbol"`
	Status              string `json:"status"`
	TickSize            string `json:"tickSize"`
	StepSize            string `json:"stepSize"`
	MinQty              string `json:"minQty"`
	MaxQty              string `json:"maxQty"`
	MinPrice            string `json:"minPrice"`
	MaxPrice            string `json:"maxPrice"`
	MinNotional         string `json:"minNotional"`
	BaseAsset           string `json:"baseAsset"`
	QuoteAsset          string `json:"quoteAsset"`
	QuoteAssetPrecision *int   `json:"quoteAssetPrecision,omitempty"`
}

// SymbolPrecision is the derived, immutable rounding rule set of a symbol.
// A zero MaxQty/MaxPrice with HasMax* false means unbounded.
type SymbolPrecision struct {
	Status           string          `json:"status"`
	PriceDecimals    int             `json:"priceDecimals"`
	QuantityDecimals int             `json:"quantityDecimals"`
	NotionalDecimals int             `json:"notionalDecimals"`
	MinQty           decimal.Decimal `json:"minQty"`
	MaxQty           decimal.Decimal `json:"maxQty"`
	HasMaxQty        bool            `json:"hasMaxQty"`
	MinPrice         decimal.Decimal `json:"minPrice"`
	MaxPrice         decimal.Decimal `json:"maxPrice"`
	HasMaxPrice      bool            `json:"hasMaxPrice"`
	MinNotional      decimal.Decimal `json:"minNotional"`
	TickSize         decimal.Decimal `json:"tickSize"`
	StepSize         decimal.Decimal `json:"stepSize"`
	BaseAsset        string          `json:"baseAsset"`
	QuoteAsset       string          `json:"quoteAsset"`
}

// Default returns the rules applied when a symbol has no filter record.
func Default() SymbolPrecision {
	return SymbolPrecision{
		Status:           StatusUnknown,
		PriceDecimals:    DefaultPriceDecimals,
		QuantityDecimals: DefaultQuantityDecimals,
		NotionalDecimals: DefaultNotionalDecimals,
	}
}

// Derive computes a fully populated SymbolPrecision. A nil filter yields Default().
// It has no side effects and returns the same value for the same input.
func Derive(f *Filter) SymbolPrecision {
	p := Default()
	if f == nil {
		return p
	}

	if f.Status != "" {
		p.Status = strings.ToUpper(f.Status)
	}
	if n := DecimalPlaces(f.TickSize); n >= 0 {
		p.PriceDecimals = n
	}
	if n := DecimalPlaces(f.StepSize); n >= 0 {
		p.QuantityDecimals = n
	}
	p.BaseAsset = strings.ToUpper(f.BaseAsset)
	p.QuoteAsset = strings.ToUpper(f.QuoteAsset)
	p.NotionalDecimals = notionalDecimals(p.QuoteAsset, f.QuoteAssetPrecision)

	p.TickSize = parseOrZero(f.TickSize)
	p.StepSize = parseOrZero(f.StepSize)
	p.MinQty = parseOrZero(f.MinQty)
	p.MinPrice = parseOrZero(f.MinPrice)
	p.MinNotional = parseOrZero(f.MinNotional)
	p.MaxQty = parseOrZero(f.MaxQty)
	p.HasMaxQty = p.MaxQty.IsPositive()
	p.MaxPrice = parseOrZero(f.MaxPrice)
	p.HasMaxPrice = p.MaxPrice.IsPositive()
	return p
}

// DecimalPlaces returns the number of significant fractional digits of a
// decimal or scientific-notation string ("0.00001" -> 5, "1E-6" -> 6,
// "0.0100" -> 2), clamped to [0, MaxDecimals]. It returns -1 when s does
// not parse.
func DecimalPlaces(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return -1
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return -1
	}
	// String() renders without exponent and without trailing zeros.
	str := v.String()
	idx := strings.IndexByte(str, '.')
	if idx < 0 {
		return 0
	}
	return clamp(len(str)-idx-1, 0, MaxDecimals)
}

// stableQuotes are quote assets displayed with cent precision.
var stableQuotes = []string{"USDT", "USDC", "BUSD", "FDUSD", "TUSD", "DAI", "USD"}

func notionalDecimals(quote string, supplied *int) int {
	if supplied != nil {
		return clamp(*supplied, 0, MaxDecimals)
	}
	switch quote {
	case "BTC":
		return 6
	case "ETH":
		return 5
	}
	for _, s := range stableQuotes {
		if strings.HasSuffix(quote, s) {
			return 2
		}
	}
	return DefaultNotionalDecimals
}

// Truncate cuts v to precision fractional digits, rounding toward zero.
// Non-finite input yields zero and precision <= 0 yields an integer.
// The value is first rendered as its shortest decimal string, so inputs
// like 10.999999999999998 truncate on their written digits (10.99 at 2).
func Truncate(v float64, precision int) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(strconv.FormatFloat(v, 'f', -1, 64))
	if err != nil {
		return decimal.Zero
	}
	return TruncateDecimal(d, precision)
}

// TruncateDecimal is Truncate for values already held as decimals.
func TruncateDecimal(d decimal.Decimal, precision int) decimal.Decimal {
	if precision < 0 {
		precision = 0
	}
	return d.Truncate(int32(precision))
}

// Format truncates d and renders it with exactly precision fractional digits.
func Format(d decimal.Decimal, precision int) string {
	if precision < 0 {
		precision = 0
	}
	return TruncateDecimal(d, precision).StringFixed(int32(precision))
}

// FormatPrice renders a price with the symbol's price decimals.
func (p SymbolPrecision) FormatPrice(d decimal.Decimal) string {
	return Format(d, p.PriceDecimals)
}

// FormatQty renders a quantity with the symbol's quantity decimals.
func (p SymbolPrecision) FormatQty(d decimal.Decimal) string {
	return Format(d, p.QuantityDecimals)
}

// FormatNotional renders a quote-asset value with the symbol's notional decimals.
func (p SymbolPrecision) FormatNotional(d decimal.Decimal) string {
	return Format(d, p.NotionalDecimals)
}

func parseOrZero(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return v
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
