package domain

import "github.com/shopspring/decimal"

// Ticker represents a last-price update for one symbol.
type Ticker struct {
	Symbol     string           `json:"symbol"`
	Price      decimal.Decimal  `json:"price"`
	PrevPrice  *decimal.Decimal `json:"prevPrice,omitempty"` // set only when the venue reports it
	Volume     decimal.Decimal  `json:"volume"`
	ChangeRate decimal.Decimal  `json:"changeRate"` // 24h change (%)
	Time       int64            `json:"time"`       // Unix millis
}

// Candle is one OHLCV bar. Time is in Unix seconds.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// DepthLevel is one display row of an order-book ladder.
type DepthLevel struct {
	Price              string `json:"price"`
	Quantity           string `json:"quantity"`
	Notional           string `json:"notional"`
	CumulativeNotional string `json:"cumulativeNotional"`
	CumulativeQuantity string `json:"cumulativeQuantity"`
	IsLargeOrder       bool   `json:"isLargeOrder"`
}

// Balance is the free/locked amount of one asset.
type Balance struct {
	Asset  string          `json:"asset"`
	Free   decimal.Decimal `json:"free"`
	Locked decimal.Decimal `json:"locked"`
}

// Total returns free + locked.
func (b Balance) Total() decimal.Decimal {
	return b.Free.Add(b.Locked)
}

// ChangeDirection returns "positive", "negative", or "neutral"
func (t *Ticker) ChangeDirection() string {
	if t.ChangeRate.IsPositive() {
		return "positive"
	}
	if t.ChangeRate.IsNegative() {
		return "negative"
	}
	return "neutral"
}
