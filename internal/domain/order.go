package domain

import "github.com/shopspring/decimal"

// Order is a live order as the terminal sees it.
// OrigQty always holds the remaining unfilled quantity, never the requested one.
type Order struct {
	OrderID     string           `json:"orderId"`
	Symbol      string           `json:"symbol"`
	Side        string           `json:"side"` // "BUY", "SELL"
	Price       decimal.Decimal  `json:"price"`
	OrigQty     decimal.Decimal  `json:"origQty"`
	Status      string           `json:"status"`
	Type        string           `json:"type"` // "LIMIT", "MARKET", ...
	TimeInForce string           `json:"timeInForce"`
	StopPrice   *decimal.Decimal `json:"stopPrice,omitempty"`
	CreatedTime int64            `json:"createdTime"` // Unix millis
	UpdateTime  int64            `json:"updateTime"`  // Unix millis
}

// HistoryEntry is a finalized (or partially filled) order row.
// Qty is the cumulative executed quantity, not the residual.
type HistoryEntry struct {
	OrderID     string          `json:"orderId"`
	Symbol      string          `json:"symbol"`
	Side        string          `json:"side"`
	Price       decimal.Decimal `json:"price"`
	Qty         decimal.Decimal `json:"qty"`
	QuoteQty    decimal.Decimal `json:"quoteQty"`
	Status      string          `json:"status"`
	Time        int64           `json:"time"` // Unix millis
	TimeInForce string          `json:"timeInForce"`
	Type        string          `json:"type"`
}

// OrderGroup clusters consecutive same-side fills for display.
type OrderGroup struct {
	ID         string          `json:"id"`
	Side       string          `json:"side"`
	Symbol     string          `json:"symbol"`
	AvgPrice   decimal.Decimal `json:"avgPrice"`
	TotalQty   decimal.Decimal `json:"totalQty"`
	TotalValue decimal.Decimal `json:"totalValue"`
	OrderCount int             `json:"orderCount"`
	StartTime  int64           `json:"startTime"`
	EndTime    int64           `json:"endTime"`
	Members    []HistoryEntry  `json:"memberOrders"`
}

const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	OrderTypeLimit  = "LIMIT"
	OrderTypeMarket = "MARKET"

	OrderStatusNew             = "NEW"
	OrderStatusPartiallyFilled = "PARTIALLY_FILLED"
	OrderStatusFilled          = "FILLED"
	OrderStatusCanceled        = "CANCELED"
	OrderStatusRejected        = "REJECTED"
	OrderStatusExpired         = "EXPIRED"
	OrderStatusReplaced        = "REPLACED"
)

// IsTerminalStatus reports whether status removes an order from the live set.
func IsTerminalStatus(status string) bool {
	switch status {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected, OrderStatusExpired:
		return true
	default:
		return false
	}
}

// Notional returns price * remaining quantity.
func (o *Order) Notional() decimal.Decimal {
	return o.Price.Mul(o.OrigQty)
}
