package domain

import "github.com/shopspring/decimal"

// ExecutionReport is an incremental order update pushed by the venue.
type ExecutionReport struct {
	Symbol      string           // s
	Side        string           // S
	ExecType    string           // x
	Status      string           // X
	OrderID     string           // i
	Price       decimal.Decimal  // p
	OrigQty     decimal.Decimal  // q, requested quantity
	LastQty     decimal.Decimal  // l, quantity of this fill only
	CumQty      decimal.Decimal  // z, cumulative executed quantity
	CumQuoteQty decimal.Decimal  // Z
	StopPrice   *decimal.Decimal // P
	EventTime   int64            // T
	CreatedTime int64            // O
	Type        string           // o
	TimeInForce string           // f
}

// SnapshotOrder is one row of a full open-orders snapshot.
type SnapshotOrder struct {
	OrderID     string
	Symbol      string
	Side        string
	Status      string
	Type        string
	TimeInForce string
	Price       decimal.Decimal
	OrigQty     decimal.Decimal // requested
	ExecutedQty decimal.Decimal
	StopPrice   *decimal.Decimal
	Time        int64
	UpdateTime  int64
}

// Fill is a raw trade or history row. OrderID may be empty.
type Fill struct {
	ID          string
	OrderID     string
	Symbol      string
	Side        string
	Price       decimal.Decimal
	Qty         decimal.Decimal
	QuoteQty    decimal.Decimal
	Time        int64
	Status      string
	Type        string
	TimeInForce string
}

// PriceLevel is one raw (price, quantity) row of an order-book side.
type PriceLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}
