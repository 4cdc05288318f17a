// Package event turns inbound wire envelopes into typed events.
package event

import (
	"crypto_terminal/internal/domain"
	"crypto_terminal/internal/precision"
)

// Kind identifies the payload variant of an envelope.
type Kind int

const (
	KindChart Kind = iota + 1
	KindDepth
	KindOrders
	KindBalances
	KindFilters
	KindExecutionUpdate
	KindBalanceUpdate
	KindTrades
	KindHistory
	KindTicker
	KindTickerUpdate
)

var kindKeys = map[string]Kind{
	"chart":            KindChart,
	"depth":            KindDepth,
	"orders":           KindOrders,
	"balances":         KindBalances,
	"filters":          KindFilters,
	"execution_update": KindExecutionUpdate,
	"balance_update":   KindBalanceUpdate,
	"trades":           KindTrades,
	"history":          KindHistory,
	"ticker":           KindTicker,
	"ticker_update":    KindTickerUpdate,
}

// String returns the wire key of the kind.
func (k Kind) String() string {
	for key, v := range kindKeys {
		if v == k {
			return key
		}
	}
	return "unknown"
}

// Meta is carried by every event.
type Meta struct {
	RequestID string `json:"requestId,omitempty"`
	Symbol    string `json:"symbol,omitempty"`
	Interval  string `json:"interval,omitempty"`
}

// Event is the decoded sum type. The concrete types below are its only variants.
type Event interface {
	Kind() Kind
	Metadata() Meta
}

func (m Meta) Metadata() Meta { return m }

type ChartEvent struct {
	Meta
	Candles []domain.Candle
}

type DepthEvent struct {
	Meta
	Bids []domain.PriceLevel
	Asks []domain.PriceLevel
}

type OrdersEvent struct {
	Meta
	Orders []domain.SnapshotOrder
}

type BalancesEvent struct {
	Meta
	Balances []domain.Balance
}

type FiltersEvent struct {
	Meta
	Filters []precision.Filter
}

type ExecutionUpdateEvent struct {
	Meta
	Report domain.ExecutionReport
}

type BalanceUpdateEvent struct {
	Meta
	Balances []domain.Balance
}

type TradesEvent struct {
	Meta
	Fills []domain.Fill
}

type HistoryEvent struct {
	Meta
	Fills []domain.Fill
}

type TickerEvent struct {
	Meta
	Tickers []domain.Ticker
}

type TickerUpdateEvent struct {
	Meta
	Tickers []domain.Ticker
}

func (*ChartEvent) Kind() Kind           { return KindChart }
func (*DepthEvent) Kind() Kind           { return KindDepth }
func (*OrdersEvent) Kind() Kind          { return KindOrders }
func (*BalancesEvent) Kind() Kind        { return KindBalances }
func (*FiltersEvent) Kind() Kind         { return KindFilters }
func (*ExecutionUpdateEvent) Kind() Kind { return KindExecutionUpdate }
func (*BalanceUpdateEvent) Kind() Kind   { return KindBalanceUpdate }
func (*TradesEvent) Kind() Kind          { return KindTrades }
func (*HistoryEvent) Kind() Kind         { return KindHistory }
func (*TickerEvent) Kind() Kind          { return KindTicker }
func (*TickerUpdateEvent) Kind() Kind    { return KindTickerUpdate }
