package domain

import (
	"context"
)

// ExchangeWorker defines the interface for the terminal's transport connector
type ExchangeWorker interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
}

// CommandSender accepts outbound command objects for the transport.
type CommandSender interface {
	Send(cmd Command) error
}

// Command is an outbound request, e.g. {"request":"buyOrder","data":{...}}.
type Command struct {
	Request string         `json:"request"`
	Data    map[string]any `json:"data"`
}

// AlertStore persists alert records keyed by id.
type AlertStore interface {
	SaveAlert(ctx context.Context, a Alert) error
	DeleteAlert(ctx context.Context, id string) error
	LoadAlerts(ctx context.Context) ([]Alert, error)
}

// CandleStore caches candle series per (symbol, interval).
type CandleStore interface {
	MergeCandles(ctx context.Context, symbol, interval string, candles []Candle) error
	LoadCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
}

// Notifier dispatches the audio/visual/system side effects of a fired alert.
type Notifier interface {
	Notify(a Alert)
}
