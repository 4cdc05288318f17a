// Package execution builds outbound order commands. Every order is truncated
// to the symbol's precision and validated against its trading filters
// before a command exists, so a rejected order never reaches the transport.
package execution

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"crypto_terminal/internal/domain"
	"crypto_terminal/internal/precision"
)

const (
	RequestBuy    = "buyOrder"
	RequestSell   = "sellOrder"
	RequestCancel = "cancelOrder"
)

// OrderRequest is a user order before quantization.
// A zero Price means a market order.
type OrderRequest struct {
	Symbol      string          `json:"symbol"`
	Side        string          `json:"side"`
	Price       decimal.Decimal `json:"price"`
	Quantity    decimal.Decimal `json:"quantity"`
	TimeInForce string          `json:"timeInForce,omitempty"`
}

// BuildOrder truncates price and quantity to the symbol's decimals,
// validates the result and returns the buyOrder/sellOrder command.
func BuildOrder(req OrderRequest, p precision.SymbolPrecision) (domain.Command, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return domain.Command{}, &domain.ValidationError{Field: "symbol", Reason: "is required"}
	}

	var request string
	switch strings.ToUpper(req.Side) {
	case domain.SideBuy:
		request = RequestBuy
	case domain.SideSell:
		request = RequestSell
	default:
		return domain.Command{}, &domain.ValidationError{Field: "side", Reason: fmt.Sprintf("unknown side %q", req.Side)}
	}

	price := precision.TruncateDecimal(req.Price, p.PriceDecimals)
	qty := precision.TruncateDecimal(req.Quantity, p.QuantityDecimals)
	if err := precision.Validate(p, price, qty); err != nil {
		return domain.Command{}, err
	}

	data := map[string]any{
		"symbol":   symbol,
		"quantity": precision.Format(qty, p.QuantityDecimals),
	}
	if price.IsZero() {
		data["type"] = domain.OrderTypeMarket
	} else {
		data["type"] = domain.OrderTypeLimit
		data["price"] = precision.Format(price, p.PriceDecimals)
		tif := req.TimeInForce
		if tif == "" {
			tif = "GTC"
		}
		data["timeInForce"] = tif
	}
	return domain.Command{Request: request, Data: data}, nil
}

// BuildCancel returns the cancelOrder command of a live order.
func BuildCancel(symbol, orderID string) (domain.Command, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return domain.Command{}, &domain.ValidationError{Field: "symbol", Reason: "is required"}
	}
	if orderID == "" {
		return domain.Command{}, &domain.ValidationError{Field: "orderId", Reason: "is required"}
	}
	return domain.Command{
		Request: RequestCancel,
		Data:    map[string]any{"symbol": symbol, "orderId": orderID},
	}, nil
}
