package reconcile

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"crypto_terminal/internal/domain"
	"crypto_terminal/internal/precision"
)

// Outcome describes what an execution report did to the state.
type Outcome int

const (
	OutcomeIgnored     Outcome = iota // unknown or unhandled status
	OutcomeCreated                    // NEW inserted into the live set
	OutcomeDuplicate                  // NEW for an order already live
	OutcomePartial                    // residual decremented, history upserted
	OutcomeFinalized                  // terminal, removed and history finalized
	OutcomeCanceled                   // removed without history change
	OutcomeSynthesized                // order unknown, history built from the report alone
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomePartial:
		return "partial"
	case OutcomeFinalized:
		return "finalized"
	case OutcomeCanceled:
		return "canceled"
	case OutcomeSynthesized:
		return "synthesized"
	default:
		return "ignored"
	}
}

// PrecisionSource resolves the rounding rules of a symbol.
type PrecisionSource interface {
	Get(symbol string) precision.SymbolPrecision
}

// Reconciler applies snapshots and execution reports to State values.
// It keeps no state of its own.
type Reconciler struct {
	precision PrecisionSource
	logger    *slog.Logger
}

// NewReconciler creates a Reconciler. A nil source uses default precision.
func NewReconciler(src PrecisionSource) *Reconciler {
	return &Reconciler{
		precision: src,
		logger:    slog.Default().With("module", "reconciler"),
	}
}

func (r *Reconciler) qtyDecimals(symbol string) int {
	if r.precision == nil {
		return precision.DefaultQuantityDecimals
	}
	return r.precision.Get(symbol).QuantityDecimals
}

// ApplyExecution applies one execution report.
//
// The live order's OrigQty is the remaining quantity: NEW sets it to
// q - z, and every PARTIALLY_FILLED subtracts only the last fill l.
// History rows always carry the cumulative executed quantity z.
// Reports for an order that is not live never fail; a history row is
// built from the report fields instead.
func (r *Reconciler) ApplyExecution(s State, rep domain.ExecutionReport) (State, Outcome) {
	dec := r.qtyDecimals(rep.Symbol)
	idx := s.orderIndex(rep.OrderID)

	switch rep.Status {
	case domain.OrderStatusNew:
		if idx >= 0 {
			return s, OutcomeDuplicate
		}
		residual := nonNegative(rep.OrigQty.Sub(rep.CumQty))
		created := rep.CreatedTime
		if created == 0 {
			created = rep.EventTime
		}
		o := domain.Order{
			OrderID:     rep.OrderID,
			Symbol:      rep.Symbol,
			Side:        rep.Side,
			Price:       rep.Price,
			OrigQty:     precision.TruncateDecimal(residual, dec),
			Status:      domain.OrderStatusNew,
			Type:        rep.Type,
			TimeInForce: rep.TimeInForce,
			StopPrice:   rep.StopPrice,
			CreatedTime: created,
			UpdateTime:  rep.EventTime,
		}
		return s.withOrders(append(s.Orders(), o)), OutcomeCreated

	case domain.OrderStatusPartiallyFilled:
		if idx < 0 {
			r.logger.Warn("Partial fill for unknown order",
				slog.String("order_id", rep.OrderID), slog.String("symbol", rep.Symbol))
			return s.upsertHistory(historyFromReport(rep, dec)), OutcomeSynthesized
		}
		orders := s.Orders()
		o := &orders[idx]
		remaining := o.OrigQty.Sub(rep.LastQty)
		if remaining.IsNegative() {
			r.logger.Warn("Fill exceeds remaining quantity",
				slog.String("order_id", rep.OrderID),
				slog.String("remaining", o.OrigQty.String()),
				slog.String("last_qty", rep.LastQty.String()))
			remaining = decimal.Zero
		}
		o.OrigQty = precision.TruncateDecimal(remaining, dec)
		o.Status = domain.OrderStatusPartiallyFilled
		o.UpdateTime = rep.EventTime
		return s.withOrders(orders).upsertHistory(historyFromReport(rep, dec)), OutcomePartial

	case domain.OrderStatusCanceled:
		if idx < 0 {
			return s, OutcomeIgnored
		}
		return s.withOrders(removeAt(s.Orders(), idx)), OutcomeCanceled

	case domain.OrderStatusFilled, domain.OrderStatusRejected, domain.OrderStatusExpired:
		next := s.upsertHistory(historyFromReport(rep, dec))
		if idx < 0 {
			r.logger.Info("Terminal report for unknown order",
				slog.String("order_id", rep.OrderID), slog.String("status", rep.Status))
			return next, OutcomeSynthesized
		}
		return next.withOrders(removeAt(s.Orders(), idx)), OutcomeFinalized

	case domain.OrderStatusReplaced:
		// Recognized but not reconciled yet.
		r.logger.Warn("REPLACED execution report left unhandled",
			slog.String("order_id", rep.OrderID), slog.String("symbol", rep.Symbol))
		return s, OutcomeIgnored

	default:
		r.logger.Warn("Unknown order status", slog.String("status", rep.Status), slog.String("order_id", rep.OrderID))
		return s, OutcomeIgnored
	}
}

// ApplySnapshot replaces the live set with an authoritative open-orders
// snapshot. Each residual is computed once as origQty - executedQty.
// Rows already in a terminal status are not live and are skipped.
// History is left untouched.
func (r *Reconciler) ApplySnapshot(s State, rows []domain.SnapshotOrder) State {
	orders := make([]domain.Order, 0, len(rows))
	seen := make(map[string]int, len(rows))
	for _, row := range rows {
		status := row.Status
		if status == "" {
			status = domain.OrderStatusNew
		}
		if domain.IsTerminalStatus(status) {
			continue
		}
		o := domain.Order{
			OrderID:     row.OrderID,
			Symbol:      row.Symbol,
			Side:        row.Side,
			Price:       row.Price,
			OrigQty:     precision.TruncateDecimal(nonNegative(row.OrigQty.Sub(row.ExecutedQty)), r.qtyDecimals(row.Symbol)),
			Status:      status,
			Type:        row.Type,
			TimeInForce: row.TimeInForce,
			StopPrice:   row.StopPrice,
			CreatedTime: row.Time,
			UpdateTime:  row.UpdateTime,
		}
		if i, dup := seen[o.OrderID]; dup {
			orders[i] = o
			continue
		}
		seen[o.OrderID] = len(orders)
		orders = append(orders, o)
	}
	return s.withOrders(orders)
}

func historyFromReport(rep domain.ExecutionReport, qtyDecimals int) domain.HistoryEntry {
	price := rep.Price
	if price.IsZero() && rep.CumQty.IsPositive() && rep.CumQuoteQty.IsPositive() {
		// Market orders carry no limit price; use the average fill price.
		price = rep.CumQuoteQty.Div(rep.CumQty)
	}
	quote := rep.CumQuoteQty
	if quote.IsZero() {
		quote = price.Mul(rep.CumQty)
	}
	return domain.HistoryEntry{
		OrderID:     rep.OrderID,
		Symbol:      rep.Symbol,
		Side:        rep.Side,
		Price:       price,
		Qty:         precision.TruncateDecimal(rep.CumQty, qtyDecimals),
		QuoteQty:    quote,
		Status:      rep.Status,
		Time:        rep.EventTime,
		TimeInForce: rep.TimeInForce,
		Type:        rep.Type,
	}
}

func removeAt(orders []domain.Order, i int) []domain.Order {
	return append(orders[:i], orders[i+1:]...)
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
