package reconcile

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto_terminal/internal/domain"
	"crypto_terminal/internal/precision"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func report(id, status, q, l, z string, ts int64) domain.ExecutionReport {
	return domain.ExecutionReport{
		Symbol: "BTCUSDT", Side: domain.SideBuy, Status: status, OrderID: id,
		Price: d("100"), OrigQty: d(q), LastQty: d(l), CumQty: d(z),
		EventTime: ts, Type: domain.OrderTypeLimit, TimeInForce: "GTC",
	}
}

func newReconciler() *Reconciler {
	reg := precision.NewRegistry()
	reg.Update([]precision.Filter{{Symbol: "BTCUSDT", Status: "TRADING", TickSize: "0.01", StepSize: "0.00001"}})
	return NewReconciler(reg)
}

func TestApplyExecution_NewIsIdempotent(t *testing.T) {
	r := newReconciler()

	s, out := r.ApplyExecution(State{}, report("1", "NEW", "100", "0", "0", 1000))
	require.Equal(t, OutcomeCreated, out)
	require.Len(t, s.Orders(), 1)

	again, out := r.ApplyExecution(s, report("1", "NEW", "999", "0", "0", 2000))
	assert.Equal(t, OutcomeDuplicate, out)
	o, _ := again.Order("1")
	assert.True(t, o.OrigQty.Equal(d("100")), "duplicate NEW must not overwrite")
}

func TestApplyExecution_NewResumesFromExecuted(t *testing.T) {
	r := newReconciler()
	s, _ := r.ApplyExecution(State{}, report("1", "NEW", "100", "0", "25", 1000))
	o, ok := s.Order("1")
	require.True(t, ok)
	assert.True(t, o.OrigQty.Equal(d("75")))
}

func TestApplyExecution_ResidualInvariant(t *testing.T) {
	r := newReconciler()
	s, _ := r.ApplyExecution(State{}, report("7", "NEW", "100", "0", "0", 1000))

	fills := []string{"10", "20", "5.5", "0.25"}
	remaining := d("100")
	cumulative := decimal.Zero
	for i, l := range fills {
		cumulative = cumulative.Add(d(l))
		remaining = remaining.Sub(d(l))

		var out Outcome
		s, out = r.ApplyExecution(s, report("7", "PARTIALLY_FILLED", "100", l, cumulative.String(), int64(2000+i)))
		require.Equal(t, OutcomePartial, out)

		o, ok := s.Order("7")
		require.True(t, ok)
		assert.True(t, o.OrigQty.Equal(remaining), "after fill %d: origQty=%s want %s", i, o.OrigQty, remaining)
		assert.False(t, o.OrigQty.IsNegative())
		assert.Equal(t, domain.OrderStatusPartiallyFilled, o.Status)

		h, ok := s.HistoryEntry("7")
		require.True(t, ok)
		assert.True(t, h.Qty.Equal(cumulative), "history carries cumulative qty")
	}
	require.Len(t, s.History(), 1, "one history row per order")
}

func TestApplyExecution_NewPartialFillCancel(t *testing.T) {
	r := newReconciler()
	s, _ := r.ApplyExecution(State{}, report("1", "NEW", "100", "0", "0", 1))
	s, _ = r.ApplyExecution(s, report("1", "PARTIALLY_FILLED", "100", "10", "10", 2))
	o, _ := s.Order("1")
	assert.True(t, o.OrigQty.Equal(d("90")))

	s, _ = r.ApplyExecution(s, report("1", "PARTIALLY_FILLED", "100", "20", "30", 3))
	o, _ = s.Order("1")
	assert.True(t, o.OrigQty.Equal(d("70")))
}

func TestApplyExecution_OverfillClampsAtZero(t *testing.T) {
	r := newReconciler()
	s, _ := r.ApplyExecution(State{}, report("1", "NEW", "5", "0", "0", 1))
	s, _ = r.ApplyExecution(s, report("1", "PARTIALLY_FILLED", "5", "8", "8", 2))
	o, _ := s.Order("1")
	assert.True(t, o.OrigQty.IsZero())
}

func TestApplyExecution_FilledPromotesToHistory(t *testing.T) {
	r := newReconciler()
	s, _ := r.ApplyExecution(State{}, report("1", "NEW", "10", "0", "0", 1))
	s, _ = r.ApplyExecution(s, report("1", "PARTIALLY_FILLED", "10", "4", "4", 2))
	s, out := r.ApplyExecution(s, report("1", "FILLED", "10", "6", "10", 3))

	assert.Equal(t, OutcomeFinalized, out)
	assert.Empty(t, s.Orders())
	h, ok := s.HistoryEntry("1")
	require.True(t, ok)
	assert.True(t, h.Qty.Equal(d("10")))
	assert.Equal(t, domain.OrderStatusFilled, h.Status)
	assert.Equal(t, int64(3), h.Time)
	assert.True(t, h.QuoteQty.Equal(d("1000")), "quote qty falls back to price*qty")
}

func TestApplyExecution_RejectedAndExpiredFinalize(t *testing.T) {
	r := newReconciler()
	for _, status := range []string{"REJECTED", "EXPIRED"} {
		s, _ := r.ApplyExecution(State{}, report("1", "NEW", "10", "0", "0", 1))
		s, out := r.ApplyExecution(s, report("1", status, "10", "0", "0", 2))
		assert.Equal(t, OutcomeFinalized, out, status)
		assert.Empty(t, s.Orders())
		h, ok := s.HistoryEntry("1")
		require.True(t, ok, status)
		assert.Equal(t, status, h.Status)
	}
}

func TestApplyExecution_CanceledLeavesNoHistory(t *testing.T) {
	r := newReconciler()
	s, _ := r.ApplyExecution(State{}, report("1", "NEW", "10", "0", "0", 1))
	s, out := r.ApplyExecution(s, report("1", "CANCELED", "10", "0", "0", 2))

	assert.Equal(t, OutcomeCanceled, out)
	assert.Empty(t, s.Orders())
	assert.Empty(t, s.History())
}

func TestApplyExecution_CanceledAfterPartialKeepsPartialRow(t *testing.T) {
	r := newReconciler()
	s, _ := r.ApplyExecution(State{}, report("1", "NEW", "10", "0", "0", 1))
	s, _ = r.ApplyExecution(s, report("1", "PARTIALLY_FILLED", "10", "3", "3", 2))
	s, _ = r.ApplyExecution(s, report("1", "CANCELED", "10", "0", "3", 3))

	assert.Empty(t, s.Orders())
	h, ok := s.HistoryEntry("1")
	require.True(t, ok)
	assert.Equal(t, domain.OrderStatusPartiallyFilled, h.Status)
	assert.True(t, h.Qty.Equal(d("3")))
	assert.Equal(t, int64(2), h.Time)
}

func TestApplyExecution_ReplacedIsUnhandled(t *testing.T) {
	r := newReconciler()
	s, _ := r.ApplyExecution(State{}, report("1", "NEW", "10", "0", "0", 1))
	next, out := r.ApplyExecution(s, report("1", "REPLACED", "12", "0", "0", 2))

	assert.Equal(t, OutcomeIgnored, out)
	assert.Equal(t, s.Orders(), next.Orders())
	assert.Empty(t, next.History())
}

func TestApplyExecution_UnknownOrderSynthesizesHistory(t *testing.T) {
	r := newReconciler()

	rep := report("404", "PARTIALLY_FILLED", "10", "2", "2", 5)
	rep.Side = domain.SideSell
	s, out := r.ApplyExecution(State{}, rep)
	assert.Equal(t, OutcomeSynthesized, out)
	assert.Empty(t, s.Orders(), "no order is guessed into the live set")
	h, ok := s.HistoryEntry("404")
	require.True(t, ok)
	assert.Equal(t, domain.SideSell, h.Side)
	assert.True(t, h.Qty.Equal(d("2")))

	s, out = r.ApplyExecution(s, report("404", "FILLED", "10", "8", "10", 6))
	assert.Equal(t, OutcomeSynthesized, out)
	h, _ = s.HistoryEntry("404")
	assert.True(t, h.Qty.Equal(d("10")))
	assert.Len(t, s.History(), 1)
}

func TestApplyExecution_MarketOrderUsesAveragePrice(t *testing.T) {
	r := newReconciler()
	rep := report("m", "FILLED", "2", "2", "2", 1)
	rep.Price = decimal.Zero
	rep.CumQuoteQty = d("201")
	s, _ := r.ApplyExecution(State{}, rep)
	h, _ := s.HistoryEntry("m")
	assert.True(t, h.Price.Equal(d("100.5")))
}

func TestApplyExecution_DoesNotMutatePreviousState(t *testing.T) {
	r := newReconciler()
	s1, _ := r.ApplyExecution(State{}, report("1", "NEW", "100", "0", "0", 1))
	s2, _ := r.ApplyExecution(s1, report("1", "PARTIALLY_FILLED", "100", "10", "10", 2))
	s3, _ := r.ApplyExecution(s2, report("1", "FILLED", "100", "90", "100", 3))

	o1, ok := s1.Order("1")
	require.True(t, ok)
	assert.True(t, o1.OrigQty.Equal(d("100")))
	assert.Empty(t, s1.History())

	o2, ok := s2.Order("1")
	require.True(t, ok)
	assert.True(t, o2.OrigQty.Equal(d("90")))
	h2, _ := s2.HistoryEntry("1")
	assert.True(t, h2.Qty.Equal(d("10")))

	assert.Empty(t, s3.Orders())
}

func TestApplySnapshot(t *testing.T) {
	r := newReconciler()
	s, _ := r.ApplyExecution(State{}, report("old", "NEW", "1", "0", "0", 1))

	s = r.ApplySnapshot(s, []domain.SnapshotOrder{
		{OrderID: "a", Symbol: "BTCUSDT", Side: "SELL", Status: "PARTIALLY_FILLED", Price: d("101"), OrigQty: d("100.0"), ExecutedQty: d("10.0"), Time: 10},
		{OrderID: "b", Symbol: "ETHUSDT", Side: "BUY", Price: d("5"), OrigQty: d("1"), ExecutedQty: d("2"), Time: 11},
	})

	orders := s.Orders()
	require.Len(t, orders, 2, "snapshot replaces the live set wholesale")
	assert.Equal(t, "a", orders[0].OrderID)
	assert.True(t, orders[0].OrigQty.Equal(d("90")))
	assert.True(t, orders[1].OrigQty.IsZero(), "residual never negative")
	assert.Equal(t, domain.OrderStatusNew, orders[1].Status)

	// Later partial fills subtract from the snapshot residual.
	s, _ = r.ApplyExecution(s, domain.ExecutionReport{
		Symbol: "BTCUSDT", Status: "PARTIALLY_FILLED", OrderID: "a", LastQty: d("5"), CumQty: d("15"), Price: d("101"), EventTime: 20,
	})
	o, _ := s.Order("a")
	assert.True(t, o.OrigQty.Equal(d("85")))
}

func TestApplySnapshot_SkipsTerminalRows(t *testing.T) {
	r := newReconciler()
	s := r.ApplySnapshot(State{}, []domain.SnapshotOrder{
		{OrderID: "a", Symbol: "BTCUSDT", Status: "FILLED", OrigQty: d("1"), ExecutedQty: d("1")},
		{OrderID: "b", Symbol: "BTCUSDT", Status: "NEW", OrigQty: d("1")},
		{OrderID: "c", Symbol: "BTCUSDT", Status: "CANCELED", OrigQty: d("1")},
	})
	orders := s.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, "b", orders[0].OrderID)
}

func TestState_SymbolViews(t *testing.T) {
	r := newReconciler()
	s := r.ApplySnapshot(State{}, []domain.SnapshotOrder{
		{OrderID: "a", Symbol: "BTCUSDT", OrigQty: d("1")},
		{OrderID: "b", Symbol: "ETHUSDT", OrigQty: d("1")},
	})
	assert.Len(t, s.OpenOrders("btcusdt"), 1)
	assert.Len(t, s.OpenOrders(""), 2)
}

func TestReconciler_TruncatesToStepSize(t *testing.T) {
	r := newReconciler() // BTCUSDT step 0.00001
	s, _ := r.ApplyExecution(State{}, report("1", "NEW", "1.123456789", "0", "0", 1))
	o, _ := s.Order("1")
	assert.Equal(t, "1.12345", o.OrigQty.String())
}
