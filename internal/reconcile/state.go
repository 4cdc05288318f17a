// Package reconcile maintains the live-order set and order history from
// snapshots and execution reports.
//
// State values are immutable: every Apply* call returns a new State and the
// previous one stays valid for whoever still holds it.
package reconcile

import (
	"sort"
	"strings"

	"crypto_terminal/internal/domain"
)

// State is the reconciled view of orders and history.
type State struct {
	orders  []domain.Order        // creation order
	history []domain.HistoryEntry // ascending by Time

	// Order ids whose history row was built from trade rows, and the fill
	// ids already counted into them. Both are copied on write.
	tradeOwned map[string]struct{}
	seenFills  map[string]struct{}
}

// Orders returns a copy of the live orders.
func (s State) Orders() []domain.Order {
	return cloneOrders(s.orders)
}

// History returns a copy of the history, ascending by time.
func (s State) History() []domain.HistoryEntry {
	return append([]domain.HistoryEntry(nil), s.history...)
}

// Order looks up a live order.
func (s State) Order(id string) (domain.Order, bool) {
	if i := s.orderIndex(id); i >= 0 {
		return cloneOrder(s.orders[i]), true
	}
	return domain.Order{}, false
}

// HistoryEntry looks up the history row of an order.
func (s State) HistoryEntry(id string) (domain.HistoryEntry, bool) {
	if i := s.historyIndex(id); i >= 0 {
		return s.history[i], true
	}
	return domain.HistoryEntry{}, false
}

// OpenOrders returns the live orders of symbol (case-insensitive); an empty
// symbol returns all of them.
func (s State) OpenOrders(symbol string) []domain.Order {
	out := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if symbolMatch(o.Symbol, symbol) {
			out = append(out, cloneOrder(o))
		}
	}
	return out
}

// HistoryFor returns the history rows of symbol (case-insensitive).
func (s State) HistoryFor(symbol string) []domain.HistoryEntry {
	out := make([]domain.HistoryEntry, 0, len(s.history))
	for _, h := range s.history {
		if symbolMatch(h.Symbol, symbol) {
			out = append(out, h)
		}
	}
	return out
}

func (s State) orderIndex(id string) int {
	for i := range s.orders {
		if s.orders[i].OrderID == id {
			return i
		}
	}
	return -1
}

func (s State) historyIndex(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.history {
		if s.history[i].OrderID == id {
			return i
		}
	}
	return -1
}

// withOrders and withHistory build the next state; the receiver is not touched.
func (s State) withOrders(orders []domain.Order) State {
	s.orders = orders
	return s
}

func (s State) withHistory(history []domain.HistoryEntry) State {
	sort.SliceStable(history, func(i, j int) bool { return history[i].Time < history[j].Time })
	s.history = history
	return s
}

// upsertHistory writes a row from the execution stream, which takes the
// row over from the trade stream.
func (s State) upsertHistory(e domain.HistoryEntry) State {
	next := s.History()
	if i := s.historyIndex(e.OrderID); i >= 0 {
		next[i] = e
	} else {
		next = append(next, e)
	}
	if _, ok := s.tradeOwned[e.OrderID]; ok {
		owned := copySet(s.tradeOwned)
		delete(owned, e.OrderID)
		s.tradeOwned = owned
	}
	return s.withHistory(next)
}

func copySet(in map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(in)+1)
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}

func symbolMatch(have, want string) bool {
	return want == "" || strings.EqualFold(have, want)
}

func cloneOrder(o domain.Order) domain.Order {
	if o.StopPrice != nil {
		sp := *o.StopPrice
		o.StopPrice = &sp
	}
	return o
}

func cloneOrders(in []domain.Order) []domain.Order {
	out := make([]domain.Order, len(in))
	for i := range in {
		out[i] = cloneOrder(in[i])
	}
	return out
}
