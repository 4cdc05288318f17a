package reconcile

import (
	"strconv"
	"strings"

	"crypto_terminal/internal/domain"
)

// ApplyHistory rebuilds the history of symbol, and of every symbol named in
// fills, from that authoritative list. Rows of other symbols are kept.
func (r *Reconciler) ApplyHistory(s State, symbol string, fills []domain.Fill) State {
	rows := mergeFills(fills)
	covered := make(map[string]struct{}, 4)
	if symbol != "" {
		covered[strings.ToUpper(symbol)] = struct{}{}
	}
	for _, f := range fills {
		covered[strings.ToUpper(f.Symbol)] = struct{}{}
	}

	next := make([]domain.HistoryEntry, 0, len(s.history)+len(rows))
	for _, h := range s.history {
		if _, ok := covered[strings.ToUpper(h.Symbol)]; !ok {
			next = append(next, h)
		}
	}
	next = append(next, rows...)

	// Authoritative rows belong to no stream.
	if len(s.tradeOwned) > 0 {
		owned := copySet(s.tradeOwned)
		for _, h := range rows {
			delete(owned, h.OrderID)
		}
		s.tradeOwned = owned
	}
	return s.withHistory(next)
}

// ApplyTrades merges incremental trade rows into history. A fill id is
// counted once. Orders whose row came from the execution stream or a history
// snapshot are skipped; rows built from earlier trades accumulate. Rows
// without an order id add into their one-second bucket.
func (r *Reconciler) ApplyTrades(s State, fills []domain.Fill) State {
	fresh := make([]domain.Fill, 0, len(fills))
	var seen map[string]struct{}
	for _, f := range fills {
		if f.ID == "" {
			fresh = append(fresh, f)
			continue
		}
		if _, dup := s.seenFills[f.ID]; dup {
			continue
		}
		if seen == nil {
			seen = copySet(s.seenFills)
		} else if _, dup := seen[f.ID]; dup {
			continue
		}
		seen[f.ID] = struct{}{}
		fresh = append(fresh, f)
	}
	if seen != nil {
		s.seenFills = seen
	}

	rows := mergeFills(fresh)
	if len(rows) == 0 {
		return s
	}
	next := s.History()
	var owned map[string]struct{}
	for _, row := range rows {
		if row.OrderID != "" {
			i := s.historyIndex(row.OrderID)
			if i < 0 {
				if owned == nil {
					owned = copySet(s.tradeOwned)
				}
				owned[row.OrderID] = struct{}{}
				next = append(next, row)
				continue
			}
			if _, ok := s.tradeOwned[row.OrderID]; ok {
				next[i] = addInto(next[i], row)
			}
			continue
		}
		merged := false
		for i := range next {
			if next[i].OrderID == "" && sameBucket(next[i], row) {
				next[i] = addInto(next[i], row)
				merged = true
				break
			}
		}
		if !merged {
			next = append(next, row)
		}
	}
	if owned != nil {
		s.tradeOwned = owned
	}
	return s.withHistory(next)
}

// mergeFills collapses raw fills to one row per order id. Fills without an
// order id are bucketed by (symbol, side, time truncated to the second) and
// summed. Order of first appearance is kept.
func mergeFills(fills []domain.Fill) []domain.HistoryEntry {
	out := make([]domain.HistoryEntry, 0, len(fills))
	index := make(map[string]int, len(fills))
	for _, f := range fills {
		row := domain.HistoryEntry{
			OrderID:     f.OrderID,
			Symbol:      f.Symbol,
			Side:        f.Side,
			Price:       f.Price,
			Qty:         f.Qty,
			QuoteQty:    f.QuoteQty,
			Status:      f.Status,
			Time:        f.Time,
			TimeInForce: f.TimeInForce,
			Type:        f.Type,
		}
		if row.Status == "" {
			row.Status = domain.OrderStatusFilled
		}
		if row.QuoteQty.IsZero() {
			row.QuoteQty = row.Price.Mul(row.Qty)
		}

		key := bucketKey(row)
		if i, ok := index[key]; ok {
			out[i] = addInto(out[i], row)
			continue
		}
		index[key] = len(out)
		out = append(out, row)
	}
	return out
}

func bucketKey(h domain.HistoryEntry) string {
	if h.OrderID != "" {
		return "id:" + h.OrderID
	}
	return "t:" + strings.ToUpper(h.Symbol) + ":" + h.Side + ":" + strconv.FormatInt(h.Time/1000, 10)
}

func sameBucket(a, b domain.HistoryEntry) bool {
	return bucketKey(a) == bucketKey(b)
}

// addInto sums quantities and re-derives the average price.
func addInto(dst, src domain.HistoryEntry) domain.HistoryEntry {
	dst.Qty = dst.Qty.Add(src.Qty)
	dst.QuoteQty = dst.QuoteQty.Add(src.QuoteQty)
	if dst.Qty.IsPositive() {
		dst.Price = dst.QuoteQty.Div(dst.Qty)
	}
	if src.Time > dst.Time {
		dst.Time = src.Time
	}
	return dst
}
