// Package grouping clusters consecutive same-side fills into weighted trade
// groups for chart overlays.
package grouping

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"crypto_terminal/internal/domain"
)

// threshold is the relative distance from the running average price above
// which a fill starts a new group.
var threshold = decimal.NewFromFloat(0.01)

// Build walks history (ascending by time) and returns the groups for symbol.
// An empty symbol keeps every row. Input rows are never modified.
func Build(history []domain.HistoryEntry, symbol string) []domain.OrderGroup {
	var (
		groups []domain.OrderGroup
		cur    *builder
	)
	for _, h := range history {
		if symbol != "" && !strings.EqualFold(h.Symbol, symbol) {
			continue
		}
		side := strings.ToUpper(h.Side)
		if cur == nil || cur.side != side || cur.diverges(h.Price) {
			if cur != nil {
				groups = append(groups, cur.finish(len(groups)))
			}
			cur = &builder{side: side, symbol: h.Symbol}
		}
		cur.add(h)
	}
	if cur != nil {
		groups = append(groups, cur.finish(len(groups)))
	}
	return groups
}

type builder struct {
	side    string
	symbol  string
	members []domain.HistoryEntry
	qty     decimal.Decimal
	value   decimal.Decimal
}

func (b *builder) add(h domain.HistoryEntry) {
	b.members = append(b.members, h)
	b.qty = b.qty.Add(h.Qty)
	b.value = b.value.Add(h.Price.Mul(h.Qty))
}

func (b *builder) avg() decimal.Decimal {
	if !b.qty.IsPositive() {
		return decimal.Zero
	}
	return b.value.Div(b.qty)
}

// diverges reports whether price is more than threshold away from the
// running weighted average.
func (b *builder) diverges(price decimal.Decimal) bool {
	avg := b.avg()
	if avg.IsZero() {
		return !price.IsZero()
	}
	return price.Sub(avg).Abs().Div(avg).GreaterThan(threshold)
}

func (b *builder) finish(index int) domain.OrderGroup {
	first, last := b.members[0], b.members[len(b.members)-1]
	return domain.OrderGroup{
		ID:         fmt.Sprintf("%s-%d-%d", b.side, first.Time, index),
		Side:       b.side,
		Symbol:     b.symbol,
		AvgPrice:   b.avg(),
		TotalQty:   b.qty,
		TotalValue: b.value,
		OrderCount: len(b.members),
		StartTime:  first.Time,
		EndTime:    last.Time,
		Members:    b.members,
	}
}
