package depth

import (
	"sort"

	"github.com/shopspring/decimal"

	"crypto_terminal/internal/domain"
	"crypto_terminal/internal/precision"
)

const (
	// DefaultLevels is the display depth used when none is configured.
	DefaultLevels = 20
	// LargeOrderCount is how many levels per side get highlighted.
	LargeOrderCount = 4
)

// Ladder is the display form of both book sides.
type Ladder struct {
	Symbol   string              `json:"symbol"`
	Bids     []domain.DepthLevel `json:"bids"`
	Asks     []domain.DepthLevel `json:"asks"`
	Spread   string              `json:"spread,omitempty"`
	MidPrice string              `json:"midPrice,omitempty"`
}

// Aggregator builds fixed-depth ladders.
type Aggregator struct {
	levels int
}

// NewAggregator creates an aggregator for the given display depth.
func NewAggregator(levels int) *Aggregator {
	if levels <= 0 {
		levels = DefaultLevels
	}
	return &Aggregator{levels: levels}
}

// Levels returns the display depth.
func (a *Aggregator) Levels() int { return a.levels }

// Aggregate builds the ladder of both sides. Each side keeps the iteration
// order of its input; the best levels are expected first.
func (a *Aggregator) Aggregate(symbol string, bids, asks []domain.PriceLevel, p precision.SymbolPrecision) Ladder {
	l := Ladder{
		Symbol: symbol,
		Bids:   BuildSide(bids, a.levels, p),
		Asks:   BuildSide(asks, a.levels, p),
	}
	if len(bids) > 0 && len(asks) > 0 {
		bestBid, bestAsk := bids[0].Price, asks[0].Price
		l.Spread = p.FormatPrice(bestAsk.Sub(bestBid))
		l.MidPrice = p.FormatPrice(bestAsk.Add(bestBid).Div(decimal.NewFromInt(2)))
	}
	return l
}

// BuildSide produces exactly n display levels from raw rows.
// Notional and the running totals are computed on raw values; rows missing
// beyond len(rows) are zero-filled. Large orders are picked from raw
// quantities before any formatting so display rounding cannot create ties.
func BuildSide(rows []domain.PriceLevel, n int, p precision.SymbolPrecision) []domain.DepthLevel {
	if n <= 0 {
		return nil
	}
	if len(rows) > n {
		rows = rows[:n]
	}

	large := largest(rows, LargeOrderCount)

	out := make([]domain.DepthLevel, n)
	cumNotional := decimal.Zero
	cumQty := decimal.Zero
	for i := 0; i < n; i++ {
		price, qty := decimal.Zero, decimal.Zero
		if i < len(rows) {
			price, qty = rows[i].Price, rows[i].Quantity
		}
		notional := price.Mul(qty)
		cumNotional = cumNotional.Add(notional)
		cumQty = cumQty.Add(qty)

		_, isLarge := large[i]
		out[i] = domain.DepthLevel{
			Price:              p.FormatPrice(price),
			Quantity:           p.FormatQty(qty),
			Notional:           p.FormatNotional(notional),
			CumulativeNotional: p.FormatNotional(cumNotional),
			CumulativeQuantity: p.FormatQty(cumQty),
			IsLargeOrder:       isLarge,
		}
	}
	return out
}

// largest returns the indices of the k rows with the biggest raw quantity.
// Ties go to the earlier row; zero quantities never qualify.
func largest(rows []domain.PriceLevel, k int) map[int]struct{} {
	idx := make([]int, 0, len(rows))
	for i, r := range rows {
		if r.Quantity.IsPositive() {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return rows[idx[a]].Quantity.GreaterThan(rows[idx[b]].Quantity)
	})
	if len(idx) > k {
		idx = idx[:k]
	}
	out := make(map[int]struct{}, len(idx))
	for _, i := range idx {
		out[i] = struct{}{}
	}
	return out
}
