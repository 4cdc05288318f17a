package grouping

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto_terminal/internal/domain"
)

func row(side, price, qty string, ts int64) domain.HistoryEntry {
	return domain.HistoryEntry{
		OrderID: side + price, Symbol: "BTCUSDT", Side: side,
		Price: decimal.RequireFromString(price), Qty: decimal.RequireFromString(qty), Time: ts,
	}
}

func TestBuild_WeightedAverage(t *testing.T) {
	groups := Build([]domain.HistoryEntry{
		row("BUY", "10", "5", 1000),
		row("BUY", "10.05", "5", 2000),
	}, "")

	require.Len(t, groups, 1)
	g := groups[0]
	assert.True(t, g.AvgPrice.Equal(decimal.RequireFromString("10.025")), "avg=%s", g.AvgPrice)
	assert.True(t, g.TotalQty.Equal(decimal.NewFromInt(10)))
	assert.True(t, g.TotalValue.Equal(decimal.RequireFromString("100.25")))
	assert.Equal(t, 2, g.OrderCount)
	assert.Equal(t, int64(1000), g.StartTime)
	assert.Equal(t, int64(2000), g.EndTime)
	assert.Equal(t, "BUY-1000-0", g.ID)
}

func TestBuild_ThresholdBoundary(t *testing.T) {
	groups := Build([]domain.HistoryEntry{
		row("BUY", "10", "1", 1000),
		row("BUY", "10.2", "1", 2000),
	}, "BTCUSDT")

	require.Len(t, groups, 2)
	assert.Equal(t, "BUY-2000-1", groups[1].ID)
}

func TestBuild_ExactlyOnePercentMerges(t *testing.T) {
	groups := Build([]domain.HistoryEntry{
		row("SELL", "100", "1", 1),
		row("SELL", "101", "1", 2),
	}, "")
	assert.Len(t, groups, 1)
}

func TestBuild_SideChangeSplits(t *testing.T) {
	groups := Build([]domain.HistoryEntry{
		row("BUY", "10", "1", 1),
		row("SELL", "10", "1", 2),
		row("BUY", "10", "1", 3),
	}, "")
	require.Len(t, groups, 3)
	assert.Equal(t, "SELL", groups[1].Side)
}

func TestBuild_ComparesAgainstRunningAverage(t *testing.T) {
	// 10.15 is 1.5% from the first fill but within 1% of the average 10.05.
	groups := Build([]domain.HistoryEntry{
		row("BUY", "10", "1", 1),
		row("BUY", "10.1", "1", 2),
		row("BUY", "10.15", "1", 3),
	}, "")
	require.Len(t, groups, 1)
	assert.Equal(t, 3, groups[0].OrderCount)
}

func TestBuild_ZeroQuantity(t *testing.T) {
	groups := Build([]domain.HistoryEntry{row("BUY", "10", "0", 1)}, "")
	require.Len(t, groups, 1)
	assert.True(t, groups[0].AvgPrice.IsZero())
}

func TestBuild_SymbolFilterIgnoresCase(t *testing.T) {
	other := row("BUY", "10", "1", 2)
	other.Symbol = "ETHUSDT"
	groups := Build([]domain.HistoryEntry{row("BUY", "10", "1", 1), other}, "btcusdt")
	require.Len(t, groups, 1)
	assert.Equal(t, 1, groups[0].OrderCount)
}

func TestBuild_DeterministicAndPure(t *testing.T) {
	in := []domain.HistoryEntry{
		row("BUY", "10", "2", 1),
		row("BUY", "10.01", "1", 2),
		row("SELL", "11", "1", 3),
	}
	before := append([]domain.HistoryEntry(nil), in...)

	a := Build(in, "")
	b := Build(in, "")
	assert.Equal(t, a, b)
	assert.Equal(t, before, in)

	a[0].Members[0].Side = "MUTATED"
	assert.Equal(t, "BUY", in[0].Side)
}

func TestBuild_Empty(t *testing.T) {
	assert.Empty(t, Build(nil, ""))
}
