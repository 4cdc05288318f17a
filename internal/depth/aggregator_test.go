package depth

import (
	"testing"

	"github.com/shopspring/decimal"

	"crypto_terminal/internal/domain"
	"crypto_terminal/internal/precision"
)

func lvl(price, qty string) domain.PriceLevel {
	return domain.PriceLevel{Price: decimal.RequireFromString(price), Quantity: decimal.RequireFromString(qty)}
}

func prec(priceDec, qtyDec, notionalDec int) precision.SymbolPrecision {
	p := precision.Default()
	p.PriceDecimals, p.QuantityDecimals, p.NotionalDecimals = priceDec, qtyDec, notionalDec
	return p
}

func TestBuildSide_CumulativeAndZeroFill(t *testing.T) {
	rows := []domain.PriceLevel{lvl("100", "1"), lvl("99.5", "2"), lvl("99", "0.5")}
	side := BuildSide(rows, 5, prec(2, 3, 2))

	if len(side) != 5 {
		t.Fatalf("expected 5 levels, got %d", len(side))
	}
	want := []domain.DepthLevel{
		{Price: "100.00", Quantity: "1.000", Notional: "100.00", CumulativeNotional: "100.00", CumulativeQuantity: "1.000"},
		{Price: "99.50", Quantity: "2.000", Notional: "199.00", CumulativeNotional: "299.00", CumulativeQuantity: "3.000"},
		{Price: "99.00", Quantity: "0.500", Notional: "49.50", CumulativeNotional: "348.50", CumulativeQuantity: "3.500"},
		{Price: "0.00", Quantity: "0.000", Notional: "0.00", CumulativeNotional: "348.50", CumulativeQuantity: "3.500"},
		{Price: "0.00", Quantity: "0.000", Notional: "0.00", CumulativeNotional: "348.50", CumulativeQuantity: "3.500"},
	}
	for i := range want {
		got := side[i]
		got.IsLargeOrder = false
		if got != want[i] {
			t.Errorf("level %d: got %+v, want %+v", i, got, want[i])
		}
	}
	// Only the three real levels can be large.
	for i := 3; i < 5; i++ {
		if side[i].IsLargeOrder {
			t.Errorf("synthesized level %d flagged large", i)
		}
	}
}

func TestBuildSide_TruncatesLongInput(t *testing.T) {
	rows := []domain.PriceLevel{lvl("1", "1"), lvl("2", "1"), lvl("3", "1")}
	side := BuildSide(rows, 2, prec(0, 0, 0))
	if len(side) != 2 || side[1].CumulativeQuantity != "2" {
		t.Fatalf("unexpected side: %+v", side)
	}
}

func TestBuildSide_LargeOrders(t *testing.T) {
	rows := []domain.PriceLevel{
		lvl("10", "5"), lvl("9", "50"), lvl("8", "1"), lvl("7", "40"),
		lvl("6", "30"), lvl("5", "2"), lvl("4", "45"),
	}
	side := BuildSide(rows, 7, prec(0, 0, 0))

	flagged := map[int]bool{}
	for i, l := range side {
		if l.IsLargeOrder {
			flagged[i] = true
		}
	}
	for _, i := range []int{1, 3, 4, 6} {
		if !flagged[i] {
			t.Errorf("level %d should be flagged", i)
		}
	}
	if len(flagged) != LargeOrderCount {
		t.Errorf("expected %d flagged levels, got %d", LargeOrderCount, len(flagged))
	}
}

// Quantities that differ only below the display precision must be ranked
// by their raw value, whatever decimals the symbol uses.
func TestBuildSide_LargeOrderSelectionIgnoresFormatting(t *testing.T) {
	rows := []domain.PriceLevel{
		lvl("10", "1.04"), lvl("9", "1.01"), lvl("8", "1.09"),
		lvl("7", "1.02"), lvl("6", "1.08"), lvl("5", "1.03"),
	}
	var reference []bool
	for _, p := range []precision.SymbolPrecision{prec(0, 0, 0), prec(2, 1, 2), prec(4, 8, 2)} {
		side := BuildSide(rows, 6, p)
		flags := make([]bool, len(side))
		for i := range side {
			flags[i] = side[i].IsLargeOrder
		}
		if reference == nil {
			reference = flags
			continue
		}
		for i := range flags {
			if flags[i] != reference[i] {
				t.Fatalf("selection changed with precision %+v: %v vs %v", p, flags, reference)
			}
		}
	}
	// 1.09, 1.08, 1.04, 1.03 -> indices 2, 4, 0, 5
	for _, i := range []int{0, 2, 4, 5} {
		if !reference[i] {
			t.Errorf("level %d should be flagged", i)
		}
	}
}

func TestBuildSide_TiesGoToEarlierLevel(t *testing.T) {
	rows := []domain.PriceLevel{lvl("5", "1"), lvl("4", "1"), lvl("3", "1"), lvl("2", "1"), lvl("1", "1")}
	side := BuildSide(rows, 5, prec(0, 0, 0))
	if !side[0].IsLargeOrder || !side[3].IsLargeOrder || side[4].IsLargeOrder {
		t.Errorf("ties should favour earlier levels: %+v", side)
	}
}

func TestAggregator_SpreadAndMid(t *testing.T) {
	agg := NewAggregator(3)
	l := agg.Aggregate("BTCUSDT",
		[]domain.PriceLevel{lvl("100.00", "1")},
		[]domain.PriceLevel{lvl("100.50", "2")},
		prec(2, 2, 2))

	if l.Spread != "0.50" || l.MidPrice != "100.25" {
		t.Errorf("spread=%s mid=%s", l.Spread, l.MidPrice)
	}
	if len(l.Bids) != 3 || len(l.Asks) != 3 {
		t.Errorf("expected 3 levels per side")
	}

	empty := agg.Aggregate("BTCUSDT", nil, nil, prec(2, 2, 2))
	if empty.Spread != "" || len(empty.Bids) != 3 {
		t.Errorf("empty book should be zero-filled without spread: %+v", empty)
	}
	if NewAggregator(0).Levels() != DefaultLevels {
		t.Error("non-positive depth should fall back to default")
	}
}
