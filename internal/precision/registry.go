package precision

import (
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"crypto_terminal/internal/domain"
)

// Registry holds the derived precision of every symbol seen in a filters event.
type Registry struct {
	mu      sync.RWMutex
	symbols map[string]SymbolPrecision
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{symbols: make(map[string]SymbolPrecision)}
}

// Update recomputes the rules for every filter in the batch.
// Symbols not present in the batch keep their previous rules.
func (r *Registry) Update(filters []Filter) {
	derived := make(map[string]SymbolPrecision, len(filters))
	for i := range filters {
		sym := normalize(filters[i].Symbol)
		if sym == "" {
			continue
		}
		derived[sym] = Derive(&filters[i])
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range derived {
		r.symbols[k] = v
	}
}

// Get returns the rules of symbol, or Default() when it is unknown.
func (r *Registry) Get(symbol string) SymbolPrecision {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.symbols[normalize(symbol)]; ok {
		return p
	}
	return Default()
}

// Lookup is Get with an explicit found flag.
func (r *Registry) Lookup(symbol string) (SymbolPrecision, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.symbols[normalize(symbol)]
	return p, ok
}

// Symbols returns the known symbols in sorted order.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.symbols))
	for k := range r.symbols {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// BaseAssets returns the distinct base assets of TRADING symbols.
func (r *Registry) BaseAssets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, p := range r.symbols {
		if p.BaseAsset != "" && p.Status == StatusTrading {
			seen[p.BaseAsset] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Validate checks an order against the symbol's filter bounds.
// Bounds are strict (minQty < qty < maxQty, minPrice < price < maxPrice);
// max bounds apply only when the venue sets them. A zero price skips the
// price checks and the notional check (market orders).
// Symbols without filter data (status UNKNOWN) are not status-checked.
func Validate(p SymbolPrecision, price, qty decimal.Decimal) error {
	if p.Status != StatusUnknown && p.Status != StatusTrading {
		return &domain.ValidationError{Field: "status", Reason: "symbol is " + p.Status}
	}

	if !qty.IsPositive() || !qty.GreaterThan(p.MinQty) {
		return &domain.ValidationError{Field: "quantity", Reason: "must be greater than " + p.MinQty.String()}
	}
	if p.HasMaxQty && !qty.LessThan(p.MaxQty) {
		return &domain.ValidationError{Field: "quantity", Reason: "must be less than " + p.MaxQty.String()}
	}

	if price.IsZero() {
		return nil
	}
	if price.IsNegative() || !price.GreaterThan(p.MinPrice) {
		return &domain.ValidationError{Field: "price", Reason: "must be greater than " + p.MinPrice.String()}
	}
	if p.HasMaxPrice && !price.LessThan(p.MaxPrice) {
		return &domain.ValidationError{Field: "price", Reason: "must be less than " + p.MaxPrice.String()}
	}

	if notional := price.Mul(qty); notional.LessThan(p.MinNotional) {
		return &domain.ValidationError{Field: "notional", Reason: notional.String() + " below minimum " + p.MinNotional.String()}
	}
	return nil
}
