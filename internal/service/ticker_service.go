package service

import (
	"sort"
	"strings"
	"sync"

	"crypto_terminal/internal/domain"

	"github.com/shopspring/decimal"
)

// PriceMove is one (current, previous) pair fed to the alert engine.
type PriceMove struct {
	Symbol   string
	Current  decimal.Decimal
	Previous *decimal.Decimal // nil when no earlier price is known
}

// TickerService keeps the latest ticker per symbol
type TickerService struct {
	mu        sync.RWMutex
	tickers   map[string]*domain.Ticker
	favorites map[string]bool
}

// NewTickerService creates a new TickerService instance
func NewTickerService() *TickerService {
	return &TickerService{
		tickers:   make(map[string]*domain.Ticker),
		favorites: make(map[string]bool),
	}
}

// ProcessTickers stores the tickers and returns the price move of each one.
// The previous price comes from the payload when the venue supplies it,
// otherwise from the last stored ticker of the symbol.
func (s *TickerService) ProcessTickers(tickers []domain.Ticker) []PriceMove {
	s.mu.Lock()
	defer s.mu.Unlock()

	moves := make([]PriceMove, 0, len(tickers))
	for _, t := range tickers {
		if t.Symbol == "" {
			continue
		}
		key := strings.ToUpper(t.Symbol)
		prev := t.PrevPrice
		if old, ok := s.tickers[key]; ok && prev == nil {
			p := old.Price
			prev = &p
		}

		stored := t
		stored.Symbol = key
		stored.PrevPrice = prev
		s.tickers[key] = &stored

		moves = append(moves, PriceMove{Symbol: key, Current: t.Price, Previous: prev})
	}
	return moves
}

// GetAll returns copies of all tickers sorted by symbol
func (s *TickerService) GetAll() []domain.Ticker {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Ticker, 0, len(s.tickers))
	for _, t := range s.tickers {
		result = append(result, *t)
	}

	// Sort by symbol for consistent ordering
	sort.Slice(result, func(i, j int) bool {
		return result[i].Symbol < result[j].Symbol
	})
	return result
}

// Get returns the ticker of a symbol
func (s *TickerService) Get(symbol string) (domain.Ticker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tickers[strings.ToUpper(symbol)]
	if !ok {
		return domain.Ticker{}, false
	}
	return *t, true
}

// LastPrice returns the last known price of a symbol
func (s *TickerService) LastPrice(symbol string) (decimal.Decimal, bool) {
	t, ok := s.Get(symbol)
	return t.Price, ok
}

// SetFavorite sets the favorite status for a symbol
func (s *TickerService) SetFavorite(symbol string, isFavorite bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToUpper(symbol)
	if isFavorite {
		s.favorites[key] = true
		return
	}
	delete(s.favorites, key)
}

// Favorites returns the favorite symbols sorted
func (s *TickerService) Favorites() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.favorites))
	for k := range s.favorites {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
