package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"crypto_terminal/internal/alert"
	"crypto_terminal/internal/depth"
	"crypto_terminal/internal/domain"
	"crypto_terminal/internal/event"
	"crypto_terminal/internal/grouping"
	"crypto_terminal/internal/infra"
	"crypto_terminal/internal/infra/writer"
	"crypto_terminal/internal/precision"
	"crypto_terminal/internal/reconcile"
	"crypto_terminal/internal/service"
)

// SnapshotPublisher mirrors derived views to an external cache.
type SnapshotPublisher interface {
	PublishLadder(ctx context.Context, l depth.Ladder) error
	PublishOrders(ctx context.Context, symbol string, orders []domain.Order) error
	Invalidate(ctx context.Context, symbol string) error
}

// Deps are the components the sequencer drives. Registry, Reconciler,
// Depth and Tickers are required; the rest may be nil.
type Deps struct {
	Registry   *precision.Registry
	Reconciler *reconcile.Reconciler
	Depth      *depth.Aggregator
	Tickers    *service.TickerService
	Alerts     *alert.Engine
	Candles    domain.CandleStore
	Publisher  SnapshotPublisher
	Metrics    *infra.Metrics

	// OnFilters is called with the TRADING base assets after each filters event.
	OnFilters func(baseAssets []string)

	// DumpPath is where state is written after a recovered panic.
	DumpPath string
}

// Sequencer is the single-threaded apply loop. Every inbound envelope is
// decoded and applied to completion before the next one is read.
//
// Callers must deliver execution reports of an order in venue order;
// the sequencer does not detect gaps or reordering.
type Sequencer struct {
	inbox chan []byte
	deps  Deps

	// Written only by the loop goroutine, under mu.
	state    reconcile.State
	ladders  map[string]depth.Ladder
	balances map[string]domain.Balance
	candles  map[string][]domain.Candle

	mu     sync.RWMutex // Guards the fields above for external reads
	logger *slog.Logger
	writes *writer.Queue

	stopped  chan struct{}
	stopOnce sync.Once
}

// NewSequencer creates a new sequencer instance.
func NewSequencer(inboxSize int, deps Deps) *Sequencer {
	if deps.Metrics == nil {
		deps.Metrics = infra.GlobalMetrics
	}
	if deps.DumpPath == "" {
		deps.DumpPath = "panic_dump.json"
	}
	s := &Sequencer{
		inbox:    make(chan []byte, inboxSize),
		deps:     deps,
		ladders:  make(map[string]depth.Ladder),
		balances: make(map[string]domain.Balance),
		candles:  make(map[string][]domain.Candle),
		logger:   slog.Default().With("module", "sequencer"),
		stopped:  make(chan struct{}),
	}
	s.writes = writer.New(func(op string, err error) {
		s.deps.Metrics.RecordPersistenceError()
		s.logger.Error("Background write failed", slog.String("op", op), slog.Any("error", err))
	})
	return s
}

// Inbox returns the envelope channel. Transport workers send raw frames here.
func (s *Sequencer) Inbox() chan<- []byte {
	return s.inbox
}

// Run starts the main loop. This MUST be run in a single goroutine.
// Stopped is closed once Run returns.
func (s *Sequencer) Run(ctx context.Context) {
	defer s.stopOnce.Do(func() { close(s.stopped) })

	s.logger.Info("🚀 Sequencer started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sequencer stopping...")
			return
		case raw := <-s.inbox:
			s.Apply(raw)
		}
	}
}

// Apply decodes and applies one envelope synchronously. Malformed envelopes
// are dropped. A panic while applying is recovered, the state is dumped and
// the sequencer keeps going with its previous state.
func (s *Sequencer) Apply(raw []byte) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			s.deps.Metrics.RecordPanic()
			s.DumpState(s.deps.DumpPath)
		}
	}()

	ev, ok := event.Decode(raw)
	if !ok {
		s.deps.Metrics.RecordDropped()
		s.logger.Debug("Dropped envelope", slog.Int("bytes", len(raw)))
		return
	}
	s.dispatch(ev)
	s.deps.Metrics.RecordEvent(time.Since(start).Nanoseconds())
}

// Stopped is closed when Run has returned. No envelope is applied after that.
func (s *Sequencer) Stopped() <-chan struct{} {
	return s.stopped
}

func (s *Sequencer) dispatch(ev event.Event) {
	meta := ev.Metadata()
	switch e := ev.(type) {
	case *event.ChartEvent:
		s.handleChart(meta, e.Candles)
	case *event.DepthEvent:
		s.handleDepth(meta.Symbol, e.Bids, e.Asks)
	case *event.OrdersEvent:
		s.commit(s.deps.Reconciler.ApplySnapshot(s.state, e.Orders))
		s.publishOrders(meta.Symbol)
	case *event.ExecutionUpdateEvent:
		s.handleExecution(e.Report)
	case *event.TradesEvent:
		s.commit(s.deps.Reconciler.ApplyTrades(s.state, e.Fills))
	case *event.HistoryEvent:
		s.commit(s.deps.Reconciler.ApplyHistory(s.state, meta.Symbol, e.Fills))
	case *event.BalancesEvent:
		s.setBalances(e.Balances, true)
	case *event.BalanceUpdateEvent:
		s.setBalances(e.Balances, false)
	case *event.FiltersEvent:
		s.handleFilters(e.Filters)
	case *event.TickerEvent:
		s.handleTickers(e.Tickers)
	case *event.TickerUpdateEvent:
		s.handleTickers(e.Tickers)
	default:
		s.logger.Warn("Unknown event type", slog.String("kind", ev.Kind().String()))
	}
}

func (s *Sequencer) commit(next reconcile.State) {
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
}

func (s *Sequencer) handleExecution(rep domain.ExecutionReport) {
	next, outcome := s.deps.Reconciler.ApplyExecution(s.state, rep)
	s.commit(next)

	if rep.Status == domain.OrderStatusFilled {
		s.deps.Metrics.RecordOrderFilled()
	}
	s.logger.Debug("Execution report applied",
		slog.String("order_id", rep.OrderID),
		slog.String("status", rep.Status),
		slog.String("outcome", outcome.String()))

	if outcome != reconcile.OutcomeIgnored && outcome != reconcile.OutcomeDuplicate {
		s.publishOrders(rep.Symbol)
	}
}

func (s *Sequencer) handleDepth(symbol string, bids, asks []domain.PriceLevel) {
	if symbol == "" {
		s.logger.Warn("Depth event without symbol dropped")
		return
	}
	ladder := s.deps.Depth.Aggregate(strings.ToUpper(symbol), bids, asks, s.deps.Registry.Get(symbol))

	s.mu.Lock()
	s.ladders[ladder.Symbol] = ladder
	s.mu.Unlock()

	if s.deps.Publisher != nil {
		s.background("publish ladder", func(ctx context.Context) error {
			return s.deps.Publisher.PublishLadder(ctx, ladder)
		})
	}
}

func (s *Sequencer) handleChart(meta event.Meta, candles []domain.Candle) {
	if len(candles) == 0 {
		return
	}
	symbol, interval := strings.ToUpper(meta.Symbol), meta.Interval

	s.mu.Lock()
	s.candles[candleKey(symbol, interval)] = candles
	s.mu.Unlock()

	if s.deps.Candles != nil && symbol != "" {
		s.background("merge candles", func(ctx context.Context) error {
			return s.deps.Candles.MergeCandles(ctx, symbol, interval, candles)
		})
	}
}

func (s *Sequencer) handleFilters(filters []precision.Filter) {
	s.deps.Registry.Update(filters)
	s.logger.Info("📐 Precision registry updated", slog.Int("symbols", len(filters)))

	if s.deps.Publisher != nil {
		for _, f := range filters {
			if f.Symbol == "" || f.Status == "" || strings.EqualFold(f.Status, precision.StatusTrading) {
				continue
			}
			symbol := strings.ToUpper(f.Symbol)
			s.background("invalidate "+symbol, func(ctx context.Context) error {
				return s.deps.Publisher.Invalidate(ctx, symbol)
			})
		}
	}
	if s.deps.OnFilters != nil {
		s.deps.OnFilters(s.deps.Registry.BaseAssets())
	}
}

func (s *Sequencer) handleTickers(tickers []domain.Ticker) {
	moves := s.deps.Tickers.ProcessTickers(tickers)
	if s.deps.Alerts == nil {
		return
	}
	for _, m := range moves {
		s.deps.Alerts.OnTicker(m.Symbol, m.Current, m.Previous)
	}
}

// setBalances replaces the balance map (full snapshot) or merges into it.
func (s *Sequencer) setBalances(balances []domain.Balance, replace bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if replace {
		s.balances = make(map[string]domain.Balance, len(balances))
	}
	for _, b := range balances {
		if b.Asset == "" {
			continue
		}
		b.Asset = strings.ToUpper(b.Asset)
		s.balances[b.Asset] = b
	}
}

func (s *Sequencer) publishOrders(symbol string) {
	if s.deps.Publisher == nil {
		return
	}
	orders := s.state.OpenOrders(symbol)
	symbol = strings.ToUpper(symbol)
	s.background("publish orders", func(ctx context.Context) error {
		return s.deps.Publisher.PublishOrders(ctx, symbol, orders)
	})
}

// background queues a fire-and-forget write. Writes run one at a time in
// apply order; failures are logged and counted, never returned to the apply path.
func (s *Sequencer) background(op string, fn func(ctx context.Context) error) {
	s.writes.Submit(op, fn)
}

// Flush waits for background writes issued so far. Call it from the loop
// goroutine or after Stopped is closed.
func (s *Sequencer) Flush() {
	s.writes.Wait()
}

// State returns the current reconciled state. State values are immutable.
func (s *Sequencer) State() reconcile.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// OpenOrders returns the live orders of symbol (all when empty).
func (s *Sequencer) OpenOrders(symbol string) []domain.Order {
	return s.State().OpenOrders(symbol)
}

// History returns the history rows of symbol (all when empty).
func (s *Sequencer) History(symbol string) []domain.HistoryEntry {
	return s.State().HistoryFor(symbol)
}

// Groups rebuilds the trade groups of symbol from current history.
func (s *Sequencer) Groups(symbol string) []domain.OrderGroup {
	return grouping.Build(s.State().HistoryFor(symbol), symbol)
}

// Ladder returns the last depth ladder of symbol.
func (s *Sequencer) Ladder(symbol string) (depth.Ladder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.ladders[strings.ToUpper(symbol)]
	return l, ok
}

// Balances returns all balances sorted by asset.
func (s *Sequencer) Balances() []domain.Balance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Balance, 0, len(s.balances))
	for _, b := range s.balances {
		out = append(out, b)
	}
	sortBalances(out)
	return out
}

// Candles returns the last chart series received for (symbol, interval).
func (s *Sequencer) Candles(symbol, interval string) []domain.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Candle(nil), s.candles[candleKey(strings.ToUpper(symbol), interval)]...)
}

func sortBalances(b []domain.Balance) {
	sort.Slice(b, func(i, j int) bool { return b[i].Asset < b[j].Asset })
}

func candleKey(symbol, interval string) string {
	return symbol + "|" + interval
}

// DumpState writes the entire internal state to a file (for post-mortem).
func (s *Sequencer) DumpState(filename string) {
	s.logger.Info("Dumping internal state...", slog.String("file", filename))

	s.mu.RLock()
	data := struct {
		Orders   []domain.Order            `json:"orders"`
		History  []domain.HistoryEntry     `json:"history"`
		Balances map[string]domain.Balance `json:"balances"`
		Ladders  map[string]depth.Ladder   `json:"ladders"`
	}{
		Orders:   s.state.Orders(),
		History:  s.state.History(),
		Balances: s.balances,
		Ladders:  s.ladders,
	}
	b, err := json.MarshalIndent(data, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		s.logger.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	if err := os.WriteFile(filename, b, 0644); err != nil {
		s.logger.Error("Failed to write state dump", slog.Any("error", fmt.Errorf("dump %s: %w", filename, err)))
	}
}
