// Package alert evaluates user price alerts against ticker moves.
package alert

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"crypto_terminal/internal/domain"
	"crypto_terminal/internal/infra/writer"
)

// Recorder receives alert counters. *infra.Metrics satisfies it.
type Recorder interface {
	RecordAlertTriggered()
	RecordPersistenceError()
}

// Evaluate applies the crossing rule to a single alert and returns the next
// value of the alert. Inactive alerts, and triggered alerts that do not
// repeat, are returned unchanged.
func Evaluate(a domain.Alert, current decimal.Decimal, previous *decimal.Decimal, now int64) (domain.Alert, bool) {
	if !a.Active || (a.Triggered && !a.Repeat) {
		return a, false
	}
	if !a.CheckCrossing(current, previous) {
		return a, false
	}
	next := a.Clone()
	next.Triggered = true
	next.TriggeredAt = &now
	last := current
	next.LastPrice = &last
	next.Active = a.Repeat
	return next, true
}

// CreateRequest describes a new alert.
type CreateRequest struct {
	Symbol        string           `json:"symbol"`
	Price         decimal.Decimal  `json:"price"`
	Type          domain.AlertType `json:"type"` // empty derives from the current price
	Name          string           `json:"name"`
	Notifications []string         `json:"notifications"`
	SoundType     string           `json:"soundType"`
	Repeat        bool             `json:"repeat"`
}

// Engine owns the alert list. Trigger fields are written here only.
// Durable writes run in the background, in issue order, and never block
// evaluation.
type Engine struct {
	mu     sync.RWMutex
	alerts []domain.Alert

	store    domain.AlertStore
	notifier domain.Notifier
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time

	writes *writer.Queue
}

// NewEngine creates an Engine. store and notifier may be nil.
func NewEngine(store domain.AlertStore, notifier domain.Notifier) *Engine {
	e := &Engine{
		store:    store,
		notifier: notifier,
		logger:   slog.Default().With("module", "alert"),
		now:      time.Now,
	}
	e.writes = writer.New(func(op string, err error) {
		e.logger.Error("Alert write failed", slog.String("op", op), slog.Any("error", err))
		e.recordPersistError()
	})
	return e
}

// SetRecorder attaches a counter sink.
func (e *Engine) SetRecorder(r Recorder) {
	e.recorder = r
}

// Load replaces the in-memory list with the stored alerts. A read failure is
// logged and leaves the engine empty.
func (e *Engine) Load(ctx context.Context) int {
	if e.store == nil {
		return 0
	}
	alerts, err := e.store.LoadAlerts(ctx)
	if err != nil {
		e.logger.Error("Failed to load alerts", slog.Any("error", err))
		e.recordPersistError()
		alerts = nil
	}

	e.mu.Lock()
	e.alerts = alerts
	e.mu.Unlock()

	e.logger.Info("🔔 Alerts loaded", slog.Int("count", len(alerts)))
	return len(alerts)
}

// OnTicker evaluates every alert of symbol against one price move and
// returns the alerts that fired.
func (e *Engine) OnTicker(symbol string, current decimal.Decimal, previous *decimal.Decimal) []domain.Alert {
	now := e.now().UnixMilli()

	e.mu.Lock()
	var fired []domain.Alert
	for i := range e.alerts {
		if !strings.EqualFold(e.alerts[i].Symbol, symbol) {
			continue
		}
		next, ok := Evaluate(e.alerts[i], current, previous, now)
		if !ok {
			continue
		}
		e.alerts[i] = next
		fired = append(fired, next.Clone())
	}
	e.mu.Unlock()

	for _, a := range fired {
		e.logger.Info("🚨 Alert triggered",
			slog.String("id", a.ID),
			slog.String("symbol", a.Symbol),
			slog.String("type", string(a.Type)),
			slog.String("threshold", a.Price.String()),
			slog.String("price", current.String()))
		if e.recorder != nil {
			e.recorder.RecordAlertTriggered()
		}
		e.save(a)
		if e.notifier != nil {
			e.notifier.Notify(a)
		}
	}
	return fired
}

// Create validates req and adds a new alert. currentPrice is used only when
// req.Type is empty.
func (e *Engine) Create(req CreateRequest, currentPrice decimal.Decimal) (domain.Alert, error) {
	if strings.TrimSpace(req.Symbol) == "" || !req.Price.IsPositive() {
		return domain.Alert{}, domain.ErrInvalidAlert
	}
	if req.Type != "" && !req.Type.Valid() {
		return domain.Alert{}, domain.ErrInvalidAlert
	}

	a := domain.NewAlert(uuid.NewString(), strings.ToUpper(req.Symbol), req.Price, currentPrice, req.Type, e.now().UnixMilli())
	a.Name = req.Name
	a.Repeat = req.Repeat
	if len(req.Notifications) > 0 {
		a.Notifications = append([]string(nil), req.Notifications...)
	}
	if req.SoundType != "" {
		a.SoundType = req.SoundType
	}

	e.mu.Lock()
	e.alerts = append(e.alerts, *a)
	e.mu.Unlock()

	e.save(*a)
	return a.Clone(), nil
}

// Delete removes an alert.
func (e *Engine) Delete(id string) error {
	e.mu.Lock()
	i := e.index(id)
	if i < 0 {
		e.mu.Unlock()
		return domain.ErrAlertNotFound
	}
	e.alerts = append(e.alerts[:i:i], e.alerts[i+1:]...)
	e.mu.Unlock()

	if e.store != nil {
		e.writes.Submit("delete "+id, func(ctx context.Context) error {
			return e.store.DeleteAlert(ctx, id)
		})
	}
	return nil
}

// Toggle flips the active flag of an alert.
func (e *Engine) Toggle(id string) (domain.Alert, error) {
	return e.update(id, func(a *domain.Alert) {
		a.Active = !a.Active
	})
}

// Reset clears the trigger state and re-arms the alert.
func (e *Engine) Reset(id string) (domain.Alert, error) {
	return e.update(id, func(a *domain.Alert) {
		a.Triggered = false
		a.TriggeredAt = nil
		a.Active = true
	})
}

// Get returns one alert.
func (e *Engine) Get(id string) (domain.Alert, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if i := e.index(id); i >= 0 {
		return e.alerts[i].Clone(), true
	}
	return domain.Alert{}, false
}

// List returns the alerts of symbol (all when empty), oldest first.
func (e *Engine) List(symbol string) []domain.Alert {
	e.mu.RLock()
	out := make([]domain.Alert, 0, len(e.alerts))
	for _, a := range e.alerts {
		if symbol == "" || strings.EqualFold(a.Symbol, symbol) {
			out = append(out, a.Clone())
		}
	}
	e.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}

// Wait blocks until background writes issued so far have finished.
func (e *Engine) Wait() {
	e.writes.Wait()
}

func (e *Engine) update(id string, fn func(*domain.Alert)) (domain.Alert, error) {
	e.mu.Lock()
	i := e.index(id)
	if i < 0 {
		e.mu.Unlock()
		return domain.Alert{}, domain.ErrAlertNotFound
	}
	next := e.alerts[i].Clone()
	fn(&next)
	e.alerts[i] = next
	e.mu.Unlock()

	e.save(next)
	return next.Clone(), nil
}

// index must be called with mu held.
func (e *Engine) index(id string) int {
	for i := range e.alerts {
		if e.alerts[i].ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) save(a domain.Alert) {
	if e.store == nil {
		return
	}
	e.writes.Submit("save "+a.ID, func(ctx context.Context) error {
		return e.store.SaveAlert(ctx, a)
	})
}

func (e *Engine) recordPersistError() {
	if e.recorder != nil {
		e.recorder.RecordPersistenceError()
	}
}
