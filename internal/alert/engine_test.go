package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto_terminal/internal/domain"
)

type memStore struct {
	mu      sync.Mutex
	saved   map[string]domain.Alert
	deleted []string
	loadErr error
	saveErr error
}

func newMemStore() *memStore { return &memStore{saved: map[string]domain.Alert{}} }

func (m *memStore) SaveAlert(_ context.Context, a domain.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved[a.ID] = a
	return nil
}

func (m *memStore) DeleteAlert(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.saved, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *memStore) LoadAlerts(context.Context) ([]domain.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make([]domain.Alert, 0, len(m.saved))
	for _, a := range m.saved {
		out = append(out, a)
	}
	return out, nil
}

type countingNotifier struct {
	mu    sync.Mutex
	fired []string
}

func (n *countingNotifier) Notify(a domain.Alert) {
	n.mu.Lock()
	n.fired = append(n.fired, a.ID)
	n.mu.Unlock()
}

type counters struct {
	triggered, persistErrors int
}

func (c *counters) RecordAlertTriggered()   { c.triggered++ }
func (c *counters) RecordPersistenceError() { c.persistErrors++ }

func price(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func newEngine(store domain.AlertStore, n domain.Notifier) *Engine {
	e := NewEngine(store, n)
	e.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return e
}

func TestEvaluate_CrossFiresOncePerCrossing(t *testing.T) {
	a := *domain.NewAlert("a", "BTCUSDT", decimal.NewFromInt(10), decimal.Zero, domain.AlertCross, 0)

	next, fired := Evaluate(a, decimal.NewFromInt(11), price(9), 42)
	require.True(t, fired)
	assert.True(t, next.Triggered)
	assert.False(t, next.Active, "non-repeating alert deactivates")
	require.NotNil(t, next.TriggeredAt)
	assert.Equal(t, int64(42), *next.TriggeredAt)
	assert.True(t, next.LastPrice.Equal(decimal.NewFromInt(11)))

	_, fired = Evaluate(next, decimal.NewFromInt(12), price(11), 43)
	assert.False(t, fired)

	// Even a fresh crossing is skipped until reset.
	_, fired = Evaluate(next, decimal.NewFromInt(11), price(9), 44)
	assert.False(t, fired)

	assert.False(t, a.Triggered, "input alert is not modified")
}

func TestEvaluate_RepeatStaysActive(t *testing.T) {
	a := *domain.NewAlert("a", "BTCUSDT", decimal.NewFromInt(10), decimal.Zero, domain.AlertCross, 0)
	a.Repeat = true

	next, fired := Evaluate(a, decimal.NewFromInt(11), price(9), 1)
	require.True(t, fired)
	assert.True(t, next.Active)

	_, fired = Evaluate(next, decimal.NewFromInt(9), price(11), 2)
	assert.True(t, fired, "repeating alert fires on the next crossing")
}

func TestEvaluate_InactiveSkipped(t *testing.T) {
	a := *domain.NewAlert("a", "BTCUSDT", decimal.NewFromInt(10), decimal.Zero, domain.AlertAbove, 0)
	a.Active = false
	_, fired := Evaluate(a, decimal.NewFromInt(11), nil, 1)
	assert.False(t, fired)
}

func TestEngine_OnTicker(t *testing.T) {
	store := newMemStore()
	notifier := &countingNotifier{}
	c := &counters{}
	e := newEngine(store, notifier)
	e.SetRecorder(c)

	above, err := e.Create(CreateRequest{Symbol: "btcusdt", Price: decimal.NewFromInt(100), Type: domain.AlertAbove}, decimal.Zero)
	require.NoError(t, err)
	_, err = e.Create(CreateRequest{Symbol: "ETHUSDT", Price: decimal.NewFromInt(100), Type: domain.AlertAbove}, decimal.Zero)
	require.NoError(t, err)

	fired := e.OnTicker("BTCUSDT", decimal.NewFromInt(101), price(99))
	require.Len(t, fired, 1)
	assert.Equal(t, above.ID, fired[0].ID)

	assert.Empty(t, e.OnTicker("BTCUSDT", decimal.NewFromInt(102), price(101)))

	e.Wait()
	store.mu.Lock()
	persisted := store.saved[above.ID]
	store.mu.Unlock()
	assert.True(t, persisted.Triggered)
	assert.False(t, persisted.Active)
	assert.Equal(t, []string{above.ID}, notifier.fired)
	assert.Equal(t, 1, c.triggered)
}

func TestEngine_CreateDerivesType(t *testing.T) {
	e := newEngine(nil, nil)

	a, err := e.Create(CreateRequest{Symbol: "BTCUSDT", Price: decimal.NewFromInt(90)}, decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.Equal(t, domain.AlertBelow, a.Type)

	b, err := e.Create(CreateRequest{Symbol: "BTCUSDT", Price: decimal.NewFromInt(110)}, decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.Equal(t, domain.AlertAbove, b.Type)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, []string{"visual"}, b.Notifications)
}

func TestEngine_CreateRejectsInvalid(t *testing.T) {
	e := newEngine(nil, nil)

	_, err := e.Create(CreateRequest{Symbol: "BTCUSDT", Price: decimal.Zero}, decimal.Zero)
	assert.ErrorIs(t, err, domain.ErrInvalidAlert)

	_, err = e.Create(CreateRequest{Symbol: "BTCUSDT", Price: decimal.NewFromInt(1), Type: "SIDEWAYS"}, decimal.Zero)
	assert.ErrorIs(t, err, domain.ErrInvalidAlert)

	_, err = e.Create(CreateRequest{Symbol: " ", Price: decimal.NewFromInt(1)}, decimal.Zero)
	assert.ErrorIs(t, err, domain.ErrInvalidAlert)
}

func TestEngine_ResetRearms(t *testing.T) {
	e := newEngine(nil, nil)
	a, _ := e.Create(CreateRequest{Symbol: "BTCUSDT", Price: decimal.NewFromInt(10), Type: domain.AlertCross}, decimal.Zero)

	require.Len(t, e.OnTicker("BTCUSDT", decimal.NewFromInt(11), price(9)), 1)
	require.Empty(t, e.OnTicker("BTCUSDT", decimal.NewFromInt(9), price(11)))

	reset, err := e.Reset(a.ID)
	require.NoError(t, err)
	assert.False(t, reset.Triggered)
	assert.Nil(t, reset.TriggeredAt)
	assert.True(t, reset.Active)

	assert.Len(t, e.OnTicker("BTCUSDT", decimal.NewFromInt(9), price(11)), 1)
}

func TestEngine_ToggleAndDelete(t *testing.T) {
	store := newMemStore()
	e := newEngine(store, nil)
	a, _ := e.Create(CreateRequest{Symbol: "BTCUSDT", Price: decimal.NewFromInt(10), Type: domain.AlertAbove}, decimal.Zero)

	off, err := e.Toggle(a.ID)
	require.NoError(t, err)
	assert.False(t, off.Active)
	assert.Empty(t, e.OnTicker("BTCUSDT", decimal.NewFromInt(11), nil))

	require.NoError(t, e.Delete(a.ID))
	assert.ErrorIs(t, e.Delete(a.ID), domain.ErrAlertNotFound)
	_, err = e.Toggle(a.ID)
	assert.ErrorIs(t, err, domain.ErrAlertNotFound)
	assert.Empty(t, e.List(""))

	e.Wait()
	assert.Equal(t, []string{a.ID}, store.deleted)
}

func TestEngine_LoadFailureFallsBackToEmpty(t *testing.T) {
	store := newMemStore()
	store.loadErr = errors.New("disk gone")
	c := &counters{}
	e := newEngine(store, nil)
	e.SetRecorder(c)

	assert.Equal(t, 0, e.Load(context.Background()))
	assert.Empty(t, e.List(""))
	assert.Equal(t, 1, c.persistErrors)
}

func TestEngine_PersistFailureKeepsMemoryState(t *testing.T) {
	store := newMemStore()
	store.saveErr = errors.New("read-only")
	e := newEngine(store, nil)

	a, err := e.Create(CreateRequest{Symbol: "BTCUSDT", Price: decimal.NewFromInt(10), Type: domain.AlertAbove}, decimal.Zero)
	require.NoError(t, err)
	e.Wait()

	got, ok := e.Get(a.ID)
	require.True(t, ok)
	assert.Equal(t, a.ID, got.ID)
}

func TestEngine_LoadRestoresAlerts(t *testing.T) {
	store := newMemStore()
	first := newEngine(store, nil)
	a, _ := first.Create(CreateRequest{Symbol: "BTCUSDT", Price: decimal.NewFromInt(10)}, decimal.NewFromInt(5))
	first.Wait()

	second := newEngine(store, nil)
	assert.Equal(t, 1, second.Load(context.Background()))
	got, ok := second.Get(a.ID)
	require.True(t, ok)
	assert.Equal(t, domain.AlertAbove, got.Type)
}

// slowStore delays saves so an unordered writer would let them land after
// a later delete or reset.
type slowStore struct {
	*memStore
	delay time.Duration
}

func (s *slowStore) SaveAlert(ctx context.Context, a domain.Alert) error {
	time.Sleep(s.delay)
	return s.memStore.SaveAlert(ctx, a)
}

func TestEngine_DeleteAfterSlowSaveStaysDeleted(t *testing.T) {
	store := &slowStore{memStore: newMemStore(), delay: 50 * time.Millisecond}
	e := newEngine(store, nil)

	a, err := e.Create(CreateRequest{Symbol: "BTCUSDT", Price: decimal.NewFromInt(10), Type: domain.AlertAbove}, decimal.Zero)
	require.NoError(t, err)
	require.NoError(t, e.Delete(a.ID))
	e.Wait()

	rows, err := store.LoadAlerts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)

	reloaded := newEngine(store, nil)
	assert.Equal(t, 0, reloaded.Load(context.Background()))
}

func TestEngine_ResetAfterTriggerPersistsLatestState(t *testing.T) {
	store := &slowStore{memStore: newMemStore(), delay: 20 * time.Millisecond}
	e := newEngine(store, nil)

	a, _ := e.Create(CreateRequest{Symbol: "BTCUSDT", Price: decimal.NewFromInt(10), Type: domain.AlertAbove}, decimal.Zero)
	fired := e.OnTicker("BTCUSDT", decimal.NewFromInt(11), price(9))
	require.Len(t, fired, 1)
	_, err := e.Reset(a.ID)
	require.NoError(t, err)
	e.Wait()

	store.mu.Lock()
	row := store.saved[a.ID]
	store.mu.Unlock()
	assert.False(t, row.Triggered)
	assert.True(t, row.Active)
	assert.Nil(t, row.TriggeredAt)
}
