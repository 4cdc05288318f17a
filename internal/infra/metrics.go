package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	eventsProcessed   atomic.Uint64
	eventsDropped     atomic.Uint64
	ordersFilled      atomic.Uint64
	alertsTriggered   atomic.Uint64
	persistenceErrors atomic.Uint64
	panicsRecovered   atomic.Uint64

	// Latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	activeConnections atomic.Int32
	circuitOpen       atomic.Int32 // 1 = feed is backing off, 0 = normal
}

// GlobalMetrics is the process-wide metrics instance.
var GlobalMetrics = &Metrics{}

// RecordEvent records one applied envelope with its apply latency.
func (m *Metrics) RecordEvent(latencyNs int64) {
	m.eventsProcessed.Add(1)
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// RecordDropped records an envelope that failed to decode.
func (m *Metrics) RecordDropped() {
	m.eventsDropped.Add(1)
}

// RecordOrderFilled records a filled order.
func (m *Metrics) RecordOrderFilled() {
	m.ordersFilled.Add(1)
}

// RecordAlertTriggered records a fired alert.
func (m *Metrics) RecordAlertTriggered() {
	m.alertsTriggered.Add(1)
}

// RecordPersistenceError records a failed durable read or write.
func (m *Metrics) RecordPersistenceError() {
	m.persistenceErrors.Add(1)
}

// RecordPanic records a recovered panic in the apply loop.
func (m *Metrics) RecordPanic() {
	m.panicsRecovered.Add(1)
}

// SetActiveConnections sets the current active connection count.
func (m *Metrics) SetActiveConnections(count int32) {
	m.activeConnections.Store(count)
}

// IncrementConnections increments active connections by 1.
func (m *Metrics) IncrementConnections() {
	m.activeConnections.Add(1)
}

// DecrementConnections decrements active connections by 1.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
}

// SetCircuitState marks the feed as backing off (true) or healthy.
func (m *Metrics) SetCircuitState(open bool) {
	if open {
		m.circuitOpen.Store(1)
	} else {
		m.circuitOpen.Store(0)
	}
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	EventsProcessed   uint64    `json:"eventsProcessed"`
	EventsDropped     uint64    `json:"eventsDropped"`
	OrdersFilled      uint64    `json:"ordersFilled"`
	AlertsTriggered   uint64    `json:"alertsTriggered"`
	PersistenceErrors uint64    `json:"persistenceErrors"`
	PanicsRecovered   uint64    `json:"panicsRecovered"`
	AvgLatencyNs      int64     `json:"avgLatencyNs"`
	ActiveConnections int32     `json:"activeConnections"`
	CircuitOpen       bool      `json:"circuitOpen"`
	Timestamp         time.Time `json:"timestamp"`
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		EventsProcessed:   m.eventsProcessed.Load(),
		EventsDropped:     m.eventsDropped.Load(),
		OrdersFilled:      m.ordersFilled.Load(),
		AlertsTriggered:   m.alertsTriggered.Load(),
		PersistenceErrors: m.persistenceErrors.Load(),
		PanicsRecovered:   m.panicsRecovered.Load(),
		AvgLatencyNs:      avgLatency,
		ActiveConnections: m.activeConnections.Load(),
		CircuitOpen:       m.circuitOpen.Load() == 1,
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.eventsProcessed.Store(0)
	m.eventsDropped.Store(0)
	m.ordersFilled.Store(0)
	m.alertsTriggered.Store(0)
	m.persistenceErrors.Store(0)
	m.panicsRecovered.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.activeConnections.Store(0)
	m.circuitOpen.Store(0)
}
