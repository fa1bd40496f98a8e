package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"meritlend/core/events"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking structured ledger events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "meritlend",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of ledger events segmented by event type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.emitted)
	})
	return eventRegistry
}

// RecordEvent increments the counter for the supplied event type.
func (m *eventMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		normalized = "unknown"
	}
	m.emitted.WithLabelValues(normalized).Inc()
}

// MeteredEmitter decorates an event emitter with per-type counters.
type MeteredEmitter struct {
	next events.Emitter
}

// NewMeteredEmitter wraps the supplied emitter. A nil emitter degrades to
// counting only.
func NewMeteredEmitter(next events.Emitter) *MeteredEmitter {
	return &MeteredEmitter{next: next}
}

// Emit records the event type and forwards the event.
func (m *MeteredEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	Events().RecordEvent(evt.EventType())
	if m != nil && m.next != nil {
		m.next.Emit(evt)
	}
}
