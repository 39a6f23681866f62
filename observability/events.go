package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	published *prometheus.CounterVec
	dropped   prometheus.Counter
}

var (
	eventOnce     sync.Once
	eventRegistry *eventMetrics
)

// Events returns the collectors for lending events fanned out to stream
// subscribers.
func Events() *eventMetrics {
	eventOnce.Do(func() {
		eventRegistry = &eventMetrics{
			published: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendcore",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Committed lending events by type.",
			}, []string{"type"}),
			dropped: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lendcore",
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Event deliveries skipped because a subscriber buffer was full.",
			}),
		}
		prometheus.MustRegister(eventRegistry.published, eventRegistry.dropped)
	})
	return eventRegistry
}

// RecordEvent counts one committed event; the lending. prefix is dropped.
func (m *eventMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	kind := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(eventType)), "lending.")
	if kind == "" {
		kind = "unknown"
	}
	m.published.WithLabelValues(kind).Inc()
}

func (m *eventMetrics) RecordDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}
