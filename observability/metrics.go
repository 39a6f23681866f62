package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type apiMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	apiOnce     sync.Once
	apiRegistry *apiMetrics
)

// ModuleMetrics returns the process-wide collectors for API traffic, keyed by
// module and route. Collectors register on first use.
func ModuleMetrics() *apiMetrics {
	apiOnce.Do(func() {
		apiRegistry = &apiMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendcore",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "API requests by module, route and status class.",
			}, []string{"module", "route", "class"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lendcore",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "API handler latency.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			}, []string{"module", "route"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendcore",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Requests rejected by rate limits or account quotas.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(apiRegistry.requests, apiRegistry.latency, apiRegistry.throttles)
	})
	return apiRegistry
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

// Observe records one finished request with the status actually written.
func (m *apiMetrics) Observe(module, route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	module, route = orUnknown(module), orUnknown(route)
	m.requests.WithLabelValues(module, route, statusClass(status)).Inc()
	m.latency.WithLabelValues(module, route).Observe(took.Seconds())
}

// RecordThrottle counts a rejected request. Reasons are "rate_limit" or
// "quota".
func (m *apiMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	m.throttles.WithLabelValues(orUnknown(module), orUnknown(reason)).Inc()
}
