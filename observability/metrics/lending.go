package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LendingMetrics exposes engine, scheduler and delivery collectors.
type LendingMetrics struct {
	operations   *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	liquidations *prometheus.CounterVec
	badDebt      *prometheus.GaugeVec
	available    *prometheus.GaugeVec
	borrowed     *prometheus.GaugeVec
	usage        *prometheus.GaugeVec
	healthPasses *prometheus.CounterVec
	schedulerRun *prometheus.CounterVec
	outboxDepth  prometheus.Gauge
	subscribers  prometheus.Gauge
	snapshotSize prometheus.Gauge
}

var (
	lendingOnce     sync.Once
	lendingRegistry *LendingMetrics
)

func Lending() *LendingMetrics {
	lendingOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lending_operations_total",
				Help: "Engine operations by name and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "lending_operation_duration_seconds",
				Help:    "Engine operation latency including persistence.",
				Buckets: prometheus.DefBuckets,
			}, []string{"operation"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lending_liquidations_total",
				Help: "Accounts liquidated by health refresh passes.",
			}, []string{"outcome"}),
			badDebt: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_bad_debt",
				Help: "Accumulated bad debt per pool in anchor units.",
			}, []string{"pool"}),
			available: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_pool_available",
				Help: "Available deposit per pool in anchor units.",
			}, []string{"pool"}),
			borrowed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_pool_borrowed",
				Help: "Outstanding borrow per pool in anchor units.",
			}, []string{"pool"}),
			usage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_pool_usage_rate",
				Help: "Usage rate per pool.",
			}, []string{"pool"}),
			healthPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lending_health_records_total",
				Help: "Health records touched by refresh passes, by action.",
			}, []string{"action"}),
			schedulerRun: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lending_scheduler_runs_total",
				Help: "Maintenance task runs by task and outcome.",
			}, []string{"task", "outcome"}),
			outboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "lending_outbox_pending",
				Help: "Effects waiting in the outbox for delivery.",
			}),
			subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "lending_stream_subscribers",
				Help: "Connected event stream subscribers.",
			}),
			snapshotSize: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "lending_snapshot_bytes",
				Help: "Size of the last persisted store snapshot.",
			}),
		}
		prometheus.MustRegister(
			lendingRegistry.operations,
			lendingRegistry.latency,
			lendingRegistry.liquidations,
			lendingRegistry.badDebt,
			lendingRegistry.available,
			lendingRegistry.borrowed,
			lendingRegistry.usage,
			lendingRegistry.healthPasses,
			lendingRegistry.schedulerRun,
			lendingRegistry.outboxDepth,
			lendingRegistry.subscribers,
			lendingRegistry.snapshotSize,
		)
	})
	return lendingRegistry
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveOperation records one engine call.
func (m *LendingMetrics) ObserveOperation(op string, err error, took time.Duration) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	m.operations.WithLabelValues(op, outcome(err)).Inc()
	m.latency.WithLabelValues(op).Observe(took.Seconds())
}

// ObserveRefresh records the result of a health refresh pass.
func (m *LendingMetrics) ObserveRefresh(refreshed, removed, liquidated, capped int) {
	if m == nil {
		return
	}
	m.healthPasses.WithLabelValues("refreshed").Add(float64(refreshed))
	m.healthPasses.WithLabelValues("removed").Add(float64(removed))
	m.liquidations.WithLabelValues("liquidated").Add(float64(liquidated))
	m.liquidations.WithLabelValues("capped").Add(float64(capped))
}

// SetPool publishes pool balances.
func (m *LendingMetrics) SetPool(pool string, available, borrowed, usage float64) {
	if m == nil {
		return
	}
	m.available.WithLabelValues(pool).Set(available)
	m.borrowed.WithLabelValues(pool).Set(borrowed)
	m.usage.WithLabelValues(pool).Set(usage)
}

func (m *LendingMetrics) SetBadDebt(pool string, amount float64) {
	if m == nil {
		return
	}
	m.badDebt.WithLabelValues(pool).Set(amount)
}

func (m *LendingMetrics) ObserveScheduler(task string, err error) {
	if m == nil {
		return
	}
	m.schedulerRun.WithLabelValues(task, outcome(err)).Inc()
}

func (m *LendingMetrics) SetOutboxPending(n int) {
	if m == nil {
		return
	}
	m.outboxDepth.Set(float64(n))
}

func (m *LendingMetrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}

func (m *LendingMetrics) SetSnapshotSize(n int) {
	if m == nil {
		return
	}
	m.snapshotSize.Set(float64(n))
}
