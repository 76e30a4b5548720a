package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/aescanero/varflow/pkg/domain"
)

// Collector implements MetricsCollector using Prometheus
type Collector struct {
	sessions          *prometheus.CounterVec
	activeSessions    prometheus.Gauge
	cycles            *prometheus.CounterVec
	loads             *prometheus.CounterVec
	loadDuration      *prometheus.HistogramVec
	fetches           *prometheus.CounterVec
	fetchDuration     prometheus.Histogram
	cacheLookups      *prometheus.CounterVec
	snapshots         prometheus.Counter
	workerPoolIdle    prometheus.Gauge
	workerPoolBusy    prometheus.Gauge
	workerPoolStopped prometheus.Gauge
	queueDepth        prometheus.Gauge
}

// NewCollector registers varflow's metrics with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics
// handler.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		sessions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "varflow_sessions_total",
				Help: "Session lifecycle events",
			},
			[]string{"event"},
		),
		activeSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "varflow_active_sessions",
				Help: "Number of open sessions",
			},
		),
		cycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "varflow_resolution_cycles_total",
				Help: "Resolution cycles started, by trigger",
			},
			[]string{"trigger"},
		),
		loads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "varflow_variable_loads_total",
				Help: "Variable loads by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		loadDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "varflow_variable_load_duration_seconds",
				Help:    "Variable load duration in seconds",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"kind"},
		),
		fetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "varflow_values_fetches_total",
				Help: "Field values requests sent to the values backend",
			},
			[]string{"outcome"},
		),
		fetchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "varflow_values_fetch_duration_seconds",
				Help:    "Field values request latency in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "varflow_values_cache_lookups_total",
				Help: "Values cache lookups by result",
			},
			[]string{"result"},
		),
		snapshots: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "varflow_snapshots_emitted_total",
				Help: "Snapshots emitted to subscribers",
			},
		),
		workerPoolIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "varflow_worker_pool_idle",
				Help: "Number of idle workers",
			},
		),
		workerPoolBusy: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "varflow_worker_pool_busy",
				Help: "Number of busy workers",
			},
		),
		workerPoolStopped: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "varflow_worker_pool_stopped",
				Help: "Number of stopped workers",
			},
		),
		queueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "varflow_worker_queue_depth",
				Help: "Load tasks waiting for a worker",
			},
		),
	}
}

// RecordSession counts a session lifecycle event (created, closed, expired).
func (c *Collector) RecordSession(event string) {
	c.sessions.WithLabelValues(event).Inc()
}

// SetActiveSessions sets the number of open sessions
func (c *Collector) SetActiveSessions(count int) {
	c.activeSessions.Set(float64(count))
}

// RecordCycle counts a resolution cycle
func (c *Collector) RecordCycle(trigger string) {
	c.cycles.WithLabelValues(trigger).Inc()
}

// RecordLoad records the outcome of one variable load
func (c *Collector) RecordLoad(kind domain.Kind, outcome string, duration time.Duration) {
	c.loads.WithLabelValues(string(kind), outcome).Inc()
	c.loadDuration.WithLabelValues(string(kind)).Observe(duration.Seconds())
}

// RecordFetch records one request to the values backend
func (c *Collector) RecordFetch(outcome string, duration time.Duration) {
	c.fetches.WithLabelValues(outcome).Inc()
	c.fetchDuration.Observe(duration.Seconds())
}

// RecordCacheLookup records a values cache hit or miss
func (c *Collector) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

// RecordSnapshot counts an emitted snapshot
func (c *Collector) RecordSnapshot() {
	c.snapshots.Inc()
}

// RecordWorkerPoolStatus records worker pool status
func (c *Collector) RecordWorkerPoolStatus(idle, busy, stopped int) {
	c.workerPoolIdle.Set(float64(idle))
	c.workerPoolBusy.Set(float64(busy))
	c.workerPoolStopped.Set(float64(stopped))
}

// SetQueueDepth sets the number of queued load tasks
func (c *Collector) SetQueueDepth(depth int) {
	c.queueDepth.Set(float64(depth))
}
