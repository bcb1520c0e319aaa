// Optional Prometheus instrumentation, grounded on the teacher's
// internal/metrics.Collector: one custom registry per Collector, a Gauge
// per pool dimension plus a query-duration Histogram. The teacher
// dimensions its metrics by (tenant, db_type) since one process serves
// many tenants; a pglink.Collector serves one DSN, so that label set
// collapses away.
package pglink

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the Prometheus metrics named in SPEC_FULL's METRICS
// section. A nil *Collector is safe to call every method on: each method
// nil-checks its receiver, so Conn calls them unguarded, while Pool also
// checks opt.Metrics before calling.
type Collector struct {
	Registry *prometheus.Registry

	connectionsActive  prometheus.Gauge
	connectionsIdle    prometheus.Gauge
	connectionsTotal   prometheus.Gauge
	connectionsWaiting prometheus.Gauge
	poolExhausted      prometheus.Counter
	queryDuration      prometheus.Histogram
	reconnectsTotal    prometheus.Counter
}

// NewCollector creates and registers every metric on a fresh registry,
// safe to call multiple times (e.g. once per Pool in tests).
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		Registry: reg,
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pglink_pool_connections_active",
			Help: "Number of connections currently checked out of the pool.",
		}),
		connectionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pglink_pool_connections_idle",
			Help: "Number of idle connections held by the pool.",
		}),
		connectionsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pglink_pool_connections_total",
			Help: "Number of connections the pool has created.",
		}),
		connectionsWaiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pglink_pool_connections_waiting",
			Help: "Number of callers waiting for a connection.",
		}),
		poolExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pglink_pool_exhausted_total",
			Help: "Total number of times Acquire had to wait for a free connection.",
		}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pglink_query_duration_seconds",
			Help:    "Duration of query execution in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		reconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pglink_reconnects_total",
			Help: "Total number of successful reconnections performed by the pool.",
		}),
	}
	reg.MustRegister(
		c.connectionsActive, c.connectionsIdle, c.connectionsTotal,
		c.connectionsWaiting, c.poolExhausted, c.queryDuration, c.reconnectsTotal,
	)
	return c
}

// ObserveAcquire records the pool's gauges after a successful Acquire.
func (c *Collector) ObserveAcquire(stats PoolStats) {
	if c == nil {
		return
	}
	c.connectionsActive.Set(float64(stats.Active))
	c.connectionsIdle.Set(float64(stats.Idle))
	c.connectionsTotal.Set(float64(stats.Total))
	c.connectionsWaiting.Set(float64(stats.Waiting))
}

// ObservePoolExhausted increments the exhaustion counter.
func (c *Collector) ObservePoolExhausted() {
	if c == nil {
		return
	}
	c.poolExhausted.Inc()
}

// ObserveReconnect increments the reconnect counter.
func (c *Collector) ObserveReconnect() {
	if c == nil {
		return
	}
	c.reconnectsTotal.Inc()
}

// ObserveQueryDuration records one query's wall-clock duration.
func (c *Collector) ObserveQueryDuration(d time.Duration) {
	if c == nil {
		return
	}
	c.queryDuration.Observe(d.Seconds())
}
