package metric

import (
	"time"

	"github.com/hupe1980/mapindex"
	"github.com/prometheus/client_golang/prometheus"
)

var _ mapindex.MetricsCollector = (*PrometheusCollector)(nil)

// PrometheusCollector records storage operations as Prometheus metrics.
type PrometheusCollector struct {
	opLatency   *prometheus.HistogramVec
	ops         *prometheus.CounterVec
	directAdds  prometheus.Counter
	scanKeys    prometheus.Counter
	writebacks  *prometheus.CounterVec
	hashFilters *prometheus.CounterVec
}

// NewPrometheusCollector creates the collector and registers its metrics
// with reg. A nil reg selects prometheus.DefaultRegisterer.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &PrometheusCollector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mapindex",
			Name:      "operation_latency_seconds",
			Help:      "Latency of storage operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mapindex",
			Name:      "operations_total",
			Help:      "Storage operations by outcome",
		}, []string{"op", "status"}),
		directAdds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mapindex",
			Name:      "direct_appends_total",
			Help:      "Values appended to the durable map without caching",
		}),
		scanKeys: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mapindex",
			Name:      "scanned_keys_total",
			Help:      "Keys handed to ProcessKeys callbacks",
		}),
		writebacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mapindex",
			Subsystem: "cache",
			Name:      "writebacks_total",
			Help:      "Dirty containers written back on eviction",
		}, []string{"status"}),
		hashFilters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mapindex",
			Name:      "hash_filters_total",
			Help:      "Scoped scan hash filters by source",
		}, []string{"source"}),
	}

	for _, m := range []prometheus.Collector{c.opLatency, c.ops, c.directAdds, c.scanKeys, c.writebacks, c.hashFilters} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (c *PrometheusCollector) record(op string, d time.Duration, err error) {
	c.opLatency.WithLabelValues(op).Observe(d.Seconds())
	c.ops.WithLabelValues(op, status(err)).Inc()
}

// RecordRead implements mapindex.MetricsCollector.
func (c *PrometheusCollector) RecordRead(d time.Duration, err error) {
	c.record("read", d, err)
}

// RecordAddValue implements mapindex.MetricsCollector.
func (c *PrometheusCollector) RecordAddValue(direct bool, d time.Duration, err error) {
	c.record("add", d, err)
	if direct && err == nil {
		c.directAdds.Inc()
	}
}

// RecordRemove implements mapindex.MetricsCollector.
func (c *PrometheusCollector) RecordRemove(d time.Duration, err error) {
	c.record("remove", d, err)
}

// RecordScan implements mapindex.MetricsCollector.
func (c *PrometheusCollector) RecordScan(keys int, d time.Duration, err error) {
	c.record("scan", d, err)
	c.scanKeys.Add(float64(keys))
}

// RecordFlush implements mapindex.MetricsCollector.
func (c *PrometheusCollector) RecordFlush(d time.Duration, err error) {
	c.record("flush", d, err)
}

// RecordEviction implements mapindex.MetricsCollector.
func (c *PrometheusCollector) RecordEviction(err error) {
	c.writebacks.WithLabelValues(status(err)).Inc()
}

// RecordHashFilter implements mapindex.MetricsCollector.
func (c *PrometheusCollector) RecordHashFilter(source mapindex.HashFilterSource, _ time.Duration) {
	c.hashFilters.WithLabelValues(string(source)).Inc()
}
