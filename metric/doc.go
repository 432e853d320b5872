// Package metric exports storage metrics to Prometheus.
//
// PrometheusCollector implements mapindex.MetricsCollector. PebbleCollector
// exposes the internals of the durable map's Pebble store.
package metric
