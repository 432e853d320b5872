package metric

import (
	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"
)

// PebbleSource yields Pebble metrics, or nil when the store is closed.
// (*mapindex.Storage).DurableMetrics satisfies it.
type PebbleSource func() *pebble.Metrics

// PebbleCollector is a prometheus.Collector over the durable map's store.
type PebbleCollector struct {
	source PebbleSource

	compactionCount         *prometheus.Desc
	compactionEstimatedDebt *prometheus.Desc
	memtableSize            *prometheus.Desc
	memtableCount           *prometheus.Desc
	walFiles                *prometheus.Desc
	walSize                 *prometheus.Desc
	walBytesIn              *prometheus.Desc
	walBytesWritten         *prometheus.Desc
}

// NewPebbleCollector creates a collector reading from source. constLabels
// distinguishes several storages in one registry.
func NewPebbleCollector(source PebbleSource, constLabels prometheus.Labels) *PebbleCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("mapindex_pebble_"+name, help, nil, constLabels)
	}
	return &PebbleCollector{
		source:                  source,
		compactionCount:         desc("compaction_count_total", "Total number of compactions performed"),
		compactionEstimatedDebt: desc("compaction_estimated_debt_bytes", "Estimated number of bytes that need to be compacted to reach a stable state"),
		memtableSize:            desc("memtable_size_bytes", "Current size of the memtable in bytes"),
		memtableCount:           desc("memtable_count", "Current number of memtables"),
		walFiles:                desc("wal_files", "Number of live WAL files"),
		walSize:                 desc("wal_size_bytes", "Size of live WAL data in bytes"),
		walBytesIn:              desc("wal_bytes_in_total", "Total logical bytes written to the WAL"),
		walBytesWritten:         desc("wal_bytes_written_total", "Total physical bytes written to the WAL"),
	}
}

// Describe implements prometheus.Collector.
func (pc *PebbleCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- pc.compactionCount
	ch <- pc.compactionEstimatedDebt
	ch <- pc.memtableSize
	ch <- pc.memtableCount
	ch <- pc.walFiles
	ch <- pc.walSize
	ch <- pc.walBytesIn
	ch <- pc.walBytesWritten
}

// Collect implements prometheus.Collector. Nothing is emitted while the
// store is closed.
func (pc *PebbleCollector) Collect(ch chan<- prometheus.Metric) {
	m := pc.source()
	if m == nil {
		return
	}

	ch <- prometheus.MustNewConstMetric(pc.compactionCount, prometheus.CounterValue, float64(m.Compact.Count))
	ch <- prometheus.MustNewConstMetric(pc.compactionEstimatedDebt, prometheus.GaugeValue, float64(m.Compact.EstimatedDebt))
	ch <- prometheus.MustNewConstMetric(pc.memtableSize, prometheus.GaugeValue, float64(m.MemTable.Size))
	ch <- prometheus.MustNewConstMetric(pc.memtableCount, prometheus.GaugeValue, float64(m.MemTable.Count))
	ch <- prometheus.MustNewConstMetric(pc.walFiles, prometheus.GaugeValue, float64(m.WAL.Files))
	ch <- prometheus.MustNewConstMetric(pc.walSize, prometheus.GaugeValue, float64(m.WAL.Size))
	ch <- prometheus.MustNewConstMetric(pc.walBytesIn, prometheus.CounterValue, float64(m.WAL.BytesIn))
	ch <- prometheus.MustNewConstMetric(pc.walBytesWritten, prometheus.CounterValue, float64(m.WAL.BytesWritten))
}
