package mapindex

import (
	"sync/atomic"
	"time"
)

// HashFilterSource tells where a scoped scan got its hash filter from.
type HashFilterSource string

const (
	// HashFilterMemo is the in-session result of the last successful scan.
	HashFilterMemo HashFilterSource = "memo"
	// HashFilterSnapshot is a snapshot file written by an earlier scan.
	HashFilterSnapshot HashFilterSource = "snapshot"
	// HashFilterScan is a full side index scan.
	HashFilterScan HashFilterSource = "scan"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; package
// metric provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordRead is called after each Read.
	RecordRead(duration time.Duration, err error)

	// RecordAddValue is called after each AddValue. direct is true when the
	// value bypassed the cache and was appended to the durable map.
	RecordAddValue(direct bool, duration time.Duration, err error)

	// RecordRemove is called after each RemoveAllValues.
	RecordRemove(duration time.Duration, err error)

	// RecordScan is called after each ProcessKeys. keys is the number of keys
	// handed to the processor.
	RecordScan(keys int, duration time.Duration, err error)

	// RecordFlush is called after each Flush.
	RecordFlush(duration time.Duration, err error)

	// RecordEviction is called for every container written back on eviction.
	RecordEviction(err error)

	// RecordHashFilter is called when a scoped scan resolves its hash filter.
	RecordHashFilter(source HashFilterSource, duration time.Duration)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordRead(time.Duration, error)                  {}
func (NoopMetricsCollector) RecordAddValue(bool, time.Duration, error)        {}
func (NoopMetricsCollector) RecordRemove(time.Duration, error)                {}
func (NoopMetricsCollector) RecordScan(int, time.Duration, error)             {}
func (NoopMetricsCollector) RecordFlush(time.Duration, error)                 {}
func (NoopMetricsCollector) RecordEviction(error)                             {}
func (NoopMetricsCollector) RecordHashFilter(HashFilterSource, time.Duration) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and tests without external dependencies.
type BasicMetricsCollector struct {
	ReadCount        atomic.Int64
	ReadErrors       atomic.Int64
	AddCount         atomic.Int64
	AddDirect        atomic.Int64
	AddErrors        atomic.Int64
	AddTotalNanos    atomic.Int64
	RemoveCount      atomic.Int64
	RemoveErrors     atomic.Int64
	ScanCount        atomic.Int64
	ScanKeys         atomic.Int64
	ScanErrors       atomic.Int64
	FlushCount       atomic.Int64
	FlushErrors      atomic.Int64
	Writebacks       atomic.Int64
	WritebackErrors  atomic.Int64
	FilterFromMemo   atomic.Int64
	FilterFromFile   atomic.Int64
	FilterFromScan   atomic.Int64
	FilterTotalNanos atomic.Int64
}

// RecordRead implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRead(_ time.Duration, err error) {
	b.ReadCount.Add(1)
	if err != nil {
		b.ReadErrors.Add(1)
	}
}

// RecordAddValue implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAddValue(direct bool, duration time.Duration, err error) {
	b.AddCount.Add(1)
	b.AddTotalNanos.Add(duration.Nanoseconds())
	if direct {
		b.AddDirect.Add(1)
	}
	if err != nil {
		b.AddErrors.Add(1)
	}
}

// RecordRemove implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRemove(_ time.Duration, err error) {
	b.RemoveCount.Add(1)
	if err != nil {
		b.RemoveErrors.Add(1)
	}
}

// RecordScan implements MetricsCollector.
func (b *BasicMetricsCollector) RecordScan(keys int, _ time.Duration, err error) {
	b.ScanCount.Add(1)
	b.ScanKeys.Add(int64(keys))
	if err != nil {
		b.ScanErrors.Add(1)
	}
}

// RecordFlush implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFlush(_ time.Duration, err error) {
	b.FlushCount.Add(1)
	if err != nil {
		b.FlushErrors.Add(1)
	}
}

// RecordEviction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEviction(err error) {
	b.Writebacks.Add(1)
	if err != nil {
		b.WritebackErrors.Add(1)
	}
}

// RecordHashFilter implements MetricsCollector.
func (b *BasicMetricsCollector) RecordHashFilter(source HashFilterSource, duration time.Duration) {
	b.FilterTotalNanos.Add(duration.Nanoseconds())
	switch source {
	case HashFilterMemo:
		b.FilterFromMemo.Add(1)
	case HashFilterSnapshot:
		b.FilterFromFile.Add(1)
	default:
		b.FilterFromScan.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		ReadCount:       b.ReadCount.Load(),
		ReadErrors:      b.ReadErrors.Load(),
		AddCount:        b.AddCount.Load(),
		AddDirect:       b.AddDirect.Load(),
		AddErrors:       b.AddErrors.Load(),
		AddAvgNanos:     b.getAvgAddNanos(),
		RemoveCount:     b.RemoveCount.Load(),
		RemoveErrors:    b.RemoveErrors.Load(),
		ScanCount:       b.ScanCount.Load(),
		ScanKeys:        b.ScanKeys.Load(),
		ScanErrors:      b.ScanErrors.Load(),
		FlushCount:      b.FlushCount.Load(),
		FlushErrors:     b.FlushErrors.Load(),
		Writebacks:      b.Writebacks.Load(),
		WritebackErrors: b.WritebackErrors.Load(),
		FilterFromMemo:  b.FilterFromMemo.Load(),
		FilterFromFile:  b.FilterFromFile.Load(),
		FilterFromScan:  b.FilterFromScan.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgAddNanos() int64 {
	count := b.AddCount.Load()
	if count == 0 {
		return 0
	}
	return b.AddTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	ReadCount       int64
	ReadErrors      int64
	AddCount        int64
	AddDirect       int64
	AddErrors       int64
	AddAvgNanos     int64
	RemoveCount     int64
	RemoveErrors    int64
	ScanCount       int64
	ScanKeys        int64
	ScanErrors      int64
	FlushCount      int64
	FlushErrors     int64
	Writebacks      int64
	WritebackErrors int64
	FilterFromMemo  int64
	FilterFromFile  int64
	FilterFromScan  int64
}
