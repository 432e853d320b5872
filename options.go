package mapindex

import (
	"log/slog"

	"github.com/hupe1980/mapindex/container"
	"github.com/hupe1980/mapindex/internal/fs"
)

// DefaultCacheSize is the number of protected cache slots used when no
// WithCacheSize option is given.
const DefaultCacheSize = 1024

type options struct {
	cacheSize          int
	highKeySelectivity bool
	keyHashTracking    bool
	cachedHashIDs      bool
	compression        container.Compression
	metricsCollector   MetricsCollector
	logger             *Logger
	fs                 fs.FileSystem
}

// Option configures Open.
type Option func(*options)

// WithCacheSize sets how many containers stay resident in the protected
// cache segment. The probation segment gets a quarter of that, at least one.
// Non-positive values keep the default.
func WithCacheSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.cacheSize = n
		}
	}
}

// WithHighKeySelectivity makes AddValue append straight to the durable map
// for keys that are not cached, instead of loading them into the cache.
// Use it for indexes where most keys are written by few inputs.
func WithHighKeySelectivity(enabled bool) Option {
	return func(o *options) {
		o.highKeySelectivity = enabled
	}
}

// WithKeyHashTracking enables the (key hash, input id) side index that lets
// ProcessKeys skip keys outside an id filter. Enabled by default; the
// MAPINDEX_KEY_HASH_TRACKING environment variable can force it off.
func WithKeyHashTracking(enabled bool) Option {
	return func(o *options) {
		o.keyHashTracking = enabled
	}
}

// WithCachedHashIDs enables hash-filter snapshot files for scoped scans.
// Enabled by default; MAPINDEX_NO_CACHED_HASH_IDS can force it off.
func WithCachedHashIDs(enabled bool) Option {
	return func(o *options) {
		o.cachedHashIDs = enabled
	}
}

// WithCompression selects the compression of container blobs on disk.
func WithCompression(c container.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &mapindex.BasicMetricsCollector{}
//	s, _ := mapindex.Open[string, string](path, codec.StringKeys{}, codec.StringValues{}, mapindex.WithMetricsCollector(metrics))
//	// ... use s ...
//	stats := metrics.GetStats()
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := mapindex.NewJSONLogger(slog.LevelDebug)
//	s, _ := mapindex.Open[string, string](path, keys, values, mapindex.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// withFileSystem replaces the file system used for the side index, snapshot
// files and clearing. Pebble always uses the local file system.
func withFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		o.fs = fsys
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		cacheSize:        DefaultCacheSize,
		keyHashTracking:  true,
		cachedHashIDs:    true,
		compression:      container.CompressionLZ4,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		fs:               fs.Default,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	applyEnv(&o)
	return o
}

func (o options) probationSize() int {
	return max(1, (o.cacheSize+3)/4)
}
