// Package mapindex provides a persistent index storage that maps keys to
// sets of values, each value carrying the input ids that contributed it.
//
// # Quick Start
//
//	s, err := mapindex.Open[string, string]("./data/words", codec.StringKeys{}, codec.StringValues{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	_ = s.AddValue("hello", 1, "greeting")
//	ct, _ := s.Read("hello")
//	ids, _ := ct.InputIDs("greeting") // [1]
//
// # Storage Layout
//
// For a storage path P:
//
//	P                                   Pebble directory holding key -> container blobs
//	P.project                           side index of (key hash, input id) pairs
//	P.project.<project>.<id>.<libs>     hash-filter snapshots for scoped scans
//
// # Caching
//
// Containers are kept in a segmented LRU. New keys enter a probation segment
// and move to the protected segment on their second access. Dirty containers
// are written back when they leave the cache, on Flush, and before every key
// scan. WithHighKeySelectivity appends values of uncached keys straight to
// the durable map instead.
//
// # Scoped Scans
//
// ProcessKeys with an IDFilter visits only keys whose hash was recorded for
// an accepted input id. The hash set is computed from the side index and,
// for scopes with an identity, saved as a snapshot named after the current
// largest side index id. Any growth of the side index makes older snapshots
// unreachable.
//
// # Environment
//
// MAPINDEX_KEY_HASH_TRACKING=false disables the side index and
// MAPINDEX_NO_CACHED_HASH_IDS=true disables snapshot files, regardless of
// options.
//
// # Observability
//
// WithLogger takes a slog-based Logger and WithMetricsCollector any
// MetricsCollector. Package metric provides Prometheus implementations,
// including a collector for the Pebble store behind DurableMetrics.
//
// # Concurrency
//
// A Storage is safe for concurrent use. One lock serializes all operations;
// lazily loading a container read from disk happens outside of it.
package mapindex
