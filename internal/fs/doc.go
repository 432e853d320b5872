// Package fs provides the filesystem abstraction used by the side index and the
// hash-filter snapshot files.
//
//   - [File]: an open file with read/write/sync/truncate capabilities
//   - [FileSystem]: open, remove, rename, stat, list
//
// [LocalFS] is the production implementation. [FaultyFS] wraps another
// FileSystem and injects errors for files whose name contains a pattern, which
// is how tests exercise the best-effort snapshot paths and torn side-index
// tails.
//
// The durable map is not routed through this package; Pebble brings its own vfs.
package fs
