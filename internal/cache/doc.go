// Package cache provides the segmented LRU that keeps value containers resident.
//
// # Segments
//
// New entries land in a small probation segment. A second access promotes an
// entry to the protected segment; protected overflow demotes its least
// recently used entry back to probation. Only probation overflow leaves the
// cache, through the eviction hook, which runs synchronously on the calling
// goroutine.
//
// The cache is not safe for concurrent use. Callers serialize access with
// their own lock; Stats may be read without it.
package cache
