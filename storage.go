package mapindex

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cockroachdb/pebble"
	"github.com/hupe1980/mapindex/codec"
	"github.com/hupe1980/mapindex/container"
	"github.com/hupe1980/mapindex/internal/cache"
	"github.com/hupe1980/mapindex/internal/durable"
	"github.com/hupe1980/mapindex/internal/enumerator"
	"github.com/hupe1980/mapindex/internal/fs"
)

// sideIndexSuffix names the side index next to the durable map. Snapshot
// files share it as a prefix.
const sideIndexSuffix = ".project"

// hashMemo is the hash filter of the last successful scoped scan.
type hashMemo struct {
	identity ScopeIdentity
	hashes   *roaring.Bitmap
}

// Storage is a persistent index from keys to value containers.
//
// All operations are serialized by a single lock. Containers are cached and
// written back to the durable map when they leave the cache or on Flush.
type Storage[K comparable, V comparable] struct {
	mu sync.Mutex

	path     string
	sidePath string
	keys     codec.KeyDescriptor[K]
	values   codec.DataExternalizer[V]
	opts     options
	logger   *Logger
	metrics  MetricsCollector

	m     *durable.Map[K, V]
	side  *enumerator.Enumerator // nil when key hash tracking is off
	cache *cache.SLRU[K, *container.ChangeTracking[V]]

	lastScannedID uint32
	memo          *hashMemo

	closed  bool
	release func()
}

// Open opens or creates the storage at path. The durable map lives in the
// directory path, the side index in path+".project".
func Open[K comparable, V comparable](path string, keys codec.KeyDescriptor[K], values codec.DataExternalizer[V], optFns ...Option) (*Storage[K, V], error) {
	o := applyOptions(optFns)

	if err := o.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, translateError("open", path, err)
	}
	release, err := acquirePath(path)
	if err != nil {
		return nil, translateError("open", path, err)
	}

	s := &Storage[K, V]{
		path:     path,
		sidePath: path + sideIndexSuffix,
		keys:     keys,
		values:   values,
		opts:     o,
		logger:   o.logger.WithPath(path),
		metrics:  o.metricsCollector,
		release:  release,
	}
	if err := s.init(); err != nil {
		release()
		s.logger.LogOpen(context.Background(), o.keyHashTracking, 0, err)
		return nil, translateError("open", path, err)
	}

	var truncated int64
	if s.side != nil {
		truncated = s.side.Truncated()
	}
	s.logger.LogOpen(context.Background(), s.side != nil, truncated, nil)
	return s, nil
}

// init opens the durable map, the side index and a fresh cache.
func (s *Storage[K, V]) init() error {
	m, err := durable.Open(s.path, s.keys, s.values, durable.Options{
		Compression: s.opts.compression,
		Logger:      s.logger.Logger,
	})
	if err != nil {
		return err
	}

	var side *enumerator.Enumerator
	if s.opts.keyHashTracking {
		side, err = enumerator.Open(s.opts.fs, s.sidePath)
		if err != nil {
			_ = m.Close()
			return err
		}
	}

	c, err := cache.New[K, *container.ChangeTracking[V]](s.opts.cacheSize, s.opts.probationSize(), s.createContainer, s.writeBack)
	if err != nil {
		_ = m.Close()
		if side != nil {
			_ = side.Close()
		}
		return err
	}

	s.m, s.side, s.cache = m, side, c
	return nil
}

// createContainer builds a container that loads key from the current map on
// first access, under the map's data access lock.
func (s *Storage[K, V]) createContainer(key K) *container.ChangeTracking[V] {
	m := s.m
	return container.NewChangeTracking(container.NewInitializer(m.DataAccessLock(), func() (*container.ValueContainer[V], error) {
		return m.Get(key)
	}))
}

// writeBack persists an evicted container if it is dirty. Must be called
// with s.mu held.
func (s *Storage[K, V]) writeBack(key K, ct *container.ChangeTracking[V]) error {
	snap, ok := ct.Snapshot()
	if !ok {
		return nil
	}

	l := s.m.DataAccessLock()
	l.Lock()
	err := s.m.Put(key, snap)
	l.Unlock()

	s.metrics.RecordEviction(err)
	if err != nil {
		s.logger.LogEviction(context.Background(), err)
		return err
	}
	ct.MarkClean()
	return nil
}

// Read returns the loaded container for key. A key without values yields
// an empty container.
//
// The container reflects the state at load time plus later mutations made
// through this storage while it stays cached. Mutate through AddValue and
// RemoveAllValues, not through the container.
func (s *Storage[K, V]) Read(key K) (ct *container.ChangeTracking[V], err error) {
	start := time.Now()
	defer func() { s.metrics.RecordRead(time.Since(start), err) }()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, translateError("read", s.path, ErrClosed)
	}
	ct, evictErr := s.cache.Get(key)
	s.mu.Unlock()

	if evictErr != nil {
		return nil, translateError("read", s.path, evictErr)
	}
	// Loading happens outside the storage lock.
	if err := ct.Load(); err != nil {
		return nil, translateError("read", s.path, err)
	}
	return ct, nil
}

// AddValue associates value with key on behalf of inputID.
func (s *Storage[K, V]) AddValue(key K, inputID uint32, value V) (err error) {
	start := time.Now()
	direct := false
	defer func() { s.metrics.RecordAddValue(direct, time.Since(start), err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return translateError("add", s.path, ErrClosed)
	}

	if s.opts.highKeySelectivity {
		ct, ok, evictErr := s.cache.GetIfCached(key)
		if !ok {
			if err := s.track(key, inputID); err != nil {
				return translateError("add", s.path, err)
			}
			direct = true
			return translateError("add", s.path, s.appendDirect(key, inputID, value))
		}
		if evictErr != nil {
			return translateError("add", s.path, evictErr)
		}
		if ct.IsLoaded() {
			if err := s.track(key, inputID); err != nil {
				return translateError("add", s.path, err)
			}
			return translateError("add", s.path, ct.AddValue(inputID, value))
		}
	}

	ct, err := s.loadedContainer(key)
	if ct == nil {
		return translateError("add", s.path, err)
	}
	if terr := s.track(key, inputID); terr != nil {
		return translateError("add", s.path, errors.Join(terr, err))
	}
	return translateError("add", s.path, errors.Join(ct.AddValue(inputID, value), err))
}

// track records the (key hash, inputID) pair in the side index and marks the
// durable map dirty. Must be called with s.mu held.
func (s *Storage[K, V]) track(key K, inputID uint32) error {
	if s.side != nil {
		if _, err := s.side.Enumerate(s.keys.Hash(key), inputID); err != nil {
			return err
		}
	}
	s.m.MarkDirty()
	return nil
}

// loadedContainer returns the cached container for key once it is loaded.
// Must be called with s.mu held; the lock is released while the container
// loads from disk. A non-nil container may come with eviction errors.
func (s *Storage[K, V]) loadedContainer(key K) (*container.ChangeTracking[V], error) {
	var errs []error
	ct, evictErr := s.cache.Get(key)
	for {
		if evictErr != nil {
			errs = append(errs, evictErr)
		}
		if ct.IsLoaded() {
			return ct, errors.Join(errs...)
		}

		s.mu.Unlock()
		loadErr := ct.Load()
		s.mu.Lock()

		if s.closed {
			return nil, errors.Join(append(errs, ErrClosed)...)
		}
		// The container may have been evicted or the storage cleared while
		// loading; only the resident instance may be mutated.
		if cur, ok := s.cache.Peek(key); ok && cur == ct {
			if loadErr != nil {
				return nil, errors.Join(append(errs, loadErr)...)
			}
			return ct, errors.Join(errs...)
		}
		ct, evictErr = s.cache.Get(key)
	}
}

// appendDirect merges a single-entry container into the durable map.
func (s *Storage[K, V]) appendDirect(key K, inputID uint32, value V) error {
	c := container.New[V]()
	c.AddValue(inputID, value)

	l := s.m.DataAccessLock()
	l.Lock()
	defer l.Unlock()
	return s.m.Append(key, c)
}

// RemoveAllValues drops every value inputID contributed to key. Removing an
// absent association is a no-op.
func (s *Storage[K, V]) RemoveAllValues(key K, inputID uint32) (err error) {
	start := time.Now()
	defer func() { s.metrics.RecordRemove(time.Since(start), err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return translateError("remove", s.path, ErrClosed)
	}
	ct, err := s.loadedContainer(key)
	if ct == nil {
		return translateError("remove", s.path, err)
	}
	s.m.MarkDirty()
	_, rerr := ct.RemoveAssociatedValue(inputID)
	return translateError("remove", s.path, errors.Join(rerr, err))
}

// Keys returns every key with at least one value.
func (s *Storage[K, V]) Keys() ([]K, error) {
	var keys []K
	if _, err := s.ProcessKeys(context.Background(), func(k K) bool {
		keys = append(keys, k)
		return true
	}, nil, nil); err != nil {
		return nil, err
	}
	return keys, nil
}

// Flush writes back every cached container and forces the durable map and
// the side index to stable storage if they have pending changes.
func (s *Storage[K, V]) Flush() (err error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordFlush(time.Since(start), err)
		s.logger.LogFlush(context.Background(), time.Since(start), err)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return translateError("flush", s.path, ErrClosed)
	}
	return translateError("flush", s.path, s.flushLocked())
}

func (s *Storage[K, V]) flushLocked() error {
	var errs []error
	if !s.m.IsClosed() {
		errs = append(errs, s.cache.Clear())
		if s.m.IsDirty() {
			errs = append(errs, s.m.Force())
		}
	}
	if s.side != nil && s.side.IsDirty() {
		errs = append(errs, s.side.Force())
	}
	return errors.Join(errs...)
}

// Close flushes and closes the storage. Closing twice is a no-op.
func (s *Storage[K, V]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	defer s.release()

	errs := []error{s.flushLocked()}
	if s.side != nil {
		errs = append(errs, s.side.Close())
	}
	errs = append(errs, s.m.Close())
	return translateError("close", s.path, errors.Join(errs...))
}

// Clear deletes all data and reopens the storage empty. Cached containers
// are discarded without being written.
func (s *Storage[K, V]) Clear() (err error) {
	defer func() { s.logger.LogClear(context.Background(), err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return translateError("clear", s.path, ErrClosed)
	}

	ctx := context.Background()
	s.logger.LogCloseError(ctx, "durable map", s.m.Close())
	if s.side != nil {
		s.logger.LogCloseError(ctx, "side index", s.side.Close())
		s.side = nil
	}

	if err := s.opts.fs.RemoveAll(s.path); err != nil {
		return translateError("clear", s.path, err)
	}
	if err := fs.RemoveWithPrefix(s.opts.fs, s.sidePath); err != nil {
		return translateError("clear", s.path, err)
	}

	s.lastScannedID = 0
	s.memo = nil

	if err := s.init(); err != nil {
		return translateError("clear", s.path, fmt.Errorf("reopen: %w", err))
	}
	return nil
}

// Stats is a point-in-time view of storage internals.
type Stats struct {
	CacheHits      int64
	CacheMisses    int64
	CacheEvictions int64
	CacheResident  int
	// LargestID is the side index size; zero when key hash tracking is off.
	LargestID     uint32
	LastScannedID uint32
	Dirty         bool
}

// Stats returns current counters.
func (s *Storage[K, V]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st Stats
	st.CacheHits, st.CacheMisses, st.CacheEvictions = s.cache.Stats()
	st.CacheResident = s.cache.Len()
	if s.side != nil {
		st.LargestID = s.side.LargestID()
	}
	st.LastScannedID = s.lastScannedID
	st.Dirty = s.m.IsDirty()
	return st
}

// DurableMetrics returns the metrics of the underlying Pebble store, or nil
// once closed.
func (s *Storage[K, V]) DurableMetrics() *pebble.Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	return s.m.Metrics()
}
