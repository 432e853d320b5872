package durable

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/hupe1980/mapindex/codec"
	"github.com/hupe1980/mapindex/container"
)

// ErrClosed is returned by operations on a closed map.
var ErrClosed = errors.New("durable: map is closed")

// Options configures a Map.
type Options struct {
	// Compression applied to container blobs written by Put, Append and merges.
	Compression container.Compression
	// Logger receives Pebble's log output. Nil discards it.
	Logger *slog.Logger
}

// Map is a persistent map from keys to value containers.
//
// Map methods are safe for concurrent use, including with Close: an
// operation either completes against the open store or returns ErrClosed.
// DataAccessLock is advisory: the map never takes it itself; callers hold it
// around multi-step access such as a lazy load or a write-back.
type Map[K comparable, V comparable] struct {
	db     *pebble.DB
	path   string
	keys   codec.KeyDescriptor[K]
	values codec.DataExternalizer[V]
	comp   container.Compression

	dataMu sync.Mutex
	dirty  atomic.Bool

	// closeMu is held for reading by every store access and for writing by
	// Close, so the store is never used after db.Close.
	closeMu sync.RWMutex
	closed  bool
}

// Open opens or creates the map stored in directory path.
func Open[K comparable, V comparable](path string, keys codec.KeyDescriptor[K], values codec.DataExternalizer[V], opts Options) (*Map[K, V], error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	db, err := pebble.Open(path, &pebble.Options{
		Merger: newMerger(opts.Compression),
		Logger: pebbleLogger{l: logger},
	})
	if err != nil {
		return nil, fmt.Errorf("durable: open %s: %w", path, err)
	}

	return &Map[K, V]{
		db:     db,
		path:   path,
		keys:   keys,
		values: values,
		comp:   opts.Compression,
	}, nil
}

// Path returns the store directory.
func (m *Map[K, V]) Path() string { return m.path }

// Get returns the container stored under key. A missing key yields an empty
// container.
func (m *Map[K, V]) Get(key K) (*container.ValueContainer[V], error) {
	m.closeMu.RLock()
	defer m.closeMu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	k, err := m.keys.Marshal(key)
	if err != nil {
		return nil, fmt.Errorf("durable: marshal key: %w", err)
	}

	blob, closer, err := m.db.Get(k)
	if errors.Is(err, pebble.ErrNotFound) {
		return container.New[V](), nil
	}
	if err != nil {
		return nil, fmt.Errorf("durable: get: %w", err)
	}
	defer closer.Close()

	c, err := container.Decode[V](blob, m.values)
	if err != nil {
		return nil, fmt.Errorf("durable: decode %q: %w", k, err)
	}
	return c, nil
}

// Put replaces the container stored under key. An empty container deletes
// the key.
func (m *Map[K, V]) Put(key K, c *container.ValueContainer[V]) error {
	m.closeMu.RLock()
	defer m.closeMu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	k, err := m.keys.Marshal(key)
	if err != nil {
		return fmt.Errorf("durable: marshal key: %w", err)
	}

	if c == nil || c.IsEmpty() {
		if err := m.db.Delete(k, pebble.NoSync); err != nil {
			return fmt.Errorf("durable: delete: %w", err)
		}
		return nil
	}

	blob, err := container.Encode(c, m.values, m.comp)
	if err != nil {
		return fmt.Errorf("durable: encode: %w", err)
	}
	if err := m.db.Set(k, blob, pebble.NoSync); err != nil {
		return fmt.Errorf("durable: set: %w", err)
	}
	return nil
}

// Append merges c into whatever is stored under key without reading it.
func (m *Map[K, V]) Append(key K, c *container.ValueContainer[V]) error {
	m.closeMu.RLock()
	defer m.closeMu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	if c == nil || c.IsEmpty() {
		return nil
	}
	k, err := m.keys.Marshal(key)
	if err != nil {
		return fmt.Errorf("durable: marshal key: %w", err)
	}
	blob, err := container.Encode(c, m.values, m.comp)
	if err != nil {
		return fmt.Errorf("durable: encode: %w", err)
	}
	if err := m.db.Merge(k, blob, pebble.NoSync); err != nil {
		return fmt.Errorf("durable: merge: %w", err)
	}
	return nil
}

// ProcessKeys calls fn for every stored key in byte order until fn returns
// false. It reports whether iteration ran to completion. fn must not close
// the map.
func (m *Map[K, V]) ProcessKeys(fn func(key K) bool) (bool, error) {
	m.closeMu.RLock()
	defer m.closeMu.RUnlock()
	if m.closed {
		return false, ErrClosed
	}
	iter, err := m.db.NewIter(nil)
	if err != nil {
		return false, fmt.Errorf("durable: iterator: %w", err)
	}

	for valid := iter.First(); valid; valid = iter.Next() {
		key, err := m.keys.Unmarshal(iter.Key())
		if err != nil {
			_ = iter.Close()
			return false, fmt.Errorf("durable: unmarshal key: %w", err)
		}
		if !fn(key) {
			return false, iter.Close()
		}
	}
	if err := iter.Close(); err != nil {
		return false, fmt.Errorf("durable: iterate: %w", err)
	}
	return true, nil
}

// MarkDirty records that unflushed changes exist.
func (m *Map[K, V]) MarkDirty() { m.dirty.Store(true) }

// IsDirty reports whether changes were made since the last Force.
func (m *Map[K, V]) IsDirty() bool { return m.dirty.Load() }

// IsClosed reports whether Close has been called.
func (m *Map[K, V]) IsClosed() bool {
	m.closeMu.RLock()
	defer m.closeMu.RUnlock()
	return m.closed
}

// DataAccessLock returns the lock guarding lazy loads and write-backs.
func (m *Map[K, V]) DataAccessLock() sync.Locker { return &m.dataMu }

// Force flushes the memtable to stable storage and clears the dirty flag.
func (m *Map[K, V]) Force() error {
	m.closeMu.RLock()
	defer m.closeMu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	m.dirty.Store(false)
	if err := m.db.Flush(); err != nil {
		m.dirty.Store(true)
		return fmt.Errorf("durable: flush: %w", err)
	}
	return nil
}

// Metrics returns Pebble's internal metrics, or nil once closed.
func (m *Map[K, V]) Metrics() *pebble.Metrics {
	m.closeMu.RLock()
	defer m.closeMu.RUnlock()
	if m.closed {
		return nil
	}
	return m.db.Metrics()
}

// Close closes the store once in-flight operations finish. Closing twice is
// a no-op.
func (m *Map[K, V]) Close() error {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if err := m.db.Close(); err != nil {
		return fmt.Errorf("durable: close: %w", err)
	}
	return nil
}
