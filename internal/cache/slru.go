package cache

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// CreateFunc builds the value for a key that is not resident.
type CreateFunc[K comparable, V any] func(key K) V

// EvictFunc is called for every entry leaving the cache. The entry is dropped
// even when it returns an error.
type EvictFunc[K comparable, V any] func(key K, value V) error

// SLRU is a segmented LRU cache with a synchronous eviction hook.
type SLRU[K comparable, V any] struct {
	protected *simplelru.LRU[K, V]
	probation *simplelru.LRU[K, V]

	protectedSize int
	probationSize int

	create  CreateFunc[K, V]
	onEvict EvictFunc[K, V]

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// New creates a cache with the given segment capacities.
func New[K comparable, V any](protected, probation int, create CreateFunc[K, V], onEvict EvictFunc[K, V]) (*SLRU[K, V], error) {
	if protected <= 0 || probation <= 0 {
		return nil, fmt.Errorf("cache: segment sizes must be positive (protected=%d, probation=%d)", protected, probation)
	}
	if create == nil {
		return nil, errors.New("cache: create func is required")
	}

	c := &SLRU[K, V]{
		protectedSize: protected,
		probationSize: probation,
		create:        create,
		onEvict:       onEvict,
	}

	var err error
	if c.protected, err = simplelru.NewLRU[K, V](protected, nil); err != nil {
		return nil, err
	}
	if c.probation, err = simplelru.NewLRU[K, V](probation, nil); err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns the resident value for key, creating it on a miss.
// The returned error carries eviction hook failures; the value is valid
// regardless.
func (c *SLRU[K, V]) Get(key K) (V, error) {
	if v, ok, err := c.lookup(key); ok {
		return v, err
	}

	c.misses.Add(1)
	v := c.create(key)
	return v, c.admit(key, v)
}

// GetIfCached returns the resident value for key without creating one.
func (c *SLRU[K, V]) GetIfCached(key K) (V, bool, error) {
	v, ok, err := c.lookup(key)
	if !ok {
		c.misses.Add(1)
	}
	return v, ok, err
}

func (c *SLRU[K, V]) lookup(key K) (V, bool, error) {
	if v, ok := c.protected.Get(key); ok {
		c.hits.Add(1)
		return v, true, nil
	}
	if v, ok := c.probation.Peek(key); ok {
		c.hits.Add(1)
		c.probation.Remove(key)
		return v, true, c.promote(key, v)
	}
	var zero V
	return zero, false, nil
}

// promote moves an entry into the protected segment, demoting the protected
// LRU entry to probation when full.
func (c *SLRU[K, V]) promote(key K, v V) error {
	var err error
	if c.protected.Len() >= c.protectedSize {
		if dk, dv, ok := c.protected.RemoveOldest(); ok {
			err = c.admit(dk, dv)
		}
	}
	c.protected.Add(key, v)
	return err
}

// admit inserts into probation, evicting its LRU entry when full.
func (c *SLRU[K, V]) admit(key K, v V) error {
	var err error
	if c.probation.Len() >= c.probationSize {
		if ek, ev, ok := c.probation.RemoveOldest(); ok {
			err = c.evict(ek, ev)
		}
	}
	c.probation.Add(key, v)
	return err
}

func (c *SLRU[K, V]) evict(key K, v V) error {
	c.evictions.Add(1)
	if c.onEvict == nil {
		return nil
	}
	return c.onEvict(key, v)
}

// Clear hands every entry to the eviction hook and empties the cache.
// Probation entries go first, each segment from least to most recently used.
func (c *SLRU[K, V]) Clear() error {
	var errs []error
	for _, seg := range []*simplelru.LRU[K, V]{c.probation, c.protected} {
		for {
			k, v, ok := seg.RemoveOldest()
			if !ok {
				break
			}
			if err := c.evict(k, v); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of resident entries.
func (c *SLRU[K, V]) Len() int {
	return c.protected.Len() + c.probation.Len()
}

// Contains reports whether key is resident without touching recency.
func (c *SLRU[K, V]) Contains(key K) bool {
	return c.protected.Contains(key) || c.probation.Contains(key)
}

// Peek returns the resident value for key without touching recency or
// counters.
func (c *SLRU[K, V]) Peek(key K) (V, bool) {
	if v, ok := c.protected.Peek(key); ok {
		return v, true
	}
	return c.probation.Peek(key)
}

// Stats returns hit, miss and eviction counters.
func (c *SLRU[K, V]) Stats() (hits, misses, evictions int64) {
	return c.hits.Load(), c.misses.Load(), c.evictions.Load()
}
