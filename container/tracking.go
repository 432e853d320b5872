package container

import "sync"

// Initializer materializes the content of a ChangeTracking container.
//
// Lock returns the lock held for the duration of Compute only. A nil result
// from Compute is treated as an empty container.
type Initializer[V comparable] interface {
	Lock() sync.Locker
	Compute() (*ValueContainer[V], error)
}

// NewInitializer builds an Initializer from a lock and a compute function.
func NewInitializer[V comparable](lock sync.Locker, compute func() (*ValueContainer[V], error)) Initializer[V] {
	return funcInitializer[V]{lock: lock, compute: compute}
}

type funcInitializer[V comparable] struct {
	lock    sync.Locker
	compute func() (*ValueContainer[V], error)
}

func (f funcInitializer[V]) Lock() sync.Locker                     { return f.lock }
func (f funcInitializer[V]) Compute() (*ValueContainer[V], error) { return f.compute() }

type state uint8

const (
	stateUninitialized state = iota
	stateLoading
	stateReady
)

// ChangeTracking is a lazily loaded ValueContainer with a dirty flag.
//
// It is safe for concurrent use. The container mutex is released while the
// Initializer computes; other callers wait for the load to finish.
type ChangeTracking[V comparable] struct {
	mu     sync.Mutex
	loaded *sync.Cond
	init   Initializer[V]
	state  state
	merged *ValueContainer[V]
	dirty  bool
}

// NewChangeTracking creates a container loaded through init on first access.
// A nil init yields an empty, already loaded container.
func NewChangeTracking[V comparable](init Initializer[V]) *ChangeTracking[V] {
	ct := &ChangeTracking[V]{init: init}
	ct.loaded = sync.NewCond(&ct.mu)
	if init == nil {
		ct.merged = New[V]()
		ct.state = stateReady
	}
	return ct
}

// Load materializes the content if that has not happened yet.
func (ct *ChangeTracking[V]) Load() error {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.loadLocked()
}

// loadLocked must be called with ct.mu held. It may release and re-acquire
// ct.mu while the Initializer runs.
func (ct *ChangeTracking[V]) loadLocked() error {
	for ct.state == stateLoading {
		ct.loaded.Wait()
	}
	if ct.state == stateReady {
		return nil
	}

	ct.state = stateLoading
	init := ct.init
	ct.mu.Unlock()

	l := init.Lock()
	l.Lock()
	data, err := init.Compute()
	l.Unlock()

	ct.mu.Lock()
	defer ct.loaded.Broadcast()
	if err != nil {
		ct.state = stateUninitialized
		return err
	}

	if data == nil {
		data = New[V]()
	}
	ct.merged = data
	ct.init = nil
	ct.state = stateReady
	return nil
}

// IsLoaded reports whether the content has been materialized.
func (ct *ChangeTracking[V]) IsLoaded() bool {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.state == stateReady
}

// IsDirty reports whether the container was mutated since it was last marked clean.
func (ct *ChangeTracking[V]) IsDirty() bool {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.dirty
}

// MarkClean clears the dirty flag after a write-back.
func (ct *ChangeTracking[V]) MarkClean() {
	ct.mu.Lock()
	ct.dirty = false
	ct.mu.Unlock()
}

// AddValue associates inputID with v.
func (ct *ChangeTracking[V]) AddValue(inputID uint32, v V) error {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if err := ct.loadLocked(); err != nil {
		return err
	}
	ct.merged.AddValue(inputID, v)
	ct.dirty = true
	return nil
}

// RemoveAssociatedValue removes inputID from every value. Removing an id that
// is not present leaves the container clean.
func (ct *ChangeTracking[V]) RemoveAssociatedValue(inputID uint32) (bool, error) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if err := ct.loadLocked(); err != nil {
		return false, err
	}
	if !ct.merged.RemoveAssociatedValue(inputID) {
		return false, nil
	}
	ct.dirty = true
	return true, nil
}

// Container returns a copy of the current content.
func (ct *ChangeTracking[V]) Container() (*ValueContainer[V], error) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if err := ct.loadLocked(); err != nil {
		return nil, err
	}
	return ct.merged.Clone(), nil
}

// Size returns the number of distinct values.
func (ct *ChangeTracking[V]) Size() (int, error) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if err := ct.loadLocked(); err != nil {
		return 0, err
	}
	return ct.merged.Size(), nil
}

// InputIDs returns the sorted input ids associated with v.
func (ct *ChangeTracking[V]) InputIDs(v V) ([]uint32, error) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if err := ct.loadLocked(); err != nil {
		return nil, err
	}
	return ct.merged.InputIDs(v), nil
}

// Snapshot returns a copy of the content if it is dirty. Unloaded or clean
// containers report ok=false and are never loaded by this call.
func (ct *ChangeTracking[V]) Snapshot() (c *ValueContainer[V], ok bool) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if ct.state != stateReady || !ct.dirty {
		return nil, false
	}
	return ct.merged.Clone(), true
}
