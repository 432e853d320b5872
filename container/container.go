package container

import (
	"iter"

	"github.com/RoaringBitmap/roaring/v2"
)

// ValueContainer is the set of values currently associated with one key,
// each with the input ids that contributed it.
//
// ValueContainer is not safe for concurrent use.
type ValueContainer[V comparable] struct {
	values map[V]*roaring.Bitmap
}

// New creates an empty container.
func New[V comparable]() *ValueContainer[V] {
	return &ValueContainer[V]{values: make(map[V]*roaring.Bitmap)}
}

// AddValue associates inputID with v.
func (c *ValueContainer[V]) AddValue(inputID uint32, v V) {
	ids, ok := c.values[v]
	if !ok {
		ids = roaring.New()
		c.values[v] = ids
	}
	ids.Add(inputID)
}

// RemoveAssociatedValue removes inputID from every value. Values left without
// input ids are dropped. It reports whether anything was removed.
func (c *ValueContainer[V]) RemoveAssociatedValue(inputID uint32) bool {
	removed := false
	for v, ids := range c.values {
		if ids.CheckedRemove(inputID) {
			removed = true
			if ids.IsEmpty() {
				delete(c.values, v)
			}
		}
	}
	return removed
}

// Size returns the number of distinct values.
func (c *ValueContainer[V]) Size() int {
	return len(c.values)
}

// IsEmpty reports whether the container holds no values.
func (c *ValueContainer[V]) IsEmpty() bool {
	return len(c.values) == 0
}

// Contains reports whether inputID is associated with v.
func (c *ValueContainer[V]) Contains(v V, inputID uint32) bool {
	ids, ok := c.values[v]
	return ok && ids.Contains(inputID)
}

// InputIDs returns the sorted input ids associated with v, or nil.
func (c *ValueContainer[V]) InputIDs(v V) []uint32 {
	ids, ok := c.values[v]
	if !ok {
		return nil
	}
	return ids.ToArray()
}

// ForEach calls fn for each value and its sorted input ids until fn returns false.
// It returns false if iteration was stopped early.
func (c *ValueContainer[V]) ForEach(fn func(v V, inputIDs []uint32) bool) bool {
	for v, ids := range c.values {
		if !fn(v, ids.ToArray()) {
			return false
		}
	}
	return true
}

// All returns an iterator over values and their sorted input ids.
func (c *ValueContainer[V]) All() iter.Seq2[V, []uint32] {
	return func(yield func(V, []uint32) bool) {
		c.ForEach(yield)
	}
}

// Clone returns a deep copy.
func (c *ValueContainer[V]) Clone() *ValueContainer[V] {
	out := &ValueContainer[V]{values: make(map[V]*roaring.Bitmap, len(c.values))}
	for v, ids := range c.values {
		out.values[v] = ids.Clone()
	}
	return out
}
