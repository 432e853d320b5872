package container

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeTracking_LazyLoad(t *testing.T) {
	var calls atomic.Int32
	var mu sync.Mutex
	ct := NewChangeTracking(NewInitializer(&mu, func() (*ValueContainer[string], error) {
		calls.Add(1)
		c := New[string]()
		c.AddValue(7, "stored")
		return c, nil
	}))

	assert.False(t, ct.IsLoaded())
	assert.False(t, ct.IsDirty())
	_, ok := ct.Snapshot()
	assert.False(t, ok, "unloaded containers are never written back")
	assert.Equal(t, int32(0), calls.Load())

	ids, err := ct.InputIDs("stored")
	require.NoError(t, err)
	assert.Equal(t, []uint32{7}, ids)
	assert.True(t, ct.IsLoaded())
	assert.False(t, ct.IsDirty(), "loading does not dirty")

	require.NoError(t, ct.AddValue(8, "new"))
	assert.True(t, ct.IsDirty())

	snap, ok := ct.Snapshot()
	require.True(t, ok)
	assert.Equal(t, 2, snap.Size())

	ct.MarkClean()
	assert.False(t, ct.IsDirty())
	assert.Equal(t, int32(1), calls.Load())
}

func TestChangeTracking_NilInitializer(t *testing.T) {
	ct := NewChangeTracking[string](nil)
	assert.True(t, ct.IsLoaded())

	n, err := ct.Size()
	require.NoError(t, err)
	assert.Zero(t, n)

	removed, err := ct.RemoveAssociatedValue(1)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.False(t, ct.IsDirty(), "removing an absent id leaves the container clean")
}

func TestChangeTracking_LoadErrorRetries(t *testing.T) {
	boom := errors.New("boom")
	fail := true
	var mu sync.Mutex
	ct := NewChangeTracking(NewInitializer(&mu, func() (*ValueContainer[string], error) {
		if fail {
			return nil, boom
		}
		return nil, nil
	}))

	err := ct.AddValue(1, "x")
	assert.ErrorIs(t, err, boom)
	assert.False(t, ct.IsLoaded())
	assert.False(t, ct.IsDirty())

	fail = false
	require.NoError(t, ct.AddValue(1, "x"))
	c, err := ct.Container()
	require.NoError(t, err)
	assert.Equal(t, []uint32{1}, c.InputIDs("x"))
}

func TestChangeTracking_ConcurrentLoadComputesOnce(t *testing.T) {
	var calls atomic.Int32
	var mu sync.Mutex
	release := make(chan struct{})
	ct := NewChangeTracking(NewInitializer(&mu, func() (*ValueContainer[int], error) {
		calls.Add(1)
		<-release
		return nil, nil
	}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id uint32) {
			defer wg.Done()
			assert.NoError(t, ct.AddValue(id, 1))
		}(uint32(i))
	}
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	ids, err := ct.InputIDs(1)
	require.NoError(t, err)
	assert.Len(t, ids, 8)
}
