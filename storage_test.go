package mapindex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/mapindex/codec"
	"github.com/hupe1980/mapindex/internal/durable"
	"github.com/hupe1980/mapindex/internal/enumerator"
	"github.com/hupe1980/mapindex/internal/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func openTestStorage(t *testing.T, path string, opts ...Option) *Storage[string, string] {
	t.Helper()
	s, err := Open[string, string](path, codec.StringKeys{}, codec.StringValues{}, opts...)
	require.NoError(t, err)
	return s
}

func testPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "idx")
}

func snapshotFiles(t *testing.T, path string) []string {
	t.Helper()
	files, err := filepath.Glob(path + sideIndexSuffix + ".*")
	require.NoError(t, err)
	return files
}

func collectKeys(t *testing.T, s *Storage[string, string], scope Scope, filter IDFilter) []string {
	t.Helper()
	var keys []string
	complete, err := s.ProcessKeys(context.Background(), func(k string) bool {
		keys = append(keys, k)
		return true
	}, scope, filter)
	require.NoError(t, err)
	require.True(t, complete)
	return keys
}

func TestStorage_RoundTrip(t *testing.T) {
	path := testPath(t)
	s := openTestStorage(t, path)

	require.NoError(t, s.AddValue("k", 7, "v"))
	require.NoError(t, s.Flush())
	require.NoError(t, s.Close())

	// A fresh load of the durable map sees the write.
	m, err := durable.Open[string, string](path, codec.StringKeys{}, codec.StringValues{}, durable.Options{})
	require.NoError(t, err)
	c, err := m.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []uint32{7}, c.InputIDs("v"))
	require.NoError(t, m.Close())

	s = openTestStorage(t, path)
	defer s.Close()
	ct, err := s.Read("k")
	require.NoError(t, err)
	ids, err := ct.InputIDs("v")
	require.NoError(t, err)
	assert.Equal(t, []uint32{7}, ids)
}

func TestStorage_RemoveIsIdempotent(t *testing.T) {
	s := openTestStorage(t, testPath(t))
	defer s.Close()

	require.NoError(t, s.AddValue("k", 1, "a"))
	require.NoError(t, s.AddValue("k", 2, "b"))

	require.NoError(t, s.RemoveAllValues("k", 3))
	ct, err := s.Read("k")
	require.NoError(t, err)
	c, err := ct.Container()
	require.NoError(t, err)
	assert.Equal(t, 2, c.Size())
	assert.Equal(t, []uint32{1}, c.InputIDs("a"))
	assert.Equal(t, []uint32{2}, c.InputIDs("b"))

	require.NoError(t, s.RemoveAllValues("k", 1))
	require.NoError(t, s.RemoveAllValues("k", 1))
	c, err = ct.Container()
	require.NoError(t, err)
	assert.Equal(t, 1, c.Size())

	// Removing the last association drops the key on write-back.
	require.NoError(t, s.RemoveAllValues("k", 2))
	require.NoError(t, s.RemoveAllValues("absent", 9))
	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestStorage_EvictedDirtyContainersArePersisted(t *testing.T) {
	const cacheSize = 4
	s := openTestStorage(t, testPath(t), WithCacheSize(cacheSize))
	defer s.Close()

	for i := 0; i < 2*cacheSize+2; i++ {
		require.NoError(t, s.AddValue(fmt.Sprintf("key-%02d", i), uint32(i+1), "v"))
	}

	st := s.Stats()
	assert.Positive(t, st.CacheEvictions)
	assert.LessOrEqual(t, st.CacheResident, cacheSize+1)

	// Bypass the cache.
	c, err := s.m.Get("key-00")
	require.NoError(t, err)
	assert.Equal(t, []uint32{1}, c.InputIDs("v"))
}

func addFilterFixture(t *testing.T, s *Storage[string, string], n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, s.AddValue(fmt.Sprintf("key-%02d", i), uint32(i%7+1), "v"))
	}
}

// bruteForce scans every key and keeps those whose hash was recorded for an
// accepted id.
func bruteForce(t *testing.T, s *Storage[string, string], n int, filter IDFilter) []string {
	t.Helper()
	accepted := map[int32]bool{}
	for i := 0; i < n; i++ {
		if filter.ContainsInputID(uint32(i%7 + 1)) {
			accepted[codec.StringKeys{}.Hash(fmt.Sprintf("key-%02d", i))] = true
		}
	}
	all, err := s.Keys()
	require.NoError(t, err)

	var want []string
	for _, k := range all {
		if accepted[codec.StringKeys{}.Hash(k)] {
			want = append(want, k)
		}
	}
	return want
}

func TestStorage_FilteredScanMatchesBruteForce(t *testing.T) {
	const n = 50
	path := testPath(t)
	metrics := &BasicMetricsCollector{}
	s := openTestStorage(t, path, WithMetricsCollector(metrics))

	addFilterFixture(t, s, n)
	filter := NewIDSet(1, 3, 5)
	scope := ProjectScope(42, false)

	want := bruteForce(t, s, n, filter)
	require.NotEmpty(t, want)
	require.Less(t, len(want), n)

	// No snapshot yet: full side index scan, then the snapshot is saved.
	assert.Equal(t, want, collectKeys(t, s, scope, filter))
	assert.Len(t, snapshotFiles(t, path), 1)
	assert.Equal(t, uint32(n), s.Stats().LastScannedID)

	// Same session, unchanged side index.
	assert.Equal(t, want, collectKeys(t, s, scope, filter))

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.FilterFromScan)
	assert.Equal(t, int64(1), stats.FilterFromMemo)
	require.NoError(t, s.Close())

	// New session: the snapshot file is reused.
	metrics = &BasicMetricsCollector{}
	s = openTestStorage(t, path, WithMetricsCollector(metrics))
	defer s.Close()
	assert.Equal(t, want, collectKeys(t, s, scope, filter))
	assert.Equal(t, int64(1), metrics.GetStats().FilterFromFile)
	assert.Equal(t, int64(0), metrics.GetStats().FilterFromScan)

	// Scopes without identity never touch snapshots.
	assert.Equal(t, want, collectKeys(t, s, nil, filter))
	assert.Equal(t, int64(1), metrics.GetStats().FilterFromScan)

	// Without a filter every key is visited.
	assert.Len(t, collectKeys(t, s, scope, nil), n)
}

func TestStorage_SnapshotInvalidatedBySideIndexGrowth(t *testing.T) {
	const n = 20
	path := testPath(t)
	metrics := &BasicMetricsCollector{}
	s := openTestStorage(t, path, WithMetricsCollector(metrics))
	defer s.Close()

	addFilterFixture(t, s, n)
	filter := NewIDSet(1)
	scope := ProjectScope(7, true)

	before := collectKeys(t, s, scope, filter)
	assert.NotContains(t, before, "new-key")
	oldSnapshot := filepath.Base(snapshotFiles(t, path)[0])
	assert.Equal(t, fmt.Sprintf("idx.project.7.%d.true", n), oldSnapshot)

	require.NoError(t, s.AddValue("new-key", 1, "v"))

	after := collectKeys(t, s, scope, filter)
	assert.Contains(t, after, "new-key")
	assert.Equal(t, bruteForce(t, s, n, filter), without(after, "new-key"))
	assert.Equal(t, int64(2), metrics.GetStats().FilterFromScan)

	files := snapshotFiles(t, path)
	require.Len(t, files, 1)
	assert.Equal(t, fmt.Sprintf("idx.project.7.%d.true", n+1), filepath.Base(files[0]))
}

func without(keys []string, drop string) []string {
	var out []string
	for _, k := range keys {
		if k != drop {
			out = append(out, k)
		}
	}
	return out
}

func TestStorage_ClearResetsState(t *testing.T) {
	path := testPath(t)
	s := openTestStorage(t, path)
	defer s.Close()

	addFilterFixture(t, s, 10)
	require.NoError(t, s.Flush())
	collectKeys(t, s, ProjectScope(1, false), NewIDSet(1, 2))
	require.NotEmpty(t, snapshotFiles(t, path))

	// A dirty cached container is discarded, not written.
	require.NoError(t, s.AddValue("pending", 1, "v"))

	require.NoError(t, s.Clear())

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Empty(t, snapshotFiles(t, path))

	st := s.Stats()
	assert.Zero(t, st.LargestID)
	assert.Zero(t, st.LastScannedID)
	assert.Zero(t, st.CacheResident)

	// Still usable.
	require.NoError(t, s.AddValue("k", 1, "v"))
	keys, err = s.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, keys)
}

func TestStorage_ConcurrentDisjointKeys(t *testing.T) {
	const (
		workers = 8
		ops     = 50
		perKey  = 5
	)
	s := openTestStorage(t, testPath(t), WithCacheSize(4))
	defer s.Close()

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := 0; i < ops; i++ {
				key := fmt.Sprintf("w%d-k%d", w, i%perKey)
				if err := s.AddValue(key, uint32(w*1000+i), "v"); err != nil {
					return err
				}
				if _, err := s.Read(key); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for w := 0; w < workers; w++ {
		for k := 0; k < perKey; k++ {
			ct, err := s.Read(fmt.Sprintf("w%d-k%d", w, k))
			require.NoError(t, err)
			ids, err := ct.InputIDs("v")
			require.NoError(t, err)

			var want []uint32
			for i := k; i < ops; i += perKey {
				want = append(want, uint32(w*1000+i))
			}
			assert.Equal(t, want, ids)
		}
	}
}

func TestStorage_HighKeySelectivityAppendsMerge(t *testing.T) {
	path := testPath(t)
	metrics := &BasicMetricsCollector{}
	s := openTestStorage(t, path, WithHighKeySelectivity(true), WithMetricsCollector(metrics))

	require.NoError(t, s.AddValue("k", 1, "a"))
	require.NoError(t, s.AddValue("k", 2, "a"))
	assert.Zero(t, s.Stats().CacheResident)

	ct, err := s.Read("k")
	require.NoError(t, err)
	ids, err := ct.InputIDs("a")
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2}, ids)

	// Cached now: the container is mutated in place.
	require.NoError(t, s.AddValue("k", 3, "b"))
	assert.Equal(t, int64(2), metrics.GetStats().AddDirect)
	require.NoError(t, s.Close())

	s = openTestStorage(t, path)
	defer s.Close()
	ct, err = s.Read("k")
	require.NoError(t, err)
	c, err := ct.Container()
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2}, c.InputIDs("a"))
	assert.Equal(t, []uint32{3}, c.InputIDs("b"))
}

func TestStorage_SnapshotNeverOutrunsSideIndex(t *testing.T) {
	const n = 5
	path := testPath(t)
	s := openTestStorage(t, path)
	defer s.Close()

	addFilterFixture(t, s, n)
	collectKeys(t, s, ProjectScope(9, false), NewIDSet(1, 2))

	files := snapshotFiles(t, path)
	require.Len(t, files, 1)
	assert.Equal(t, fmt.Sprintf("idx.project.9.%d.false", n), filepath.Base(files[0]))

	// What a crash right now would leave behind.
	data, err := os.ReadFile(path + sideIndexSuffix)
	require.NoError(t, err)
	crashed := filepath.Join(t.TempDir(), "crashed.project")
	require.NoError(t, os.WriteFile(crashed, data, 0o644))

	e, err := enumerator.Open(fs.Default, crashed)
	require.NoError(t, err)
	defer e.Close()
	assert.GreaterOrEqual(t, e.LargestID(), uint32(n))
}

func TestStorage_SideIndexSyncFailureSkipsSnapshot(t *testing.T) {
	path := testPath(t)
	s := openTestStorage(t, path)
	require.NoError(t, s.Close())

	faulty := fs.NewFaultyFS(nil)
	faulty.AddRule("idx.project", fs.Fault{FailOnSync: true, FailAfterBytes: -1})
	s = openTestStorage(t, path, withFileSystem(faulty))
	defer func() { _ = s.Close() }()

	addFilterFixture(t, s, 10)
	filter := NewIDSet(3)

	got := collectKeys(t, s, ProjectScope(4, true), filter)
	assert.Equal(t, bruteForce(t, s, 10, filter), got)
	assert.Empty(t, snapshotFiles(t, path))
	assert.Zero(t, s.Stats().LastScannedID)
}

func TestStorage_ReadDuringClear(t *testing.T) {
	s := openTestStorage(t, testPath(t))
	defer s.Close()

	stop := make(chan struct{})
	var g errgroup.Group
	for w := 0; w < 4; w++ {
		g.Go(func() error {
			for i := 0; ; i++ {
				select {
				case <-stop:
					return nil
				default:
				}
				key := fmt.Sprintf("w%d-%d", w, i)
				if _, err := s.Read(key); err != nil && !errors.Is(err, durable.ErrClosed) {
					return err
				}
				if err := s.AddValue(key, uint32(i+1), "v"); err != nil && !errors.Is(err, durable.ErrClosed) {
					return err
				}
			}
		})
	}

	for i := 0; i < 50; i++ {
		require.NoError(t, s.Clear())
	}
	close(stop)
	require.NoError(t, g.Wait())
}

func TestStorage_SnapshotWriteFailureFallsBack(t *testing.T) {
	path := testPath(t)
	faulty := fs.NewFaultyFS(nil)
	faulty.AddRule("idx.project.", fs.Fault{FailOnRename: true, FailAfterBytes: -1})

	metrics := &BasicMetricsCollector{}
	s := openTestStorage(t, path, withFileSystem(faulty), WithMetricsCollector(metrics))
	defer s.Close()

	addFilterFixture(t, s, 10)
	filter := NewIDSet(2)
	scope := ProjectScope(3, false)

	first := collectKeys(t, s, scope, filter)
	second := collectKeys(t, s, scope, filter)
	assert.Equal(t, first, second)
	assert.Equal(t, bruteForce(t, s, 10, filter), first)

	assert.Equal(t, int64(2), metrics.GetStats().FilterFromScan)
	assert.Zero(t, s.Stats().LastScannedID)
	assert.Empty(t, snapshotFiles(t, path))
}

func TestStorage_CancelledScan(t *testing.T) {
	s := openTestStorage(t, testPath(t))
	defer s.Close()

	for i := 0; i < 2*cancelCheckInterval; i++ {
		require.NoError(t, s.AddValue(fmt.Sprintf("key-%04d", i), uint32(i), "v"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	filter := IDFilterFunc(func(uint32) bool {
		cancel()
		return true
	})

	called := false
	_, err := s.ProcessKeys(ctx, func(string) bool {
		called = true
		return true
	}, nil, filter)
	assert.Equal(t, context.Canceled, err)
	assert.False(t, called)

	// Already cancelled before the call.
	_, err = s.ProcessKeys(ctx, func(string) bool { return true }, nil, nil)
	assert.Equal(t, context.Canceled, err)

	// The storage stays usable.
	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Len(t, keys, 2*cancelCheckInterval)
}

func TestStorage_ProcessKeysStopsEarly(t *testing.T) {
	s := openTestStorage(t, testPath(t))
	defer s.Close()
	addFilterFixture(t, s, 5)

	n := 0
	complete, err := s.ProcessKeys(context.Background(), func(string) bool {
		n++
		return false
	}, nil, nil)
	require.NoError(t, err)
	assert.False(t, complete)
	assert.Equal(t, 1, n)
}

func TestStorage_Closed(t *testing.T) {
	s := openTestStorage(t, testPath(t))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Read("k")
	assert.ErrorIs(t, err, ErrClosed)
	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "read", se.Op)

	assert.ErrorIs(t, s.AddValue("k", 1, "v"), ErrClosed)
	assert.ErrorIs(t, s.RemoveAllValues("k", 1), ErrClosed)
	assert.ErrorIs(t, s.Flush(), ErrClosed)
	assert.ErrorIs(t, s.Clear(), ErrClosed)
	_, err = s.Keys()
	assert.ErrorIs(t, err, ErrClosed)
	assert.Nil(t, s.DurableMetrics())
}

func TestStorage_AlreadyOpen(t *testing.T) {
	path := testPath(t)
	s := openTestStorage(t, path)

	_, err := Open[string, string](path, codec.StringKeys{}, codec.StringValues{})
	assert.ErrorIs(t, err, ErrAlreadyOpen)

	require.NoError(t, s.Close())
	s = openTestStorage(t, path)
	require.NoError(t, s.Close())
}

func TestStorage_EnvDisablesKeyHashTracking(t *testing.T) {
	t.Setenv(EnvKeyHashTracking, "false")

	path := testPath(t)
	s := openTestStorage(t, path, WithKeyHashTracking(true))
	defer s.Close()

	assert.NoFileExists(t, path+sideIndexSuffix)
	addFilterFixture(t, s, 10)

	// Without a side index the filter cannot narrow the scan.
	assert.Len(t, collectKeys(t, s, ProjectScope(1, false), NewIDSet(1)), 10)
	assert.Zero(t, s.Stats().LargestID)
}

func TestStorage_EnvDisablesSnapshots(t *testing.T) {
	t.Setenv(EnvNoCachedHashIDs, "true")

	path := testPath(t)
	s := openTestStorage(t, path)
	defer s.Close()

	addFilterFixture(t, s, 10)
	filter := NewIDSet(1, 2)
	assert.Equal(t, bruteForce(t, s, 10, filter), collectKeys(t, s, ProjectScope(1, false), filter))
	assert.Empty(t, snapshotFiles(t, path))
	assert.Zero(t, s.Stats().LastScannedID)
}

func TestStorage_Int64Values(t *testing.T) {
	s, err := Open[int32, int64](testPath(t), codec.Int32Keys{}, codec.Int64Values{}, WithCompression(0))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.AddValue(-3, 1, 100))
	require.NoError(t, s.AddValue(5, 2, -100))

	var keys []int32
	_, err = s.ProcessKeys(context.Background(), func(k int32) bool {
		keys = append(keys, k)
		return true
	}, ProjectScope(1, false), NewIDSet(2))
	require.NoError(t, err)
	assert.Equal(t, []int32{5}, keys)
}

type symbolRef struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

func TestStorage_CodecValuesSurviveReopen(t *testing.T) {
	path := testPath(t)
	values := codec.Values[symbolRef](codec.GoJSON{})

	s, err := Open[string, symbolRef](path, codec.StringKeys{}, values)
	require.NoError(t, err)
	require.NoError(t, s.AddValue("Open", 1, symbolRef{File: "storage.go", Line: 59}))
	require.NoError(t, s.AddValue("Open", 2, symbolRef{File: "map.go", Line: 40}))
	require.NoError(t, s.Close())

	s, err = Open[string, symbolRef](path, codec.StringKeys{}, values)
	require.NoError(t, err)
	defer s.Close()

	ct, err := s.Read("Open")
	require.NoError(t, err)
	c, err := ct.Container()
	require.NoError(t, err)
	assert.Equal(t, 2, c.Size())
	assert.True(t, c.Contains(symbolRef{File: "map.go", Line: 40}, 2))
}

func TestTranslateError(t *testing.T) {
	assert.NoError(t, translateError("op", "p", nil))
	assert.Equal(t, context.Canceled, translateError("op", "p", context.Canceled))

	wrapped := fmt.Errorf("outer: %w", context.DeadlineExceeded)
	assert.Equal(t, wrapped, translateError("op", "p", wrapped))

	inner := &StorageError{Op: "inner", Path: "p", Err: errors.New("io")}
	assert.Same(t, inner, translateError("outer", "p", inner))

	// Joined errors keep every cause.
	other := errors.New("sync failed")
	joined := translateError("close", "p", errors.Join(inner, other))
	var se *StorageError
	require.ErrorAs(t, joined, &se)
	assert.Equal(t, "close", se.Op)
	assert.ErrorIs(t, joined, other)
	assert.ErrorIs(t, joined, inner)

	cause := errors.New("disk full")
	err := translateError("flush", "p", cause)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "flush", se.Op)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "mapindex: flush p: disk full", err.Error())
}
