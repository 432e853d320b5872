package mapindex

import (
	"context"
	"os"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/mapindex/internal/fs"
	"github.com/hupe1980/mapindex/internal/snapshot"
)

// cancelCheckInterval is how many side index records are visited between
// cancellation checks.
const cancelCheckInterval = 256

// ProcessKeys calls fn for stored keys until fn returns false, and reports
// whether it ran to completion. Pending cache content is written back first.
//
// With key hash tracking and a non-nil filter, only keys whose hash was
// recorded for an accepted input id are visited. Scopes with an identity
// reuse the hash filter across calls through snapshot files.
//
// ctx is checked while scanning the side index; its error is returned as is.
func (s *Storage[K, V]) ProcessKeys(ctx context.Context, fn func(key K) bool, scope Scope, filter IDFilter) (complete bool, err error) {
	start := time.Now()
	visited := 0
	defer func() { s.metrics.RecordScan(visited, time.Since(start), err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, translateError("scan", s.path, ErrClosed)
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := s.cache.Clear(); err != nil {
		return false, translateError("scan", s.path, err)
	}

	visit := func(k K) bool {
		visited++
		return fn(k)
	}

	if s.side != nil && filter != nil {
		hashes, err := s.hashFilter(ctx, scope, filter)
		if err != nil {
			return false, translateError("scan", s.path, err)
		}
		complete, err = s.m.ProcessKeys(func(k K) bool {
			if !hashes.Contains(uint32(s.keys.Hash(k))) {
				return true
			}
			return visit(k)
		})
		return complete, translateError("scan", s.path, err)
	}

	complete, err = s.m.ProcessKeys(visit)
	return complete, translateError("scan", s.path, err)
}

// hashFilter resolves the set of key hashes recorded for ids accepted by
// filter. Resolution order: the in-session memo, a snapshot file for the
// current largest id, a full side index scan. Must be called with s.mu held.
func (s *Storage[K, V]) hashFilter(ctx context.Context, scope Scope, filter IDFilter) (*roaring.Bitmap, error) {
	start := time.Now()
	largest := s.side.LargestID()

	identity, cacheable := scopeIdentity(scope)
	cacheable = cacheable && s.opts.cachedHashIDs

	if cacheable {
		if s.memo != nil && s.lastScannedID == largest && s.memo.identity == identity {
			s.recordFilter(ctx, HashFilterMemo, largest, s.memo.hashes, start)
			return s.memo.hashes, nil
		}

		name := s.snapshotName(identity, largest)
		if fs.Exists(s.opts.fs, name) {
			hashes, err := snapshot.Load(s.opts.fs, name)
			if err == nil {
				s.remember(identity, largest, hashes)
				s.recordFilter(ctx, HashFilterSnapshot, largest, hashes, start)
				return hashes, nil
			}
			s.logger.LogSnapshot(ctx, "load", name, err)
		}

		if s.lastScannedID != 0 && s.lastScannedID != largest {
			stale := s.snapshotName(identity, s.lastScannedID)
			if err := s.opts.fs.Remove(stale); err != nil && !os.IsNotExist(err) {
				s.logger.LogSnapshot(ctx, "delete", stale, err)
			}
		}
	}

	hashes, err := s.scanSideIndex(ctx, filter)
	if err != nil {
		return nil, err
	}

	if cacheable {
		name := s.snapshotName(identity, largest)
		// A snapshot must never name records the side index could lose.
		err := s.forceSide()
		if err == nil {
			err = snapshot.Save(s.opts.fs, name, hashes)
		}
		s.logger.LogSnapshot(ctx, "save", name, err)
		// Only a persisted snapshot advances the last scanned id.
		if err == nil {
			s.remember(identity, largest, hashes)
		}
	}

	s.recordFilter(ctx, HashFilterScan, largest, hashes, start)
	return hashes, nil
}

// scanSideIndex collects the hashes of every pair whose input id passes filter.
func (s *Storage[K, V]) scanSideIndex(ctx context.Context, filter IDFilter) (*roaring.Bitmap, error) {
	hashes := roaring.New()
	var (
		n      int
		ctxErr error
	)
	s.side.IterateData(func(hash int32, inputID uint32) bool {
		n++
		if n%cancelCheckInterval == 0 {
			if ctxErr = ctx.Err(); ctxErr != nil {
				return false
			}
		}
		if filter.ContainsInputID(inputID) {
			hashes.Add(uint32(hash))
		}
		return true
	})
	if ctxErr != nil {
		return nil, ctxErr
	}
	return hashes, nil
}

func (s *Storage[K, V]) forceSide() error {
	if !s.side.IsDirty() {
		return nil
	}
	return s.side.Force()
}

func (s *Storage[K, V]) snapshotName(identity ScopeIdentity, largestID uint32) string {
	return snapshot.FileName(s.sidePath, identity.ProjectHash, largestID, identity.IncludesLibraries)
}

func (s *Storage[K, V]) remember(identity ScopeIdentity, largestID uint32, hashes *roaring.Bitmap) {
	s.lastScannedID = largestID
	s.memo = &hashMemo{identity: identity, hashes: hashes}
}

func (s *Storage[K, V]) recordFilter(ctx context.Context, source HashFilterSource, largestID uint32, hashes *roaring.Bitmap, start time.Time) {
	d := time.Since(start)
	s.metrics.RecordHashFilter(source, d)
	s.logger.LogScan(ctx, source, largestID, hashes.GetCardinality(), d)
}
