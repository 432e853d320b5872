// Package snapshot reads and writes hash-filter snapshot files.
//
// A snapshot records the key hashes that passed a scope filter when the side
// index had a given largest id:
//
//	[count uvarint][uint32(hash) uvarint]*count
package snapshot

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/mapindex/internal/fs"
)

// ErrTruncated is returned when a snapshot holds fewer hashes than its count.
var ErrTruncated = errors.New("snapshot: truncated")

// FileName derives the snapshot path from the side index path and the scope
// identity it was computed for.
func FileName(base string, projectHash int32, largestID uint32, includesLibraries bool) string {
	return base + "." + strconv.FormatInt(int64(projectHash), 10) +
		"." + strconv.FormatUint(uint64(largestID), 10) +
		"." + strconv.FormatBool(includesLibraries)
}

// Save writes hashes to path through a temporary file and a rename, so
// readers never see a partial snapshot.
func Save(fsys fs.FileSystem, path string, hashes *roaring.Bitmap) (err error) {
	if fsys == nil {
		fsys = fs.Default
	}
	tmp := path + ".tmp"
	f, err := fsys.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = fsys.Remove(tmp)
		}
	}()

	w := bufio.NewWriter(f)
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], hashes.GetCardinality())
	if _, err = w.Write(buf[:n]); err != nil {
		f.Close()
		return err
	}
	it := hashes.Iterator()
	for it.HasNext() {
		n = binary.PutUvarint(buf[:], uint64(it.Next()))
		if _, err = w.Write(buf[:n]); err != nil {
			f.Close()
			return err
		}
	}
	if err = w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err = f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return fsys.Rename(tmp, path)
}

// Load reads the snapshot at path. Hashes are returned as their uint32 bit
// patterns.
func Load(fsys fs.FileSystem, path string) (*roaring.Bitmap, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	f, err := fsys.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("%w: count: %w", ErrTruncated, err)
	}

	hashes := roaring.New()
	for i := uint64(0); i < count; i++ {
		h, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %d of %d hashes: %w", ErrTruncated, i, count, err)
		}
		if h > 1<<32-1 {
			return nil, fmt.Errorf("snapshot: hash %d out of range", h)
		}
		hashes.Add(uint32(h))
	}
	if _, err := r.ReadByte(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("snapshot: trailing data after %d hashes", count)
	}
	return hashes, nil
}
