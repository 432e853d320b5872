package container

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/mapindex/codec"
)

// ErrCorrupt is returned when a container blob cannot be decoded.
var ErrCorrupt = errors.New("container: corrupt blob")

// Blob layout:
//
//	[compression: 1 byte][rawLen: uvarint][body: rawLen bytes, possibly compressed]
//
// body:
//
//	[n: uvarint] n x ([valueLen: uvarint][value][idsLen: uvarint][roaring bitmap])
//
// Entries are sorted by value bytes so equal containers encode identically.

type rawEntry struct {
	value []byte
	ids   *roaring.Bitmap
}

// Encode serializes c using ext for values.
func Encode[V comparable](c *ValueContainer[V], ext codec.DataExternalizer[V], comp Compression) ([]byte, error) {
	entries := make([]rawEntry, 0, len(c.values))
	for v, ids := range c.values {
		b, err := ext.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal value: %w", err)
		}
		entries = append(entries, rawEntry{value: b, ids: ids})
	}
	return encodeEntries(entries, comp)
}

// Decode deserializes a blob produced by Encode or Union.
func Decode[V comparable](blob []byte, ext codec.DataExternalizer[V]) (*ValueContainer[V], error) {
	entries, err := decodeEntries(blob)
	if err != nil {
		return nil, err
	}
	c := &ValueContainer[V]{values: make(map[V]*roaring.Bitmap, len(entries))}
	for _, e := range entries {
		v, err := ext.Unmarshal(e.value)
		if err != nil {
			return nil, fmt.Errorf("unmarshal value: %w", err)
		}
		if prev, ok := c.values[v]; ok {
			prev.Or(e.ids)
			continue
		}
		c.values[v] = e.ids
	}
	return c, nil
}

// Union merges blobs value by value, unioning the posting lists of equal
// encoded values. The result uses comp.
func Union(comp Compression, blobs ...[]byte) ([]byte, error) {
	merged := make(map[string]*roaring.Bitmap)
	for _, blob := range blobs {
		entries, err := decodeEntries(blob)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if prev, ok := merged[string(e.value)]; ok {
				prev.Or(e.ids)
				continue
			}
			merged[string(e.value)] = e.ids
		}
	}

	entries := make([]rawEntry, 0, len(merged))
	for v, ids := range merged {
		entries = append(entries, rawEntry{value: []byte(v), ids: ids})
	}
	return encodeEntries(entries, comp)
}

// BlobCompression returns the compression recorded in a blob header.
func BlobCompression(blob []byte) (Compression, error) {
	if len(blob) == 0 {
		return CompressionNone, fmt.Errorf("%w: empty blob", ErrCorrupt)
	}
	return Compression(blob[0]), nil
}

func encodeEntries(entries []rawEntry, comp Compression) ([]byte, error) {
	slices.SortFunc(entries, func(a, b rawEntry) int {
		return bytes.Compare(a.value, b.value)
	})

	body := binary.AppendUvarint(nil, uint64(len(entries)))
	for _, e := range entries {
		ids, err := e.ids.ToBytes()
		if err != nil {
			return nil, err
		}
		body = binary.AppendUvarint(body, uint64(len(e.value)))
		body = append(body, e.value...)
		body = binary.AppendUvarint(body, uint64(len(ids)))
		body = append(body, ids...)
	}

	data, used, err := compress(body, comp)
	if err != nil {
		return nil, err
	}

	blob := make([]byte, 0, 1+binary.MaxVarintLen64+len(data))
	blob = append(blob, byte(used))
	blob = binary.AppendUvarint(blob, uint64(len(body)))
	return append(blob, data...), nil
}

func decodeEntries(blob []byte) ([]rawEntry, error) {
	comp, err := BlobCompression(blob)
	if err != nil {
		return nil, err
	}
	rawLen, n := binary.Uvarint(blob[1:])
	if n <= 0 {
		return nil, fmt.Errorf("%w: bad length header", ErrCorrupt)
	}
	body, err := decompress(blob[1+n:], comp, int(rawLen))
	if err != nil {
		return nil, err
	}

	r := bytes.NewReader(body)
	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("%w: entry count: %w", ErrCorrupt, err)
	}
	// Each entry takes at least 2 bytes; reject absurd counts before allocating.
	if count > uint64(len(body)) {
		return nil, fmt.Errorf("%w: entry count %d exceeds body", ErrCorrupt, count)
	}

	entries := make([]rawEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		value, err := readChunk(r)
		if err != nil {
			return nil, err
		}
		idBytes, err := readChunk(r)
		if err != nil {
			return nil, err
		}
		ids := roaring.New()
		if err := ids.UnmarshalBinary(idBytes); err != nil {
			return nil, fmt.Errorf("%w: posting list: %w", ErrCorrupt, err)
		}
		entries = append(entries, rawEntry{value: value, ids: ids})
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, r.Len())
	}
	return entries, nil
}

func readChunk(r *bytes.Reader) ([]byte, error) {
	l, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk length: %w", ErrCorrupt, err)
	}
	if l > uint64(r.Len()) {
		return nil, fmt.Errorf("%w: chunk of %d bytes, %d left", ErrCorrupt, l, r.Len())
	}
	b := make([]byte, l)
	_, _ = r.Read(b)
	return b, nil
}
