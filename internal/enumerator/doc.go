// Package enumerator implements the append-only side index of
// (key hash, input id) pairs used for scoped key enumeration.
//
// # File format
//
//	header: "MIDXHASH" [version uint32 LE]
//	record: [len byte][hash varint][inputID uvarint][crc32c uint32 LE]
//
// len covers the two varints; the checksum covers the len byte and the
// varints. Pairs are deduplicated and numbered from 1 in insertion order, so
// the largest id equals the number of distinct pairs and only grows.
//
// A torn or corrupt tail left by a crash is truncated on open. The file is
// locked exclusively while open.
package enumerator
