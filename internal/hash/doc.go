// Package hash provides the CRC32-Castagnoli checksum used to frame side-index
// records.
//
// A record whose stored checksum does not match its payload marks the end of
// the valid log; everything after it is treated as a torn tail and truncated on
// open.
//
//	sum := hash.CRC32C(payload)
//
// Go's hash/crc32 uses SSE4.2 / ARM CRC instructions when available.
package hash
