package hash

import (
	"encoding/binary"
	"hash/crc32"
)

// crc32cTable is pre-computed for the Castagnoli polynomial.
var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// CRC32C computes the CRC32-Castagnoli checksum of data.
func CRC32C(data []byte) uint32 {
	return crc32.Checksum(data, crc32cTable)
}

// AppendCRC32C appends the little-endian checksum of data to dst.
func AppendCRC32C(dst, data []byte) []byte {
	return binary.LittleEndian.AppendUint32(dst, CRC32C(data))
}

// VerifyCRC32C reports whether sum (4 bytes, little-endian) is the checksum of data.
func VerifyCRC32C(data, sum []byte) bool {
	if len(sum) < 4 {
		return false
	}
	return binary.LittleEndian.Uint32(sum) == CRC32C(data)
}
