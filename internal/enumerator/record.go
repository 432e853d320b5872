package enumerator

import (
	"encoding/binary"
	"errors"

	"github.com/hupe1980/mapindex/internal/hash"
)

// Pair is one side index entry.
type Pair struct {
	Hash    int32
	InputID uint32
}

const (
	crcSize = 4
	// maxPayload bounds a varint int32 plus a uvarint uint32.
	maxPayload = binary.MaxVarintLen32*2 + 2
)

var errBadRecord = errors.New("enumerator: bad record")

func appendRecord(dst []byte, p Pair) []byte {
	start := len(dst)
	dst = append(dst, 0)
	dst = binary.AppendVarint(dst, int64(p.Hash))
	dst = binary.AppendUvarint(dst, uint64(p.InputID))
	dst[start] = byte(len(dst) - start - 1)
	return hash.AppendCRC32C(dst, dst[start:])
}

// decodeRecord parses the record at the start of b and returns its size.
// Short or inconsistent input yields errBadRecord.
func decodeRecord(b []byte) (Pair, int, error) {
	if len(b) < 1 {
		return Pair{}, 0, errBadRecord
	}
	l := int(b[0])
	if l == 0 || l > maxPayload || len(b) < 1+l+crcSize {
		return Pair{}, 0, errBadRecord
	}
	if !hash.VerifyCRC32C(b[:1+l], b[1+l:1+l+crcSize]) {
		return Pair{}, 0, errBadRecord
	}

	payload := b[1 : 1+l]
	h, n := binary.Varint(payload)
	if n <= 0 || h < -1<<31 || h > 1<<31-1 {
		return Pair{}, 0, errBadRecord
	}
	id, m := binary.Uvarint(payload[n:])
	if m <= 0 || n+m != l || id > 1<<32-1 {
		return Pair{}, 0, errBadRecord
	}
	return Pair{Hash: int32(h), InputID: uint32(id)}, 1 + l + crcSize, nil
}
