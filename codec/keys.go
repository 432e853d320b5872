package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// KeyDescriptor hashes and serializes index keys.
//
// Hash is what the side index records for scoped enumeration; it need not be
// unique, only stable across processes.
type KeyDescriptor[K comparable] interface {
	Hash(key K) int32
	Marshal(key K) ([]byte, error)
	Unmarshal(data []byte) (K, error)
}

// Fold64 folds a 64-bit hash into 32 bits.
func Fold64(h uint64) int32 {
	return int32(uint32(h) ^ uint32(h>>32))
}

// StringKeys describes string keys. Keys hash with xxhash.
type StringKeys struct{}

func (StringKeys) Hash(key string) int32 { return Fold64(xxhash.Sum64String(key)) }

func (StringKeys) Marshal(key string) ([]byte, error) { return []byte(key), nil }

func (StringKeys) Unmarshal(data []byte) (string, error) { return string(data), nil }

// Int32Keys describes int32 keys. A key is its own hash.
type Int32Keys struct{}

func (Int32Keys) Hash(key int32) int32 { return key }

func (Int32Keys) Marshal(key int32) ([]byte, error) {
	return binary.BigEndian.AppendUint32(nil, uint32(key)), nil
}

func (Int32Keys) Unmarshal(data []byte) (int32, error) {
	if len(data) != 4 {
		return 0, fmt.Errorf("int32 key: expected 4 bytes, got %d", len(data))
	}
	return int32(binary.BigEndian.Uint32(data)), nil
}

// Uint64Keys describes uint64 keys. Keys hash with xxhash over the big-endian bytes.
type Uint64Keys struct{}

func (Uint64Keys) Hash(key uint64) int32 {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], key)
	return Fold64(xxhash.Sum64(b[:]))
}

func (Uint64Keys) Marshal(key uint64) ([]byte, error) {
	return binary.BigEndian.AppendUint64(nil, key), nil
}

func (Uint64Keys) Unmarshal(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("uint64 key: expected 8 bytes, got %d", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}
