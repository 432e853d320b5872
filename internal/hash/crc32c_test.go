package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC32C(t *testing.T) {
	// Known vector for "123456789".
	assert.Equal(t, uint32(0xE3069283), CRC32C([]byte("123456789")))

	payload := []byte{0x01, 0x02, 0x03}
	framed := AppendCRC32C(nil, payload)
	assert.Len(t, framed, 4)
	assert.True(t, VerifyCRC32C(payload, framed))

	framed[0] ^= 0xFF
	assert.False(t, VerifyCRC32C(payload, framed))
	assert.False(t, VerifyCRC32C(payload, framed[:2]))
}
