package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type posting struct {
	Line   int    `json:"line"`
	Symbol string `json:"symbol"`
}

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "go-json"} {
		c, ok := ByName(name)
		require.True(t, ok)
		assert.Equal(t, name, c.Name())
	}
	_, ok := ByName("msgpack")
	assert.False(t, ok)
}

func TestValues_CodecsAgree(t *testing.T) {
	in := posting{Line: 42, Symbol: "Foo"}

	for _, c := range []Codec{JSON{}, GoJSON{}} {
		ext := Values[posting](c)
		b, err := ext.Marshal(in)
		require.NoError(t, err)
		out, err := ext.Unmarshal(b)
		require.NoError(t, err)
		assert.Equal(t, in, out, c.Name())
	}

	// Equal values must produce equal bytes.
	a, err := Values[posting](nil).Marshal(in)
	require.NoError(t, err)
	b, err := Values[posting](GoJSON{}).Marshal(posting{Line: 42, Symbol: "Foo"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestKeyDescriptors(t *testing.T) {
	var sk StringKeys
	b, err := sk.Marshal("alpha")
	require.NoError(t, err)
	k, err := sk.Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, "alpha", k)
	assert.Equal(t, sk.Hash("alpha"), sk.Hash("alpha"))
	assert.NotEqual(t, sk.Hash("alpha"), sk.Hash("beta"))

	var ik Int32Keys
	assert.Equal(t, int32(-7), ik.Hash(-7))
	b, err = ik.Marshal(-7)
	require.NoError(t, err)
	v, err := ik.Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, int32(-7), v)
	_, err = ik.Unmarshal([]byte{1})
	assert.Error(t, err)

	var uk Uint64Keys
	b, err = uk.Marshal(1 << 40)
	require.NoError(t, err)
	u, err := uk.Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<40), u)
	_, err = uk.Unmarshal(nil)
	assert.Error(t, err)
}

func TestInt64Values(t *testing.T) {
	var iv Int64Values
	for _, v := range []int64{0, 1, -1, 63, -64, 1 << 40} {
		b, err := iv.Marshal(v)
		require.NoError(t, err)
		got, err := iv.Unmarshal(b)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
	_, err := iv.Unmarshal([]byte{0x80})
	assert.Error(t, err)
}

func TestFold64(t *testing.T) {
	assert.Equal(t, int32(0), Fold64(0))
	assert.Equal(t, int32(1), Fold64(1))
	assert.Equal(t, int32(0), Fold64(1|1<<32))
}
