package codec

import (
	"encoding/binary"
	"errors"
)

// DataExternalizer serializes index values.
type DataExternalizer[V any] interface {
	Marshal(value V) ([]byte, error)
	Unmarshal(data []byte) (V, error)
}

// StringValues stores strings as their raw bytes.
type StringValues struct{}

func (StringValues) Marshal(v string) ([]byte, error) { return []byte(v), nil }

func (StringValues) Unmarshal(data []byte) (string, error) { return string(data), nil }

// Int64Values stores int64 values as signed varints.
type Int64Values struct{}

func (Int64Values) Marshal(v int64) ([]byte, error) { return binary.AppendVarint(nil, v), nil }

func (Int64Values) Unmarshal(data []byte) (int64, error) {
	v, n := binary.Varint(data)
	if n <= 0 || n != len(data) {
		return 0, errors.New("int64 value: malformed varint")
	}
	return v, nil
}

// Values adapts a Codec into a DataExternalizer. Nil selects [Default].
//
// The codec must encode equal values to equal bytes; JSON of structs and
// scalars does, JSON of maps does because keys are sorted.
func Values[V any](c Codec) DataExternalizer[V] {
	if c == nil {
		c = Default
	}
	return codecValues[V]{c: c}
}

type codecValues[V any] struct {
	c Codec
}

func (cv codecValues[V]) Marshal(v V) ([]byte, error) { return cv.c.Marshal(v) }

func (cv codecValues[V]) Unmarshal(data []byte) (V, error) {
	var v V
	err := cv.c.Unmarshal(data, &v)
	return v, err
}
