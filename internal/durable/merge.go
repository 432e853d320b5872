package durable

import (
	"io"

	"github.com/cockroachdb/pebble"
	"github.com/hupe1980/mapindex/container"
)

// MergerName identifies the container merge operator. Pebble refuses to open
// a store written with a different merger name.
const MergerName = "mapindex.container.v1"

func newMerger(comp container.Compression) *pebble.Merger {
	return &pebble.Merger{
		Name: MergerName,
		Merge: func(_, value []byte) (pebble.ValueMerger, error) {
			m := &containerMerger{comp: comp}
			m.operands = append(m.operands, clone(value))
			return m, nil
		},
	}
}

// containerMerger collects operands and unions them on Finish. Union is
// commutative, so operand order does not matter.
type containerMerger struct {
	comp     container.Compression
	operands [][]byte
}

func (m *containerMerger) MergeNewer(value []byte) error {
	m.operands = append(m.operands, clone(value))
	return nil
}

func (m *containerMerger) MergeOlder(value []byte) error {
	m.operands = append(m.operands, clone(value))
	return nil
}

func (m *containerMerger) Finish(bool) ([]byte, io.Closer, error) {
	if len(m.operands) == 1 {
		return m.operands[0], nil, nil
	}
	res, err := container.Union(m.comp, m.operands...)
	return res, nil, err
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
