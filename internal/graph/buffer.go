package graph

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// SlotFloats is the number of float32 values per edge slot in the neighbor
// buffer: [neighbor_index, weight, 0.0, 1.0].
const SlotFloats = 4

const slotBytes = SlotFloats * 4

// ErrInvalidBuffer is returned when a neighbor buffer cannot be decoded.
var ErrInvalidBuffer = errors.New("invalid neighbor buffer")

// MarshalBuffer flattens the graph into N*K*4 little-endian float32 values.
func (g *Graph) MarshalBuffer() []byte {
	buf := make([]byte, g.N()*g.K*slotBytes)
	off := 0
	for _, slots := range g.Edges {
		for _, e := range slots {
			putFloat32(buf[off:], float32(e.Neighbor))
			putFloat32(buf[off+4:], float32(e.Weight))
			putFloat32(buf[off+8:], 0)
			putFloat32(buf[off+12:], 1)
			off += slotBytes
		}
	}
	return buf
}

// EncodeBuffer returns the neighbor buffer as standard base64.
func EncodeBuffer(g *Graph) string {
	return base64.StdEncoding.EncodeToString(g.MarshalBuffer())
}

// UnmarshalBuffer rebuilds a graph from a raw neighbor buffer with k slots
// per node. The reserved floats are ignored.
func UnmarshalBuffer(data []byte, k int) (*Graph, error) {
	if k < 1 || k > MaxK {
		return nil, fmt.Errorf("%w: k=%d", ErrInvalidBuffer, k)
	}
	stride := k * slotBytes
	if len(data)%stride != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrInvalidBuffer, len(data), stride)
	}

	n := len(data) / stride
	g := &Graph{K: k, Edges: make([][]Edge, n)}
	off := 0
	for i := 0; i < n; i++ {
		g.Edges[i] = make([]Edge, k)
		for s := 0; s < k; s++ {
			idx := getFloat32(data[off:])
			if idx != float32(math.Trunc(float64(idx))) || idx < 0 || int(idx) >= n {
				return nil, fmt.Errorf("%w: node %d slot %d has neighbor %v", ErrInvalidBuffer, i, s, idx)
			}
			g.Edges[i][s] = Edge{
				Neighbor: int(idx),
				Weight:   float64(getFloat32(data[off+4:])),
			}
			off += slotBytes
		}
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBuffer, err)
	}
	return g, nil
}

// DecodeBuffer parses a base64 neighbor buffer.
func DecodeBuffer(encoded string, k int) (*Graph, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBuffer, err)
	}
	return UnmarshalBuffer(data, k)
}

func putFloat32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

func getFloat32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}
