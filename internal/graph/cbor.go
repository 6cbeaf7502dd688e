package graph

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ErrInvalidCBOR is returned when a CBOR graph payload cannot be decoded.
var ErrInvalidCBOR = errors.New("invalid CBOR graph")

// MaxDecodeNodes bounds the node count DecodeCBOR accepts.
const MaxDecodeNodes = 1 << 16

// wireGraph is the compact CBOR form: neighbor indices and weights are
// stored as flat parallel arrays in node-major slot order.
type wireGraph struct {
	K         int       `cbor:"1,keyasint"`
	N         int       `cbor:"2,keyasint"`
	Neighbors []uint32  `cbor:"3,keyasint"`
	Weights   []float64 `cbor:"4,keyasint"`
}

var cborEncMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("graph: cbor encoder options: %v", err))
	}
	return em
}()

var cborDecMode = func() cbor.DecMode {
	dm, err := cbor.DecOptions{
		MaxArrayElements: MaxDecodeNodes * MaxK,
		MaxMapPairs:      16,
		MaxNestedLevels:  4,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("graph: cbor decoder options: %v", err))
	}
	return dm
}()

// EncodeCBOR encodes the graph as deterministic CBOR. Weights keep full
// float64 precision, unlike the float32 neighbor buffer.
func EncodeCBOR(g *Graph) ([]byte, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	w := wireGraph{
		K:         g.K,
		N:         g.N(),
		Neighbors: make([]uint32, 0, g.N()*g.K),
		Weights:   make([]float64, 0, g.N()*g.K),
	}
	for _, slots := range g.Edges {
		for _, e := range slots {
			w.Neighbors = append(w.Neighbors, uint32(e.Neighbor))
			w.Weights = append(w.Weights, e.Weight)
		}
	}

	var buf bytes.Buffer
	if err := cborEncMode.NewEncoder(&buf).Encode(w); err != nil {
		return nil, fmt.Errorf("failed to encode CBOR: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeCBOR decodes a graph produced by EncodeCBOR and validates it.
func DecodeCBOR(data []byte) (*Graph, error) {
	if len(data) == 0 {
		return nil, ErrInvalidCBOR
	}

	var w wireGraph
	if err := cborDecMode.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCBOR, err)
	}
	if w.K < 1 || w.K > MaxK || w.N < 0 || w.N > MaxDecodeNodes {
		return nil, fmt.Errorf("%w: shape k=%d n=%d out of range", ErrInvalidCBOR, w.K, w.N)
	}
	if len(w.Neighbors) != w.N*w.K || len(w.Weights) != len(w.Neighbors) {
		return nil, fmt.Errorf("%w: shape k=%d n=%d slots=%d/%d", ErrInvalidCBOR, w.K, w.N, len(w.Neighbors), len(w.Weights))
	}

	g := &Graph{K: w.K, Edges: make([][]Edge, w.N)}
	for i := 0; i < w.N; i++ {
		g.Edges[i] = make([]Edge, w.K)
		for s := 0; s < w.K; s++ {
			at := i*w.K + s
			g.Edges[i][s] = Edge{Neighbor: int(w.Neighbors[at]), Weight: w.Weights[at]}
		}
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCBOR, err)
	}
	return g, nil
}
