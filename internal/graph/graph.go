// Package graph builds k-nearest-neighbor similarity graphs over candidate
// embeddings and serializes them for transport.
//
// Each node stores exactly K outgoing edge slots whose weights sum to 1.
// Diffusion needs the opposite direction (who points to me), which
// Incoming provides.
package graph

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/onnwee/molrank/internal/candidate"
)

const (
	// MaxK bounds the neighbor count regardless of the requested k.
	MaxK = 16

	// Epsilon keeps the Gaussian kernel defined when a node's bandwidth is 0.
	Epsilon = 1e-6

	// weightTolerance is the allowed drift of a node's weight sum from 1,
	// loose enough for float32 round trips through the neighbor buffer.
	weightTolerance = 1e-4
)

// Graph construction errors.
var (
	ErrInvalidK          = errors.New("k must be >= 1")
	ErrInvalidGraph      = errors.New("invalid similarity graph")
	ErrDimensionMismatch = candidate.ErrDimensionMismatch
	ErrInvalidEmbedding  = candidate.ErrInvalidEmbedding
)

// Edge is one outgoing slot of a node.
type Edge struct {
	Neighbor int     `json:"neighbor"`
	Weight   float64 `json:"weight"`
}

// Graph is an outgoing-adjacency kNN graph. Edges[i] always has K entries.
type Graph struct {
	K     int      `json:"k"`
	Edges [][]Edge `json:"edges"`
}

// N returns the number of nodes.
func (g *Graph) N() int {
	if g == nil {
		return 0
	}
	return len(g.Edges)
}

// EffectiveK caps a requested neighbor count at MaxK.
func EffectiveK(k int) (int, error) {
	if k < 1 {
		return 0, ErrInvalidK
	}
	if k > MaxK {
		return MaxK, nil
	}
	return k, nil
}

type neighborDist struct {
	idx  int
	dist float64
}

// Build constructs the kNN graph for the given embeddings.
//
// For each node the k nearest other nodes are selected by Euclidean
// distance, ties broken by index. The node's bandwidth sigma is the mean
// distance to those neighbors and each edge is weighted by
// exp(-0.5*d^2/(sigma^2+Epsilon)), then normalized to sum to 1.
//
// When N <= k every other node is a neighbor and the remaining slots point
// back to the node itself with weight 0. A node with no other nodes keeps
// all of its mass on a single self slot.
func Build(embeddings [][]float64, k int) (*Graph, error) {
	k, err := EffectiveK(k)
	if err != nil {
		return nil, err
	}
	if err := validateEmbeddings(embeddings); err != nil {
		return nil, err
	}

	n := len(embeddings)
	g := &Graph{K: k, Edges: make([][]Edge, n)}
	scratch := make([]neighborDist, 0, n)

	for i := 0; i < n; i++ {
		scratch = scratch[:0]
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			scratch = append(scratch, neighborDist{idx: j, dist: euclidean(embeddings[i], embeddings[j])})
		}
		sort.Slice(scratch, func(a, b int) bool {
			if scratch[a].dist != scratch[b].dist {
				return scratch[a].dist < scratch[b].dist
			}
			return scratch[a].idx < scratch[b].idx
		})

		m := k
		if len(scratch) < m {
			m = len(scratch)
		}
		g.Edges[i] = nodeEdges(i, scratch[:m], k)
	}

	return g, nil
}

// nodeEdges weights the selected neighbors of node i and pads to k slots.
func nodeEdges(i int, nearest []neighborDist, k int) []Edge {
	edges := make([]Edge, k)
	for s := range edges {
		edges[s] = Edge{Neighbor: i, Weight: 0}
	}

	m := len(nearest)
	if m == 0 {
		edges[0].Weight = 1
		return edges
	}

	var sigma float64
	for _, nd := range nearest {
		sigma += nd.dist
	}
	sigma /= float64(m)
	denom := sigma*sigma + Epsilon

	var sum float64
	for s, nd := range nearest {
		w := math.Exp(-0.5 * nd.dist * nd.dist / denom)
		edges[s] = Edge{Neighbor: nd.idx, Weight: w}
		sum += w
	}

	if sum > 0 && !math.IsInf(sum, 0) && !math.IsNaN(sum) {
		for s := 0; s < m; s++ {
			edges[s].Weight /= sum
		}
	} else {
		for s := 0; s < m; s++ {
			edges[s].Weight = 1 / float64(m)
		}
	}
	return edges
}

func validateEmbeddings(embeddings [][]float64) error {
	if len(embeddings) == 0 {
		return nil
	}
	dim := len(embeddings[0])
	if dim == 0 {
		return fmt.Errorf("embedding 0 is empty: %w", ErrDimensionMismatch)
	}
	for i, e := range embeddings {
		if len(e) != dim {
			return fmt.Errorf("embedding %d has %d dimensions, want %d: %w", i, len(e), dim, ErrDimensionMismatch)
		}
		for _, v := range e {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("embedding %d: %w", i, ErrInvalidEmbedding)
			}
		}
	}
	return nil
}

func euclidean(a, b []float64) float64 {
	var s float64
	for d := range a {
		diff := a[d] - b[d]
		s += diff * diff
	}
	return math.Sqrt(s)
}

// Incoming returns the transposed adjacency: in[i] lists every node j with
// an edge j->i, with Edge.Neighbor set to the source j. Zero-weight slots
// are omitted since they carry no mass.
func (g *Graph) Incoming() [][]Edge {
	in := make([][]Edge, g.N())
	for j, slots := range g.Edges {
		for _, e := range slots {
			if e.Weight == 0 {
				continue
			}
			in[e.Neighbor] = append(in[e.Neighbor], Edge{Neighbor: j, Weight: e.Weight})
		}
	}
	return in
}

// Validate checks the structural invariants: K in [1, MaxK], K slots per
// node, neighbor indices in range, and non-negative weights summing to 1.
func (g *Graph) Validate() error {
	if g == nil {
		return fmt.Errorf("%w: nil graph", ErrInvalidGraph)
	}
	if g.K < 1 || g.K > MaxK {
		return fmt.Errorf("%w: k=%d", ErrInvalidGraph, g.K)
	}
	n := len(g.Edges)
	for i, slots := range g.Edges {
		if len(slots) != g.K {
			return fmt.Errorf("%w: node %d has %d slots, want %d", ErrInvalidGraph, i, len(slots), g.K)
		}
		var sum float64
		for _, e := range slots {
			if e.Neighbor < 0 || e.Neighbor >= n {
				return fmt.Errorf("%w: node %d points to %d", ErrInvalidGraph, i, e.Neighbor)
			}
			if e.Weight < 0 || math.IsNaN(e.Weight) || math.IsInf(e.Weight, 0) {
				return fmt.Errorf("%w: node %d has weight %v", ErrInvalidGraph, i, e.Weight)
			}
			sum += e.Weight
		}
		if math.Abs(sum-1) > weightTolerance {
			return fmt.Errorf("%w: node %d weights sum to %v", ErrInvalidGraph, i, sum)
		}
	}
	return nil
}
