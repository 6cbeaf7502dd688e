package graph

import (
	"fmt"
	"testing"
)

// BenchmarkBuild measures the O(N^2) construction cost around the default
// graph size threshold.
func BenchmarkBuild(b *testing.B) {
	for _, n := range []int{50, 300, 1000} {
		emb := make([][]float64, n)
		for i := range emb {
			f := float64(i)
			emb[i] = []float64{f * 0.37, float64(i%17) * 0.11, float64(i%5) * 0.9}
		}
		b.Run(fmt.Sprintf("n=%d", n), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := Build(emb, 8); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkEncodeBuffer(b *testing.B) {
	g, err := Build(grid(300), 8)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		EncodeBuffer(g)
	}
}
