// Package embedder turns text into fixed-dimension vectors.
//
// A Provider talks to one embedding backend. Client wraps a Provider with
// batching, bounded concurrency, retries, normalization and a query cache.
package embedder

import (
	"context"
	"math"
)

// Provider is a raw embedding backend. Embed returns one vector per input
// text, in input order.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Normalize scales v to unit L2 length in place. Zero vectors are left alone.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
