package embedder

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashProvider embeds text by feature hashing its word unigrams and bigrams
// into a fixed number of buckets. It needs no model or network and identical
// text always yields identical vectors.
type HashProvider struct {
	dim int
}

// NewHashProvider creates a hashing provider with the given dimension.
func NewHashProvider(dim int) *HashProvider {
	if dim <= 0 {
		dim = 384
	}
	return &HashProvider{dim: dim}
}

// Model names the provider and its dimension.
func (p *HashProvider) Model() string { return fmt.Sprintf("hash-%d", p.dim) }

// Dimension returns the vector length.
func (p *HashProvider) Dimension() int { return p.dim }

// Embed hashes each text.
func (p *HashProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = p.vector(text)
	}
	return out, nil
}

func (p *HashProvider) vector(text string) []float32 {
	v := make([]float32, p.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	for i, w := range words {
		p.add(v, w)
		if i > 0 {
			p.add(v, words[i-1]+" "+w)
		}
	}
	return v
}

func (p *HashProvider) add(v []float32, feature string) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(p.dim))
	if sum>>63 == 1 {
		v[idx]--
	} else {
		v[idx]++
	}
}
