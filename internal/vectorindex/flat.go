package vectorindex

import (
	"context"
	"encoding/gob"
	"fmt"
	"os"
)

// FlatName is the name of the exact in-memory backend.
const FlatName = "flat"

const flatVersion = 1

// Flat builds exact brute-force inner product indexes persisted with gob.
type Flat struct{}

func (Flat) Name() string { return FlatName }
func (Flat) Ext() string  { return ".gob" }

// Build copies vectors into a contiguous matrix.
func (Flat) Build(vectors [][]float32) (Index, error) {
	dim, err := checkVectors(vectors)
	if err != nil {
		return nil, err
	}
	data := make([]float32, 0, dim*len(vectors))
	for _, v := range vectors {
		data = append(data, v...)
	}
	return &flatIndex{dim: dim, n: len(vectors), data: data}, nil
}

// Load reads an index written by Save.
func (Flat) Load(path string) (Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer f.Close()

	var ff flatFile
	if err := gob.NewDecoder(f).Decode(&ff); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIndexCorrupt, path, err)
	}
	if ff.Version != flatVersion || ff.Dim <= 0 || ff.Count <= 0 || len(ff.Data) != ff.Dim*ff.Count {
		return nil, fmt.Errorf("%w: %s: bad header (version %d, dim %d, count %d, values %d)",
			ErrIndexCorrupt, path, ff.Version, ff.Dim, ff.Count, len(ff.Data))
	}
	return &flatIndex{dim: ff.Dim, n: ff.Count, data: ff.Data}, nil
}

type flatFile struct {
	Version int
	Dim     int
	Count   int
	Data    []float32
}

type flatIndex struct {
	dim  int
	n    int
	data []float32
}

func (x *flatIndex) Len() int       { return x.n }
func (x *flatIndex) Dimension() int { return x.dim }
func (x *flatIndex) Close() error   { return nil }

func (x *flatIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if len(query) != x.dim {
		return nil, fmt.Errorf("%w: query has %d values, index has %d", ErrDimension, len(query), x.dim)
	}
	if k <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hits := make([]Hit, x.n)
	for i := 0; i < x.n; i++ {
		row := x.data[i*x.dim : (i+1)*x.dim]
		var dot float32
		for j, q := range query {
			dot += row[j] * q
		}
		hits[i] = Hit{Position: i, Score: dot}
	}
	sortHits(hits)
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func (x *flatIndex) Save(path string) error {
	return writeAtomic(path, func(tmp string) error {
		f, err := os.Create(tmp)
		if err != nil {
			return err
		}
		enc := gob.NewEncoder(f)
		if err := enc.Encode(flatFile{Version: flatVersion, Dim: x.dim, Count: x.n, Data: x.data}); err != nil {
			_ = f.Close()
			return fmt.Errorf("encode index: %w", err)
		}
		if err := f.Sync(); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	})
}
