// Package vectorindex holds exact nearest-neighbour indexes over unit vectors.
//
// Position i of an index is the i-th vector passed to Build. Scores are inner
// products, which equal cosine similarity for normalized vectors.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// Errors returned by indexes and backends.
var (
	// ErrIndexCorrupt means a persisted index could not be read back.
	ErrIndexCorrupt = errors.New("vector index corrupt")
	// ErrEmpty means Build was called without vectors.
	ErrEmpty = errors.New("no vectors to index")
	// ErrDimension means vectors of different lengths were mixed.
	ErrDimension = errors.New("vector dimension mismatch")
)

// Hit is one search result.
type Hit struct {
	Position int
	Score    float32
}

// Index is a built, immutable vector index.
type Index interface {
	Len() int
	Dimension() int
	// Search returns up to k hits ordered by score descending, ties broken
	// by lower position. k <= 0 yields no hits; k > Len yields all.
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
	// Save persists the index to path, replacing any existing file
	// atomically.
	Save(path string) error
	Close() error
}

// Backend builds and loads one kind of index.
type Backend interface {
	Name() string
	// Ext is the file extension used for persisted indexes.
	Ext() string
	Build(vectors [][]float32) (Index, error)
	Load(path string) (Index, error)
}

// ForName returns the backend registered under name.
func ForName(name string) (Backend, error) {
	switch name {
	case "", FlatName:
		return Flat{}, nil
	case SQLiteVecName:
		return SQLiteVec{}, nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", name)
	}
}

func checkVectors(vectors [][]float32) (int, error) {
	if len(vectors) == 0 {
		return 0, ErrEmpty
	}
	dim := len(vectors[0])
	if dim == 0 {
		return 0, fmt.Errorf("%w: zero-length vector", ErrDimension)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return 0, fmt.Errorf("%w: vector %d has %d values, expected %d", ErrDimension, i, len(v), dim)
		}
	}
	return dim, nil
}

// sortHits orders by score descending, then position ascending.
func sortHits(hits []Hit) {
	slices.SortFunc(hits, func(a, b Hit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return a.Position - b.Position
		}
	})
}

// writeAtomic writes through a temp file in the target directory and renames
// it into place.
func writeAtomic(path string, write func(tmp string) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp index: %w", err)
	}
	tmp := f.Name()
	_ = f.Close()

	if err := write(tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename index: %w", err)
	}
	return nil
}
