package store

import "time"

// Record is the persisted projection of one chunk, keyed by
// (TenantID, ChunkIndex). ChunkIndex is the chunk's position in the corpus
// and in the vector index.
type Record struct {
	TenantID    string
	ChunkIndex  int
	Kind        string
	FileName    string
	SymbolName  string
	StartLine   int
	EndLine     int
	CodeSnippet string
}

// Manifest describes a tenant's live corpus.
type Manifest struct {
	TenantID   string
	Generation int64
	ChunkCount int
	Dimension  int
	// Backend names the vector index implementation.
	Backend string
	// IndexPath is the persisted vector index file.
	IndexPath string
	Model     string
	BuiltAt   time.Time
}
