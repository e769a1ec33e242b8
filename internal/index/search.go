package index

import (
	"context"
	"errors"
	"fmt"

	"coderag/internal/store"
	"coderag/internal/vectorindex"
)

// Status classifies a search outcome.
type Status string

// Search statuses.
const (
	StatusOK Status = "ok"
	// StatusNotIndexed means the tenant has no corpus.
	StatusNotIndexed Status = "not_indexed"
	// StatusUnavailable means the embedding service or store failed.
	StatusUnavailable Status = "unavailable"
	// StatusRebuildRequired means the persisted corpus cannot be used and
	// the tenant must be ingested again.
	StatusRebuildRequired Status = "rebuild_required"
)

// Hit is one resolved search result.
type Hit struct {
	// Rank starts at 1.
	Rank     int          `json:"rank"`
	Position int          `json:"position"`
	Score    float32      `json:"score"`
	Record   store.Record `json:"record"`
}

// SearchResult is the outcome of a query. Failures are reported through
// Status and Reason rather than as errors.
type SearchResult struct {
	TenantID   string `json:"tenant_id"`
	Status     Status `json:"status"`
	Generation int64  `json:"generation,omitempty"`
	Hits       []Hit  `json:"hits"`
	// Warnings lists degraded conditions such as hits dropped for missing
	// metadata.
	Warnings []string `json:"warnings,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

// Search returns the k chunks nearest to question, best first. k <= 0 uses
// the default. When k exceeds the corpus size every chunk is returned.
func (ix *Indexer) Search(ctx context.Context, tenantID, question string, k int) SearchResult {
	res := SearchResult{TenantID: tenantID, Hits: []Hit{}}
	if k <= 0 {
		k = ix.opts.DefaultTopK
	}
	logger := ix.logger.With("tenant", tenantID)

	t := ix.tenant(tenantID)
	if err := ix.ensureLoaded(ctx, t); err != nil {
		logger.Error("read manifest failed", "error", err)
		res.Status, res.Reason = StatusUnavailable, err.Error()
		return res
	}
	if status, reason := t.state(); status != StatusOK {
		res.Status, res.Reason = status, reason
		return res
	}

	vecs, err := ix.embedder.Embed(ctx, []string{question}, true)
	if err != nil || len(vecs) != 1 {
		if err == nil {
			err = fmt.Errorf("got %d vectors for 1 query", len(vecs))
		}
		logger.Error("query embedding failed", "error", err)
		res.Status, res.Reason = StatusUnavailable, err.Error()
		return res
	}
	query := vecs[0]

	t.mu.RLock()
	defer t.mu.RUnlock()

	// The corpus may have been replaced or deleted while embedding.
	if t.live == nil {
		res.Status, res.Reason = t.stateLocked()
		return res
	}
	c := t.live
	res.Generation = c.manifest.Generation

	if len(query) != c.index.Dimension() {
		res.Status = StatusRebuildRequired
		res.Reason = fmt.Sprintf("query dimension %d does not match index dimension %d (model %q)",
			len(query), c.index.Dimension(), c.manifest.Model)
		return res
	}

	hits, err := c.index.Search(ctx, query, k)
	if err != nil {
		logger.Error("vector search failed", "error", err)
		res.Status, res.Reason = StatusUnavailable, err.Error()
		return res
	}
	if len(hits) == 0 {
		res.Status = StatusOK
		return res
	}

	positions := make([]int, len(hits))
	for i, h := range hits {
		positions[i] = h.Position
	}
	records, err := ix.store.Fetch(ctx, tenantID, positions)
	if err != nil {
		logger.Error("fetch metadata failed", "error", err)
		res.Status, res.Reason = StatusUnavailable, err.Error()
		return res
	}

	for _, h := range hits {
		rec, ok := records[h.Position]
		if !ok {
			msg := fmt.Sprintf("consistency violation: position %d has no metadata record", h.Position)
			logger.Warn("consistency violation", "position", h.Position, "generation", c.manifest.Generation)
			res.Warnings = append(res.Warnings, msg)
			continue
		}
		res.Hits = append(res.Hits, Hit{
			Rank:     len(res.Hits) + 1,
			Position: h.Position,
			Score:    h.Score,
			Record:   rec,
		})
	}
	res.Status = StatusOK
	return res
}

// ensureLoaded loads the tenant's published corpus on first use. A missing
// manifest means not indexed; an unreadable index marks the tenant broken
// until the next successful ingest. Only store errors are returned, so a
// later query retries.
func (ix *Indexer) ensureLoaded(ctx context.Context, t *tenant) error {
	t.mu.RLock()
	loaded := t.loaded
	t.mu.RUnlock()
	if loaded {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.loaded {
		return nil
	}

	m, err := ix.store.Manifest(ctx, t.id)
	if errors.Is(err, store.ErrNotFound) {
		t.loaded = true
		return nil
	}
	if err != nil {
		return err
	}

	idx, err := ix.loadIndex(m)
	if err != nil {
		ix.logger.Error("index load failed", "tenant", t.id, "path", m.IndexPath, "error", err)
		t.broken = err
	} else {
		t.live = &corpus{manifest: m, index: idx}
	}
	t.loaded = true
	return nil
}

func (ix *Indexer) loadIndex(m store.Manifest) (vectorindex.Index, error) {
	backend := ix.backend
	if m.Backend != backend.Name() {
		b, err := vectorindex.ForName(m.Backend)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
		}
		backend = b
	}
	idx, err := backend.Load(m.IndexPath)
	if err != nil {
		if !errors.Is(err, ErrIndexCorrupt) {
			err = fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
		}
		return nil, err
	}
	if idx.Len() != m.ChunkCount {
		_ = idx.Close()
		return nil, fmt.Errorf("%w: index holds %d vectors, manifest lists %d chunks", ErrIndexCorrupt, idx.Len(), m.ChunkCount)
	}
	return idx, nil
}

func (t *tenant) state() (Status, string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stateLocked()
}

func (t *tenant) stateLocked() (Status, string) {
	switch {
	case t.live != nil:
		return StatusOK, ""
	case t.broken != nil:
		return StatusRebuildRequired, t.broken.Error()
	case !t.loaded:
		return StatusUnavailable, "corpus not loaded"
	default:
		return StatusNotIndexed, "tenant has no corpus"
	}
}
