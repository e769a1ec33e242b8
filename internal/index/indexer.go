// Package index builds, publishes and searches per-tenant corpora.
//
// A corpus is the ordered chunk list of one source tree, a vector index whose
// position i holds the embedding of chunk i, and one metadata record per
// chunk keyed by (tenant, i). Ingest always builds a complete new corpus off
// to the side and publishes it with a single store transaction. Until that
// commit, queries keep seeing the previous corpus.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/semaphore"

	"coderag/internal/chunker"
	"coderag/internal/log"
	"coderag/internal/store"
	"coderag/internal/vectorindex"
	"coderag/internal/walker"
)

// Embedder is the embedding capability used at build and query time.
type Embedder interface {
	Embed(ctx context.Context, texts []string, normalize bool) ([][]float32, error)
	Model() string
}

// Deps are the collaborators of an Indexer.
type Deps struct {
	Store     store.Store
	Embedder  Embedder
	Backend   vectorindex.Backend
	Extractor *chunker.Extractor
	Rules     walker.Rules
	// DataDir holds the per-tenant index files.
	DataDir string
	Logger  *slog.Logger
}

// Options bounds resource use.
type Options struct {
	// MaxConcurrentIngests is the number of ingests allowed at once across
	// all tenants. Further requests fail with ErrIngestBusy.
	MaxConcurrentIngests int
	// Workers is the number of files extracted in parallel per ingest.
	Workers int
	// DefaultTopK is used when Search is called with k <= 0.
	DefaultTopK int
}

// DefaultOptions returns the stock limits.
func DefaultOptions() Options {
	return Options{MaxConcurrentIngests: 2, Workers: 4, DefaultTopK: 5}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxConcurrentIngests <= 0 {
		o.MaxConcurrentIngests = d.MaxConcurrentIngests
	}
	if o.Workers <= 0 {
		o.Workers = d.Workers
	}
	if o.DefaultTopK <= 0 {
		o.DefaultTopK = d.DefaultTopK
	}
	return o
}

// Summary describes a published corpus.
type Summary struct {
	TenantID   string        `json:"tenant_id"`
	Generation int64         `json:"generation"`
	ChunkCount int           `json:"chunk_count"`
	Dimension  int           `json:"vector_dimension"`
	Backend    string        `json:"backend"`
	Stats      Stats         `json:"stats"`
	Duration   time.Duration `json:"duration"`
}

// Indexer is the public API for ingesting and searching tenant corpora. It
// is safe for concurrent use.
type Indexer struct {
	store     store.Store
	embedder  Embedder
	backend   vectorindex.Backend
	extractor *chunker.Extractor
	rules     walker.Rules
	dataDir   string
	opts      Options
	sem       *semaphore.Weighted
	tenants   sync.Map // tenant ID -> *tenant
	logger    *slog.Logger
}

// tenant serializes access to one tenant's corpus. Rebuilds hold mu for
// writing only while publishing; queries hold it for reading while they
// search and resolve metadata.
type tenant struct {
	id  string
	dir string

	mu     sync.RWMutex
	loaded bool
	live   *corpus
	broken error

	building atomic.Bool
}

// corpus is a published vector index and the manifest describing it.
type corpus struct {
	manifest store.Manifest
	index    vectorindex.Index
}

// New creates an Indexer.
func New(deps Deps, opts Options) (*Indexer, error) {
	if deps.Store == nil || deps.Embedder == nil || deps.Extractor == nil {
		return nil, errors.New("index: store, embedder and extractor are required")
	}
	if deps.Backend == nil {
		deps.Backend = vectorindex.Flat{}
	}
	if deps.DataDir == "" {
		return nil, errors.New("index: data dir is required")
	}
	dataDir, err := filepath.Abs(deps.DataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}
	opts = opts.withDefaults()
	return &Indexer{
		store:     deps.Store,
		embedder:  deps.Embedder,
		backend:   deps.Backend,
		extractor: deps.Extractor,
		rules:     deps.Rules,
		dataDir:   dataDir,
		opts:      opts,
		sem:       semaphore.NewWeighted(int64(opts.MaxConcurrentIngests)),
		logger:    log.OrDefault(deps.Logger),
	}, nil
}

// IngestOption customizes a single Ingest call.
type IngestOption func(*ingestConfig)

type ingestConfig struct {
	progress ProgressFunc
}

// WithProgress reports progress to fn.
func WithProgress(fn ProgressFunc) IngestOption {
	return func(c *ingestConfig) {
		if fn != nil {
			c.progress = fn
		}
	}
}

// Reservation is an admitted rebuild. It holds one slot of the ingest pool
// and the tenant's rebuild claim until Release.
type Reservation struct {
	ix       *Indexer
	t        *tenant
	tenantID string
	unlock   func()
	released atomic.Bool
}

// Reserve admits a rebuild of tenantID without doing any work, so a caller
// can turn away a busy server before it fetches the source tree. It fails
// with ErrIngestBusy or ErrConcurrentRebuild exactly as Ingest would.
func (ix *Indexer) Reserve(tenantID string) (*Reservation, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, ErrInvalidTenant
	}
	if !ix.sem.TryAcquire(1) {
		return nil, ErrIngestBusy
	}

	t := ix.tenant(tenantID)
	if !t.building.CompareAndSwap(false, true) {
		ix.sem.Release(1)
		return nil, ErrConcurrentRebuild
	}

	unlock, err := ix.lockRebuild(t)
	if err != nil {
		t.building.Store(false)
		ix.sem.Release(1)
		return nil, err
	}
	return &Reservation{ix: ix, t: t, tenantID: tenantID, unlock: unlock}, nil
}

// TenantID returns the tenant the reservation was taken for.
func (r *Reservation) TenantID() string { return r.tenantID }

// Release gives back the slot and the tenant claim. It is idempotent.
func (r *Reservation) Release() {
	if !r.released.CompareAndSwap(false, true) {
		return
	}
	r.unlock()
	r.t.building.Store(false)
	r.ix.sem.Release(1)
}

// Ingest runs the rebuild under the reservation. The caller still owns the
// reservation and must Release it.
func (r *Reservation) Ingest(ctx context.Context, root string, opts ...IngestOption) (*Summary, error) {
	if r.released.Load() {
		return nil, ErrReservationReleased
	}
	cfg := ingestConfig{progress: func(string, int, int) {}}
	for _, o := range opts {
		o(&cfg)
	}
	return r.ix.ingest(ctx, r.t, r.tenantID, root, cfg)
}

// Ingest rebuilds the tenant's corpus from the tree at root and publishes it.
// On any error the previous corpus stays live and untouched.
func (ix *Indexer) Ingest(ctx context.Context, tenantID, root string, opts ...IngestOption) (*Summary, error) {
	r, err := ix.Reserve(tenantID)
	if err != nil {
		return nil, err
	}
	defer r.Release()
	return r.Ingest(ctx, root, opts...)
}

func (ix *Indexer) ingest(ctx context.Context, t *tenant, tenantID, root string, cfg ingestConfig) (*Summary, error) {
	start := time.Now()
	logger := ix.logger.With("tenant", tenantID)
	logger.Info("ingest started", "root", root)

	chunks, stats, err := ix.extract(ctx, root, cfg.progress)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", tenantID, err)
	}
	if len(chunks) == 0 {
		logger.Info("ingest produced no chunks", "files", stats.FilesSeen)
		return nil, ErrEmptyCorpus
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.EmbeddingText
	}
	cfg.progress(StageEmbed, 0, len(texts))
	vectors, err := ix.embedder.Embed(ctx, texts, true)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("embed %s: %w", tenantID, ctxErr)
		}
		logger.Error("embedding failed", "chunks", len(texts), "error", err)
		return nil, &EmbeddingServiceError{Err: err}
	}
	if len(vectors) != len(chunks) {
		return nil, &EmbeddingServiceError{Err: fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))}
	}
	cfg.progress(StageEmbed, len(texts), len(texts))

	cfg.progress(StagePublish, 0, 1)
	m, err := ix.publish(ctx, t, chunks, vectors)
	if err != nil {
		return nil, err
	}
	cfg.progress(StagePublish, 1, 1)

	summary := &Summary{
		TenantID:   tenantID,
		Generation: m.Generation,
		ChunkCount: m.ChunkCount,
		Dimension:  m.Dimension,
		Backend:    m.Backend,
		Stats:      stats,
		Duration:   time.Since(start),
	}
	logger.Info("ingest finished",
		"generation", summary.Generation,
		"chunks", summary.ChunkCount,
		"files", stats.FilesSeen,
		"parse_skipped", stats.ParseSkipped,
		"duration", summary.Duration,
	)
	return summary, nil
}

// publish builds and persists the vector index, then commits the metadata.
// The commit is the publish point: before it nothing visible changes, after
// it the new corpus is live.
func (ix *Indexer) publish(ctx context.Context, t *tenant, chunks []chunker.Chunk, vectors [][]float32) (store.Manifest, error) {
	prev, err := ix.store.Manifest(ctx, t.id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		prev = store.Manifest{}
	case err != nil:
		return store.Manifest{}, fmt.Errorf("read manifest: %w", err)
	}

	idx, err := ix.backend.Build(vectors)
	if err != nil {
		return store.Manifest{}, fmt.Errorf("build index: %w", err)
	}

	gen := prev.Generation + 1
	path := filepath.Join(t.dir, fmt.Sprintf("index-%d%s", gen, ix.backend.Ext()))
	discard := func() {
		_ = idx.Close()
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			ix.logger.Warn("remove unpublished index", "path", path, "error", err)
		}
	}
	if err := idx.Save(path); err != nil {
		discard()
		return store.Manifest{}, fmt.Errorf("save index: %w", err)
	}

	m := store.Manifest{
		TenantID:   t.id,
		Generation: gen,
		ChunkCount: len(chunks),
		Dimension:  idx.Dimension(),
		Backend:    ix.backend.Name(),
		IndexPath:  path,
		Model:      ix.embedder.Model(),
		BuiltAt:    time.Now().UTC(),
	}
	records := make([]store.Record, len(chunks))
	for i, c := range chunks {
		records[i] = store.Record{
			TenantID:    t.id,
			ChunkIndex:  i,
			Kind:        string(c.Kind),
			FileName:    c.FilePath,
			SymbolName:  c.Name,
			StartLine:   c.StartLine,
			EndLine:     c.EndLine,
			CodeSnippet: c.Source,
		}
	}

	t.mu.Lock()
	if err := ix.store.ReplaceAll(ctx, m, records); err != nil {
		t.mu.Unlock()
		discard()
		return store.Manifest{}, fmt.Errorf("commit corpus: %w", err)
	}
	old := t.live
	t.live = &corpus{manifest: m, index: idx}
	t.loaded = true
	t.broken = nil
	t.mu.Unlock()

	if old != nil {
		_ = old.index.Close()
	}
	ix.removeStale(t, path)
	return m, nil
}

// removeStale deletes every index file in the tenant directory except keep.
func (ix *Indexer) removeStale(t *tenant, keep string) {
	matches, err := filepath.Glob(filepath.Join(t.dir, "index-*"))
	if err != nil {
		return
	}
	for _, p := range matches {
		if p == keep {
			continue
		}
		if err := os.RemoveAll(p); err != nil {
			ix.logger.Warn("stale index cleanup failed", "tenant", t.id, "path", p, "error", err)
		}
	}
}

// Delete removes the tenant's corpus: manifest, records and index files.
// Deleting a tenant without a corpus is not an error.
func (ix *Indexer) Delete(ctx context.Context, tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return ErrInvalidTenant
	}
	t := ix.tenant(tenantID)
	if !t.building.CompareAndSwap(false, true) {
		return ErrConcurrentRebuild
	}
	defer t.building.Store(false)

	unlock, err := ix.lockRebuild(t)
	if err != nil {
		return err
	}
	defer unlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := ix.store.DeleteAll(ctx, tenantID); err != nil {
		return fmt.Errorf("delete corpus %s: %w", tenantID, err)
	}
	if t.live != nil {
		_ = t.live.index.Close()
	}
	t.live, t.broken, t.loaded = nil, nil, true
	ix.removeStale(t, "")
	ix.logger.Info("corpus deleted", "tenant", tenantID)
	return nil
}

// Tenants returns the manifests of every tenant with a live corpus.
func (ix *Indexer) Tenants(ctx context.Context) ([]store.Manifest, error) {
	return ix.store.Tenants(ctx)
}

// Close releases loaded indexes. The store is owned by the caller.
func (ix *Indexer) Close() error {
	var errs []error
	ix.tenants.Range(func(_, v any) bool {
		t := v.(*tenant)
		t.mu.Lock()
		if t.live != nil {
			errs = append(errs, t.live.index.Close())
			t.live = nil
		}
		t.loaded = false
		t.mu.Unlock()
		return true
	})
	return errors.Join(errs...)
}

func (ix *Indexer) tenant(id string) *tenant {
	if v, ok := ix.tenants.Load(id); ok {
		return v.(*tenant)
	}
	v, _ := ix.tenants.LoadOrStore(id, &tenant{
		id:  id,
		dir: filepath.Join(ix.dataDir, "tenants", TenantKey(id)),
	})
	return v.(*tenant)
}

// lockRebuild takes the tenant's lock file so that two processes sharing a
// data directory never rebuild the same tenant at once.
func (ix *Indexer) lockRebuild(t *tenant) (func(), error) {
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create tenant dir: %w", err)
	}
	fl := flock.New(filepath.Join(t.dir, "rebuild.lock"))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock tenant %s: %w", t.id, err)
	}
	if !ok {
		return nil, ErrConcurrentRebuild
	}
	return func() { _ = fl.Unlock() }, nil
}

// TenantKey maps a tenant ID to a directory name that is safe on any
// filesystem and distinct for distinct IDs. The sanitized prefix is lossy, so
// the suffix carries 128 bits of the ID's SHA-256.
func TenantKey(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= 48 {
			break
		}
	}
	sum := sha256.Sum256([]byte(id))
	return b.String() + "-" + hex.EncodeToString(sum[:16])
}
