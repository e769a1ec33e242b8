package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coderag/internal/chunker"
	"coderag/internal/chunker/languages"
	"coderag/internal/embedder"
	"coderag/internal/log"
	"coderag/internal/store"
	"coderag/internal/vectorindex"
	"coderag/internal/walker"
)

const pythonSource = `def greet(who):
    print("hello", who)


class Greeter:
    def hello(self):
        greet("world")
`

// flakyEmbedder fails every call while fail is set.
type flakyEmbedder struct {
	Embedder
	fail atomic.Bool
}

func (f *flakyEmbedder) Embed(ctx context.Context, texts []string, normalize bool) ([][]float32, error) {
	if f.fail.Load() {
		return nil, embedder.NewProviderError("embed", 503, "backend down", nil)
	}
	return f.Embedder.Embed(ctx, texts, normalize)
}

// droppingStore loses the metadata of one position on fetch.
type droppingStore struct {
	store.Store
	drop int
}

func (s droppingStore) Fetch(ctx context.Context, tenantID string, positions []int) (map[int]store.Record, error) {
	m, err := s.Store.Fetch(ctx, tenantID, positions)
	delete(m, s.drop)
	return m, err
}

type fixture struct {
	ix      *Indexer
	deps    Deps
	store   store.Store
	emb     *flakyEmbedder
	dataDir string
}

func newFixture(t *testing.T, opts Options, customize ...func(*Deps)) *fixture {
	t.Helper()
	ctx := context.Background()
	dataDir := t.TempDir()

	st, err := store.OpenSQLite(ctx, filepath.Join(dataDir, "coderag.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	reg, err := languages.NewRegistry("python")
	require.NoError(t, err)

	emb := &flakyEmbedder{Embedder: embedder.NewClient(embedder.NewHashProvider(256), embedder.Options{}, log.Discard())}
	deps := Deps{
		Store:     st,
		Embedder:  emb,
		Backend:   vectorindex.Flat{},
		Extractor: chunker.New(reg, chunker.Options{GenericExts: []string{".rs", ".py"}}, log.Discard()),
		Rules:     walker.Rules{SkipDirs: []string{".git"}, SkipExts: []string{".md"}},
		DataDir:   dataDir,
		Logger:    log.Discard(),
	}
	for _, c := range customize {
		c(&deps)
	}

	ix, err := New(deps, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })
	return &fixture{ix: ix, deps: deps, store: st, emb: emb, dataDir: dataDir}
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func numberedLines(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "let line_%d = %d;\n", i, i)
	}
	return b.String()
}

func allPositions(n int) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return p
}

func indexFiles(t *testing.T, f *fixture, tenantID string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(f.dataDir, "tenants", TenantKey(tenantID), "index-*"))
	require.NoError(t, err)
	return matches
}

func TestIngest_PositionalInvariant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	root := writeTree(t, map[string]string{
		"app.py":     pythonSource,
		"src/lib.rs": numberedLines(45),
		"README.md":  "# skipped\n",
	})

	chunks, _, err := f.ix.extract(ctx, root, func(string, int, int) {})
	require.NoError(t, err)

	summary, err := f.ix.Ingest(ctx, "alice", root)
	require.NoError(t, err)
	require.Equal(t, len(chunks), summary.ChunkCount)
	assert.Equal(t, int64(1), summary.Generation)
	assert.Equal(t, 256, summary.Dimension)
	assert.Equal(t, 2, summary.Stats.FilesSeen)

	count, err := f.store.Count(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, summary.ChunkCount, count)

	tn := f.ix.tenant("alice")
	require.NotNil(t, tn.live)
	assert.Equal(t, summary.ChunkCount, tn.live.index.Len())

	records, err := f.store.Fetch(ctx, "alice", allPositions(count))
	require.NoError(t, err)
	require.Len(t, records, count)
	for i, c := range chunks {
		rec := records[i]
		assert.Equal(t, i, rec.ChunkIndex)
		assert.Equal(t, c.FilePath, rec.FileName, "position %d", i)
		assert.Equal(t, c.Name, rec.SymbolName, "position %d", i)
		assert.Equal(t, string(c.Kind), rec.Kind, "position %d", i)
		assert.Equal(t, c.StartLine, rec.StartLine, "position %d", i)
	}
}

func TestIngest_GenericFileScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	root := writeTree(t, map[string]string{"main.rs": numberedLines(45)})

	summary, err := f.ix.Ingest(ctx, "t", root)
	require.NoError(t, err)
	require.Equal(t, 3, summary.ChunkCount)

	records, err := f.store.Fetch(ctx, "t", allPositions(3))
	require.NoError(t, err)
	assert.Equal(t, "file", records[0].Kind)
	assert.Equal(t, [2]int{1, 40}, [2]int{records[1].StartLine, records[1].EndLine})
	assert.Equal(t, [2]int{41, 45}, [2]int{records[2].StartLine, records[2].EndLine})
}

func TestIngest_NativeLanguageScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	root := writeTree(t, map[string]string{"app.py": pythonSource})

	summary, err := f.ix.Ingest(ctx, "t", root)
	require.NoError(t, err)
	require.Equal(t, 4, summary.ChunkCount)

	records, err := f.store.Fetch(ctx, "t", allPositions(4))
	require.NoError(t, err)
	var names, kinds []string
	for i := 0; i < 4; i++ {
		names = append(names, records[i].SymbolName)
		kinds = append(kinds, records[i].Kind)
	}
	assert.Equal(t, []string{"app.py", "greet", "Greeter", "hello"}, names)
	assert.Equal(t, []string{"file", "function", "class", "method"}, kinds)
}

func TestIngest_ParseFailureKeepsFileChunk(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	root := writeTree(t, map[string]string{
		"broken.py": "def broken(:\n    pass\n",
		"ok.py":     pythonSource,
	})

	summary, err := f.ix.Ingest(ctx, "t", root)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Stats.ParseSkipped)

	records, err := f.store.Fetch(ctx, "t", allPositions(summary.ChunkCount))
	require.NoError(t, err)
	var found bool
	for _, r := range records {
		if r.FileName == "broken.py" && r.Kind == "file" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestIngest_RepeatLeavesOneCorpus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	root := writeTree(t, map[string]string{"app.py": pythonSource})

	first, err := f.ix.Ingest(ctx, "t", root)
	require.NoError(t, err)
	second, err := f.ix.Ingest(ctx, "t", root)
	require.NoError(t, err)

	assert.Equal(t, first.ChunkCount, second.ChunkCount)
	assert.Equal(t, int64(2), second.Generation)

	count, err := f.store.Count(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, second.ChunkCount, count)

	files := indexFiles(t, f, "t")
	require.Len(t, files, 1)
	assert.Equal(t, "index-2.gob", filepath.Base(files[0]))

	m, err := f.store.Manifest(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, files[0], m.IndexPath)
}

func TestIngest_EmptyTree(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	_, err := f.ix.Ingest(ctx, "t", writeTree(t, map[string]string{"notes.md": "# skipped\n"}))
	require.ErrorIs(t, err, ErrEmptyCorpus)

	_, err = f.store.Manifest(ctx, "t")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, StatusNotIndexed, f.ix.Search(ctx, "t", "anything", 5).Status)
}

func TestIngest_EmptyTreeKeepsPreviousCorpus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	_, err := f.ix.Ingest(ctx, "t", writeTree(t, map[string]string{"app.py": pythonSource}))
	require.NoError(t, err)

	_, err = f.ix.Ingest(ctx, "t", t.TempDir())
	require.ErrorIs(t, err, ErrEmptyCorpus)

	res := f.ix.Search(ctx, "t", "greet", 5)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, int64(1), res.Generation)
}

func TestIngest_EmbeddingFailureKeepsPreviousCorpus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	root := writeTree(t, map[string]string{"app.py": pythonSource})

	_, err := f.ix.Ingest(ctx, "t", root)
	require.NoError(t, err)

	f.emb.fail.Store(true)
	_, err = f.ix.Ingest(ctx, "t", root)
	require.ErrorIs(t, err, ErrEmbeddingService)
	var esErr *EmbeddingServiceError
	require.ErrorAs(t, err, &esErr)
	f.emb.fail.Store(false)

	res := f.ix.Search(ctx, "t", "greet the world", 5)
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, int64(1), res.Generation)
	assert.Len(t, res.Hits, 4)
	assert.Len(t, indexFiles(t, f, "t"), 1)
}

func TestIngest_EmbeddingFailureWithoutCorpus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.emb.fail.Store(true)

	_, err := f.ix.Ingest(ctx, "t", writeTree(t, map[string]string{"app.py": pythonSource}))
	require.ErrorIs(t, err, ErrEmbeddingService)
	f.emb.fail.Store(false)

	assert.Equal(t, StatusNotIndexed, f.ix.Search(ctx, "t", "greet", 5).Status)
	assert.Empty(t, indexFiles(t, f, "t"))
}

func TestIngest_CancelledKeepsPreviousCorpus(t *testing.T) {
	f := newFixture(t, Options{})
	root := writeTree(t, map[string]string{"app.py": pythonSource})
	_, err := f.ix.Ingest(context.Background(), "t", root)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.ix.Ingest(ctx, "t", root)
	require.ErrorIs(t, err, context.Canceled)

	res := f.ix.Search(context.Background(), "t", "greet", 5)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, int64(1), res.Generation)
}

func TestIngest_ConcurrentRebuildRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	root := writeTree(t, map[string]string{"app.py": pythonSource})

	tn := f.ix.tenant("t")
	tn.building.Store(true)
	_, err := f.ix.Ingest(ctx, "t", root)
	assert.ErrorIs(t, err, ErrConcurrentRebuild)
	tn.building.Store(false)

	// Another process holding the lock file.
	require.NoError(t, os.MkdirAll(tn.dir, 0o755))
	other := flock.New(filepath.Join(tn.dir, "rebuild.lock"))
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)

	_, err = f.ix.Ingest(ctx, "t", root)
	assert.ErrorIs(t, err, ErrConcurrentRebuild)
	require.NoError(t, other.Unlock())

	_, err = f.ix.Ingest(ctx, "t", root)
	assert.NoError(t, err)
}

func TestIngest_Busy(t *testing.T) {
	f := newFixture(t, Options{MaxConcurrentIngests: 1})
	require.True(t, f.ix.sem.TryAcquire(1))
	defer f.ix.sem.Release(1)

	_, err := f.ix.Ingest(context.Background(), "t", writeTree(t, map[string]string{"app.py": pythonSource}))
	assert.ErrorIs(t, err, ErrIngestBusy)
}

func TestReserve_HoldsSlotAndTenant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{MaxConcurrentIngests: 1})
	root := writeTree(t, map[string]string{"app.py": pythonSource})

	r, err := f.ix.Reserve("t")
	require.NoError(t, err)
	assert.Equal(t, "t", r.TenantID())

	// The pool is full while the reservation is held, before any work starts.
	_, err = f.ix.Reserve("other")
	assert.ErrorIs(t, err, ErrIngestBusy)
	_, err = f.ix.Ingest(ctx, "other", root)
	assert.ErrorIs(t, err, ErrIngestBusy)

	summary, err := r.Ingest(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Generation)

	r.Release()
	r.Release()
	_, err = r.Ingest(ctx, root)
	assert.ErrorIs(t, err, ErrReservationReleased)

	summary, err = f.ix.Ingest(ctx, "other", root)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Generation)
}

func TestReserve_ConflictReleasesSlot(t *testing.T) {
	f := newFixture(t, Options{MaxConcurrentIngests: 2})

	r, err := f.ix.Reserve("t")
	require.NoError(t, err)
	defer r.Release()

	_, err = f.ix.Reserve("t")
	assert.ErrorIs(t, err, ErrConcurrentRebuild)

	// The rejected reservation gave its slot back.
	other, err := f.ix.Reserve("other")
	require.NoError(t, err)
	other.Release()

	_, err = f.ix.Reserve(" ")
	assert.ErrorIs(t, err, ErrInvalidTenant)
}

func TestIngest_InvalidTenant(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.ix.Ingest(context.Background(), "  ", t.TempDir())
	assert.ErrorIs(t, err, ErrInvalidTenant)
}

func TestIngest_TenantsAreIndependent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{MaxConcurrentIngests: 2})
	rootA := writeTree(t, map[string]string{"app.py": pythonSource})
	rootB := writeTree(t, map[string]string{"main.rs": numberedLines(45)})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, root := range []string{rootA, rootB} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.ix.Ingest(ctx, fmt.Sprintf("tenant-%d", i), root)
		}()
	}
	wg.Wait()
	require.NoError(t, errors.Join(errs...))

	a := f.ix.Search(ctx, "tenant-0", "greet", 10)
	b := f.ix.Search(ctx, "tenant-1", "greet", 10)
	assert.Len(t, a.Hits, 4)
	assert.Len(t, b.Hits, 3)
	for _, h := range b.Hits {
		assert.Equal(t, "main.rs", h.Record.FileName)
	}
}

func TestIngest_Progress(t *testing.T) {
	f := newFixture(t, Options{})
	root := writeTree(t, map[string]string{"a.py": pythonSource, "b.rs": "fn main() {}\n"})

	stages := make(map[string]int)
	_, err := f.ix.Ingest(context.Background(), "t", root, WithProgress(func(stage string, done, total int) {
		stages[stage]++
		assert.LessOrEqual(t, done, total)
	}))
	require.NoError(t, err)
	assert.Equal(t, 2, stages[StageExtract])
	assert.Equal(t, 2, stages[StageEmbed])
	assert.Equal(t, 2, stages[StagePublish])
}

func TestSearch_NotIndexed(t *testing.T) {
	f := newFixture(t, Options{})
	res := f.ix.Search(context.Background(), "nobody", "where is main", 5)
	assert.Equal(t, StatusNotIndexed, res.Status)
	assert.Empty(t, res.Hits)
}

func TestSearch_KLargerThanCorpus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	_, err := f.ix.Ingest(ctx, "t", writeTree(t, map[string]string{"main.rs": numberedLines(45)}))
	require.NoError(t, err)

	res := f.ix.Search(ctx, "t", "line_42", 50)
	require.Equal(t, StatusOK, res.Status)
	require.Len(t, res.Hits, 3)

	seen := make(map[int]bool)
	for i, h := range res.Hits {
		assert.Equal(t, i+1, h.Rank)
		seen[h.Position] = true
		if i > 0 {
			assert.GreaterOrEqual(t, res.Hits[i-1].Score, h.Score)
		}
	}
	assert.Len(t, seen, 3)
}

func TestSearch_DefaultTopK(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{DefaultTopK: 2})
	_, err := f.ix.Ingest(ctx, "t", writeTree(t, map[string]string{"app.py": pythonSource}))
	require.NoError(t, err)

	assert.Len(t, f.ix.Search(ctx, "t", "greet", 0).Hits, 2)
}

func TestSearch_SelfRetrieval(t *testing.T) {
	for _, backend := range []vectorindex.Backend{vectorindex.Flat{}, vectorindex.SQLiteVec{}} {
		t.Run(backend.Name(), func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, Options{}, func(d *Deps) { d.Backend = backend })
			root := writeTree(t, map[string]string{
				"app.py":  pythonSource,
				"main.rs": numberedLines(45),
			})

			chunks, _, err := f.ix.extract(ctx, root, func(string, int, int) {})
			require.NoError(t, err)
			_, err = f.ix.Ingest(ctx, "t", root)
			require.NoError(t, err)

			for i, c := range chunks {
				res := f.ix.Search(ctx, "t", c.EmbeddingText, 3)
				require.Equal(t, StatusOK, res.Status)
				require.NotEmpty(t, res.Hits)
				assert.Equal(t, i, res.Hits[0].Position, "chunk %q", c.Name)
				assert.Equal(t, c.Name, res.Hits[0].Record.SymbolName)
			}
		})
	}
}

func TestSearch_ConsistencyViolationDropsHit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{}, func(d *Deps) { d.Store = droppingStore{Store: d.Store, drop: 0} })
	_, err := f.ix.Ingest(ctx, "t", writeTree(t, map[string]string{"app.py": pythonSource}))
	require.NoError(t, err)

	res := f.ix.Search(ctx, "t", "greet", 10)
	require.Equal(t, StatusOK, res.Status)
	assert.Len(t, res.Hits, 3)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "position 0")
	for i, h := range res.Hits {
		assert.Equal(t, i+1, h.Rank)
		assert.NotEqual(t, 0, h.Position)
	}
}

func TestSearch_CorruptIndexRequiresRebuild(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	root := writeTree(t, map[string]string{"app.py": pythonSource})
	_, err := f.ix.Ingest(ctx, "t", root)
	require.NoError(t, err)

	m, err := f.store.Manifest(ctx, "t")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(m.IndexPath, []byte("garbage"), 0o644))

	// A fresh process loads lazily from the manifest.
	ix2, err := New(f.deps, Options{})
	require.NoError(t, err)
	defer ix2.Close()

	res := ix2.Search(ctx, "t", "greet", 5)
	assert.Equal(t, StatusRebuildRequired, res.Status)
	assert.Empty(t, res.Hits)

	_, err = ix2.Ingest(ctx, "t", root)
	require.NoError(t, err)
	res = ix2.Search(ctx, "t", "greet", 5)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, int64(2), res.Generation)
}

func TestSearch_LazyLoad(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	_, err := f.ix.Ingest(ctx, "t", writeTree(t, map[string]string{"app.py": pythonSource}))
	require.NoError(t, err)

	ix2, err := New(f.deps, Options{})
	require.NoError(t, err)
	defer ix2.Close()

	res := ix2.Search(ctx, "t", "greet", 5)
	assert.Equal(t, StatusOK, res.Status)
	assert.Len(t, res.Hits, 4)
}

func TestSearch_EmbeddingUnavailable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	_, err := f.ix.Ingest(ctx, "t", writeTree(t, map[string]string{"app.py": pythonSource}))
	require.NoError(t, err)

	f.emb.fail.Store(true)
	res := f.ix.Search(ctx, "t", "a question nobody cached", 5)
	assert.Equal(t, StatusUnavailable, res.Status)
	assert.NotEmpty(t, res.Reason)
}

func TestSearch_DuringRebuild(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	root := writeTree(t, map[string]string{"app.py": pythonSource, "main.rs": numberedLines(45)})
	first, err := f.ix.Ingest(ctx, "t", root)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			_, _ = f.ix.Ingest(ctx, "t", root)
		}
	}()

	for {
		select {
		case <-done:
			return
		default:
		}
		res := f.ix.Search(ctx, "t", "greet", 100)
		require.Equal(t, StatusOK, res.Status)
		require.Len(t, res.Hits, first.ChunkCount)
		require.Empty(t, res.Warnings)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	_, err := f.ix.Ingest(ctx, "t", writeTree(t, map[string]string{"app.py": pythonSource}))
	require.NoError(t, err)

	tenants, err := f.ix.Tenants(ctx)
	require.NoError(t, err)
	require.Len(t, tenants, 1)

	require.NoError(t, f.ix.Delete(ctx, "t"))
	assert.Equal(t, StatusNotIndexed, f.ix.Search(ctx, "t", "greet", 5).Status)
	assert.Empty(t, indexFiles(t, f, "t"))

	tenants, err = f.ix.Tenants(ctx)
	require.NoError(t, err)
	assert.Empty(t, tenants)

	assert.NoError(t, f.ix.Delete(ctx, "t"))
}

func TestTenantKey(t *testing.T) {
	a := TenantKey("alice@example.com")
	assert.True(t, strings.HasPrefix(a, "alice_example.com-"))
	assert.NotEqual(t, TenantKey("a/b"), TenantKey("a_b"))
	assert.Equal(t, a, TenantKey("alice@example.com"))
	assert.NotContains(t, TenantKey("../../etc"), "/")
	assert.LessOrEqual(t, len(TenantKey(strings.Repeat("x", 500))), 48+1+32)
}

func TestTenantKey_SuffixIsWideDigest(t *testing.T) {
	sum := sha256.Sum256([]byte("a/b"))
	key := TenantKey("a/b")
	assert.Equal(t, "a_b-"+hex.EncodeToString(sum[:16]), key)

	// Every ID below sanitizes to the same prefix; only the digest tells them apart.
	seen := make(map[string]string)
	for i := 0; i < 5000; i++ {
		id := fmt.Sprintf("team/%d", i)
		id = strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return '!' + r - '0'
			}
			return r
		}, id)
		k := TenantKey(id)
		suffix := k[strings.LastIndexByte(k, '-')+1:]
		require.Len(t, suffix, 32)
		prev, dup := seen[k]
		require.False(t, dup, "%q and %q share key %q", prev, id, k)
		seen[k] = id
	}
}
