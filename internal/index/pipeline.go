package index

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"coderag/internal/chunker"
	"coderag/internal/walker"
)

// Stats reports what one ingest saw in the source tree.
type Stats struct {
	FilesSeen    int `json:"files_seen"`
	FilesChunked int `json:"files_chunked"`
	FilesSkipped int `json:"files_skipped"`
	FilesFailed  int `json:"files_failed"`
	// ParseSkipped counts files whose structured parse failed and fell back
	// to line windows.
	ParseSkipped int `json:"parse_skipped"`
	WalkErrors   int `json:"walk_errors"`
	Chunks       int `json:"chunks"`
}

// ProgressFunc receives ingest progress. Calls are serialized. During
// extraction total grows as the walk discovers files.
type ProgressFunc func(stage string, done, total int)

// Progress stages.
const (
	StageExtract = "Extracting chunks"
	StageEmbed   = "Embedding chunks"
	StagePublish = "Publishing index"
)

// extract walks root and runs the extractor on every file with a bounded
// worker pool. Chunks are returned in walk order regardless of which worker
// finished first, so positions are reproducible for the same tree.
func (ix *Indexer) extract(ctx context.Context, root string, progress ProgressFunc) ([]chunker.Chunk, Stats, error) {
	var stats Stats

	w := walker.New(ix.rules, ix.logger)
	files, walkErrs := w.Walk(ctx, root)

	var (
		mu      sync.Mutex
		results []chunker.Result
		done    int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.opts.Workers)

	for f := range files {
		mu.Lock()
		seq := len(results)
		results = append(results, chunker.Result{})
		mu.Unlock()

		g.Go(func() error {
			res := ix.extractor.ExtractFile(gctx, f)
			mu.Lock()
			results[seq] = res
			done++
			progress(StageExtract, done, len(results))
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := <-walkErrs; err != nil {
		return nil, stats, fmt.Errorf("walk %s: %w", root, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}

	stats.WalkErrors = w.Errors()
	var chunks []chunker.Chunk
	for _, res := range results {
		stats.FilesSeen++
		switch res.Outcome {
		case chunker.OutcomeChunks:
			stats.FilesChunked++
			if res.ParseSkipped {
				stats.ParseSkipped++
			}
			chunks = append(chunks, res.Chunks...)
		case chunker.OutcomeSkipped:
			stats.FilesSkipped++
		case chunker.OutcomeFailed:
			stats.FilesFailed++
		}
	}
	stats.Chunks = len(chunks)
	return chunks, stats, nil
}
