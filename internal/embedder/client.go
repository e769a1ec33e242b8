package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"coderag/internal/log"
)

// Options tunes a Client.
type Options struct {
	// BatchSize is the number of texts per provider call.
	BatchSize int
	// MaxConcurrent bounds in-flight provider calls across all callers of
	// the client.
	MaxConcurrent int
	Retry         RetryConfig
	// CacheSize is the number of single-text results kept. Zero disables
	// the cache.
	CacheSize int
}

// Client batches, rate limits, retries and normalizes embedding requests.
// One Client is shared by every tenant.
type Client struct {
	provider Provider
	opts     Options
	sem      *semaphore.Weighted
	cache    *lru.Cache[string, []float32]
	dim      atomic.Int64
	logger   *slog.Logger
}

// NewClient wraps a provider.
func NewClient(p Provider, opts Options, logger *slog.Logger) *Client {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	if opts.Retry.Multiplier <= 0 {
		opts.Retry.Multiplier = 2
	}
	c := &Client{
		provider: p,
		opts:     opts,
		sem:      semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		logger:   log.OrDefault(logger),
	}
	if opts.CacheSize > 0 {
		c.cache, _ = lru.New[string, []float32](opts.CacheSize)
	}
	return c
}

// Model returns the provider's model name.
func (c *Client) Model() string { return c.provider.Model() }

// Dimension returns the vector length seen so far, or 0 before the first
// successful call.
func (c *Client) Dimension() int { return int(c.dim.Load()) }

// Embed returns one vector per text, in input order. With normalize set each
// vector has unit L2 length, so inner product equals cosine similarity.
func (c *Client) Embed(ctx context.Context, texts []string, normalize bool) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var key string
	if c.cache != nil && len(texts) == 1 {
		key = c.cacheKey(texts[0], normalize)
		if v, ok := c.cache.Get(key); ok {
			return [][]float32{clone(v)}, nil
		}
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.MaxConcurrent)

	for start := 0; start < len(texts); start += c.opts.BatchSize {
		end := min(start+c.opts.BatchSize, len(texts))
		batch := texts[start:end]
		offset := start
		g.Go(func() error {
			if err := c.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer c.sem.Release(1)

			vecs, err := retryWithBackoff(gctx, c.opts.Retry, func() ([][]float32, error) {
				return c.provider.Embed(gctx, batch)
			})
			if err != nil {
				return err
			}
			if len(vecs) != len(batch) {
				return NewProviderError("embedding", 0,
					fmt.Sprintf("expected %d embeddings, got %d", len(batch), len(vecs)), errCountMismatch)
			}
			for i, v := range vecs {
				out[offset+i] = clone(v)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.logger.Error("embedding failed", "texts", len(texts), "model", c.Model(), "error", err)
		return nil, err
	}

	if err := c.checkDimension(out); err != nil {
		return nil, err
	}
	if normalize {
		for _, v := range out {
			Normalize(v)
		}
	}

	if key != "" {
		c.cache.Add(key, clone(out[0]))
	}
	return out, nil
}

func (c *Client) checkDimension(vecs [][]float32) error {
	want := len(vecs[0])
	if want == 0 {
		return fmt.Errorf("%w: provider returned an empty vector", ErrDimensionMismatch)
	}
	for i, v := range vecs {
		if len(v) != want {
			return fmt.Errorf("%w: vector %d has %d values, expected %d", ErrDimensionMismatch, i, len(v), want)
		}
	}
	if !c.dim.CompareAndSwap(0, int64(want)) {
		if have := c.dim.Load(); have != int64(want) {
			return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, want, have)
		}
	}
	return nil
}

func (c *Client) cacheKey(text string, normalize bool) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%t\x00%s", c.Model(), normalize, text)))
	return hex.EncodeToString(sum[:])
}

func clone(v []float32) []float32 {
	return append([]float32(nil), v...)
}
