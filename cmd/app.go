package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"coderag/internal/chunker"
	"coderag/internal/chunker/languages"
	"coderag/internal/config"
	"coderag/internal/embedder"
	"coderag/internal/index"
	"coderag/internal/llm"
	"coderag/internal/rag"
	"coderag/internal/source"
	"coderag/internal/store"
	"coderag/internal/vectorindex"
	"coderag/internal/walker"
)

var errNoGenerator = errors.New("no answer generator configured (set --chat-provider)")

// app holds the components shared by every command.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	store   store.Store
	indexer *index.Indexer
}

func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return newApp(cmd.Context(), cfg, slog.Default())
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	backend, err := vectorindex.ForName(cfg.Index.Backend)
	if err != nil {
		return nil, err
	}
	extractor, err := newExtractor(cfg.Chunking, logger)
	if err != nil {
		return nil, err
	}
	emb, err := newEmbedder(cfg.Embedding, logger)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}

	ix, err := index.New(index.Deps{
		Store:     st,
		Embedder:  emb,
		Backend:   backend,
		Extractor: extractor,
		Rules: walker.Rules{
			SkipDirs:    cfg.Walk.SkipDirs,
			SkipExts:    cfg.Walk.SkipExts,
			MaxFileSize: cfg.Walk.MaxFileSize,
		},
		DataDir: cfg.DataDir,
		Logger:  logger,
	}, index.Options{
		MaxConcurrentIngests: cfg.Index.MaxConcurrentIngests,
		Workers:              cfg.Index.Workers,
		DefaultTopK:          cfg.Index.TopK,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, store: st, indexer: ix}, nil
}

func (a *app) Close() error {
	return errors.Join(a.indexer.Close(), a.store.Close())
}

func (a *app) sources() *source.Sources {
	return source.NewSources(filepath.Join(a.cfg.DataDir, "clones"), a.logger)
}

// answerer returns errNoGenerator when the chat provider is "none".
func (a *app) answerer() (*rag.Answerer, error) {
	g, err := newGenerator(a.cfg.Chat)
	if err != nil {
		return nil, err
	}
	return rag.NewAnswerer(a.indexer, g), nil
}

func newExtractor(cfg config.ChunkingConfig, logger *slog.Logger) (*chunker.Extractor, error) {
	reg, err := languages.NewRegistry(cfg.Languages...)
	if err != nil {
		return nil, err
	}
	return chunker.New(reg, chunker.Options{
		GenericExts:        cfg.GenericExts,
		WindowLines:        cfg.WindowLines,
		FileSourceLimit:    cfg.FileSourceLimit,
		FileSnippetLimit:   cfg.FileSnippetLimit,
		SymbolSnippetLimit: cfg.SymbolSnippetLimit,
	}, logger), nil
}

func newEmbedder(cfg config.EmbeddingConfig, logger *slog.Logger) (*embedder.Client, error) {
	var p embedder.Provider
	switch cfg.Provider {
	case "hash":
		p = embedder.NewHashProvider(cfg.Dimension)
	case "ollama":
		p = embedder.NewOllamaProvider(cfg.BaseURL, cfg.Model, cfg.Timeout)
	case "openai":
		p = embedder.NewOpenAIProvider(embedder.OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("%w: embedding provider %q", config.ErrInvalidProvider, cfg.Provider)
	}

	retry := embedder.DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries
	if cfg.InitialDelay > 0 {
		retry.BaseDelay = cfg.InitialDelay
	}
	return embedder.NewClient(p, embedder.Options{
		BatchSize:     cfg.BatchSize,
		MaxConcurrent: cfg.MaxConcurrent,
		Retry:         retry,
		CacheSize:     cfg.CacheSize,
	}, logger), nil
}

func newGenerator(cfg config.ChatConfig) (rag.Generator, error) {
	switch cfg.Provider {
	case "ollama":
		return llm.NewOllamaChat(cfg.BaseURL, cfg.Model, cfg.Timeout), nil
	case "openai":
		return llm.NewOpenAIChat(llm.OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}), nil
	case "none", "":
		return nil, errNoGenerator
	default:
		return nil, fmt.Errorf("%w: chat provider %q", config.ErrInvalidProvider, cfg.Provider)
	}
}
