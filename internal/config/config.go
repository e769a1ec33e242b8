// Package config loads coderag configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then an
// optional .env file, then CODERAG_* environment variables. Command-line flags
// are applied on top by the cmd package.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for all environment variables.
const EnvPrefix = "CODERAG"

// Config is the full application configuration.
type Config struct {
	// DataDir holds per-tenant index files and the default SQLite database.
	DataDir string `yaml:"data_dir" envconfig:"DATA_DIR"`
	// DBURL is sqlite:///path, a bare path, or postgres://...
	DBURL     string `yaml:"db_url" envconfig:"DB_URL"`
	LogLevel  string `yaml:"log_level" envconfig:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" envconfig:"LOG_FORMAT"`
	HTTPAddr  string `yaml:"http_addr" envconfig:"HTTP_ADDR"`

	Embedding EmbeddingConfig `yaml:"embedding" envconfig:"EMBEDDING"`
	Chat      ChatConfig      `yaml:"chat" envconfig:"CHAT"`
	Index     IndexConfig     `yaml:"index" envconfig:"INDEX"`
	Walk      WalkConfig      `yaml:"walk" envconfig:"WALK"`
	Chunking  ChunkingConfig  `yaml:"chunking" envconfig:"CHUNKING"`
	API       APIConfig       `yaml:"api" envconfig:"API"`
}

// APIConfig restricts what HTTP clients may ask the server to read.
type APIConfig struct {
	// AllowedRoots are the directories under which local ingest sources are
	// accepted. Empty means HTTP ingests may only name network git remotes.
	AllowedRoots []string `yaml:"allowed_roots" envconfig:"ALLOWED_ROOTS"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	// Provider is one of hash, ollama, openai.
	Provider string `yaml:"provider" envconfig:"PROVIDER"`
	BaseURL  string `yaml:"base_url" envconfig:"BASE_URL"`
	Model    string `yaml:"model" envconfig:"MODEL"`
	APIKey   string `yaml:"api_key" envconfig:"API_KEY"`
	// Dimension is only used by the hash provider.
	Dimension     int           `yaml:"dimension" envconfig:"DIMENSION"`
	BatchSize     int           `yaml:"batch_size" envconfig:"BATCH_SIZE"`
	MaxConcurrent int           `yaml:"max_concurrent" envconfig:"MAX_CONCURRENT"`
	MaxRetries    int           `yaml:"max_retries" envconfig:"MAX_RETRIES"`
	InitialDelay  time.Duration `yaml:"initial_delay" envconfig:"INITIAL_DELAY"`
	Timeout       time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	CacheSize     int           `yaml:"cache_size" envconfig:"CACHE_SIZE"`
}

// ChatConfig selects the answer generator.
type ChatConfig struct {
	// Provider is one of none, ollama, openai.
	Provider string        `yaml:"provider" envconfig:"PROVIDER"`
	BaseURL  string        `yaml:"base_url" envconfig:"BASE_URL"`
	Model    string        `yaml:"model" envconfig:"MODEL"`
	APIKey   string        `yaml:"api_key" envconfig:"API_KEY"`
	Timeout  time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

// IndexConfig tunes ingestion and retrieval.
type IndexConfig struct {
	// Backend is the vector index implementation: flat or sqlite-vec.
	Backend              string `yaml:"backend" envconfig:"BACKEND"`
	MaxConcurrentIngests int    `yaml:"max_concurrent_ingests" envconfig:"MAX_CONCURRENT_INGESTS"`
	Workers              int    `yaml:"workers" envconfig:"WORKERS"`
	TopK                 int    `yaml:"top_k" envconfig:"TOP_K"`
}

// WalkConfig holds the source walker skip rules.
type WalkConfig struct {
	SkipDirs    []string `yaml:"skip_dirs" envconfig:"SKIP_DIRS"`
	SkipExts    []string `yaml:"skip_exts" envconfig:"SKIP_EXTS"`
	MaxFileSize int64    `yaml:"max_file_size" envconfig:"MAX_FILE_SIZE"`
}

// ChunkingConfig holds the chunk extractor settings.
type ChunkingConfig struct {
	// Languages lists grammars used for structured parsing.
	Languages []string `yaml:"languages" envconfig:"LANGUAGES"`
	// GenericExts lists extensions split into fixed line windows.
	GenericExts        []string `yaml:"generic_exts" envconfig:"GENERIC_EXTS"`
	WindowLines        int      `yaml:"window_lines" envconfig:"WINDOW_LINES"`
	FileSourceLimit    int      `yaml:"file_source_limit" envconfig:"FILE_SOURCE_LIMIT"`
	FileSnippetLimit   int      `yaml:"file_snippet_limit" envconfig:"FILE_SNIPPET_LIMIT"`
	SymbolSnippetLimit int      `yaml:"symbol_snippet_limit" envconfig:"SYMBOL_SNIPPET_LIMIT"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel:  "INFO",
		LogFormat: "text",
		HTTPAddr:  "127.0.0.1:8080",
		Embedding: EmbeddingConfig{
			Provider:      "ollama",
			BaseURL:       "http://localhost:11434",
			Model:         "nomic-embed-text",
			Dimension:     384,
			BatchSize:     32,
			MaxConcurrent: 4,
			MaxRetries:    3,
			InitialDelay:  time.Second,
			Timeout:       2 * time.Minute,
			CacheSize:     1000,
		},
		Chat: ChatConfig{
			Provider: "ollama",
			BaseURL:  "http://localhost:11434",
			Model:    "qwen3:8b",
			Timeout:  5 * time.Minute,
		},
		Index: IndexConfig{
			Backend:              "flat",
			MaxConcurrentIngests: 2,
			Workers:              4,
			TopK:                 5,
		},
		Walk: WalkConfig{
			SkipDirs: []string{
				".git", ".svn", ".hg", "node_modules", "vendor", "__pycache__",
				".idea", ".vscode", "dist", "build",
			},
			SkipExts: []string{
				".txt", ".md", ".csv", ".png", ".jpg", ".jpeg", ".gif", ".pdf",
				".ipynb", ".svg", ".ico", ".zip", ".gz", ".tar", ".jar", ".exe",
				".dll", ".so", ".dylib", ".woff", ".woff2", ".ttf", ".mp3", ".mp4",
			},
			MaxFileSize: 1 << 20,
		},
		Chunking: ChunkingConfig{
			Languages: []string{"python", "go", "javascript", "typescript", "java"},
			GenericExts: []string{
				".js", ".jsx", ".ts", ".tsx", ".java", ".c", ".h", ".cpp", ".cc",
				".go", ".rs", ".php", ".rb", ".css", ".html", ".py",
			},
			WindowLines:        40,
			FileSourceLimit:    2000,
			FileSnippetLimit:   400,
			SymbolSnippetLimit: 250,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (optional when
// empty), the .env file at envPath (silently skipped when missing) and the
// environment.
func Load(path, envPath string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return Config{}, err
		}
	}

	if err := LoadDotEnv(envPath); err != nil {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment: %w", err)
	}

	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads a .env file. An empty path means ".env" in the working
// directory. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Normalize fills derived defaults (data dir, database URL) and cleans lists.
func (c Config) Normalize() Config {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		c.DataDir = filepath.Join(home, ".coderag")
	}
	if c.DBURL == "" {
		c.DBURL = DefaultDBURL(c.DataDir)
	}
	c.Walk.SkipExts = normalizeExts(c.Walk.SkipExts)
	c.Chunking.GenericExts = normalizeExts(c.Chunking.GenericExts)
	for i, l := range c.Chunking.Languages {
		c.Chunking.Languages[i] = strings.ToLower(strings.TrimSpace(l))
	}
	c.Embedding.Provider = strings.ToLower(c.Embedding.Provider)
	c.Chat.Provider = strings.ToLower(c.Chat.Provider)
	c.Index.Backend = strings.ToLower(c.Index.Backend)

	roots := make([]string, 0, len(c.API.AllowedRoots))
	for _, r := range c.API.AllowedRoots {
		if r = strings.TrimSpace(r); r != "" {
			roots = append(roots, filepath.Clean(r))
		}
	}
	c.API.AllowedRoots = roots
	return c
}

// DefaultDBURL is the SQLite database used when no URL is configured.
func DefaultDBURL(dataDir string) string {
	return "sqlite:///" + filepath.Join(dataDir, "coderag.db")
}

func normalizeExts(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

// Validation errors.
var (
	ErrInvalidProvider = errors.New("invalid provider")
	ErrInvalidBackend  = errors.New("invalid vector backend")
	ErrInvalidValue    = errors.New("invalid value")
)

// Validate checks for values the rest of the system cannot work with.
func (c Config) Validate() error {
	switch c.Embedding.Provider {
	case "hash", "ollama", "openai":
	default:
		return fmt.Errorf("%w: embedding provider %q", ErrInvalidProvider, c.Embedding.Provider)
	}
	switch c.Chat.Provider {
	case "none", "ollama", "openai":
	default:
		return fmt.Errorf("%w: chat provider %q", ErrInvalidProvider, c.Chat.Provider)
	}
	switch c.Index.Backend {
	case "flat", "sqlite-vec":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBackend, c.Index.Backend)
	}

	positive := []struct {
		name  string
		value int
	}{
		{"embedding.batch_size", c.Embedding.BatchSize},
		{"embedding.max_concurrent", c.Embedding.MaxConcurrent},
		{"index.max_concurrent_ingests", c.Index.MaxConcurrentIngests},
		{"index.workers", c.Index.Workers},
		{"index.top_k", c.Index.TopK},
		{"chunking.window_lines", c.Chunking.WindowLines},
		{"chunking.file_source_limit", c.Chunking.FileSourceLimit},
		{"chunking.file_snippet_limit", c.Chunking.FileSnippetLimit},
		{"chunking.symbol_snippet_limit", c.Chunking.SymbolSnippetLimit},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidValue, p.name, p.value)
		}
	}
	if c.Embedding.Provider == "hash" && c.Embedding.Dimension <= 0 {
		return fmt.Errorf("%w: embedding.dimension must be positive", ErrInvalidValue)
	}
	if c.Embedding.MaxRetries < 0 {
		return fmt.Errorf("%w: embedding.max_retries must not be negative", ErrInvalidValue)
	}
	return nil
}
