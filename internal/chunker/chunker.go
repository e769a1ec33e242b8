// Package chunker turns source files into typed, addressable chunks.
//
// Every readable text file yields a file-level chunk. Files with a registered
// grammar are parsed with tree-sitter and yield one chunk per function,
// method and class definition. Files with a recognised source extension but
// no grammar, or whose parse fails, are split into fixed line windows.
package chunker

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"coderag/internal/log"
	"coderag/internal/walker"
)

// Kind is the variant of a chunk.
type Kind string

// Chunk kinds.
const (
	KindFile     Kind = "file"
	KindClass    Kind = "class"
	KindFunction Kind = "function"
	KindMethod   Kind = "method"
	KindBlock    Kind = "block"
)

// Chunk is the unit of retrieval.
type Chunk struct {
	Kind Kind
	Name string
	// EnclosingClass is only set for KindMethod.
	EnclosingClass string
	// FilePath is slash separated and relative to the tree root.
	FilePath string
	// StartLine and EndLine are 1-based and inclusive.
	StartLine int
	EndLine   int
	Language  string
	// Source is the verbatim code of the span, capped for file chunks.
	Source string
	// EmbeddingText is the summary fed to the embedding function. Never empty.
	EmbeddingText string

	Params  []string
	Methods []string
	Calls   []string
	Vars    []string
	Consts  []string
}

// Outcome distinguishes extraction results.
type Outcome int

// Extraction outcomes.
const (
	// OutcomeChunks means the file produced chunks.
	OutcomeChunks Outcome = iota
	// OutcomeSkipped means the file is not text and produced nothing.
	OutcomeSkipped
	// OutcomeFailed means the file could not be read.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeChunks:
		return "chunks"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the outcome of extracting one file.
type Result struct {
	Outcome Outcome
	Chunks  []Chunk
	Reason  string
	// ParseSkipped is set when a grammar exists for the file but the
	// structured pass failed and line windows were used instead.
	ParseSkipped bool
}

// Options bounds chunk sizes and selects the generic fallback.
type Options struct {
	// GenericExts are extensions split into line windows when no grammar
	// applies.
	GenericExts        []string
	WindowLines        int
	FileSourceLimit    int
	FileSnippetLimit   int
	SymbolSnippetLimit int
}

// DefaultOptions returns the stock limits.
func DefaultOptions() Options {
	return Options{
		GenericExts: []string{
			".js", ".jsx", ".ts", ".tsx", ".java", ".c", ".h", ".cpp", ".cc",
			".go", ".rs", ".php", ".rb", ".css", ".html", ".py",
		},
		WindowLines:        40,
		FileSourceLimit:    2000,
		FileSnippetLimit:   400,
		SymbolSnippetLimit: 250,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.GenericExts == nil {
		o.GenericExts = d.GenericExts
	}
	if o.WindowLines <= 0 {
		o.WindowLines = d.WindowLines
	}
	if o.FileSourceLimit <= 0 {
		o.FileSourceLimit = d.FileSourceLimit
	}
	if o.FileSnippetLimit <= 0 {
		o.FileSnippetLimit = d.FileSnippetLimit
	}
	if o.SymbolSnippetLimit <= 0 {
		o.SymbolSnippetLimit = d.SymbolSnippetLimit
	}
	return o
}

// Extractor maps file contents to chunks. It is safe for concurrent use.
type Extractor struct {
	registry *Registry
	opts     Options
	generic  map[string]bool
	logger   *slog.Logger
}

// New creates an extractor. A nil registry disables the structured pass.
func New(registry *Registry, opts Options, logger *slog.Logger) *Extractor {
	if registry == nil {
		registry = NewRegistry()
	}
	opts = opts.withDefaults()
	generic := make(map[string]bool, len(opts.GenericExts))
	for _, ext := range opts.GenericExts {
		generic[strings.ToLower(ext)] = true
	}
	return &Extractor{
		registry: registry,
		opts:     opts,
		generic:  generic,
		logger:   log.OrDefault(logger),
	}
}

// ExtractFile reads a walked file and extracts its chunks.
func (e *Extractor) ExtractFile(ctx context.Context, f walker.FileInfo) Result {
	content, err := os.ReadFile(f.Path)
	if err != nil {
		e.logger.Warn("read failed", "path", f.RelPath, "error", err)
		return Result{Outcome: OutcomeFailed, Reason: err.Error()}
	}
	return e.Extract(ctx, f.RelPath, content)
}

// Extract maps one file's bytes to chunks. The file-level chunk always comes
// first, followed by definitions in source order or by line windows.
func (e *Extractor) Extract(ctx context.Context, relPath string, content []byte) Result {
	if !utf8.Valid(content) || bytes.IndexByte(content, 0) >= 0 {
		e.logger.Debug("skipping non-text file", "path", relPath)
		return Result{Outcome: OutcomeSkipped, Reason: "not valid UTF-8 text"}
	}

	text := string(content)
	lines := splitLines(text)
	chunks := []Chunk{e.fileChunk(relPath, text, len(lines))}

	res := Result{Outcome: OutcomeChunks}
	ext := strings.ToLower(filepath.Ext(relPath))

	if g := e.registry.Lookup(relPath); g != nil {
		structured, err := e.extractStructured(ctx, g, relPath, content)
		if err == nil {
			res.Chunks = append(chunks, structured...)
			return res
		}
		e.logger.Debug("structured parse skipped", "path", relPath, "language", g.Name, "error", err)
		res.ParseSkipped = true
		res.Reason = err.Error()
		res.Chunks = append(chunks, e.windows(relPath, lines)...)
		return res
	}

	if e.generic[ext] {
		chunks = append(chunks, e.windows(relPath, lines)...)
	}
	res.Chunks = chunks
	return res
}

func (e *Extractor) fileChunk(relPath, text string, lineCount int) Chunk {
	snippet := oneLine(truncateBytes(text, e.opts.FileSnippetLimit))
	return Chunk{
		Kind:          KindFile,
		Name:          filepath.Base(relPath),
		FilePath:      relPath,
		StartLine:     1,
		EndLine:       max(lineCount, 1),
		Language:      e.languageOf(relPath),
		Source:        truncateBytes(text, e.opts.FileSourceLimit),
		EmbeddingText: strings.TrimSpace(fmt.Sprintf("File: %s\nSnippet: %s", relPath, snippet)),
	}
}

// windows splits lines into contiguous blocks of WindowLines lines.
func (e *Extractor) windows(relPath string, lines []string) []Chunk {
	size := e.opts.WindowLines
	lang := e.languageOf(relPath)
	var chunks []Chunk
	for i := 0; i < len(lines); i += size {
		end := min(i+size, len(lines))
		code := strings.Join(lines[i:end], "")
		start, last := i+1, end
		snippet := oneLine(truncateRunes(code, e.opts.SymbolSnippetLimit))
		chunks = append(chunks, Chunk{
			Kind:      KindBlock,
			Name:      fmt.Sprintf("block_%d:L%d-%d", i/size, start, last),
			FilePath:  relPath,
			StartLine: start,
			EndLine:   last,
			Language:  lang,
			Source:    code,
			EmbeddingText: strings.TrimSpace(fmt.Sprintf(
				"Code block from %s\nLines %d to %d\nSnippet: %s", relPath, start, last, snippet)),
		})
	}
	return chunks
}

func (e *Extractor) languageOf(relPath string) string {
	if g := e.registry.Lookup(relPath); g != nil {
		return g.Name
	}
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(relPath)), ".")
}

// splitLines splits text into lines that keep their terminators. A trailing
// newline does not start an extra empty line.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// truncateBytes returns at most n bytes of s, cut at a rune boundary.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// truncateRunes returns at most n runes of s.
func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func oneLine(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", " "), "\n", " ")
}
