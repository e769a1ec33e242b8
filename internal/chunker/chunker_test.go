package chunker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coderag/internal/log"
	"coderag/internal/walker"
)

func numberedLines(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "line %d;\n", i)
	}
	return b.String()
}

func TestExtract_GenericWindows(t *testing.T) {
	e := New(nil, Options{}, log.Discard())

	res := e.Extract(context.Background(), "src/main.rs", []byte(numberedLines(45)))
	require.Equal(t, OutcomeChunks, res.Outcome)
	require.Len(t, res.Chunks, 3)

	file := res.Chunks[0]
	assert.Equal(t, KindFile, file.Kind)
	assert.Equal(t, "main.rs", file.Name)
	assert.Equal(t, "src/main.rs", file.FilePath)
	assert.Equal(t, 1, file.StartLine)
	assert.Equal(t, 45, file.EndLine)

	first, second := res.Chunks[1], res.Chunks[2]
	assert.Equal(t, KindBlock, first.Kind)
	assert.Equal(t, "block_0:L1-40", first.Name)
	assert.Equal(t, 1, first.StartLine)
	assert.Equal(t, 40, first.EndLine)
	assert.Equal(t, "block_1:L41-45", second.Name)
	assert.Equal(t, 41, second.StartLine)
	assert.Equal(t, 45, second.EndLine)
	assert.True(t, strings.HasPrefix(second.Source, "line 41;\n"))
	assert.True(t, strings.HasPrefix(second.EmbeddingText, "Code block from src/main.rs\nLines 41 to 45\nSnippet: line 41;"))
}

func TestExtract_ExactWindowMultiple(t *testing.T) {
	e := New(nil, Options{WindowLines: 10}, log.Discard())

	res := e.Extract(context.Background(), "a.c", []byte(numberedLines(20)))
	require.Len(t, res.Chunks, 3)
	assert.Equal(t, "block_1:L11-20", res.Chunks[2].Name)
}

func TestExtract_UnrecognisedExtensionOnlyFileChunk(t *testing.T) {
	e := New(nil, Options{}, log.Discard())

	res := e.Extract(context.Background(), "config/app.json", []byte(`{"a": 1}`))
	require.Equal(t, OutcomeChunks, res.Outcome)
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, "File: config/app.json\nSnippet: {\"a\": 1}", res.Chunks[0].EmbeddingText)
}

func TestExtract_EmptyFile(t *testing.T) {
	e := New(nil, Options{}, log.Discard())

	res := e.Extract(context.Background(), "empty.go", nil)
	require.Equal(t, OutcomeChunks, res.Outcome)
	require.Len(t, res.Chunks, 1)
	c := res.Chunks[0]
	assert.Equal(t, KindFile, c.Kind)
	assert.Empty(t, c.Source)
	assert.Equal(t, 1, c.EndLine)
	assert.Equal(t, "File: empty.go\nSnippet:", c.EmbeddingText)
}

func TestExtract_NonTextIsSkipped(t *testing.T) {
	e := New(nil, Options{}, log.Discard())

	for name, content := range map[string][]byte{
		"invalid-utf8": {0xff, 0xfe, 'a'},
		"nul-bytes":    []byte("abc\x00def"),
	} {
		t.Run(name, func(t *testing.T) {
			res := e.Extract(context.Background(), "blob.c", content)
			assert.Equal(t, OutcomeSkipped, res.Outcome)
			assert.Empty(t, res.Chunks)
			assert.NotEmpty(t, res.Reason)
		})
	}
}

func TestExtract_FileCaps(t *testing.T) {
	e := New(nil, Options{FileSourceLimit: 10, FileSnippetLimit: 4}, log.Discard())

	// "é" is two bytes; the cap must not split it.
	res := e.Extract(context.Background(), "notes.cfg", []byte("abcdefghié\nmore"))
	require.Len(t, res.Chunks, 1)
	c := res.Chunks[0]
	assert.Equal(t, "abcdefghi", c.Source)
	assert.Equal(t, "File: notes.cfg\nSnippet: abcd", c.EmbeddingText)
}

func TestExtractFile_ReadFailure(t *testing.T) {
	e := New(nil, Options{}, log.Discard())

	res := e.ExtractFile(context.Background(), walker.FileInfo{
		Path:    filepath.Join(t.TempDir(), "gone.py"),
		RelPath: "gone.py",
	})
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Empty(t, res.Chunks)
}

func TestExtractFile_ReadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.rb")
	require.NoError(t, os.WriteFile(path, []byte("puts 1\n"), 0o644))

	e := New(nil, Options{}, log.Discard())
	res := e.ExtractFile(context.Background(), walker.FileInfo{Path: path, RelPath: "x.rb", Size: 7})
	require.Equal(t, OutcomeChunks, res.Outcome)
	assert.Len(t, res.Chunks, 2)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héł", truncateRunes("héłło", 3))
	assert.Equal(t, "ab", truncateRunes("ab", 5))
	assert.Equal(t, "", truncateRunes("ab", 0))
}

func TestLiteralValue(t *testing.T) {
	tests := map[string]string{
		`"hello"`:         "hello",
		`'x'`:             "x",
		`f"name {x}"`:     "name {x}",
		`rb'raw'`:         "raw",
		"`tmpl`":          "tmpl",
		`"""doc\nline"""`: `doc\nline`,
		"42":              "42",
		"3.5":             "3.5",
	}
	for in, want := range tests {
		assert.Equal(t, want, literalValue(in), in)
	}
}

func TestSplitLines(t *testing.T) {
	assert.Nil(t, splitLines(""))
	assert.Equal(t, []string{"a\n", "b\n"}, splitLines("a\nb\n"))
	assert.Equal(t, []string{"a\n", "b"}, splitLines("a\nb"))
}
