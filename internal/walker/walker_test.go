package walker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coderag/internal/log"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func collect(t *testing.T, w *Walker, root string) ([]string, error) {
	t.Helper()
	files, errs := w.Walk(context.Background(), root)
	var got []string
	for f := range files {
		got = append(got, f.RelPath)
	}
	return got, <-errs
}

func defaultRules() Rules {
	return Rules{
		SkipDirs: []string{".git", "node_modules", "__pycache__"},
		SkipExts: []string{".md", ".png"},
	}
}

func TestWalk_SkipRules(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.py", "print(1)\n")
	writeFile(t, root, "README.md", "# readme\n")
	writeFile(t, root, "logo.PNG", "binary")
	writeFile(t, root, ".git/config", "[core]\n")
	writeFile(t, root, "node_modules/lib/index.js", "module.exports = 1\n")
	writeFile(t, root, "pkg/__pycache__/x.pyc", "junk")
	writeFile(t, root, "pkg/util.go", "package pkg\n")
	writeFile(t, root, "pkg/empty.rs", "")

	got, err := collect(t, New(defaultRules(), log.Discard()), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"main.py", "pkg/empty.rs", "pkg/util.go"}, got)
}

func TestWalk_StableOrder(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"b.go", "a.go", "c/d.go", "c/a.go"} {
		writeFile(t, root, name, "package x\n")
	}

	first, err := collect(t, New(defaultRules(), log.Discard()), root)
	require.NoError(t, err)
	second, err := collect(t, New(defaultRules(), log.Discard()), root)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.go", "b.go", "c/a.go", "c/d.go"}, first)
	assert.Equal(t, first, second)
}

func TestWalk_IgnoreFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, IgnoreFile, "# generated code\ngen/\nthird_party/*\n")
	writeFile(t, root, "gen/api.go", "package gen\n")
	writeFile(t, root, "third_party/x/y.go", "package y\n")
	writeFile(t, root, "app.go", "package app\n")

	got, err := collect(t, New(defaultRules(), log.Discard()), root)
	require.NoError(t, err)
	// The ignore file itself has no skipped extension, so it is a candidate.
	assert.Equal(t, []string{IgnoreFile, "app.go"}, got)
}

func TestWalk_DoesNotWriteIntoTree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")

	_, err := collect(t, New(defaultRules(), log.Discard()), root)
	require.NoError(t, err)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.go", entries[0].Name())
}

func TestWalk_MaxFileSize(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "small.go", "package a\n")
	writeFile(t, root, "big.go", string(make([]byte, 2048)))

	rules := defaultRules()
	rules.MaxFileSize = 1024
	got, err := collect(t, New(rules, log.Discard()), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"small.go"}, got)
}

func TestWalk_SkipsSymlinks(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "real.go", "package a\n")
	if err := os.Symlink(filepath.Join(root, "real.go"), filepath.Join(root, "link.go")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	got, err := collect(t, New(defaultRules(), log.Discard()), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"real.go"}, got)
}

func TestWalk_MissingRoot(t *testing.T) {
	got, err := collect(t, New(defaultRules(), log.Discard()), filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Empty(t, got)
}

func TestWalk_RootIsFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")

	_, err := collect(t, New(defaultRules(), log.Discard()), filepath.Join(root, "a.go"))
	require.Error(t, err)
}

func TestWalk_UnreadableSubtreeIsCounted(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	root := t.TempDir()
	writeFile(t, root, "locked/secret.go", "package s\n")
	writeFile(t, root, "open/ok.go", "package o\n")
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	w := New(defaultRules(), log.Discard())
	got, err := collect(t, w, root)
	require.NoError(t, err)
	assert.Equal(t, []string{"open/ok.go"}, got)
	assert.Equal(t, 1, w.Errors())
}

func TestWalk_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	files, errs := New(defaultRules(), log.Discard()).Walk(ctx, root)
	for range files {
	}
	assert.ErrorIs(t, <-errs, context.Canceled)
}

func TestMatchesIgnore(t *testing.T) {
	patterns := []string{"vendor", "third_party/gen", "*.egg-info"}
	assert.True(t, matchesIgnore("vendor", "x/vendor", patterns))
	assert.True(t, matchesIgnore("gen", "third_party/gen", patterns))
	assert.True(t, matchesIgnore("pkg.egg-info", "pkg.egg-info", patterns))
	assert.False(t, matchesIgnore("generator", "third_party/generator", patterns))
	assert.False(t, matchesIgnore("src", "src", patterns))
}
