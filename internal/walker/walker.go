// Package walker enumerates the candidate source files of a tree.
package walker

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"coderag/internal/log"
)

// IgnoreFile is an optional file in the tree root listing extra directory
// patterns to skip, one per line. It is read but never written.
const IgnoreFile = ".coderagignore"

// DefaultMaxFileSize is used when Rules.MaxFileSize is zero (1 MB).
const DefaultMaxFileSize = 1 << 20

// FileInfo holds metadata about a discovered source file.
type FileInfo struct {
	Path    string
	RelPath string
	Size    int64
}

// Rules controls which paths are skipped.
type Rules struct {
	// SkipDirs are directory names, path prefixes or globs.
	SkipDirs []string
	// SkipExts are lower-case extensions including the dot.
	SkipExts []string
	// MaxFileSize excludes larger files. Zero means DefaultMaxFileSize,
	// negative means unlimited.
	MaxFileSize int64
}

// Walker walks one tree. Create a new Walker per traversal so the error
// counter reflects a single run.
type Walker struct {
	rules    Rules
	skipExts map[string]bool
	logger   *slog.Logger
	errors   atomic.Int64
}

// New creates a walker for the given rules.
func New(rules Rules, logger *slog.Logger) *Walker {
	exts := make(map[string]bool, len(rules.SkipExts))
	for _, e := range rules.SkipExts {
		exts[strings.ToLower(e)] = true
	}
	if rules.MaxFileSize == 0 {
		rules.MaxFileSize = DefaultMaxFileSize
	}
	return &Walker{
		rules:    rules,
		skipExts: exts,
		logger:   log.OrDefault(logger),
	}
}

// Errors returns the number of subtree or entry errors absorbed so far.
func (w *Walker) Errors() int {
	return int(w.errors.Load())
}

// Walk traverses the directory tree rooted at root and sends eligible files on
// the returned channel in lexical order. The error channel only carries fatal
// errors: a missing or non-directory root, or context cancellation. Errors
// reading a subtree are logged and counted, and traversal continues with its
// siblings.
func (w *Walker) Walk(ctx context.Context, root string) (<-chan FileInfo, <-chan error) {
	files := make(chan FileInfo, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(files)
		defer close(errs)

		absRoot, err := filepath.Abs(root)
		if err != nil {
			errs <- err
			return
		}
		info, err := os.Stat(absRoot)
		if err != nil {
			errs <- fmt.Errorf("walk %s: %w", root, err)
			return
		}
		if !info.IsDir() {
			errs <- fmt.Errorf("walk %s: not a directory", root)
			return
		}

		ignores := append(append([]string(nil), w.rules.SkipDirs...), loadIgnorePatterns(absRoot)...)

		err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				w.errors.Add(1)
				w.logger.Warn("walk error", "path", path, "error", err)
				if d != nil && d.IsDir() && path != absRoot {
					return filepath.SkipDir
				}
				return nil
			}

			rel, _ := filepath.Rel(absRoot, path)
			rel = filepath.ToSlash(rel)

			if d.IsDir() {
				if path == absRoot {
					return nil
				}
				if matchesIgnore(d.Name(), rel, ignores) {
					return filepath.SkipDir
				}
				return nil
			}

			// Symlinks and other special files are never followed.
			if !d.Type().IsRegular() {
				return nil
			}

			if w.skipExts[strings.ToLower(filepath.Ext(path))] {
				return nil
			}

			fi, err := d.Info()
			if err != nil {
				w.errors.Add(1)
				w.logger.Warn("stat failed", "path", path, "error", err)
				return nil
			}
			if w.rules.MaxFileSize > 0 && fi.Size() > w.rules.MaxFileSize {
				w.logger.Debug("skipping large file", "path", rel, "size", fi.Size())
				return nil
			}

			select {
			case files <- FileInfo{Path: path, RelPath: rel, Size: fi.Size()}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
		if err != nil {
			errs <- err
		}
	}()

	return files, errs
}

// loadIgnorePatterns reads IgnoreFile from the tree root, if present.
func loadIgnorePatterns(root string) []string {
	f, err := os.Open(filepath.Join(root, IgnoreFile))
	if err != nil {
		return nil
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, strings.TrimSuffix(line, "/"))
	}
	return patterns
}

// matchesIgnore checks if a directory name or relative path matches any ignore pattern.
func matchesIgnore(name, relPath string, patterns []string) bool {
	for _, p := range patterns {
		// Exact directory name match (e.g. "node_modules", ".git").
		if name == p {
			return true
		}
		// Path prefix match on whole components (e.g. "third_party/vendor").
		if relPath == p || strings.HasPrefix(relPath, p+"/") {
			return true
		}
		if matched, _ := filepath.Match(p, relPath); matched {
			return true
		}
		if matched, _ := filepath.Match(p, name); matched {
			return true
		}
	}
	return false
}
