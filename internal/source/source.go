// Package source materializes source trees on local disk for ingestion.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	gogit "github.com/go-git/go-git/v5"

	"coderag/internal/log"
)

var (
	// ErrNotDirectory means a local reference is not a directory.
	ErrNotDirectory = errors.New("source is not a directory")
	// ErrNotAllowed means a Policy rejected the reference.
	ErrNotAllowed = errors.New("source not allowed")
)

// Tree is a source tree on local disk. Cleanup must be called once the tree
// is no longer needed; it is safe to call more than once.
type Tree struct {
	Root    string
	Remote  bool
	Cleanup func() error
}

// Provider materializes a reference into a local tree.
type Provider interface {
	Materialize(ctx context.Context, ref string) (*Tree, error)
}

// LocalProvider serves directories that already exist. It never modifies or
// removes them.
type LocalProvider struct{}

// Materialize resolves ref to an absolute directory.
func (LocalProvider) Materialize(_ context.Context, ref string) (*Tree, error) {
	root, err := filepath.Abs(ref)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", ref, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", ref, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, ref)
	}
	return &Tree{Root: root, Cleanup: func() error { return nil }}, nil
}

// GitProvider shallow-clones remote repositories into a work directory.
type GitProvider struct {
	workDir string
	depth   int
	logger  *slog.Logger
}

// NewGitProvider creates a provider that clones under workDir.
func NewGitProvider(workDir string, logger *slog.Logger) *GitProvider {
	return &GitProvider{workDir: workDir, depth: 1, logger: log.OrDefault(logger)}
}

// Materialize clones url into a fresh temporary directory. On failure the
// partial clone is removed before returning.
func (g *GitProvider) Materialize(ctx context.Context, url string) (*Tree, error) {
	if err := os.MkdirAll(g.workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create clone dir: %w", err)
	}
	dir, err := os.MkdirTemp(g.workDir, "clone-*")
	if err != nil {
		return nil, fmt.Errorf("create clone dir: %w", err)
	}

	g.logger.Info("cloning repository", slog.String("uri", url), slog.String("path", dir))
	_, err = gogit.PlainCloneContext(ctx, dir, false, &gogit.CloneOptions{
		URL:          url,
		Depth:        g.depth,
		SingleBranch: true,
		Tags:         gogit.NoTags,
	})
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("clone repository: %w", err)
	}

	var cleaned bool
	return &Tree{
		Root:   dir,
		Remote: true,
		Cleanup: func() error {
			if cleaned {
				return nil
			}
			cleaned = true
			return os.RemoveAll(dir)
		},
	}, nil
}

// IsRemote reports whether ref names a git remote rather than a local path.
func IsRemote(ref string) bool {
	for _, prefix := range []string{"http://", "https://", "ssh://", "git://", "file://", "git@"} {
		if strings.HasPrefix(ref, prefix) {
			return true
		}
	}
	if strings.HasSuffix(ref, ".git") {
		if info, err := os.Stat(ref); err == nil && info.IsDir() {
			return false
		}
		return true
	}
	return false
}

// networkSchemes are remotes fetched over the network rather than read from
// the local filesystem.
var networkSchemes = []string{"http://", "https://", "ssh://", "git://", "git@"}

// Policy restricts the references a remote caller may ingest. Network git
// remotes are always admitted. Local paths and file:// URLs must resolve,
// after following symlinks, to a path under one of Roots. The zero Policy
// admits no local sources.
type Policy struct {
	Roots []string
}

// Check returns nil when ref may be materialized, an error wrapping
// ErrNotAllowed when it falls outside the roots, and the filesystem error
// when a local path cannot be resolved.
func (p Policy) Check(ref string) error {
	for _, prefix := range networkSchemes {
		if strings.HasPrefix(ref, prefix) {
			return nil
		}
	}

	path, err := realPath(strings.TrimPrefix(ref, "file://"))
	if err != nil {
		return fmt.Errorf("resolve %s: %w", ref, err)
	}
	for _, root := range p.Roots {
		if strings.TrimSpace(root) == "" {
			continue
		}
		r, err := realPath(root)
		if err != nil {
			continue
		}
		if within(r, path) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is not under an allowed root", ErrNotAllowed, ref)
}

func realPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Sources picks a provider per reference.
type Sources struct {
	Local LocalProvider
	Git   *GitProvider
}

// NewSources creates the default providers. Clones go under workDir.
func NewSources(workDir string, logger *slog.Logger) *Sources {
	return &Sources{Git: NewGitProvider(workDir, logger)}
}

// Resolve returns the provider for ref.
func (s *Sources) Resolve(ref string) Provider {
	if IsRemote(ref) && s.Git != nil {
		return s.Git
	}
	return s.Local
}

// Materialize resolves and materializes ref.
func (s *Sources) Materialize(ctx context.Context, ref string) (*Tree, error) {
	return s.Resolve(ref).Materialize(ctx, ref)
}
