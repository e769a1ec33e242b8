package chunker

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// Grammar describes how to pull definitions out of one tree-sitter language.
// Node types are grammar specific; adding a language means adding a Grammar,
// not new branching in the extractor.
type Grammar struct {
	Name     string
	Language *sitter.Language
	// Extensions are lower-case and include the dot.
	Extensions []string

	// Functions are node types emitted as Function or Method chunks.
	Functions map[string]bool
	// FunctionValues are anonymous function expressions. They are emitted
	// only when a Binders parent gives them a name; bare callbacks are not.
	FunctionValues map[string]bool
	// Binders maps node types that bind a value to a name (const f = ...,
	// class fields, object keys) to the field holding that name.
	Binders map[string]string
	// Classes are node types emitted as Class chunks.
	Classes map[string]bool
	// ClassBodies are node types whose parent is a class and whose direct
	// function children are methods of that class.
	ClassBodies map[string]bool
	// Wrappers sit between a class body and a definition (e.g. decorators).
	Wrappers map[string]bool
	// Calls maps call node types to the field holding the callee.
	Calls map[string]string
	// Identifiers are node types counted as referenced variable names.
	Identifiers map[string]bool
	// Literals are node types counted as constants. They are not descended.
	Literals map[string]bool
	// MemberFields maps member-access node types to the field naming the
	// accessed member, so obj.method() records "method".
	MemberFields map[string]string
	// Receiver is the function field naming the receiver, for languages
	// where methods are declared outside the type (Go).
	Receiver string
	// ReceiverType is the node type holding the receiver's type name.
	ReceiverType string
}

// Set is a helper for building the node type sets of a Grammar.
func Set(types ...string) map[string]bool {
	m := make(map[string]bool, len(types))
	for _, t := range types {
		m[t] = true
	}
	return m
}

// Registry maps file extensions to grammars.
type Registry struct {
	mu       sync.RWMutex
	byExt    map[string]*Grammar
	grammars map[string]*Grammar
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byExt:    make(map[string]*Grammar),
		grammars: make(map[string]*Grammar),
	}
}

// Register adds a grammar. A later registration for the same extension wins.
func (r *Registry) Register(g *Grammar) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grammars[g.Name] = g
	for _, ext := range g.Extensions {
		r.byExt[strings.ToLower(ext)] = g
	}
}

// Lookup returns the grammar for a file path based on its extension, or nil.
func (r *Registry) Lookup(path string) *Grammar {
	ext := strings.ToLower(filepath.Ext(path))
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byExt[ext]
}

// Names returns the registered grammar names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.grammars))
	for name := range r.grammars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Extensions returns the set of all registered file extensions.
func (r *Registry) Extensions() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make(map[string]bool, len(r.byExt))
	for ext := range r.byExt {
		exts[ext] = true
	}
	return exts
}
