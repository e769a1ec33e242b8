// Package languages registers the tree-sitter grammars used for structured
// chunking.
package languages

import (
	"fmt"

	"coderag/internal/chunker"
)

var registrars = map[string]func(*chunker.Registry){
	"python":     RegisterPython,
	"go":         RegisterGo,
	"javascript": RegisterJavaScript,
	"typescript": RegisterTypeScript,
	"java":       RegisterJava,
}

// All lists every supported language name.
var All = []string{"python", "go", "javascript", "typescript", "java"}

// Register adds the named grammars to r.
func Register(r *chunker.Registry, names ...string) error {
	for _, name := range names {
		reg, ok := registrars[name]
		if !ok {
			return fmt.Errorf("unsupported language %q", name)
		}
		reg(r)
	}
	return nil
}

// NewRegistry returns a registry holding the named grammars.
func NewRegistry(names ...string) (*chunker.Registry, error) {
	r := chunker.NewRegistry()
	if err := Register(r, names...); err != nil {
		return nil, err
	}
	return r, nil
}
