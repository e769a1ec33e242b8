package languages

import (
	"coderag/internal/chunker"

	"github.com/smacker/go-tree-sitter/python"
)

// Python is the native language: decorated definitions are unwrapped and a
// function directly inside a class block is a method of that class.
func Python() *chunker.Grammar {
	return &chunker.Grammar{
		Name:         "python",
		Language:     python.GetLanguage(),
		Extensions:   []string{".py", ".pyi"},
		Functions:    chunker.Set("function_definition"),
		Classes:      chunker.Set("class_definition"),
		ClassBodies:  chunker.Set("block"),
		Wrappers:     chunker.Set("decorated_definition"),
		Calls:        map[string]string{"call": "function"},
		Identifiers:  chunker.Set("identifier"),
		Literals:     chunker.Set("string", "integer", "float"),
		MemberFields: map[string]string{"attribute": "attribute"},
	}
}

func RegisterPython(r *chunker.Registry) {
	r.Register(Python())
}
