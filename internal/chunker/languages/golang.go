package languages

import (
	"coderag/internal/chunker"

	"github.com/smacker/go-tree-sitter/golang"
)

// Go methods are declared outside their type, so the enclosing class is the
// receiver's type name.
func Go() *chunker.Grammar {
	return &chunker.Grammar{
		Name:        "go",
		Language:    golang.GetLanguage(),
		Extensions:  []string{".go"},
		Functions:   chunker.Set("function_declaration", "method_declaration"),
		Classes:     chunker.Set("type_spec"),
		Calls:       map[string]string{"call_expression": "function"},
		Identifiers: chunker.Set("identifier"),
		Literals: chunker.Set(
			"interpreted_string_literal", "raw_string_literal", "rune_literal",
			"int_literal", "float_literal", "imaginary_literal",
		),
		MemberFields: map[string]string{"selector_expression": "field"},
		Receiver:     "receiver",
		ReceiverType: "type_identifier",
	}
}

func RegisterGo(r *chunker.Registry) {
	r.Register(Go())
}
