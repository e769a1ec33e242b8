package languages

import (
	"coderag/internal/chunker"

	"github.com/smacker/go-tree-sitter/java"
)

func Java() *chunker.Grammar {
	return &chunker.Grammar{
		Name:       "java",
		Language:   java.GetLanguage(),
		Extensions: []string{".java"},
		Functions:  chunker.Set("method_declaration", "constructor_declaration"),
		Classes: chunker.Set(
			"class_declaration", "interface_declaration", "enum_declaration", "record_declaration",
		),
		ClassBodies: chunker.Set("class_body", "interface_body", "enum_body"),
		Wrappers:    chunker.Set("enum_body_declarations"),
		Calls: map[string]string{
			"method_invocation":          "name",
			"object_creation_expression": "type",
		},
		Identifiers: chunker.Set("identifier"),
		Literals: chunker.Set(
			"string_literal", "character_literal",
			"decimal_integer_literal", "hex_integer_literal", "octal_integer_literal", "binary_integer_literal",
			"decimal_floating_point_literal", "hex_floating_point_literal",
		),
		MemberFields: map[string]string{"field_access": "field"},
	}
}

func RegisterJava(r *chunker.Registry) {
	r.Register(Java())
}
