package languages

import (
	"coderag/internal/chunker"

	"github.com/smacker/go-tree-sitter/javascript"
)

// JavaScript also picks up function values bound to a name, so
// const handler = async (req) => {...} is a Function chunk named handler and
// an arrow function class field is a Method.
func JavaScript() *chunker.Grammar {
	return &chunker.Grammar{
		Name:       "javascript",
		Language:   javascript.GetLanguage(),
		Extensions: []string{".js", ".jsx", ".mjs", ".cjs"},
		Functions:  chunker.Set("function_declaration", "generator_function_declaration", "method_definition"),
		FunctionValues: chunker.Set(
			"arrow_function", "function", "function_expression", "generator_function",
		),
		Binders: map[string]string{
			"variable_declarator":   "name",
			"field_definition":      "property",
			"pair":                  "key",
			"assignment_expression": "left",
		},
		Classes:     chunker.Set("class_declaration", "class"),
		ClassBodies: chunker.Set("class_body"),
		Calls: map[string]string{
			"call_expression": "function",
			"new_expression":  "constructor",
		},
		Identifiers:  chunker.Set("identifier", "shorthand_property_identifier"),
		Literals:     chunker.Set("string", "number", "template_string"),
		MemberFields: map[string]string{"member_expression": "property"},
	}
}

func RegisterJavaScript(r *chunker.Registry) {
	r.Register(JavaScript())
}
