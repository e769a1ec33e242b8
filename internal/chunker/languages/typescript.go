package languages

import (
	"coderag/internal/chunker"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

func typeScript(name string, lang *sitter.Language, exts ...string) *chunker.Grammar {
	return &chunker.Grammar{
		Name:       name,
		Language:   lang,
		Extensions: exts,
		Functions:  chunker.Set("function_declaration", "generator_function_declaration", "method_definition"),
		FunctionValues: chunker.Set(
			"arrow_function", "function", "function_expression", "generator_function",
		),
		Binders: map[string]string{
			"variable_declarator":     "name",
			"public_field_definition": "name",
			"pair":                    "key",
			"assignment_expression":   "left",
		},
		Classes: chunker.Set(
			"class_declaration", "abstract_class_declaration", "class", "interface_declaration",
		),
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

// TypeScript covers plain TypeScript sources.
func TypeScript() *chunker.Grammar {
	return typeScript("typescript", typescript.GetLanguage(), ".ts", ".mts", ".cts")
}

// TSX shares TypeScript's node types but needs the JSX-aware grammar.
func TSX() *chunker.Grammar {
	return typeScript("tsx", tsx.GetLanguage(), ".tsx")
}

func RegisterTypeScript(r *chunker.Registry) {
	r.Register(TypeScript())
	r.Register(TSX())
}
