package chunker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

var errSyntax = errors.New("syntax error")

// definition is a function, method or class found in the syntax tree.
type definition struct {
	kind      Kind
	name      string
	class     string
	classNode *sitter.Node
	node      *sitter.Node
	params    []string
	methods   []string
	syms      symbols
}

type symbols struct {
	calls  map[string]struct{}
	vars   map[string]struct{}
	consts map[string]struct{}
}

func newSymbols() symbols {
	return symbols{
		calls:  make(map[string]struct{}),
		vars:   make(map[string]struct{}),
		consts: make(map[string]struct{}),
	}
}

// extractStructured parses src and returns one chunk per definition in
// source order. Any syntax error in the tree fails the whole pass.
func (e *Extractor) extractStructured(ctx context.Context, g *Grammar, relPath string, src []byte) ([]Chunk, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(g.Language)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", relPath, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("parse %s: %w", relPath, errSyntax)
	}

	var defs []*definition
	collectDefinitions(g, root, src, &defs)
	attachMethods(defs)

	chunks := make([]Chunk, 0, len(defs))
	for _, d := range defs {
		chunks = append(chunks, e.definitionChunk(g, relPath, src, d))
	}
	return chunks, nil
}

// collectDefinitions walks the tree in pre-order.
func collectDefinitions(g *Grammar, n *sitter.Node, src []byte, defs *[]*definition) {
	t := n.Type()
	switch {
	case g.Functions[t]:
		*defs = append(*defs, functionDefinition(g, n, n, nodeName(n, src), src))
	case g.FunctionValues[t]:
		if binder, name := boundName(g, n, src); binder != nil {
			*defs = append(*defs, functionDefinition(g, n, binder, name, src))
		}
	case g.Classes[t]:
		d := &definition{kind: KindClass, name: nodeName(n, src), node: n}
		d.syms = bodySymbols(g, n, src)
		*defs = append(*defs, d)
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		collectDefinitions(g, n.NamedChild(i), src, defs)
	}
}

// functionDefinition builds a definition for function node fn. decl is the
// node that declares it: fn itself, or the binder of a function value, whose
// span includes the bound name.
func functionDefinition(g *Grammar, fn, decl *sitter.Node, name string, src []byte) *definition {
	d := &definition{kind: KindFunction, name: name, node: decl}

	if cls := enclosingClass(g, decl); cls != nil {
		d.kind = KindMethod
		d.class = nodeName(cls, src)
		d.classNode = cls
	} else if g.Receiver != "" {
		if recv := fn.ChildByFieldName(g.Receiver); recv != nil {
			if typ := firstOfType(recv, g.ReceiverType); typ != nil {
				d.kind = KindMethod
				d.class = typ.Content(src)
			}
		}
	}

	if params := fn.ChildByFieldName("parameters"); params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			d.params = append(d.params, paramNames(g, params.NamedChild(i), src)...)
		}
	} else if param := fn.ChildByFieldName("parameter"); param != nil {
		// x => x + 1
		d.params = paramNames(g, param, src)
	}
	d.syms = bodySymbols(g, fn, src)
	return d
}

// boundName returns the binder giving function value n its name, or nil when
// n is not the bound value (a callback argument, an IIFE).
func boundName(g *Grammar, n *sitter.Node, src []byte) (*sitter.Node, string) {
	p := n.Parent()
	if p == nil {
		return nil, ""
	}
	field, ok := g.Binders[p.Type()]
	if !ok {
		return nil, ""
	}
	if v := p.ChildByFieldName("value"); v == nil || !sameSpan(v, n) {
		if r := p.ChildByFieldName("right"); r == nil || !sameSpan(r, n) {
			return nil, ""
		}
	}
	target := p.ChildByFieldName(field)
	if target == nil {
		return nil, ""
	}
	name := calleeName(g, target, src)
	if name == "" {
		name = literalValue(target.Content(src))
	}
	if name == "" {
		return nil, ""
	}
	return p, name
}

// enclosingClass returns the class whose body directly contains n.
func enclosingClass(g *Grammar, n *sitter.Node) *sitter.Node {
	p := n.Parent()
	for p != nil && g.Wrappers[p.Type()] {
		p = p.Parent()
	}
	if p == nil || !g.ClassBodies[p.Type()] {
		return nil
	}
	c := p.Parent()
	if c == nil || !g.Classes[c.Type()] {
		return nil
	}
	return c
}

// attachMethods fills each class's method list. Methods found inside a class
// body belong to that class node; receiver methods match by type name.
func attachMethods(defs []*definition) {
	byName := make(map[string]*definition)
	for _, d := range defs {
		if d.kind == KindClass {
			if _, ok := byName[d.name]; !ok {
				byName[d.name] = d
			}
		}
	}
	for _, m := range defs {
		if m.kind != KindMethod {
			continue
		}
		var owner *definition
		if m.classNode != nil {
			for _, d := range defs {
				if d.kind == KindClass && sameSpan(d.node, m.classNode) {
					owner = d
					break
				}
			}
		} else {
			owner = byName[m.class]
		}
		if owner != nil {
			owner.methods = append(owner.methods, m.name)
		}
	}
}

func (e *Extractor) definitionChunk(g *Grammar, relPath string, src []byte, d *definition) Chunk {
	source := d.node.Content(src)
	snippet := oneLine(truncateRunes(source, e.opts.SymbolSnippetLimit))
	calls, vars, consts := sortedKeys(d.syms.calls), sortedKeys(d.syms.vars), sortedKeys(d.syms.consts)

	var b strings.Builder
	switch d.kind {
	case KindClass:
		fmt.Fprintf(&b, "Class: %s\n", d.name)
		fmt.Fprintf(&b, "Methods: %s\n", strings.Join(d.methods, ", "))
	default:
		header := "Function"
		if d.kind == KindMethod {
			header = "Method"
		}
		class := d.class
		if class == "" {
			class = "None"
		}
		fmt.Fprintf(&b, "%s: %s\n", header, d.name)
		fmt.Fprintf(&b, "Class: %s\n", class)
		fmt.Fprintf(&b, "Args: %s\n", strings.Join(d.params, ", "))
	}
	fmt.Fprintf(&b, "Calls: %s\n", strings.Join(calls, ", "))
	fmt.Fprintf(&b, "Vars: %s\n", strings.Join(vars, ", "))
	fmt.Fprintf(&b, "Consts: %s\n", strings.Join(consts, ", "))
	fmt.Fprintf(&b, "Snippet: %s", snippet)

	return Chunk{
		Kind:           d.kind,
		Name:           d.name,
		EnclosingClass: d.class,
		FilePath:       relPath,
		StartLine:      int(d.node.StartPoint().Row) + 1,
		EndLine:        int(d.node.EndPoint().Row) + 1,
		Language:       g.Name,
		Source:         source,
		EmbeddingText:  strings.TrimSpace(b.String()),
		Params:         d.params,
		Methods:        d.methods,
		Calls:          calls,
		Vars:           vars,
		Consts:         consts,
	}
}

func sameSpan(a, b *sitter.Node) bool {
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

func nodeName(n *sitter.Node, src []byte) string {
	if name := n.ChildByFieldName("name"); name != nil {
		return name.Content(src)
	}
	return "anonymous"
}

// bodySymbols gathers calls, identifiers and literals from the body of n.
func bodySymbols(g *Grammar, n *sitter.Node, src []byte) symbols {
	s := newSymbols()
	if body := n.ChildByFieldName("body"); body != nil {
		s.collect(g, body, src)
	}
	return s
}

func (s symbols) collect(g *Grammar, n *sitter.Node, src []byte) {
	t := n.Type()
	if g.Literals[t] {
		if v := literalValue(n.Content(src)); v != "" {
			s.consts[v] = struct{}{}
		}
		return
	}
	if field, ok := g.Calls[t]; ok {
		if callee := n.ChildByFieldName(field); callee != nil {
			if name := calleeName(g, callee, src); name != "" {
				s.calls[name] = struct{}{}
			}
		}
	}
	if g.Identifiers[t] {
		s.vars[n.Content(src)] = struct{}{}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		s.collect(g, n.NamedChild(i), src)
	}
}

// calleeName resolves the invoked name: foo() gives foo, a.b.foo() gives foo.
func calleeName(g *Grammar, n *sitter.Node, src []byte) string {
	for n != nil {
		t := n.Type()
		if g.Identifiers[t] || strings.HasSuffix(t, "identifier") {
			return n.Content(src)
		}
		field, ok := g.MemberFields[t]
		if !ok {
			return ""
		}
		n = n.ChildByFieldName(field)
	}
	return ""
}

// paramNames returns the names declared by one parameter node.
func paramNames(g *Grammar, n *sitter.Node, src []byte) []string {
	if g.Identifiers[n.Type()] {
		return []string{n.Content(src)}
	}
	if name := n.ChildByFieldName("name"); name != nil {
		// Grouped names share a type: a, b int.
		var names []string
		for c := name; c != nil; c = c.NextSibling() {
			if g.Identifiers[c.Type()] {
				names = append(names, c.Content(src))
			} else if c.Type() != "," {
				break
			}
		}
		return names
	}
	for _, field := range []string{"pattern", "left"} {
		if c := n.ChildByFieldName(field); c != nil {
			return paramNames(g, c, src)
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); g.Identifiers[c.Type()] {
			return []string{c.Content(src)}
		}
	}
	return nil
}

func firstOfType(n *sitter.Node, typ string) *sitter.Node {
	if n.Type() == typ {
		return n
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if found := firstOfType(n.NamedChild(i), typ); found != nil {
			return found
		}
	}
	return nil
}

// literalValue strips quotes and string prefixes (f"", b'', r``).
func literalValue(raw string) string {
	s := raw
	if i := strings.IndexAny(s, "\"'`"); i > 0 && i <= 2 && isLetters(s[:i]) {
		s = s[i:]
	}
	s = strings.Trim(s, "\"'`")
	return strings.TrimSpace(oneLine(s))
}

func isLetters(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
