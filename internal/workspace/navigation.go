package workspace

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"lspadapter/internal/engine"
	"lspadapter/internal/parser"
	"lspadapter/internal/uri"
	"lspadapter/internal/workspace/store"

	sitter "github.com/smacker/go-tree-sitter"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

var typeKinds = []protocol.SymbolKind{
	protocol.SymbolKindClass,
	protocol.SymbolKindInterface,
	protocol.SymbolKindStruct,
	protocol.SymbolKindEnum,
}

// maxHierarchyDepth bounds walks over supertype chains.
const maxHierarchyDepth = 16

func (p *Project) location(d store.Declaration) protocol.Location {
	return protocol.Location{
		URI:   uri.FromPath(filepath.Join(p.root, filepath.FromSlash(d.Path))),
		Range: d.Range,
	}
}

// inLanguage keeps the declarations from files written in lang.
func inLanguage(decls []store.Declaration, lang parser.Language) []store.Declaration {
	out := decls[:0]
	for _, d := range decls {
		if l, ok := parser.ForPath(d.Path); ok && l == lang {
			out = append(out, d)
		}
	}
	return out
}

func (p *Project) locations(decls []store.Declaration) []protocol.Location {
	out := make([]protocol.Location, 0, len(decls))
	for _, d := range decls {
		out = append(out, p.location(d))
	}
	return out
}

// cursor is the identifier a navigation request points at.
type cursor struct {
	doc  *Document
	t    *tree
	id   *sitter.Node
	name string
}

func (e *Engine) cursorAt(ctx context.Context, d engine.Document, pos protocol.Position) (*cursor, error) {
	doc, err := asDocument(d)
	if err != nil {
		return nil, err
	}
	t, err := doc.syntax(ctx, e.pool)
	if err != nil {
		return nil, err
	}
	t.guard.Lock()
	defer t.guard.Unlock()
	id := t.identifierAt(t.lines.Offset(pos))
	if id == nil {
		return nil, engine.NotFoundf("no identifier at %d:%d in %s", pos.Line, pos.Character, doc.rel)
	}
	return &cursor{doc: doc, t: t, id: id, name: t.content(id)}, nil
}

// FindImplementations lists the types implementing or extending the type
// at pos, or the overriding methods when pos names a method.
func (e *Engine) FindImplementations(ctx context.Context, d engine.Document, pos protocol.Position) ([]protocol.Location, error) {
	c, err := e.cursorAt(ctx, d, pos)
	if err != nil {
		return nil, err
	}
	p := c.doc.project

	types, err := p.store.ByName(c.name, typeKinds...)
	if err != nil {
		return nil, err
	}
	var impls []store.Declaration
	if len(inLanguage(types, c.doc.lang)) > 0 {
		impls, err = p.implementors(ctx, c.doc.lang, c.name)
	} else {
		impls, err = p.overrides(ctx, c)
	}
	if err != nil {
		return nil, err
	}
	return p.locations(impls), nil
}

// implementors returns the declarations of lang below super in the type
// hierarchy. Go types implement an interface structurally, by declaring
// every one of its methods.
func (p *Project) implementors(ctx context.Context, lang parser.Language, super string) ([]store.Declaration, error) {
	if lang == parser.Go {
		return p.structuralImplementors(ctx, super)
	}
	var out []store.Declaration
	seen := map[string]bool{super: true}
	queue := []string{super}
	for depth := 0; len(queue) > 0 && depth < maxHierarchyDepth; depth++ {
		var next []string
		for _, name := range queue {
			if err := engine.CheckCancelled(ctx); err != nil {
				return nil, err
			}
			subs, err := p.store.Subtypes(name)
			if err != nil {
				return nil, err
			}
			for _, s := range inLanguage(subs, lang) {
				if seen[s.Name] {
					continue
				}
				seen[s.Name] = true
				out = append(out, s)
				next = append(next, s.Name)
			}
		}
		queue = next
	}
	return out, nil
}

func (p *Project) structuralImplementors(ctx context.Context, iface string) ([]store.Declaration, error) {
	methods, err := p.store.Members(iface, protocol.SymbolKindMethod)
	if err != nil {
		return nil, err
	}
	if methods = inLanguage(methods, parser.Go); len(methods) == 0 {
		return nil, nil
	}

	// Receivers of the first method are the only candidates.
	decls, err := p.store.ByName(methods[0].Name, protocol.SymbolKindMethod)
	if err != nil {
		return nil, err
	}
	var out []store.Declaration
	seen := map[string]bool{iface: true}
	for _, m := range inLanguage(decls, parser.Go) {
		if seen[m.Container] || m.Container == "" {
			continue
		}
		seen[m.Container] = true
		if err := engine.CheckCancelled(ctx); err != nil {
			return nil, err
		}
		ok, err := p.declaresAll(m.Container, methods)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		types, err := p.store.ByName(m.Container, typeKinds...)
		if err != nil {
			return nil, err
		}
		out = append(out, inLanguage(types, parser.Go)...)
	}
	return out, nil
}

func (p *Project) declaresAll(typ string, methods []store.Declaration) (bool, error) {
	own, err := p.store.Members(typ, protocol.SymbolKindMethod)
	if err != nil {
		return false, err
	}
	names := make(map[string]bool, len(own))
	for _, m := range inLanguage(own, parser.Go) {
		names[m.Name] = true
	}
	for _, m := range methods {
		if !names[m.Name] {
			return false, nil
		}
	}
	return true, nil
}

// overrides finds methods named like the one at c in the types below its
// declaring type.
func (p *Project) overrides(ctx context.Context, c *cursor) ([]store.Declaration, error) {
	c.t.guard.Lock()
	owner := c.t.enclosingType(c.id)
	c.t.guard.Unlock()
	if owner == "" {
		return nil, nil
	}
	subs, err := p.implementors(ctx, c.doc.lang, owner)
	if err != nil {
		return nil, err
	}
	var out []store.Declaration
	for _, s := range subs {
		members, err := p.store.Members(s.Name, protocol.SymbolKindMethod)
		if err != nil {
			return nil, err
		}
		for _, m := range inLanguage(members, c.doc.lang) {
			if m.Name == c.name {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

// enclosingType names the type declaration around n.
func (t *tree) enclosingType(n *sitter.Node) string {
	for p := n.Parent(); p != nil; p = p.Parent() {
		kind, ok := t.g.kind(p)
		if !ok {
			continue
		}
		for _, k := range typeKinds {
			if kind == k {
				return t.content(t.g.nameNode(p))
			}
		}
	}
	return ""
}

// FindTypeDefinition locates the declaration of the type of the symbol at
// pos. A type name leads to its own declaration.
func (e *Engine) FindTypeDefinition(ctx context.Context, d engine.Document, pos protocol.Position) ([]protocol.Location, error) {
	c, err := e.cursorAt(ctx, d, pos)
	if err != nil {
		return nil, err
	}
	p := c.doc.project

	c.t.guard.Lock()
	typeName := c.name
	if c.id.Type() != "type_identifier" {
		typeName = c.t.localType(c.name, int(c.id.StartByte()))
	}
	c.t.guard.Unlock()

	if typeName == "" {
		typeName, err = p.indexedType(c.name, c.doc.lang)
		if err != nil {
			return nil, err
		}
	}
	if typeName == "" {
		return nil, engine.NotFoundf("no type known for %s", c.name)
	}

	decls, err := p.store.ByName(typeName, typeKinds...)
	if err != nil {
		return nil, err
	}
	if decls = inLanguage(decls, c.doc.lang); len(decls) > 0 {
		return p.locations(decls), nil
	}
	c.t.guard.Lock()
	defer c.t.guard.Unlock()
	if local := c.t.typeDeclaration(typeName); local != nil {
		return []protocol.Location{{URI: c.doc.URI(), Range: c.t.lines.Range(local)}}, nil
	}
	return nil, engine.NotFoundf("no declaration of type %s", typeName)
}

// localType finds the declared type of the variable name in scope at
// offset: the closest preceding declaration wins, then any later one.
func (t *tree) localType(name string, offset int) string {
	best, bestStart := "", -1
	fallback := ""
	walk(t.root, func(n *sitter.Node) bool {
		locals := t.g.locals(n)
		if kind, ok := t.g.kind(n); ok && kind != protocol.SymbolKindMethod && kind != protocol.SymbolKindFunction {
			if name == t.content(t.g.nameNode(n)) {
				if _, typeName, _ := t.g.details(n, t.src); typeName != "" && fallback == "" {
					fallback = typeName
				}
			}
		}
		for _, l := range locals {
			if l.name == nil || t.content(l.name) != name {
				continue
			}
			typeName := t.g.declaredType(l, t.src)
			if typeName == "" {
				continue
			}
			start := int(l.name.StartByte())
			if start <= offset && start > bestStart {
				best, bestStart = typeName, start
			} else if fallback == "" {
				fallback = typeName
			}
		}
		return true
	})
	if best != "" {
		return best
	}
	return fallback
}

// typeDeclaration finds a type declared in the document itself.
func (t *tree) typeDeclaration(name string) *sitter.Node {
	var found *sitter.Node
	walk(t.root, func(n *sitter.Node) bool {
		if found != nil {
			return false
		}
		if kind, ok := t.g.kind(n); ok && t.content(t.g.nameNode(n)) == name {
			for _, k := range typeKinds {
				if kind == k {
					found = n
				}
			}
		}
		return true
	})
	return found
}

// indexedType looks up the declared type of a field or variable by name
// in the index.
func (p *Project) indexedType(name string, lang parser.Language) (string, error) {
	decls, err := p.store.ByName(name,
		protocol.SymbolKindField, protocol.SymbolKindVariable, protocol.SymbolKindConstant,
		protocol.SymbolKindMethod, protocol.SymbolKindFunction)
	if err != nil {
		return "", err
	}
	for _, d := range inLanguage(decls, lang) {
		if d.TypeName != "" {
			return d.TypeName, nil
		}
	}
	return "", nil
}

// Highlights marks every identifier in the document spelled like the one
// at pos. Declaration sites are write accesses.
func (e *Engine) Highlights(ctx context.Context, d engine.Document, pos protocol.Position) ([]protocol.DocumentHighlight, error) {
	c, err := e.cursorAt(ctx, d, pos)
	if err != nil {
		return nil, err
	}
	c.t.guard.Lock()
	defer c.t.guard.Unlock()

	nodes, err := c.t.occurrences(c.name)
	if err != nil {
		return nil, err
	}
	out := make([]protocol.DocumentHighlight, 0, len(nodes))
	for _, n := range nodes {
		if err := engine.CheckCancelled(ctx); err != nil {
			return nil, err
		}
		kind := protocol.DocumentHighlightKindRead
		if c.t.g.isDeclarationName(n) || isAssignmentTarget(n) {
			kind = protocol.DocumentHighlightKindWrite
		}
		out = append(out, protocol.DocumentHighlight{Range: c.t.lines.Range(n), Kind: &kind})
	}
	return out, nil
}

// occurrences returns the identifier nodes of t spelled name, in document
// order.
func (t *tree) occurrences(name string) ([]*sitter.Node, error) {
	types := make([]string, 0, len(t.g.identifiers))
	for typ := range t.g.identifiers {
		types = append(types, "("+typ+")")
	}
	sort.Strings(types)
	pattern := fmt.Sprintf("([%s] @name (#eq? @name %s))", strings.Join(types, " "), strconv.Quote(name))

	captures, err := parser.Query(t.root, []byte(pattern), t.g.lang, t.src)
	if err != nil {
		return nil, err
	}
	nodes := make([]*sitter.Node, 0, len(captures))
	for _, c := range captures {
		nodes = append(nodes, c.Node)
	}
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].StartByte() < nodes[j].StartByte() })
	return nodes, nil
}

func isAssignmentTarget(id *sitter.Node) bool {
	p := id.Parent()
	if p == nil {
		return false
	}
	// Go wraps assignment targets in an expression list.
	if p.Type() == "expression_list" {
		if gp := p.Parent(); gp != nil && gp.Type() == "assignment_statement" {
			if left := gp.ChildByFieldName("left"); left != nil && sameNode(left, p) {
				return true
			}
		}
		return false
	}
	if p.Type() == "assignment_expression" || p.Type() == "update_expression" || p.Type() == "inc_statement" || p.Type() == "dec_statement" {
		if left := p.ChildByFieldName("left"); left != nil {
			return sameNode(left, id)
		}
		return true
	}
	return false
}
