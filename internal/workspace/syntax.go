package workspace

import (
	"sync"

	"lspadapter/internal/engine"
	"lspadapter/internal/parser"
	"lspadapter/internal/sitteradapter"

	sitter "github.com/smacker/go-tree-sitter"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// grammar holds what the engine knows about one language beyond its
// tree-sitter grammar.
type grammar struct {
	lang parser.Language

	// kind classifies declaration nodes.
	kind func(n *sitter.Node) (protocol.SymbolKind, bool)
	// nameNode returns the identifier naming a declaration.
	nameNode func(n *sitter.Node) *sitter.Node
	// details returns index data that ancestry alone does not give: a
	// container overriding the enclosing declaration, the declared type
	// and the extended or implemented types.
	details func(n *sitter.Node, src []byte) (container, typeName string, supertypes []string)
	// locals lists the variables a node declares, with their declared
	// type or initial value when present.
	locals func(n *sitter.Node) []local
	// typeName reduces a type expression to the name of the declared type.
	typeName func(typ *sitter.Node, src []byte) string
	// valueType names the type an initializer creates, or "".
	valueType func(value *sitter.Node, src []byte) string
	// identifiers are the leaf node types that name things.
	identifiers map[string]bool
	// statementScopes are node types whose contents are statements;
	// declarationScopes hold member or top level declarations.
	statementScopes   map[string]bool
	declarationScopes map[string]bool
	// dedentCase places case labels at the level of their switch.
	dedentCase bool
}

var grammars = map[parser.Language]*grammar{
	parser.Go:   goGrammar,
	parser.Java: javaGrammar,
}

func grammarFor(lang parser.Language) *grammar {
	return grammars[lang]
}

// tree is one parsed snapshot. guard serializes access to the tree, whose
// node cache is not safe for concurrent use.
type tree struct {
	root  *sitter.Node
	src   []byte
	lines *sitteradapter.LineIndex
	guard *sync.Mutex
	g     *grammar
}

func newTree(t *sitter.Tree, src []byte, guard *sync.Mutex, g *grammar) *tree {
	if guard == nil {
		guard = &sync.Mutex{}
	}
	return &tree{root: t.RootNode(), src: src, lines: sitteradapter.NewLineIndex(src), guard: guard, g: g}
}

func (t *tree) content(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(t.src)
}

// nodeAt returns the smallest node spanning offset. A node ending exactly
// at offset is preferred when nothing starts there, so a cursor right
// after an identifier still finds it.
func (t *tree) nodeAt(offset int) *sitter.Node {
	n := t.root
	for {
		var next *sitter.Node
		for i := 0; i < int(n.ChildCount()); i++ {
			c := n.Child(i)
			if c == nil {
				continue
			}
			start, end := int(c.StartByte()), int(c.EndByte())
			if start <= offset && offset < end {
				next = c
				break
			}
			if end == offset && start < end && next == nil {
				next = c
			}
		}
		if next == nil {
			return n
		}
		n = next
	}
}

// identifierAt returns the identifier under or right before offset.
func (t *tree) identifierAt(offset int) *sitter.Node {
	if n := t.nodeAt(offset); n != nil && t.g.identifiers[n.Type()] {
		return n
	}
	if offset > 0 {
		if n := t.nodeAt(offset - 1); n != nil && t.g.identifiers[n.Type()] {
			return n
		}
	}
	return nil
}

// namedChildren returns the named children of n.
func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, n.NamedChildCount())
	for i := 0; i < int(n.NamedChildCount()); i++ {
		out = append(out, n.NamedChild(i))
	}
	return out
}

// fieldChildren returns the children of n stored under field.
func fieldChildren(n *sitter.Node, field string) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.FieldNameForChild(i) == field {
			out = append(out, n.Child(i))
		}
	}
	return out
}

// walk visits every node in pre-order until fn returns false.
func walk(n *sitter.Node, fn func(n *sitter.Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		walk(n.Child(i), fn)
	}
}

// tsNode adapts a tree-sitter node to engine.Node over named children.
type tsNode struct {
	n *sitter.Node
	t *tree
}

func (n tsNode) Parent() engine.Node {
	n.t.guard.Lock()
	p := n.n.Parent()
	n.t.guard.Unlock()
	if p == nil || p.IsNull() {
		return nil
	}
	return tsNode{n: p, t: n.t}
}

func (n tsNode) ChildCount() int {
	n.t.guard.Lock()
	defer n.t.guard.Unlock()
	return int(n.n.NamedChildCount())
}

func (n tsNode) Child(i int) engine.Node {
	n.t.guard.Lock()
	c := n.n.NamedChild(i)
	n.t.guard.Unlock()
	return tsNode{n: c, t: n.t}
}

func (n tsNode) StartOffset() int { return int(n.n.StartByte()) }

func (n tsNode) Range() protocol.Range {
	return n.t.lines.Range(n.n)
}

// classifier implements engine.Classifier for one grammar.
type classifier struct {
	g *grammar
}

func (c classifier) ClassifyNode(n engine.Node) (protocol.SymbolKind, bool) {
	tn := n.(tsNode)
	tn.t.guard.Lock()
	defer tn.t.guard.Unlock()
	return c.g.kind(tn.n)
}

func (c classifier) NodeName(n engine.Node) string {
	tn := n.(tsNode)
	tn.t.guard.Lock()
	defer tn.t.guard.Unlock()
	return tn.t.content(c.g.nameNode(tn.n))
}

// local is one variable introduced by a declaration statement or a
// parameter list.
type local struct {
	name  *sitter.Node
	typ   *sitter.Node
	value *sitter.Node
}

// isDeclarationName reports whether id is the name of a declaration or a
// variable definition.
func (g *grammar) isDeclarationName(id *sitter.Node) bool {
	p := id.Parent()
	if p == nil {
		return false
	}
	if _, ok := g.kind(p); ok {
		if name := g.nameNode(p); name != nil && sameNode(name, id) {
			return true
		}
	}
	for d := p; d != nil && !g.statementScopes[d.Type()]; d = d.Parent() {
		for _, l := range g.locals(d) {
			if l.name != nil && sameNode(l.name, id) {
				return true
			}
		}
		if _, ok := g.kind(d); ok {
			return false
		}
	}
	return false
}

// declaredType resolves the type name of the variable l.
func (g *grammar) declaredType(l local, src []byte) string {
	if name := g.typeName(l.typ, src); name != "" {
		return name
	}
	if l.value != nil {
		return g.valueType(l.value, src)
	}
	return ""
}

func sameNode(a, b *sitter.Node) bool {
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}
