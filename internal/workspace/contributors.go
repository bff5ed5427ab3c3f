package workspace

import (
	"context"

	"lspadapter/internal/completion"
	"lspadapter/internal/engine"

	"github.com/pkg/errors"
	sitter "github.com/smacker/go-tree-sitter"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// indexedCandidates caps the index matches one completion adds.
const indexedCandidates = 50

// Contributors returns the completion chain of the engine: members after
// a selector, then keywords, then declarations.
func (e *Engine) Contributors() []completion.Contributor {
	return []completion.Contributor{
		&MemberContributor{engine: e},
		completion.NewKeywords(e.Site),
		&DeclarationContributor{engine: e},
	}
}

// Site classifies the cursor of a completion by its enclosing syntax.
func (e *Engine) Site(ctx context.Context, params *completion.Parameters) completion.Site {
	if params.PrecedingRune() == '.' {
		return completion.SiteMemberAccess
	}
	doc, err := asDocument(params.Document)
	if err != nil {
		return completion.SiteUnknown
	}
	t, err := doc.syntax(ctx, e.pool)
	if err != nil {
		return braceSite(doc.Content(), params.Offset)
	}
	t.guard.Lock()
	defer t.guard.Unlock()
	for n := t.nodeAt(params.Offset); n != nil; n = n.Parent() {
		switch {
		case t.g.statementScopes[n.Type()]:
			return completion.SiteStatement
		case t.g.declarationScopes[n.Type()]:
			return completion.SiteDeclaration
		}
	}
	return braceSite(t.src, params.Offset)
}

// braceSite guesses the site from the number of open braces: top level
// is a declaration site, anything nested a statement.
func braceSite(src []byte, offset int) completion.Site {
	var state lexState
	scanLine(src[:min(offset, len(src))], &state)
	if state.depth == 0 {
		return completion.SiteDeclaration
	}
	return completion.SiteStatement
}

// MemberContributor proposes the fields and methods of the receiver in
// front of a "." selector, including inherited and embedded members.
type MemberContributor struct {
	engine *Engine
}

func (c *MemberContributor) Name() string { return "members" }

func (c *MemberContributor) Contribute(ctx context.Context, params *completion.Parameters, sink *completion.Sink) (completion.Signal, error) {
	if params.PrecedingRune() != '.' {
		return completion.Continue, nil
	}
	doc, err := asDocument(params.Document)
	if err != nil {
		return completion.StopChain, err
	}
	receiver := receiverName(doc.Content(), params.Offset-len(params.Prefix))
	if receiver == "" {
		return completion.StopChain, nil
	}

	typeName := ""
	if t, err := doc.syntax(ctx, c.engine.pool); err == nil {
		t.guard.Lock()
		typeName = t.localType(receiver, params.Offset)
		t.guard.Unlock()
	} else if errors.Is(err, engine.ErrCancelled) {
		return completion.StopChain, err
	}

	p := doc.project
	if typeName == "" {
		types, err := p.store.ByName(receiver, typeKinds...)
		if err != nil {
			return completion.StopChain, err
		}
		if len(inLanguage(types, doc.lang)) > 0 {
			typeName = receiver
		} else if typeName, err = p.indexedType(receiver, doc.lang); err != nil {
			return completion.StopChain, err
		}
	}
	if typeName == "" {
		return completion.StopChain, nil
	}

	seen := map[string]bool{}
	queue := []string{typeName}
	for depth := 0; len(queue) > 0 && depth < maxHierarchyDepth; depth++ {
		var next []string
		for _, name := range queue {
			if seen[name] {
				continue
			}
			seen[name] = true
			if err := engine.CheckCancelled(ctx); err != nil {
				return completion.StopChain, err
			}
			members, err := p.store.Members(name)
			if err != nil {
				return completion.StopChain, err
			}
			for _, m := range inLanguage(members, doc.lang) {
				sink.Add(completion.Candidate{
					Label:      m.Name,
					Kind:       completionKind(m.Kind),
					Detail:     memberDetail(m.Container, m.TypeName),
					InsertText: m.Name,
				})
			}
			types, err := p.store.ByName(name, typeKinds...)
			if err != nil {
				return completion.StopChain, err
			}
			for _, t := range inLanguage(types, doc.lang) {
				next = append(next, t.Supertypes...)
			}
		}
		queue = next
	}
	return completion.StopChain, nil
}

func memberDetail(container, typeName string) string {
	switch {
	case typeName == "":
		return container
	case container == "":
		return typeName
	}
	return container + " " + typeName
}

// receiverName returns the identifier right before the "." that precedes
// offset.
func receiverName(src []byte, offset int) string {
	i := min(offset, len(src))
	for i > 0 && (src[i-1] == ' ' || src[i-1] == '\t') {
		i--
	}
	if i == 0 || src[i-1] != '.' {
		return ""
	}
	i--
	end := i
	for i > 0 && isIdentByte(src[i-1]) {
		i--
	}
	return string(src[i:end])
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= 0x80 ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

// DeclarationContributor proposes what the document declares before the
// cursor, followed by names from the project index.
type DeclarationContributor struct {
	engine *Engine
}

func (c *DeclarationContributor) Name() string { return "declarations" }

func (c *DeclarationContributor) Contribute(ctx context.Context, params *completion.Parameters, sink *completion.Sink) (completion.Signal, error) {
	doc, err := asDocument(params.Document)
	if err != nil {
		return completion.Continue, err
	}

	t, err := doc.syntax(ctx, c.engine.pool)
	switch {
	case err == nil:
		for _, cand := range t.localCandidates(params.Offset) {
			sink.Add(cand)
		}
	case errors.Is(err, engine.ErrCancelled):
		return completion.Continue, err
	}

	if err := engine.CheckCancelled(ctx); err != nil {
		return completion.Continue, err
	}
	decls, err := doc.project.store.Search(params.Prefix, indexedCandidates)
	if err != nil {
		return completion.Continue, err
	}
	for _, d := range inLanguage(decls, doc.lang) {
		sink.Add(completion.Candidate{
			Label:      d.Name,
			Kind:       completionKind(d.Kind),
			Detail:     memberDetail(d.Container, d.TypeName),
			InsertText: d.Name,
		})
	}
	return completion.Continue, nil
}

// localCandidates lists the declarations of the document and the
// variables declared before offset.
func (t *tree) localCandidates(offset int) []completion.Candidate {
	t.guard.Lock()
	defer t.guard.Unlock()

	var out []completion.Candidate
	walk(t.root, func(n *sitter.Node) bool {
		if kind, ok := t.g.kind(n); ok {
			if name := t.content(t.g.nameNode(n)); name != "" {
				container, typeName, _ := t.g.details(n, t.src)
				out = append(out, completion.Candidate{
					Label:      name,
					Kind:       completionKind(kind),
					Detail:     memberDetail(container, typeName),
					InsertText: name,
				})
			}
			return true
		}
		if int(n.StartByte()) >= offset {
			return true
		}
		for _, l := range t.g.locals(n) {
			if l.name == nil || int(l.name.StartByte()) >= offset {
				continue
			}
			name := t.content(l.name)
			out = append(out, completion.Candidate{
				Label:      name,
				Kind:       protocol.CompletionItemKindVariable,
				Detail:     t.g.declaredType(l, t.src),
				InsertText: name,
			})
		}
		return true
	})
	return out
}

func completionKind(kind protocol.SymbolKind) protocol.CompletionItemKind {
	switch kind {
	case protocol.SymbolKindMethod:
		return protocol.CompletionItemKindMethod
	case protocol.SymbolKindFunction:
		return protocol.CompletionItemKindFunction
	case protocol.SymbolKindConstructor:
		return protocol.CompletionItemKindConstructor
	case protocol.SymbolKindField:
		return protocol.CompletionItemKindField
	case protocol.SymbolKindVariable:
		return protocol.CompletionItemKindVariable
	case protocol.SymbolKindConstant:
		return protocol.CompletionItemKindConstant
	case protocol.SymbolKindClass:
		return protocol.CompletionItemKindClass
	case protocol.SymbolKindInterface:
		return protocol.CompletionItemKindInterface
	case protocol.SymbolKindStruct:
		return protocol.CompletionItemKindStruct
	case protocol.SymbolKindEnum:
		return protocol.CompletionItemKindEnum
	case protocol.SymbolKindEnumMember:
		return protocol.CompletionItemKindEnumMember
	}
	return protocol.CompletionItemKindText
}
