// Package enginetest provides in-memory engine fakes for tests.
package enginetest

import (
	"context"
	"path"
	"sync"
	"sync/atomic"

	"lspadapter/internal/engine"
	"lspadapter/internal/uri"

	"github.com/pkg/errors"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Project is a fake engine.Project.
type Project struct {
	root string

	mu          sync.Mutex
	disposed    bool
	indexing    bool
	listeners   map[int]func(bool)
	next        int
	Unsubscribe atomic.Int32
	Initialized atomic.Bool
}

func NewProject(root string) *Project {
	return &Project{root: root, listeners: make(map[int]func(bool))}
}

func (p *Project) Root() string { return p.root }

func (p *Project) Disposed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disposed
}

func (p *Project) Dispose() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disposed = true
	return nil
}

func (p *Project) Indexing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.indexing
}

func (p *Project) OnIndexingChange(fn func(bool)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.next
	p.next++
	p.listeners[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
		p.Unsubscribe.Add(1)
	}
}

// SetIndexing changes the indexing state and notifies subscribers.
func (p *Project) SetIndexing(indexing bool) {
	p.mu.Lock()
	p.indexing = indexing
	fns := make([]func(bool), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(indexing)
	}
}

// Listeners returns the number of active subscriptions.
func (p *Project) Listeners() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

// Document is a fake engine.Document.
type Document struct {
	Project  *Project
	Rel      string
	Lang     string
	Text     []byte
	Edits    [][]protocol.TextEdit
	editLock sync.Mutex
}

func (d *Document) URI() protocol.DocumentUri {
	return uri.FromPath(path.Join(d.Project.Root(), d.Rel))
}

func (d *Document) RelativePath() string { return d.Rel }
func (d *Document) Language() string     { return d.Lang }
func (d *Document) Content() []byte      { return d.Text }

// Engine is a fake engine.Engine. Projects start initialized unless
// StartUninitialized is set.
type Engine struct {
	mu        sync.Mutex
	projects  map[string]*Project
	open      map[string]*Project
	documents map[string]string

	Loads              atomic.Int32
	LoadErr            error
	StartUninitialized bool
	// Gate, when set, blocks LoadProject until it is closed.
	Gate chan struct{}
}

func NewEngine() *Engine {
	return &Engine{
		projects:  make(map[string]*Project),
		open:      make(map[string]*Project),
		documents: make(map[string]string),
	}
}

// AddDocument registers a document that OpenDocument will find.
func (e *Engine) AddDocument(rel, text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.documents[rel] = text
}

// MarkOpen pretends the engine already has a project open at root.
func (e *Engine) MarkOpen(p *Project) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.open[p.Root()] = p
}

// Project returns the last project loaded for root.
func (e *Engine) Project(root string) *Project {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.projects[root]
}

func (e *Engine) LoadProject(ctx context.Context, root string) (engine.Project, error) {
	e.Loads.Add(1)
	if e.Gate != nil {
		select {
		case <-e.Gate:
		case <-ctx.Done():
			return nil, engine.Mark(engine.ErrCancelled, ctx.Err())
		}
	}
	if e.LoadErr != nil {
		return nil, e.LoadErr
	}
	p := NewProject(root)
	p.Initialized.Store(!e.StartUninitialized)
	e.mu.Lock()
	e.projects[root] = p
	e.mu.Unlock()
	return p, nil
}

func (e *Engine) FindOpenProject(root string) (engine.Project, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.open[root]
	if !ok || p.Disposed() {
		return nil, false
	}
	return p, true
}

func (e *Engine) IsProjectInitialized(p engine.Project) bool {
	return p.(*Project).Initialized.Load()
}

func (e *Engine) OpenDocument(ctx context.Context, p engine.Project, rel string) (engine.Document, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	text, ok := e.documents[rel]
	if !ok {
		return nil, engine.NotFoundf("no document %s", rel)
	}
	return &Document{Project: p.(*Project), Rel: rel, Text: []byte(text), Lang: langOf(rel)}, nil
}

func (e *Engine) ApplyTextEdits(ctx context.Context, d engine.Document, edits []protocol.TextEdit) error {
	doc, ok := d.(*Document)
	if !ok {
		return errors.Errorf("foreign document %T", d)
	}
	doc.editLock.Lock()
	defer doc.editLock.Unlock()
	doc.Edits = append(doc.Edits, edits)
	return nil
}

func langOf(rel string) string {
	switch path.Ext(rel) {
	case ".go":
		return "go"
	case ".java":
		return "java"
	}
	return ""
}

// Node is a hand-built syntax node.
type Node struct {
	Kind     protocol.SymbolKind
	Name     string
	Offset   int
	parent   *Node
	children []*Node
}

// N builds a node; kind 0 means not classifiable.
func N(kind protocol.SymbolKind, name string, offset int, children ...*Node) *Node {
	n := &Node{Kind: kind, Name: name, Offset: offset, children: children}
	for _, c := range children {
		c.parent = n
	}
	return n
}

func (n *Node) Parent() engine.Node {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

func (n *Node) ChildCount() int         { return len(n.children) }
func (n *Node) Child(i int) engine.Node { return n.children[i] }
func (n *Node) StartOffset() int        { return n.Offset }
func (n *Node) Range() protocol.Range {
	pos := protocol.Position{Line: protocol.UInteger(n.Offset), Character: 0}
	return protocol.Range{Start: pos, End: pos}
}

// Classifier classifies Nodes by their Kind and Name fields. Visited
// counts ClassifyNode calls; OnVisit runs before each one.
type Classifier struct {
	Visited atomic.Int32
	OnVisit func(n int)
}

func (c *Classifier) ClassifyNode(n engine.Node) (protocol.SymbolKind, bool) {
	count := int(c.Visited.Add(1))
	if c.OnVisit != nil {
		c.OnVisit(count)
	}
	node := n.(*Node)
	return node.Kind, node.Kind != 0
}

func (c *Classifier) NodeName(n engine.Node) string {
	return n.(*Node).Name
}
