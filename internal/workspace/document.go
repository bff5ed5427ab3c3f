package workspace

import (
	"context"
	"sync"

	"lspadapter/internal/engine"
	"lspadapter/internal/manager"
	"lspadapter/internal/parser"
	"lspadapter/internal/uri"

	"github.com/pkg/errors"
	sitter "github.com/smacker/go-tree-sitter"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Document is a file of a Project, taken either from the editor's open
// buffer or from disk.
type Document struct {
	project *Project
	rel     string
	path    string
	lang    parser.Language

	mu      sync.Mutex
	content []byte
	parsed  *sitter.Tree
	guard   *sync.Mutex
}

func newDocument(p *Project, rel, path string, content []byte) *Document {
	lang, _ := parser.ForPath(path)
	return &Document{project: p, rel: rel, path: path, lang: lang, content: content}
}

func fromSnapshot(p *Project, rel string, snap manager.Snapshot) *Document {
	d := newDocument(p, rel, snap.Path, snap.Content)
	d.parsed = snap.Tree
	d.guard = snap.Guard
	return d
}

func (d *Document) URI() protocol.DocumentUri { return uri.FromPath(d.path) }
func (d *Document) RelativePath() string      { return d.rel }
func (d *Document) Language() string          { return string(d.lang) }

func (d *Document) Content() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.content
}

// Path is the absolute filesystem path of the document.
func (d *Document) Path() string { return d.path }

// Project returns the project the document was opened in.
func (d *Document) Project() *Project { return d.project }

// syntax returns the parsed tree of the document, parsing on first use.
func (d *Document) syntax(ctx context.Context, pool *parser.Pool) (*tree, error) {
	g := grammarFor(d.lang)
	if g == nil {
		return nil, engine.NotFoundf("no syntax support for %s", d.rel)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.parsed == nil {
		t, err := pool.Parse(ctx, d.lang, d.content)
		if err != nil {
			if ctx.Err() != nil {
				return nil, engine.Mark(engine.ErrCancelled, err)
			}
			return nil, errors.Wrapf(err, "parse %s", d.rel)
		}
		d.parsed = t
		d.guard = &sync.Mutex{}
	}
	return newTree(d.parsed, d.content, d.guard, g), nil
}

// refresh replaces the content and tree after an edit.
func (d *Document) refresh(snap manager.Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.content = snap.Content
	d.parsed = snap.Tree
	d.guard = snap.Guard
}

func asDocument(d engine.Document) (*Document, error) {
	doc, ok := d.(*Document)
	if !ok {
		return nil, errors.Errorf("document %s does not belong to the workspace engine", d.URI())
	}
	return doc, nil
}
