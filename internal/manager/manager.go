// Package manager keeps the state of documents the client has open: their
// unsaved content and an incrementally maintained syntax tree.
package manager

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"lspadapter/internal/parser"
	"lspadapter/internal/sitteradapter"

	sitter "github.com/smacker/go-tree-sitter"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// ErrNotOpen is returned for paths without an open document.
var ErrNotOpen = errors.New("document is not open")

// Snapshot is an immutable view of an open document. Tree is nil for
// languages without a grammar. Guard must be held while walking Tree.
type Snapshot struct {
	Path     string
	Language parser.Language
	Version  protocol.Integer
	Content  []byte
	Tree     *sitter.Tree
	Guard    *sync.Mutex
}

type document struct {
	parser  *parser.Parser
	lang    parser.Language
	version protocol.Integer
	content []byte
	tree    *sitter.Tree
	guard   *sync.Mutex
}

func (d *document) snapshot(path string) Snapshot {
	return Snapshot{
		Path:     path,
		Language: d.lang,
		Version:  d.version,
		Content:  d.content,
		Tree:     d.tree,
		Guard:    d.guard,
	}
}

// DocumentManager encapsulates parser and document state for each open
// path.
type DocumentManager struct {
	mu   sync.Mutex
	docs map[string]*document
}

func NewDocumentManager() *DocumentManager {
	return &DocumentManager{docs: make(map[string]*document)}
}

func key(path string) string { return filepath.Clean(path) }

// Open starts tracking path with the given content, replacing any earlier
// state.
func (dm *DocumentManager) Open(ctx context.Context, path string, version protocol.Integer, content []byte) error {
	doc := &document{version: version, content: content, guard: &sync.Mutex{}}
	if lang, ok := parser.ForPath(path); ok {
		doc.lang = lang
		p, err := parser.NewParser(lang)
		if err != nil {
			return err
		}
		tree, err := p.Parse(ctx, content)
		if err != nil {
			p.Close()
			return fmt.Errorf("open %s: %w", path, err)
		}
		doc.parser = p
		doc.tree = tree
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()
	if old, ok := dm.docs[key(path)]; ok && old.parser != nil {
		old.parser.Close()
	}
	dm.docs[key(path)] = doc
	return nil
}

// Replace swaps the full content of an open document.
func (dm *DocumentManager) Replace(ctx context.Context, path string, version protocol.Integer, content []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	doc, ok := dm.docs[key(path)]
	if !ok {
		return fmt.Errorf("%s: %w", path, ErrNotOpen)
	}
	if doc.parser != nil {
		tree, err := doc.parser.Parse(ctx, content)
		if err != nil {
			return fmt.Errorf("replace %s: %w", path, err)
		}
		doc.tree = tree
		doc.guard = &sync.Mutex{}
	}
	doc.content = content
	doc.version = version
	return nil
}

// ApplyEdits applies edits one after another, each relative to the
// content left by the previous one, and reparses incrementally.
func (dm *DocumentManager) ApplyEdits(ctx context.Context, path string, version protocol.Integer, edits []protocol.TextEdit) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	doc, ok := dm.docs[key(path)]
	if !ok {
		return fmt.Errorf("%s: %w", path, ErrNotOpen)
	}
	content := doc.content
	inputs := make([]sitter.EditInput, 0, len(edits))
	for _, edit := range edits {
		var input sitter.EditInput
		content, input = sitteradapter.ApplyTextEdit(content, edit)
		inputs = append(inputs, input)
	}
	if doc.parser != nil {
		// Old snapshots share the tree that Update edits in place.
		doc.guard.Lock()
		tree, err := doc.parser.Update(ctx, inputs, content)
		doc.guard.Unlock()
		if err != nil {
			return fmt.Errorf("update %s: %w", path, err)
		}
		doc.tree = tree
		doc.guard = &sync.Mutex{}
	}
	doc.content = content
	if version != 0 {
		doc.version = version
	}
	return nil
}

// Get returns the current snapshot of path.
func (dm *DocumentManager) Get(path string) (Snapshot, bool) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	doc, ok := dm.docs[key(path)]
	if !ok {
		return Snapshot{}, false
	}
	return doc.snapshot(key(path)), true
}

// Paths lists the open documents in sorted order.
func (dm *DocumentManager) Paths() []string {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	out := make([]string, 0, len(dm.docs))
	for path := range dm.docs {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// Release frees the parser and document for a path.
func (dm *DocumentManager) Release(path string) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if doc, ok := dm.docs[key(path)]; ok {
		if doc.parser != nil {
			doc.parser.Close()
		}
		delete(dm.docs, key(path))
	}
}

// CloseAll releases every document.
func (dm *DocumentManager) CloseAll() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for path, doc := range dm.docs {
		if doc.parser != nil {
			if err := doc.parser.Close(); err != nil {
				return fmt.Errorf("close parser for %s: %w", path, err)
			}
		}
	}
	dm.docs = make(map[string]*document)
	return nil
}
