// Package workspace is the built-in code-intelligence engine: projects are
// directory trees indexed into SQLite, documents are parsed with
// tree-sitter.
package workspace

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"lspadapter/internal/engine"
	"lspadapter/internal/manager"
	"lspadapter/internal/parser"
	"lspadapter/internal/workspace/store"

	"github.com/pkg/errors"
	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/zeebo/xxh3"
)

var log = commonlog.GetLogger("lspadapter.workspace")

type Options struct {
	// StateDir holds one index database per project. Empty selects the
	// user cache directory.
	StateDir string
	// Workers is the number of parallel index workers and pooled parsers.
	Workers int
	// Extensions limits indexing to these file extensions.
	Extensions []string
	// Rescan is the interval of full index passes. Zero disables them.
	Rescan time.Duration
	// Watch re-indexes files as they change on disk.
	Watch bool
}

var DefaultOptions = Options{
	Workers:    4,
	Extensions: []string{".go", ".java"},
	Rescan:     10 * time.Minute,
	Watch:      true,
}

// Engine implements engine.Engine, engine.Syntax, engine.Navigator,
// engine.Formatter and engine.SymbolSearch.
type Engine struct {
	opts Options
	pool *parser.Pool
	docs *manager.DocumentManager

	mu       sync.Mutex
	projects map[string]*Project
}

func New(opts Options) (*Engine, error) {
	if opts.StateDir == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			return nil, errors.Wrap(err, "locate state directory")
		}
		opts.StateDir = dir
	}
	opts.Workers = max(opts.Workers, 1)
	pool, err := parser.NewPool(opts.Workers)
	if err != nil {
		return nil, err
	}
	return &Engine{
		opts:     opts,
		pool:     pool,
		docs:     manager.NewDocumentManager(),
		projects: make(map[string]*Project),
	}, nil
}

// Documents gives access to the editor buffers the engine reads instead
// of the disk.
func (e *Engine) Documents() *manager.DocumentManager { return e.docs }

// IndexPath returns where the index database of root lives.
func (e *Engine) IndexPath(root string) string {
	name := filepath.Base(root) + "-" + strconv.FormatUint(xxh3.HashString(root), 16)
	return filepath.Join(e.opts.StateDir, "lspadapter", name, "index.db")
}

func (e *Engine) LoadProject(ctx context.Context, root string) (engine.Project, error) {
	if err := engine.CheckCancelled(ctx); err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrapf(err, "load project %s", root)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("load project %s: not a directory", root)
	}

	st, err := store.Open(e.IndexPath(root))
	if err != nil {
		return nil, err
	}
	p := newProject(e, root, st)

	e.mu.Lock()
	old := e.projects[root]
	e.projects[root] = p
	e.mu.Unlock()
	if old != nil {
		if err := old.Dispose(); err != nil {
			log.Warningf("dispose replaced project: %s", err)
		}
	}

	log.Infof("loading project %s", root)
	go p.startup()
	return p, nil
}

func (e *Engine) FindOpenProject(root string) (engine.Project, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.projects[root]
	if !ok || p.Disposed() {
		return nil, false
	}
	return p, true
}

// forget drops p from the open projects unless it was replaced.
func (e *Engine) forget(p *Project) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.projects[p.root] == p {
		delete(e.projects, p.root)
	}
}

func (e *Engine) IsProjectInitialized(p engine.Project) bool {
	wp, ok := p.(*Project)
	return ok && wp.initialized.Load()
}

func (e *Engine) OpenDocument(ctx context.Context, p engine.Project, relPath string) (engine.Document, error) {
	wp, ok := p.(*Project)
	if !ok {
		return nil, errors.Errorf("project %s does not belong to the workspace engine", p.Root())
	}
	path := filepath.Join(wp.root, filepath.FromSlash(relPath))
	if snap, ok := e.docs.Get(path); ok {
		return fromSnapshot(wp, relPath, snap), nil
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, engine.NotFoundf("no document %s in %s", relPath, wp.root)
	}
	if err != nil {
		if info, statErr := os.Stat(path); statErr == nil && info.IsDir() {
			return nil, engine.NotFoundf("%s is a directory", relPath)
		}
		return nil, errors.Wrapf(err, "read %s", relPath)
	}
	return newDocument(wp, relPath, path, content), nil
}

// ApplyTextEdits applies edits to the editor buffer of d, opening one from
// its current content if needed. Edits apply in the given order.
func (e *Engine) ApplyTextEdits(ctx context.Context, d engine.Document, edits []protocol.TextEdit) error {
	doc, err := asDocument(d)
	if err != nil {
		return err
	}
	if _, ok := e.docs.Get(doc.path); !ok {
		if err := e.docs.Open(ctx, doc.path, 0, doc.Content()); err != nil {
			return err
		}
	}
	if err := e.docs.ApplyEdits(ctx, doc.path, 0, edits); err != nil {
		return err
	}
	snap, _ := e.docs.Get(doc.path)
	doc.refresh(snap)
	return nil
}

func (e *Engine) SyntaxTree(ctx context.Context, d engine.Document) (engine.Node, engine.Classifier, error) {
	doc, err := asDocument(d)
	if err != nil {
		return nil, nil, err
	}
	t, err := doc.syntax(ctx, e.pool)
	if err != nil {
		return nil, nil, err
	}
	return tsNode{n: t.root, t: t}, classifier{g: t.g}, nil
}

// Close disposes every project and releases parsers.
func (e *Engine) Close() error {
	e.mu.Lock()
	projects := make([]*Project, 0, len(e.projects))
	for _, p := range e.projects {
		projects = append(projects, p)
	}
	e.mu.Unlock()

	for _, p := range projects {
		if err := p.Dispose(); err != nil {
			log.Warningf("%s", err)
		}
	}
	if err := e.docs.CloseAll(); err != nil {
		return err
	}
	return e.pool.Close()
}
