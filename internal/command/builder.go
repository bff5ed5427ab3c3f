package command

import (
	"context"
	"sort"
	"sync"

	"lspadapter/internal/engine"
	"lspadapter/internal/project"
	"lspadapter/internal/uri"

	"github.com/pkg/errors"
)

// Builder resolves request URIs to execution contexts.
type Builder struct {
	projects        *project.Cache
	engine          engine.Engine
	caseInsensitive bool

	mu    sync.RWMutex
	roots []string

	// OnProject, if set, runs for every project a context is built for.
	OnProject func(engine.Project)
}

func NewBuilder(projects *project.Cache, e engine.Engine, caseInsensitive bool) *Builder {
	return &Builder{projects: projects, engine: e, caseInsensitive: caseInsensitive}
}

// AddRoot registers a workspace root URI.
func (b *Builder) AddRoot(root string) {
	root = uri.Normalize(root)

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.roots {
		if r == root {
			return
		}
	}
	b.roots = append(b.roots, root)
	// longest first so nested roots win
	sort.SliceStable(b.roots, func(i, j int) bool { return len(b.roots[i]) > len(b.roots[j]) })
}

// RemoveRoot forgets a workspace root and invalidates its project.
func (b *Builder) RemoveRoot(root string) {
	root = uri.Normalize(root)

	b.mu.Lock()
	for i, r := range b.roots {
		if r == root {
			b.roots = append(b.roots[:i], b.roots[i+1:]...)
			break
		}
	}
	b.mu.Unlock()

	b.projects.Invalidate(root)
}

// Roots returns the registered workspace roots.
func (b *Builder) Roots() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.roots...)
}

// RootFor returns the workspace root containing documentURI and the
// document's path relative to it.
func (b *Builder) RootFor(documentURI string) (root, rel string, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, r := range b.roots {
		if rel, ok := uri.RelativePath(r, documentURI, b.caseInsensitive); ok {
			return r, rel, true
		}
	}
	return "", "", false
}

// Build resolves documentURI to its project and document. Every failure
// other than cancellation is reported as engine.ErrNotFound wrapping the
// cause.
func (b *Builder) Build(ctx context.Context, documentURI string) (*ExecutionContext, error) {
	root, rel, ok := b.RootFor(documentURI)
	if !ok || rel == "" {
		return nil, engine.NotFoundf("document %s is not inside a workspace root", documentURI)
	}
	ec, err := b.BuildProject(ctx, root)
	if err != nil {
		return nil, err
	}
	doc, err := b.engine.OpenDocument(ctx, ec.Project, rel)
	if err != nil {
		return nil, notFound(err, "failed to open %s", rel)
	}
	ec.Document = doc
	return ec, nil
}

// BuildProject resolves a workspace root to a project-wide context.
func (b *Builder) BuildProject(ctx context.Context, root string) (*ExecutionContext, error) {
	p, err := b.projects.Resolve(ctx, root)
	if err != nil {
		return nil, notFound(err, "failed to resolve project %s", root)
	}
	if b.OnProject != nil {
		b.OnProject(p)
	}
	return &ExecutionContext{Ctx: ctx, Project: p}, nil
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, engine.ErrCancelled) {
		return err
	}
	return engine.Mark(engine.ErrNotFound, errors.Wrapf(err, format, args...))
}
