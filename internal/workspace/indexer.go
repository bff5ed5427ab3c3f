package workspace

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"lspadapter/internal/engine"
	"lspadapter/internal/metrics"
	"lspadapter/internal/parser"
	"lspadapter/internal/scanner"
	"lspadapter/internal/symbols"
	"lspadapter/internal/workspace/store"

	"github.com/pkg/errors"
	"github.com/zeebo/xxh3"
)

// indexAll brings the index in line with the files on disk. Files whose
// content hash is unchanged are skipped and files that disappeared are
// dropped.
func (p *Project) indexAll(ctx context.Context) error {
	p.setIndexing(true)
	defer p.setIndexing(false)
	start := time.Now()

	var mu sync.Mutex
	seen := make(map[string]bool)
	err := scanner.Scan(ctx, p.root, scanner.Options{
		Workers:    p.engine.opts.Workers,
		Extensions: p.engine.opts.Extensions,
	}, func(path string, content []byte) error {
		rel, ok := p.rel(path)
		if !ok {
			return nil
		}
		mu.Lock()
		seen[rel] = true
		mu.Unlock()
		return p.indexFile(ctx, rel, content)
	})
	if err != nil {
		return errors.Wrapf(err, "index %s", p.root)
	}

	paths, err := p.store.Paths()
	if err != nil {
		return err
	}
	for _, rel := range paths {
		if !seen[rel] {
			if err := p.removeFile(rel); err != nil {
				return err
			}
		}
	}
	log.Infof("indexed %d files of %s in %s", len(seen), p.root, time.Since(start))
	return nil
}

// reindexFile indexes one file after a change on disk.
func (p *Project) reindexFile(ctx context.Context, path string) error {
	rel, ok := p.rel(path)
	if !ok || !p.accepts(path) {
		return nil
	}
	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return p.removeFile(rel)
	}
	if err != nil {
		return err
	}
	p.setIndexing(true)
	defer p.setIndexing(false)
	return p.indexFile(ctx, rel, content)
}

func (p *Project) accepts(path string) bool {
	if _, ok := parser.ForPath(path); !ok {
		return false
	}
	exts := p.engine.opts.Extensions
	if len(exts) == 0 {
		return true
	}
	for _, ext := range exts {
		if ext == filepath.Ext(path) {
			return true
		}
	}
	return false
}

func (p *Project) removeFile(rel string) error {
	if _, err := p.store.File(rel); errors.Is(err, store.ErrNotFound) {
		return nil
	}
	metrics.IndexedFiles.WithLabelValues("removed").Inc()
	return p.store.Delete(rel)
}

// indexFile stores the declarations of one file unless its hash matches
// the indexed one. Files that fail to parse are logged and skipped; only
// store failures and cancellation are returned.
func (p *Project) indexFile(ctx context.Context, rel string, content []byte) error {
	lang, ok := parser.ForPath(rel)
	if !ok {
		return nil
	}
	hash := xxh3.Hash(content)
	if rec, err := p.store.File(rel); err == nil && rec.Hash == hash {
		metrics.IndexedFiles.WithLabelValues("unchanged").Inc()
		return nil
	}

	t, err := p.engine.pool.Parse(ctx, lang, content)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.IndexedFiles.WithLabelValues("failed").Inc()
		log.Warningf("parse %s: %s", rel, err)
		return nil
	}
	decls, err := declarations(ctx, newTree(t, content, nil, grammarFor(lang)))
	if err != nil {
		return err
	}
	for i := range decls {
		decls[i].Path = rel
	}

	err = p.store.Replace(store.FileRecord{
		Path:      rel,
		Language:  string(lang),
		Hash:      hash,
		IndexedAt: time.Now(),
	}, decls)
	if err != nil {
		return err
	}
	metrics.IndexedFiles.WithLabelValues("indexed").Inc()
	return nil
}

// declarations extracts the indexable declarations of a tree.
func declarations(ctx context.Context, t *tree) ([]store.Declaration, error) {
	c := classifier{g: t.g}
	syms, err := symbols.Extract(ctx, tsNode{n: t.root, t: t}, c)
	if err != nil {
		return nil, err
	}

	t.guard.Lock()
	defer t.guard.Unlock()
	decls := make([]store.Declaration, 0, len(syms))
	for _, sym := range syms {
		d := store.Declaration{Name: sym.Name, Kind: sym.Kind, Range: sym.Range}
		if sym.ContainerName != nil {
			d.Container = *sym.ContainerName
		}
		container, typeName, supers := t.g.details(sym.Node().(tsNode).n, t.src)
		if container != "" {
			d.Container = container
		}
		d.TypeName = typeName
		d.Supertypes = supers
		decls = append(decls, d)
	}
	return decls, engine.CheckCancelled(ctx)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
