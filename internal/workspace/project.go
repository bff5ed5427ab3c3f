package workspace

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"lspadapter/internal/scanner"
	"lspadapter/internal/scheduler"
	"lspadapter/internal/workspace/store"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// Project is a directory tree with its declaration index.
type Project struct {
	root   string
	engine *Engine
	store  *store.Store
	sched  *scheduler.Scheduler

	initialized atomic.Bool
	ready       chan struct{}

	mu        sync.Mutex
	disposed  bool
	indexing  bool
	listeners map[int]func(bool)
	next      int
	watcher   *fsnotify.Watcher
	wg        sync.WaitGroup
}

func newProject(e *Engine, root string, st *store.Store) *Project {
	return &Project{
		root:      root,
		engine:    e,
		store:     st,
		sched:     scheduler.NewScheduler(256),
		ready:     make(chan struct{}),
		listeners: make(map[int]func(bool)),
	}
}

func (p *Project) Root() string { return p.root }

// Store exposes the declaration index.
func (p *Project) Store() *store.Store { return p.store }

func (p *Project) Disposed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disposed
}

// Dispose stops background work and closes the index. It is safe to call
// more than once.
func (p *Project) Dispose() error {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return nil
	}
	p.disposed = true
	watcher := p.watcher
	p.watcher = nil
	p.listeners = make(map[int]func(bool))
	p.mu.Unlock()

	p.engine.forget(p)
	p.sched.Stop()
	var errs []error
	if watcher != nil {
		errs = append(errs, watcher.Close())
	}
	p.wg.Wait()
	errs = append(errs, p.store.Close())
	for _, err := range errs {
		if err != nil {
			return errors.Wrapf(err, "dispose %s", p.root)
		}
	}
	log.Infof("disposed project %s", p.root)
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
	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.listeners, id)
		})
	}
}

func (p *Project) setIndexing(indexing bool) {
	p.mu.Lock()
	if p.indexing == indexing {
		p.mu.Unlock()
		return
	}
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

// WaitIndexed blocks until the first index pass finished or ctx ends.
func (p *Project) WaitIndexed(ctx context.Context) error {
	select {
	case <-p.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// rel returns the slash separated path of abs below the root.
func (p *Project) rel(abs string) (string, bool) {
	rel, err := filepath.Rel(p.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// startup runs the start-up activities of a freshly loaded project: the
// file watcher is registered, the project reports itself initialized and
// the first index pass is queued.
func (p *Project) startup() {
	p.sched.Run()
	if p.engine.opts.Watch {
		if err := p.watch(); err != nil {
			log.Warningf("watching %s: %s", p.root, err)
		}
	}
	p.initialized.Store(true)

	index := scheduler.Task{Name: "index " + p.root, Execute: p.indexAll}
	first := scheduler.Task{Name: index.Name, Execute: func(ctx context.Context) error {
		defer close(p.ready)
		return p.indexAll(ctx)
	}}
	if !p.sched.Schedule(first) {
		close(p.ready)
		return
	}
	p.sched.SchedulePeriodicTask(p.engine.opts.Rescan, index)
}

// watch registers every project directory with fsnotify and re-indexes
// files as they change.
func (p *Project) watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dirs, err := scanner.Dirs(p.root)
	if err != nil {
		w.Close()
		return err
	}
	for _, dir := range dirs {
		if err := w.Add(dir); err != nil {
			log.Debugf("watch %s: %s", dir, err)
		}
	}

	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return w.Close()
	}
	p.watcher = w
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				p.handleEvent(w, event)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warningf("watcher error in %s: %s", p.root, err)
			}
		}
	}()
	return nil
}

func (p *Project) handleEvent(w *fsnotify.Watcher, event fsnotify.Event) {
	rel, ok := p.rel(event.Name)
	if !ok || rel == "." {
		return
	}
	switch {
	case event.Has(fsnotify.Create) && isDir(event.Name):
		if !scanner.IgnoreDir(event.Name) {
			_ = w.Add(event.Name)
			p.sched.TrySchedule(scheduler.Task{Name: "index " + rel, Execute: p.indexAll})
		}
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		p.sched.TrySchedule(scheduler.Task{Name: "remove " + rel, Execute: func(context.Context) error {
			return p.removeFile(rel)
		}})
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		p.sched.TrySchedule(scheduler.Task{Name: "reindex " + rel, Execute: func(ctx context.Context) error {
			return p.reindexFile(ctx, event.Name)
		}})
	}
}
