// Package project maps workspace roots to loaded engine projects.
package project

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"lspadapter/internal/engine"
	"lspadapter/internal/metrics"
	"lspadapter/internal/uri"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/tliron/commonlog"
	"golang.org/x/sync/singleflight"
)

var log = commonlog.GetLogger("lspadapter.project")

type Options struct {
	// InitTimeout bounds the wait for a freshly loaded project to report
	// itself initialized. Zero waits until the context ends.
	InitTimeout time.Duration
	// PollInterval is how often initialization is checked.
	PollInterval time.Duration
	// CaseInsensitive folds case when comparing root paths.
	CaseInsensitive bool
	// Watch invalidates entries whose root directory disappears.
	Watch bool
}

// DefaultOptions mirror the engine's usual start-up behaviour.
var DefaultOptions = Options{
	InitTimeout:     2 * time.Minute,
	PollInterval:    time.Second,
	CaseInsensitive: uri.CaseInsensitiveFS(),
	Watch:           true,
}

// IndexListener receives indexing state transitions of one project.
type IndexListener struct {
	Started              func()
	Finished             func()
	RecomputeDiagnostics func()
}

type entry struct {
	project  engine.Project
	notifier bool
	// release runs before the entry leaves the map.
	release []func()
}

// Cache holds at most one live project per canonical root path.
type Cache struct {
	loader engine.Engine
	opts   Options

	mu      sync.Mutex
	entries map[string]*entry
	flight  singleflight.Group

	watcher *fsnotify.Watcher
	done    chan struct{}
	closed  sync.Once
	wg      sync.WaitGroup
}

// New creates a cache that loads projects through loader.
func New(loader engine.Engine, opts Options) (*Cache, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultOptions.PollInterval
	}
	c := &Cache{
		loader:  loader,
		opts:    opts,
		entries: make(map[string]*entry),
		done:    make(chan struct{}),
	}
	if opts.Watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, errors.Wrap(err, "failed to create project watcher")
		}
		c.watcher = w
		c.wg.Add(1)
		go c.watch()
	}
	return c, nil
}

// Key returns the canonical filesystem path for a root given as URI or path.
// Only URIs are percent-decoded; a plain path is taken literally.
func Key(root string) string {
	if strings.HasPrefix(root, "file:") {
		return filepath.Clean(uri.ToFilesystemPath(root))
	}
	return filepath.Clean(root)
}

func (c *Cache) mapKey(path string) string {
	if c.opts.CaseInsensitive {
		return strings.ToLower(path)
	}
	return path
}

// Resolve returns the live project for root, loading it on first use.
// Concurrent calls for the same root share one load.
func (c *Cache) Resolve(ctx context.Context, root string) (engine.Project, error) {
	path := Key(root)
	key := c.mapKey(path)

	if p, ok := c.lookup(key); ok {
		metrics.ProjectCache.WithLabelValues("hit").Inc()
		return p, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, engine.Mark(engine.ErrNotFound, err)
	}
	if !info.IsDir() {
		return nil, engine.NotFoundf("project root %s is not a directory", path)
	}

	v, err, _ := c.flight.Do(key, func() (any, error) {
		if p, ok := c.lookup(key); ok {
			return p, nil
		}
		return c.open(ctx, path, key)
	})
	if err != nil {
		return nil, err
	}
	return v.(engine.Project), nil
}

// lookup returns the cached live project, evicting a disposed one.
func (c *Cache) lookup(key string) (engine.Project, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if e.project.Disposed() {
		log.Infof("evicting disposed project %s", e.project.Root())
		c.evictLocked(key, e)
		metrics.ProjectCache.WithLabelValues("evict").Inc()
		return nil, false
	}
	return e.project, true
}

func (c *Cache) open(ctx context.Context, path, key string) (p engine.Project, err error) {
	var cleanup []func()
	defer func() {
		if err != nil {
			runAll(cleanup)
		}
	}()

	p, found := c.loader.FindOpenProject(path)
	if found {
		log.Infof("reusing already open project %s", path)
	} else {
		log.Infof("loading project %s", path)
		p, err = c.loader.LoadProject(ctx, path)
		if err != nil {
			log.Errorf("failed to load project %s: %s", path, err.Error())
			metrics.ProjectCache.WithLabelValues("load_failure").Inc()
			if errors.Is(err, engine.ErrCancelled) {
				return nil, err
			}
			return nil, engine.Mark(engine.ErrLoadFailure, err)
		}
		loaded := p
		cleanup = append(cleanup, func() {
			if err := loaded.Dispose(); err != nil {
				log.Warningf("failed to dispose %s: %s", path, err.Error())
			}
		})
	}

	if err := c.awaitInitialized(ctx, p); err != nil {
		log.Warningf("project %s did not initialize: %s", path, err.Error())
		return nil, err
	}

	e := &entry{project: p}
	if c.watcher != nil {
		if err := c.watcher.Add(path); err != nil {
			log.Warningf("cannot watch %s: %s", path, err.Error())
		} else {
			e.release = append(e.release, func() { _ = c.watcher.Remove(path) })
		}
	}

	c.mu.Lock()
	if old, ok := c.entries[key]; ok {
		c.evictLocked(key, old)
		if old.project != p {
			go disposeProject(old.project)
		}
	}
	c.entries[key] = e
	c.mu.Unlock()

	metrics.ProjectCache.WithLabelValues("load").Inc()
	return p, nil
}

func (c *Cache) awaitInitialized(ctx context.Context, p engine.Project) error {
	if c.loader.IsProjectInitialized(p) {
		return nil
	}

	var deadline <-chan time.Time
	if c.opts.InitTimeout > 0 {
		timer := time.NewTimer(c.opts.InitTimeout)
		defer timer.Stop()
		deadline = timer.C
	}
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return engine.Mark(engine.ErrCancelled, ctx.Err())
		case <-deadline:
			return engine.Mark(engine.ErrTimeout,
				errors.Errorf("project %s not initialized after %s", p.Root(), c.opts.InitTimeout))
		case <-ticker.C:
			if c.loader.IsProjectInitialized(p) {
				return nil
			}
		}
	}
}

// Invalidate drops the entry for root and disposes its project.
func (c *Cache) Invalidate(root string) {
	key := c.mapKey(Key(root))

	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		c.evictLocked(key, e)
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	log.Infof("invalidated project %s", e.project.Root())
	metrics.ProjectCache.WithLabelValues("invalidate").Inc()
	disposeProject(e.project)
}

// RegisterIndexNotifier attaches l to a cached project. Only the first
// registration per project takes effect. If the project is indexing
// already, Started fires before this returns.
func (c *Cache) RegisterIndexNotifier(p engine.Project, l IndexListener) error {
	key := c.mapKey(Key(p.Root()))

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok || e.project != p {
		c.mu.Unlock()
		return engine.NotFoundf("project %s is not cached", p.Root())
	}
	if e.notifier {
		c.mu.Unlock()
		return nil
	}
	e.notifier = true
	unsubscribe := p.OnIndexingChange(func(indexing bool) {
		if indexing {
			call(l.Started)
			return
		}
		call(l.Finished)
		call(l.RecomputeDiagnostics)
	})
	e.release = append(e.release, unsubscribe)
	indexing := p.Indexing()
	c.mu.Unlock()

	if indexing {
		call(l.Started)
	}
	return nil
}

// Len returns the number of cached projects.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops watching and disposes every cached project. Later calls
// are no-ops.
func (c *Cache) Close() (err error) {
	c.closed.Do(func() { err = c.close() })
	return err
}

func (c *Cache) close() error {
	close(c.done)
	var err error
	if c.watcher != nil {
		err = c.watcher.Close()
	}
	c.wg.Wait()

	c.mu.Lock()
	projects := make([]engine.Project, 0, len(c.entries))
	for key, e := range c.entries {
		c.evictLocked(key, e)
		projects = append(projects, e.project)
	}
	c.mu.Unlock()

	for _, p := range projects {
		disposeProject(p)
	}
	return err
}

func (c *Cache) evictLocked(key string, e *entry) {
	runAll(e.release)
	e.release = nil
	delete(c.entries, key)
}

func (c *Cache) watch() {
	defer c.wg.Done()
	for {
		select {
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			path := filepath.Clean(event.Name)
			c.mu.Lock()
			_, cached := c.entries[c.mapKey(path)]
			c.mu.Unlock()
			if cached {
				log.Infof("project root %s went away", path)
				// Invalidate removes the watch, which must not happen on
				// the goroutine draining watcher events.
				c.wg.Add(1)
				go func() {
					defer c.wg.Done()
					c.Invalidate(path)
				}()
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			log.Warningf("project watcher: %s", err.Error())
		case <-c.done:
			return
		}
	}
}

func disposeProject(p engine.Project) {
	if p.Disposed() {
		return
	}
	if err := p.Dispose(); err != nil {
		log.Warningf("failed to dispose %s: %s", p.Root(), err.Error())
	}
}

func runAll(fns []func()) {
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}
