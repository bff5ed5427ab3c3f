package project_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lspadapter/internal/engine"
	"lspadapter/internal/engine/enginetest"
	"lspadapter/internal/project"
	"lspadapter/internal/uri"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T, e engine.Engine, opts project.Options) *project.Cache {
	t.Helper()
	if opts.PollInterval == 0 {
		opts.PollInterval = 5 * time.Millisecond
	}
	c, err := project.New(e, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestResolveReturnsSameHandle(t *testing.T) {
	e := enginetest.NewEngine()
	c := newCache(t, e, project.Options{})
	root := t.TempDir()

	first, err := c.Resolve(context.Background(), root)
	require.NoError(t, err)
	second, err := c.Resolve(context.Background(), uri.FromPath(root)+"/")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.EqualValues(t, 1, e.Loads.Load())
	assert.Equal(t, 1, c.Len())
}

func TestResolveReloadsDisposedProjectOnce(t *testing.T) {
	e := enginetest.NewEngine()
	c := newCache(t, e, project.Options{})
	root := t.TempDir()

	first, err := c.Resolve(context.Background(), root)
	require.NoError(t, err)
	require.NoError(t, first.Dispose())

	second, err := c.Resolve(context.Background(), root)
	require.NoError(t, err)
	third, err := c.Resolve(context.Background(), root)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Same(t, second, third)
	assert.False(t, second.Disposed())
	assert.EqualValues(t, 2, e.Loads.Load())
}

func TestKeyKeepsPercentInPlainPath(t *testing.T) {
	root := filepath.Join(t.TempDir(), "a%20b")
	require.NoError(t, os.Mkdir(root, 0o755))
	assert.Equal(t, root, project.Key(root))
	assert.Equal(t, filepath.FromSlash("/tmp/a b"), project.Key("file:///tmp/a%20b"))

	c := newCache(t, enginetest.NewEngine(), project.Options{})
	p, err := c.Resolve(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, root, p.Root())

	c.Invalidate(root)
	assert.Equal(t, 0, c.Len())
}

func TestResolveMissingPath(t *testing.T) {
	c := newCache(t, enginetest.NewEngine(), project.Options{})

	_, err := c.Resolve(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, engine.ErrNotFound)

	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = c.Resolve(context.Background(), file)
	assert.ErrorIs(t, err, engine.ErrNotFound)
	assert.Equal(t, 0, c.Len())
}

func TestResolveLoadFailure(t *testing.T) {
	e := enginetest.NewEngine()
	e.LoadErr = errors.New("malformed project metadata")
	c := newCache(t, e, project.Options{})
	root := t.TempDir()

	p, err := c.Resolve(context.Background(), root)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, engine.ErrLoadFailure)
	assert.Equal(t, 0, c.Len())

	e.LoadErr = nil
	p, err = c.Resolve(context.Background(), root)
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestResolveTimeout(t *testing.T) {
	e := enginetest.NewEngine()
	e.StartUninitialized = true
	c := newCache(t, e, project.Options{InitTimeout: 30 * time.Millisecond})
	root := t.TempDir()

	_, err := c.Resolve(context.Background(), root)
	assert.ErrorIs(t, err, engine.ErrTimeout)
	assert.Equal(t, 0, c.Len())
	assert.True(t, e.Project(root).Disposed(), "half-initialized project is released")
}

func TestResolveWaitsForInitialization(t *testing.T) {
	e := enginetest.NewEngine()
	e.StartUninitialized = true
	c := newCache(t, e, project.Options{InitTimeout: 5 * time.Second})
	root := t.TempDir()

	go func() {
		assert.Eventually(t, func() bool { return e.Project(root) != nil }, time.Second, time.Millisecond)
		time.Sleep(20 * time.Millisecond)
		e.Project(root).Initialized.Store(true)
	}()

	p, err := c.Resolve(context.Background(), root)
	require.NoError(t, err)
	assert.True(t, e.IsProjectInitialized(p))
}

func TestResolveCancelled(t *testing.T) {
	e := enginetest.NewEngine()
	e.StartUninitialized = true
	c := newCache(t, e, project.Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Resolve(ctx, t.TempDir())
	assert.ErrorIs(t, err, engine.ErrCancelled)
}

func TestConcurrentResolveLoadsOnce(t *testing.T) {
	e := enginetest.NewEngine()
	e.Gate = make(chan struct{})
	c := newCache(t, e, project.Options{})
	root := t.TempDir()

	const n = 16
	results := make([]engine.Project, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := c.Resolve(context.Background(), root)
			assert.NoError(t, err)
			results[i] = p
		}(i)
	}

	assert.Eventually(t, func() bool { return e.Loads.Load() == 1 }, time.Second, time.Millisecond)
	close(e.Gate)
	wg.Wait()

	assert.EqualValues(t, 1, e.Loads.Load())
	for _, p := range results {
		assert.Same(t, results[0], p)
	}
}

func TestResolveReusesOpenProject(t *testing.T) {
	e := enginetest.NewEngine()
	root := t.TempDir()
	open := enginetest.NewProject(project.Key(root))
	open.Initialized.Store(true)
	e.MarkOpen(open)
	c := newCache(t, e, project.Options{})

	p, err := c.Resolve(context.Background(), root)
	require.NoError(t, err)
	assert.Same(t, open, p)
	assert.EqualValues(t, 0, e.Loads.Load())
}

func TestRegisterIndexNotifier(t *testing.T) {
	e := enginetest.NewEngine()
	c := newCache(t, e, project.Options{})
	p, err := c.Resolve(context.Background(), t.TempDir())
	require.NoError(t, err)
	fake := p.(*enginetest.Project)

	var started, finished, recomputed atomic.Int32
	l := project.IndexListener{
		Started:              func() { started.Add(1) },
		Finished:             func() { finished.Add(1) },
		RecomputeDiagnostics: func() { recomputed.Add(1) },
	}

	require.NoError(t, c.RegisterIndexNotifier(p, l))
	require.NoError(t, c.RegisterIndexNotifier(p, l))
	assert.Equal(t, 1, fake.Listeners())

	fake.SetIndexing(true)
	fake.SetIndexing(false)
	assert.EqualValues(t, 1, started.Load())
	assert.EqualValues(t, 1, finished.Load())
	assert.EqualValues(t, 1, recomputed.Load())
}

func TestRegisterIndexNotifierWhileIndexing(t *testing.T) {
	e := enginetest.NewEngine()
	c := newCache(t, e, project.Options{})
	p, err := c.Resolve(context.Background(), t.TempDir())
	require.NoError(t, err)
	p.(*enginetest.Project).SetIndexing(true)

	var started atomic.Int32
	require.NoError(t, c.RegisterIndexNotifier(p, project.IndexListener{Started: func() { started.Add(1) }}))
	assert.EqualValues(t, 1, started.Load())
}

func TestRegisterIndexNotifierUnknownProject(t *testing.T) {
	c := newCache(t, enginetest.NewEngine(), project.Options{})
	err := c.RegisterIndexNotifier(enginetest.NewProject(t.TempDir()), project.IndexListener{})
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestInvalidateReleasesListenerBeforeRemoval(t *testing.T) {
	e := enginetest.NewEngine()
	c := newCache(t, e, project.Options{})
	root := t.TempDir()
	p, err := c.Resolve(context.Background(), root)
	require.NoError(t, err)
	fake := p.(*enginetest.Project)

	var started atomic.Int32
	require.NoError(t, c.RegisterIndexNotifier(p, project.IndexListener{Started: func() { started.Add(1) }}))

	c.Invalidate(root)
	assert.Equal(t, 0, c.Len())
	assert.EqualValues(t, 1, fake.Unsubscribe.Load())
	assert.Equal(t, 0, fake.Listeners())
	assert.True(t, fake.Disposed())

	fake.SetIndexing(true)
	assert.EqualValues(t, 0, started.Load())

	again, err := c.Resolve(context.Background(), root)
	require.NoError(t, err)
	assert.NotSame(t, p, again)
}

func TestEvictingDisposedProjectReleasesListener(t *testing.T) {
	e := enginetest.NewEngine()
	c := newCache(t, e, project.Options{})
	root := t.TempDir()
	p, err := c.Resolve(context.Background(), root)
	require.NoError(t, err)
	fake := p.(*enginetest.Project)
	require.NoError(t, c.RegisterIndexNotifier(p, project.IndexListener{}))

	require.NoError(t, p.Dispose())
	_, err = c.Resolve(context.Background(), root)
	require.NoError(t, err)
	assert.EqualValues(t, 1, fake.Unsubscribe.Load())
}

func TestRemovedRootIsInvalidated(t *testing.T) {
	e := enginetest.NewEngine()
	c := newCache(t, e, project.Options{Watch: true})
	root := filepath.Join(t.TempDir(), "workspace")
	require.NoError(t, os.Mkdir(root, 0o755))

	p, err := c.Resolve(context.Background(), root)
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(root))
	assert.Eventually(t, func() bool { return c.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, p.Disposed())
}
