package command

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"lspadapter/internal/engine"
	"lspadapter/internal/metrics"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("lspadapter.command")

// Executor runs commands. Read commands share the engine, a write command
// excludes every other command while it runs.
type Executor struct {
	builder *Builder
	lock    sync.RWMutex
}

func NewExecutor(b *Builder) *Executor {
	return &Executor{builder: b}
}

// Builder returns the context builder commands are bound with.
func (x *Executor) Builder() *Builder {
	return x.builder
}

// Run executes cmd against the document at documentURI. Resolution
// failures return before cmd runs.
func Run[R any](ctx context.Context, x *Executor, documentURI string, cmd Command[R]) (R, error) {
	return run(x, cmd, func() (*ExecutionContext, error) {
		return x.builder.Build(ctx, documentURI)
	})
}

// RunInProject executes cmd against the project rooted at root.
func RunInProject[R any](ctx context.Context, x *Executor, root string, cmd Command[R]) (R, error) {
	return run(x, cmd, func() (*ExecutionContext, error) {
		return x.builder.BuildProject(ctx, root)
	})
}

// RunUnbound executes cmd without a project or document.
func RunUnbound[R any](ctx context.Context, x *Executor, cmd Command[R]) (R, error) {
	return run(x, cmd, func() (*ExecutionContext, error) {
		return &ExecutionContext{Ctx: ctx}, nil
	})
}

func run[R any](x *Executor, cmd Command[R], build func() (*ExecutionContext, error)) (result R, err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = engine.Classify(err).Error()
		}
		metrics.ObserveCommand(cmd.Name(), outcome, start)
	}()

	ec, err := build()
	if err != nil {
		log.Debugf("%s: %s", cmd.Name(), err.Error())
		return result, err
	}

	if cmd.Access() == Write {
		x.lock.Lock()
		defer x.lock.Unlock()
	} else {
		x.lock.RLock()
		defer x.lock.RUnlock()
	}

	// The request may have been cancelled while waiting for the lock.
	if err := ec.Check(); err != nil {
		return result, err
	}

	return execute(ec, cmd)
}

func execute[R any](ec *ExecutionContext, cmd Command[R]) (result R, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("%s panicked: %v\n%s", cmd.Name(), r, debug.Stack())
			var zero R
			result, err = zero, engine.Mark(engine.ErrEngineFailure, fmt.Errorf("%s: %v", cmd.Name(), r))
		}
	}()

	result, err = cmd.Execute(ec)
	if err == nil {
		return result, nil
	}

	switch kind := engine.Classify(err); kind {
	case engine.ErrCancelled:
		log.Debugf("%s cancelled", cmd.Name())
	case engine.ErrNotFound:
		log.Infof("%s: %s", cmd.Name(), err.Error())
	default:
		log.Errorf("%s failed: %s", cmd.Name(), err.Error())
		err = engine.Mark(kind, err)
	}
	var zero R
	return zero, err
}
