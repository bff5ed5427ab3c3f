package scheduler_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lspadapter/internal/scheduler"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTasksRunInOrder(t *testing.T) {
	s := scheduler.NewScheduler(10)
	s.Run()
	defer s.Stop()

	var mu sync.Mutex
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		require.True(t, s.Schedule(scheduler.Task{Name: name, Execute: func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}}))
	}
	s.Wait()
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestFailingTaskDoesNotStopLoop(t *testing.T) {
	s := scheduler.NewScheduler(2)
	s.Run()
	defer s.Stop()

	ran := false
	s.Schedule(scheduler.Task{Name: "fails", Execute: func(context.Context) error { return errors.New("nope") }})
	s.Schedule(scheduler.Task{Name: "next", Execute: func(context.Context) error { ran = true; return nil }})
	s.Wait()
	assert.True(t, ran)
}

func TestTryScheduleDropsWhenFull(t *testing.T) {
	s := scheduler.NewScheduler(1)
	noop := scheduler.Task{Name: "noop", Execute: func(context.Context) error { return nil }}

	assert.True(t, s.TrySchedule(noop))
	assert.False(t, s.TrySchedule(noop))
	s.Run()
	s.Wait()
	assert.True(t, s.TrySchedule(noop))
	s.Stop()
}

func TestPeriodicTask(t *testing.T) {
	s := scheduler.NewScheduler(4)
	s.Run()
	defer s.Stop()

	var runs atomic.Int32
	s.SchedulePeriodicTask(5*time.Millisecond, scheduler.Task{Name: "tick", Execute: func(context.Context) error {
		runs.Add(1)
		return nil
	}})
	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestStopCancelsRunningTask(t *testing.T) {
	s := scheduler.NewScheduler(4)
	s.Run()

	started := make(chan struct{})
	var cancelled atomic.Bool
	s.Schedule(scheduler.Task{Name: "long", Execute: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}})
	var queuedRan atomic.Bool
	s.Schedule(scheduler.Task{Name: "queued", Execute: func(context.Context) error {
		queuedRan.Store(true)
		return nil
	}})
	<-started
	s.Stop()
	s.Wait()

	assert.True(t, cancelled.Load())
	assert.False(t, queuedRan.Load())
	assert.False(t, s.Schedule(scheduler.Task{Name: "late"}))
	assert.False(t, s.TrySchedule(scheduler.Task{Name: "late"}))
}
