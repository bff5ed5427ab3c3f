// Package scheduler runs background tasks one at a time in queue order.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("lspadapter.scheduler")

type Task struct {
	Name    string
	Execute func(ctx context.Context) error
}

// Scheduler executes queued tasks sequentially on a single goroutine.
// Tasks receive a context that is cancelled by Stop.
type Scheduler struct {
	taskQueue chan Task
	ctx       context.Context
	cancel    context.CancelFunc

	mu      sync.Mutex
	stopped bool
	pending sync.WaitGroup
	loops   sync.WaitGroup
}

// NewScheduler creates a Scheduler with the specified queue size.
func NewScheduler(queueSize int) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		taskQueue: make(chan Task, max(queueSize, 1)),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Run starts the scheduler loop.
func (s *Scheduler) Run() {
	s.loops.Add(1)
	go func() {
		defer s.loops.Done()
		for {
			select {
			case task := <-s.taskQueue:
				s.execute(task)
			case <-s.ctx.Done():
				s.drain()
				return
			}
		}
	}()
}

func (s *Scheduler) execute(task Task) {
	defer s.pending.Done()
	if s.ctx.Err() != nil {
		log.Debugf("dropping %s task", task.Name)
		return
	}
	log.Debugf("executing %s task", task.Name)
	if err := task.Execute(s.ctx); err != nil && s.ctx.Err() == nil {
		log.Errorf("%s task: %s", task.Name, err)
	}
}

// drain releases queued tasks after Stop without running them.
func (s *Scheduler) drain() {
	for {
		select {
		case task := <-s.taskQueue:
			log.Debugf("dropping %s task", task.Name)
			s.pending.Done()
		default:
			return
		}
	}
}

// Schedule queues a task, waiting for room in the queue. It reports false
// once the scheduler is stopped.
func (s *Scheduler) Schedule(task Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.pending.Add(1)
	select {
	case s.taskQueue <- task:
		return true
	case <-s.ctx.Done():
		s.pending.Done()
		return false
	}
}

// TrySchedule queues a task unless the queue is full or the scheduler is
// stopped.
func (s *Scheduler) TrySchedule(task Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.pending.Add(1)
	select {
	case s.taskQueue <- task:
		return true
	default:
		s.pending.Done()
		log.Debugf("skipped scheduling %s, queue is full", task.Name)
		return false
	}
}

// SchedulePeriodicTask queues task every interval until Stop. A tick is
// skipped while the queue is full.
func (s *Scheduler) SchedulePeriodicTask(interval time.Duration, task Task) {
	if interval <= 0 {
		return
	}
	s.loops.Add(1)
	go func() {
		defer s.loops.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.TrySchedule(task)
			case <-s.ctx.Done():
				return
			}
		}
	}()
}

// Wait blocks until every task queued so far has finished.
func (s *Scheduler) Wait() {
	s.pending.Wait()
}

// Stop cancels running work, drops queued tasks and waits for the
// scheduler goroutines to exit.
func (s *Scheduler) Stop() {
	s.cancel()
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	log.Debug("stopping scheduler")
	s.loops.Wait()
	s.drain()
}
