// Package tasks runs work detached from the request that scheduled it.
package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/AGO523/node-news-notification/internal/metrics"
)

// Task is a unit of detached work. The context it receives belongs to the
// runner, never to the originating request.
type Task func(ctx context.Context)

// Runner executes tasks on a fixed worker pool fed by a bounded queue.
// Task outcomes are never reported back to the scheduler; failures are only
// visible through logs and metrics.
type Runner struct {
	queue       chan Task
	taskTimeout time.Duration
	wg          sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewRunner starts workers goroutines draining a queue of queueSize slots.
// Each task runs with its own deadline of taskTimeout.
func NewRunner(workers, queueSize int, taskTimeout time.Duration) *Runner {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}

	r := &Runner{
		queue:       make(chan Task, queueSize),
		taskTimeout: taskTimeout,
	}

	r.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go r.worker()
	}

	return r
}

// Submit enqueues a task without blocking. It reports false when the queue
// is full or the runner is closed; the caller treats that as a logged drop,
// never as a request failure.
func (r *Runner) Submit(task Task) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}

	select {
	case r.queue <- task:
		r.mu.Unlock()
		metrics.TasksQueued.Inc()
		return true
	default:
		r.mu.Unlock()
		metrics.TasksDropped.Inc()
		return false
	}
}

// Close stops accepting tasks and waits for queued work to finish.
func (r *Runner) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
}

// Depth returns the number of queued tasks.
func (r *Runner) Depth() int {
	return len(r.queue)
}

func (r *Runner) worker() {
	defer r.wg.Done()

	for task := range r.queue {
		metrics.TasksQueued.Dec()
		r.run(task)
	}
}

func (r *Runner) run(task Task) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("detached task panicked", slog.Any("panic", rec))
		}
	}()

	// Detached tasks are deliberately decoupled from any request lifetime.
	ctx := context.Background()
	if r.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.taskTimeout)
		defer cancel()
	}

	task(ctx)
}
