package thread

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
)

// Queue is a serial executor. Tasks run one at a time, in submission order,
// on a single goroutine locked to its own OS thread.
type Queue struct {
	name   string
	cpu    int
	logger *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool

	tid  atomic.Int64
	done chan struct{}
}

type QueueOption func(*Queue)

// WithCPU pins the queue thread to the given core. Negative values disable
// pinning.
func WithCPU(core int) QueueOption {
	return func(q *Queue) { q.cpu = core }
}

// WithLogger sets the logger used for queue diagnostics.
func WithLogger(l *slog.Logger) QueueOption {
	return func(q *Queue) { q.logger = l }
}

// NewQueue starts a queue. It returns once the worker thread is running.
func NewQueue(name string, opts ...QueueOption) *Queue {
	q := &Queue{
		name:   name,
		cpu:    -1,
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	for _, opt := range opts {
		opt(q)
	}

	ready := make(chan struct{})
	go q.run(ready)
	<-ready
	return q
}

func (q *Queue) run(ready chan struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(q.done)
	defer q.tid.Store(0)

	q.tid.Store(CurrentID())
	if q.cpu >= 0 {
		if err := SetCPUAffinity(q.cpu); err != nil {
			q.logger.Warn("Failed to set queue affinity", "queue", q.name, "cpu", q.cpu, "error", err)
		}
	}
	close(ready)

	for {
		q.mu.Lock()
		for len(q.tasks) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		task()
	}
}

// Submit enqueues fn. It reports false if the queue is closed, in which case
// fn is not run.
func (q *Queue) Submit(fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, fn)
	q.cond.Signal()
	return true
}

// Execute implements async.Executor. Work handed to a closed queue still runs,
// on a fresh goroutine, so observers are never lost.
func (q *Queue) Execute(fn func()) {
	if !q.Submit(fn) {
		q.logger.Debug("Queue closed, running task detached", "queue", q.name)
		go fn()
	}
}

// Sync runs fn on the queue and waits for it to return. Calling Sync from the
// queue itself runs fn inline.
func (q *Queue) Sync(fn func()) bool {
	if q.IsCurrent() {
		fn()
		return true
	}
	finished := make(chan struct{})
	if !q.Submit(func() {
		defer close(finished)
		fn()
	}) {
		return false
	}
	<-finished
	return true
}

// IsCurrent reports whether the caller is running on the queue thread.
func (q *Queue) IsCurrent() bool {
	tid := q.tid.Load()
	return tid != 0 && tid == CurrentID()
}

// Name returns the queue label.
func (q *Queue) Name() string {
	return q.name
}

// Close stops accepting work, drains what is already queued and waits for
// the worker to exit. Closing from the queue itself does not wait.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.cond.Broadcast()
	}
	q.mu.Unlock()

	if q.IsCurrent() {
		return
	}
	<-q.done
}

// Done is closed once the worker has exited.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}
