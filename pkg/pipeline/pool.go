package pipeline

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultCoreWorkers = 5
	defaultMaxWorkers  = 10
	defaultQueueDepth  = 100
)

// ErrSaturated is returned when the task queue is full and no additional
// worker can be spawned. Submissions are rejected rather than blocked so
// upload handlers never hang on a busy pipeline.
var ErrSaturated = errors.New("pipeline saturated")

// ErrClosed is returned for submissions after shutdown began.
var ErrClosed = errors.New("pipeline shut down")

// Pool runs pipeline tasks on a bounded set of workers. A fixed core of
// workers drains a bounded queue; when the queue is full, overflow workers
// are spawned up to a maximum and exit once the queue is empty again.
type Pool struct {
	tasks       chan func()
	workers     sync.WaitGroup
	mu          sync.Mutex
	closed      bool
	overflow    int
	maxOverflow int
}

// NewPool starts the core workers. Zero or negative arguments fall back to
// the defaults (5 core, 10 max, queue depth 100).
func NewPool(coreWorkers, maxWorkers, queueDepth int) *Pool {
	if coreWorkers <= 0 {
		coreWorkers = defaultCoreWorkers
	}
	if maxWorkers <= 0 {
		maxWorkers = defaultMaxWorkers
	}
	if maxWorkers < coreWorkers {
		maxWorkers = coreWorkers
	}
	if queueDepth <= 0 {
		queueDepth = defaultQueueDepth
	}
	p := &Pool{
		tasks:       make(chan func(), queueDepth),
		maxOverflow: maxWorkers - coreWorkers,
	}
	for i := 0; i < coreWorkers; i++ {
		p.workers.Add(1)
		go p.coreWorker()
	}
	return p
}

// Submit enqueues a task without blocking. It returns ErrSaturated when the
// queue is full and the worker ceiling is reached, and ErrClosed after
// shutdown began.
func (p *Pool) Submit(task func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	select {
	case p.tasks <- task:
		p.mu.Unlock()
		return nil
	default:
	}
	if p.overflow >= p.maxOverflow {
		p.mu.Unlock()
		return ErrSaturated
	}
	p.overflow++
	p.workers.Add(1)
	p.mu.Unlock()
	go p.overflowWorker(task)
	return nil
}

// Close stops accepting tasks and waits for queued and in-flight work, up
// to the given timeout. A timeout means tasks were abandoned mid-flight and
// their recordings may be stranded in processing.
func (p *Pool) Close(timeout time.Duration) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.New("pipeline shutdown timed out with tasks in flight")
	}
}

func (p *Pool) coreWorker() {
	defer p.workers.Done()
	for task := range p.tasks {
		runTask(task)
	}
}

func (p *Pool) overflowWorker(first func()) {
	defer p.workers.Done()
	runTask(first)
	for {
		select {
		case task, ok := <-p.tasks:
			if !ok {
				p.retire()
				return
			}
			runTask(task)
		default:
			p.retire()
			return
		}
	}
}

func (p *Pool) retire() {
	p.mu.Lock()
	p.overflow--
	p.mu.Unlock()
}

// runTask isolates panics so a single broken task cannot take down a worker.
func runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("pipeline task panicked", "panic", r)
		}
	}()
	task()
}
