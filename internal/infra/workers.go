package infra

import (
	"context"
	"sync"
	"sync/atomic"
)

// Job is one unit of work submitted to a WorkerPool.
type Job[T any] struct {
	ID      string
	Data    T
	Context context.Context
}

// JobResult pairs a processed job with its outcome.
type JobResult[T, R any] struct {
	Job    Job[T]
	Result R
	Error  error
}

// WorkerPool runs a bounded set of workers over a buffered job queue.
// Submitted jobs are processed concurrently; outcomes are delivered on the
// Results channel, which the owner must drain.
type WorkerPool[T, R any] struct {
	workers   int
	processor func(context.Context, T) (R, error)
	jobs      chan Job[T]
	results   chan JobResult[T, R]
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	started   atomic.Bool
	stopped   atomic.Bool

	processed atomic.Uint64
	failed    atomic.Uint64
	queued    atomic.Int32
}

// WorkerPoolConfig configures a worker pool.
type WorkerPoolConfig[T, R any] struct {
	// Workers is the number of concurrent workers.
	Workers int
	// QueueSize is the maximum number of pending jobs.
	QueueSize int
	// Processor is the function that processes each job.
	Processor func(context.Context, T) (R, error)
}

// NewWorkerPool creates a worker pool. Call Start to begin processing.
func NewWorkerPool[T, R any](config WorkerPoolConfig[T, R]) *WorkerPool[T, R] {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 100
	}
	if config.Processor == nil {
		panic("workers: Processor is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool[T, R]{
		workers:   config.Workers,
		processor: config.Processor,
		jobs:      make(chan Job[T], config.QueueSize),
		results:   make(chan JobResult[T, R], config.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the workers. Calling Start twice is a no-op.
func (p *WorkerPool[T, R]) Start() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Stop drains in-flight jobs, stops the workers, and closes the results
// channel. Calling Stop twice is a no-op.
func (p *WorkerPool[T, R]) Stop() {
	if !p.stopped.CompareAndSwap(false, true) {
		return
	}
	p.cancel()
	close(p.jobs)
	p.wg.Wait()
	close(p.results)
}

// Submit enqueues a job for processing.
// Returns false if the queue is full or the pool is stopped.
func (p *WorkerPool[T, R]) Submit(job Job[T]) bool {
	if p.stopped.Load() {
		return false
	}
	select {
	case p.jobs <- job:
		p.queued.Add(1)
		return true
	default:
		return false
	}
}

// Results returns the channel of processed-job outcomes.
func (p *WorkerPool[T, R]) Results() <-chan JobResult[T, R] {
	return p.results
}

// Stats returns a snapshot of the pool's counters.
func (p *WorkerPool[T, R]) Stats() WorkerPoolStats {
	return WorkerPoolStats{
		Workers:   p.workers,
		Queued:    int(p.queued.Load()),
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
		Running:   p.started.Load() && !p.stopped.Load(),
	}
}

// WorkerPoolStats is a point-in-time view of pool activity.
type WorkerPoolStats struct {
	Workers   int
	Queued    int
	Processed uint64
	Failed    uint64
	Running   bool
}

func (p *WorkerPool[T, R]) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.queued.Add(-1)
			p.processJob(job)
		}
	}
}

func (p *WorkerPool[T, R]) processJob(job Job[T]) {
	ctx := job.Context
	if ctx == nil {
		ctx = p.ctx
	}

	result, err := p.processor(ctx, job.Data)
	if err != nil {
		p.failed.Add(1)
	}
	p.processed.Add(1)

	select {
	case p.results <- JobResult[T, R]{Job: job, Result: result, Error: err}:
	case <-p.ctx.Done():
	}
}
