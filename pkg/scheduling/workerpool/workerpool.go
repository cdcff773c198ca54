package workerpool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	gferrors "github.com/vnykmshr/parcsv/pkg/common/errors"
	"github.com/vnykmshr/parcsv/pkg/common/validation"
)

// ErrTaskPanicked is wrapped by the error of a task that panicked when no
// PanicHandler is configured.
var ErrTaskPanicked = errors.New("task panicked")

type workerIDKey struct{}

// WorkerID returns the ID of the worker executing the task that owns ctx.
func WorkerID(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(workerIDKey{}).(int)
	return id, ok
}

// New creates a new worker pool with the specified number of workers.
func New[T any](workerCount int) Pool[T] {
	return NewWithConfig[T](Config{
		WorkerCount: workerCount,
	})
}

// NewWithConfig creates a new worker pool with the specified configuration.
// It panics on invalid configuration; use NewSafe to get an error instead.
func NewWithConfig[T any](config Config) Pool[T] {
	pool, err := NewSafe[T](config)
	if err != nil {
		panic(err.Error())
	}
	return pool
}

// NewSafe creates a new worker pool, returning a ValidationError instead of
// panicking on invalid configuration.
func NewSafe[T any](config Config) (Pool[T], error) {
	if err := validation.ValidatePositive("workerpool", "worker_count", config.WorkerCount); err != nil {
		return nil, err
	}
	if err := validation.ValidateNonNegative("workerpool", "queue_size", config.QueueSize); err != nil {
		return nil, err
	}
	if err := validation.ValidateNonNegative("workerpool", "max_in_flight", config.MaxInFlight); err != nil {
		return nil, err
	}
	if config.MaxInFlight == 0 {
		config.MaxInFlight = 2 * config.WorkerCount
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())

	pool := &workerPool[T]{
		config:       config,
		batchQueue:   make(chan *batch[T], config.QueueSize),
		stopCh:       make(chan struct{}),
		terminateCh:  make(chan struct{}),
		rootCtx:      rootCtx,
		rootCancel:   rootCancel,
		terminated:   make(chan struct{}),
		shutdownDone: make(chan struct{}),
	}

	// Create and start workers
	pool.workers = make([]worker[T], config.WorkerCount)
	for i := 0; i < config.WorkerCount; i++ {
		pool.workers[i] = worker[T]{id: i, pool: pool}
		pool.workerWg.Add(1)
		go pool.workers[i].run()
	}

	return pool, nil
}

// SubmitOrdered starts an ordered run over tasks.
func (p *workerPool[T]) SubmitOrdered(tasks <-chan Task[T], batchSize int) Run[T] {
	if batchSize <= 0 {
		batchSize = 1
	}

	p.mu.Lock()
	switch {
	case p.isTerminated:
		p.mu.Unlock()
		return newClosedRun[T](gferrors.ErrPoolTerminated)
	case p.isShutdown:
		p.mu.Unlock()
		return newClosedRun[T](fmt.Errorf("cannot submit: worker pool has been shut down: %w", gferrors.ErrClosed))
	}
	p.runWg.Add(1)
	p.mu.Unlock()

	r := newOrderedRun(p, batchSize)
	go r.feed(tasks)
	go r.collect()
	return r
}

// Terminate forcibly stops the pool.
func (p *workerPool[T]) Terminate() <-chan struct{} {
	p.terminateOnce.Do(func() {
		p.mu.Lock()
		p.isTerminated = true
		p.mu.Unlock()

		// Cancels every run and every running task
		close(p.terminateCh)
		p.rootCancel()

		go func() {
			p.workerWg.Wait()
			close(p.terminated)
		}()
	})

	return p.terminated
}

// Shutdown initiates a graceful shutdown of the pool.
func (p *workerPool[T]) Shutdown() <-chan struct{} {
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.isShutdown = true
		p.mu.Unlock()

		go func() {
			p.runWg.Wait()
			p.stopOnce.Do(func() { close(p.stopCh) })
			p.workerWg.Wait()
			p.rootCancel()
			close(p.shutdownDone)
		}()
	})

	return p.shutdownDone
}

// Size returns the number of workers in the pool.
func (p *workerPool[T]) Size() int {
	return p.config.WorkerCount
}

// QueueSize returns the current number of batches waiting for a worker.
func (p *workerPool[T]) QueueSize() int {
	return len(p.batchQueue)
}

// ActiveWorkers returns the number of workers currently executing a batch.
func (p *workerPool[T]) ActiveWorkers() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.activeWorkers
}

// TotalSubmitted returns the total number of tasks handed to workers.
func (p *workerPool[T]) TotalSubmitted() int64 {
	return atomic.LoadInt64(&p.totalSubmitted)
}

// TotalCompleted returns the total number of tasks that finished executing.
func (p *workerPool[T]) TotalCompleted() int64 {
	return atomic.LoadInt64(&p.totalCompleted)
}

func (p *workerPool[T]) setActive(delta int) {
	p.mu.Lock()
	p.activeWorkers += delta
	p.mu.Unlock()
}

// run is the main loop for a worker.
func (w *worker[T]) run() {
	defer w.pool.workerWg.Done()

	if w.pool.config.OnWorkerStart != nil {
		w.pool.config.OnWorkerStart(w.id)
	}
	if w.pool.config.OnWorkerStop != nil {
		defer w.pool.config.OnWorkerStop(w.id)
	}

	for {
		select {
		case <-w.pool.terminateCh:
			return
		case <-w.pool.stopCh:
			return
		case b := <-w.pool.batchQueue:
			w.executeBatch(b)
		}
	}
}

// executeBatch runs the tasks of one batch in order and hands the results
// back to the batch's run. Results of an abandoned run are dropped.
func (w *worker[T]) executeBatch(b *batch[T]) {
	w.pool.setActive(1)
	defer w.pool.setActive(-1)

	results := make([]Result[T], 0, len(b.tasks))
	for i, task := range b.tasks {
		if b.run.ctx.Err() != nil {
			return
		}
		results = append(results, w.executeTask(b.run.ctx, b.first+int64(i), task))
	}

	// completed has room for every batch holding a slot, so this never
	// waits unless the run is gone
	select {
	case b.run.completed <- batchResult[T]{index: b.index, results: results}:
	case <-b.run.ctx.Done():
	}
}

// executeTask executes a single task with the run's context.
func (w *worker[T]) executeTask(ctx context.Context, seq int64, task Task[T]) (result Result[T]) {
	start := time.Now()
	result.Seq = seq
	result.WorkerID = w.id

	if w.pool.config.OnTaskStart != nil {
		w.pool.config.OnTaskStart(w.id)
	}

	// Handle panics during task execution
	defer func() {
		if r := recover(); r != nil {
			if w.pool.config.PanicHandler != nil {
				w.pool.config.PanicHandler(r)
			} else {
				result.Error = fmt.Errorf("%w: %v\nStack trace:\n%s", ErrTaskPanicked, r, debug.Stack())
			}
		}

		result.Duration = time.Since(start)
		atomic.AddInt64(&w.pool.totalCompleted, 1)

		if w.pool.config.OnTaskComplete != nil {
			w.pool.config.OnTaskComplete(w.id, result.Duration, result.Error)
		}
	}()

	ctx = context.WithValue(ctx, workerIDKey{}, w.id)

	// Apply TaskTimeout if configured
	if w.pool.config.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.pool.config.TaskTimeout)
		defer cancel()
	}

	result.Value, result.Error = task.Execute(ctx)
	return result
}
