package workerpool

import (
	"context"
	"sync"
	"time"
)

// Task represents a unit of work that can be executed by a worker.
type Task[T any] interface {
	// Execute runs the task with the given context.
	// The context is canceled when the run is aborted or the pool terminated.
	Execute(ctx context.Context) (T, error)
}

// TaskFunc is a function type that implements the Task interface.
type TaskFunc[T any] func(ctx context.Context) (T, error)

// Execute implements the Task interface for TaskFunc.
func (f TaskFunc[T]) Execute(ctx context.Context) (T, error) {
	return f(ctx)
}

// Result represents the result of a task execution.
type Result[T any] struct {
	// Seq is the 1-based submission position of the task within its run
	Seq int64

	// Value is what the task returned
	Value T

	// Error is any error returned by the task, or the recovered panic
	Error error

	// Duration is how long the task took to execute
	Duration time.Duration

	// WorkerID identifies which worker executed the task
	WorkerID int
}

// Run is one ordered submission. Results are delivered in submission order.
type Run[T any] interface {
	// Results yields results in submission order. It is closed when every
	// task has been delivered, or early when the run is aborted or the pool
	// is terminated.
	Results() <-chan Result[T]

	// Done is closed when the run has ended for any reason.
	Done() <-chan struct{}

	// Abort abandons the run: queued tasks are dropped, running tasks see
	// their context canceled and their results are discarded.
	Abort()

	// Err reports why the run ended early: nil after a complete run,
	// ErrRunAborted, ErrPoolTerminated, or ErrClosed.
	Err() error
}

// Pool represents a fixed set of workers that execute tasks concurrently
// and hand results back in submission order.
type Pool[T any] interface {
	// SubmitOrdered executes every task received from tasks, grouping them in
	// batches of batchSize per worker handoff, and returns the run delivering
	// their results in the order the tasks were received. The caller must
	// close tasks, or stop sending once Done is closed.
	SubmitOrdered(tasks <-chan Task[T], batchSize int) Run[T]

	// Terminate forcibly stops all in-flight and queued work. Consumers
	// blocked on a run's Results are released. The returned channel is closed
	// once every worker has exited.
	Terminate() <-chan struct{}

	// Shutdown waits for active runs to finish, then stops the workers.
	// The returned channel is closed when shutdown is complete.
	Shutdown() <-chan struct{}

	// Size returns the number of workers in the pool.
	Size() int

	// QueueSize returns the current number of batches waiting for a worker.
	QueueSize() int

	// ActiveWorkers returns the number of workers currently executing tasks.
	ActiveWorkers() int

	// TotalSubmitted returns the total number of tasks submitted to the pool.
	TotalSubmitted() int64

	// TotalCompleted returns the total number of tasks completed by the pool.
	TotalCompleted() int64
}

// Config holds configuration options for creating a worker pool.
type Config struct {
	// WorkerCount is the number of workers in the pool.
	// Must be greater than 0.
	WorkerCount int

	// QueueSize is the number of batches that can wait for a worker.
	// Zero means batches are handed to workers directly.
	QueueSize int

	// MaxInFlight bounds the number of batches of one run that are queued,
	// executing or waiting for earlier results. It limits memory when the
	// consumer is slower than the workers. Defaults to 2 * WorkerCount.
	MaxInFlight int

	// TaskTimeout is the default timeout for individual task execution.
	// Zero means no timeout.
	TaskTimeout time.Duration

	// PanicHandler is called when a task panics.
	// If nil, the panic is recovered and returned as the result's error.
	PanicHandler func(recovered interface{})

	// OnWorkerStart is called when a worker starts.
	// Useful for per-worker initialization.
	OnWorkerStart func(workerID int)

	// OnWorkerStop is called when a worker stops.
	OnWorkerStop func(workerID int)

	// OnTaskStart is called before a task begins execution.
	OnTaskStart func(workerID int)

	// OnTaskComplete is called after a task completes (success or failure).
	OnTaskComplete func(workerID int, duration time.Duration, err error)
}

// workerPool implements the Pool interface.
type workerPool[T any] struct {
	config Config

	// Core pool state
	workers     []worker[T]
	batchQueue  chan *batch[T]
	stopCh      chan struct{}
	terminateCh chan struct{}
	rootCtx     context.Context
	rootCancel  context.CancelFunc

	terminateOnce sync.Once
	shutdownOnce  sync.Once
	stopOnce      sync.Once
	terminated    chan struct{}
	shutdownDone  chan struct{}

	// State tracking
	mu             sync.RWMutex
	isShutdown     bool
	isTerminated   bool
	activeWorkers  int
	totalSubmitted int64
	totalCompleted int64

	// Worker and run management
	workerWg sync.WaitGroup
	runWg    sync.WaitGroup
}

// worker represents a single worker in the pool.
type worker[T any] struct {
	id   int
	pool *workerPool[T]
}

// batch is the unit handed to a worker: consecutive tasks of one run.
type batch[T any] struct {
	run   *orderedRun[T]
	index int64
	first int64
	tasks []Task[T]
}

// batchResult carries the results of one batch back to its run.
type batchResult[T any] struct {
	index   int64
	results []Result[T]
}
