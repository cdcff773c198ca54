package workerpool

import (
	"context"
	"sync"
	"sync/atomic"

	gferrors "github.com/vnykmshr/parcsv/pkg/common/errors"
)

// orderedRun implements Run. A feeder goroutine groups incoming tasks into
// batches and queues them; a collector goroutine reorders completed batches
// and emits their results by sequence number.
type orderedRun[T any] struct {
	pool      *workerPool[T]
	ctx       context.Context
	cancel    context.CancelFunc
	batchSize int

	results   chan Result[T]
	completed chan batchResult[T]
	slots     chan struct{}
	fed       chan int64
	done      chan struct{}

	errMu sync.Mutex
	err   error
}

func newOrderedRun[T any](p *workerPool[T], batchSize int) *orderedRun[T] {
	ctx, cancel := context.WithCancel(p.rootCtx)
	return &orderedRun[T]{
		pool:      p,
		ctx:       ctx,
		cancel:    cancel,
		batchSize: batchSize,
		results:   make(chan Result[T]),
		completed: make(chan batchResult[T], p.config.MaxInFlight),
		slots:     make(chan struct{}, p.config.MaxInFlight),
		fed:       make(chan int64, 1),
		done:      make(chan struct{}),
	}
}

// newClosedRun returns a run that has already ended with err.
func newClosedRun[T any](err error) *orderedRun[T] {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &orderedRun[T]{
		ctx:     ctx,
		cancel:  cancel,
		results: make(chan Result[T]),
		done:    make(chan struct{}),
		err:     err,
	}
	close(r.results)
	close(r.done)
	return r
}

func (r *orderedRun[T]) Results() <-chan Result[T] {
	return r.results
}

func (r *orderedRun[T]) Done() <-chan struct{} {
	return r.done
}

func (r *orderedRun[T]) Abort() {
	r.cancel()
}

func (r *orderedRun[T]) Err() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.err
}

// fail records why the run ended early.
func (r *orderedRun[T]) fail() {
	err := gferrors.ErrRunAborted
	select {
	case <-r.pool.terminateCh:
		err = gferrors.ErrPoolTerminated
	default:
	}

	r.errMu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.errMu.Unlock()
}

// feed reads tasks, numbers them from 1, and queues them in batches. Each
// batch takes a slot first, which bounds how far ahead of the consumer the
// run can get. The total number of batches is reported once tasks is closed.
func (r *orderedRun[T]) feed(tasks <-chan Task[T]) {
	var index, seq int64
	pending := make([]Task[T], 0, r.batchSize)

	flush := func() bool {
		if len(pending) == 0 {
			return true
		}
		b := &batch[T]{
			run:   r,
			index: index,
			first: seq - int64(len(pending)) + 1,
			tasks: pending,
		}

		select {
		case r.slots <- struct{}{}:
		case <-r.ctx.Done():
			return false
		}
		select {
		case r.pool.batchQueue <- b:
		case <-r.ctx.Done():
			return false
		}

		atomic.AddInt64(&r.pool.totalSubmitted, int64(len(pending)))
		index++
		pending = make([]Task[T], 0, r.batchSize)
		return true
	}

	for {
		select {
		case task, ok := <-tasks:
			if !ok {
				if flush() {
					r.fed <- index
				}
				return
			}
			seq++
			pending = append(pending, task)
			if len(pending) >= r.batchSize && !flush() {
				return
			}
		case <-r.ctx.Done():
			return
		}
	}
}

// collect buffers batches that complete early and emits results strictly in
// sequence order.
func (r *orderedRun[T]) collect() {
	defer r.pool.runWg.Done()
	defer close(r.done)
	defer close(r.results)
	defer r.cancel()

	pending := make(map[int64][]Result[T])
	var next int64
	total := int64(-1)

	for total < 0 || next < total {
		select {
		case br := <-r.completed:
			pending[br.index] = br.results
			for {
				results, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)

				for _, res := range results {
					select {
					case r.results <- res:
					case <-r.ctx.Done():
						r.fail()
						return
					}
				}

				<-r.slots
				next++
			}

		case n := <-r.fed:
			total = n

		case <-r.ctx.Done():
			r.fail()
			return
		}
	}
}
