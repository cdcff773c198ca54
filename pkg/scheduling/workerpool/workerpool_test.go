package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vnykmshr/parcsv/internal/testutil"
	gferrors "github.com/vnykmshr/parcsv/pkg/common/errors"
)

// submitAll starts an ordered run and feeds it tasks until they are exhausted
// or the run ends.
func submitAll[T any](pool Pool[T], batchSize int, tasks ...Task[T]) Run[T] {
	ch := make(chan Task[T])
	run := pool.SubmitOrdered(ch, batchSize)
	go func() {
		defer close(ch)
		for _, task := range tasks {
			select {
			case ch <- task:
			case <-run.Done():
				return
			}
		}
	}()
	return run
}

// collect drains a run, failing the test if it does not finish in time.
func collect[T any](t *testing.T, run Run[T]) []Result[T] {
	t.Helper()
	var results []Result[T]
	timeout := time.After(testutil.TestTimeout)
	for {
		select {
		case res, ok := <-run.Results():
			if !ok {
				return results
			}
			results = append(results, res)
		case <-timeout:
			t.Fatalf("run did not finish, got %d results", len(results))
		}
	}
}

// jitterTask returns its own number after a delay that varies by number, so
// later tasks regularly finish before earlier ones.
func jitterTask(n int) Task[int] {
	return TaskFunc[int](func(ctx context.Context) (int, error) {
		select {
		case <-time.After(time.Duration((n*7)%5) * time.Millisecond):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
		return n, nil
	})
}

func jitterTasks(count int) []Task[int] {
	tasks := make([]Task[int], count)
	for i := range tasks {
		tasks[i] = jitterTask(i + 1)
	}
	return tasks
}

func shutdown[T any](t *testing.T, pool Pool[T]) {
	t.Helper()
	select {
	case <-pool.Shutdown():
	case <-time.After(testutil.TestTimeout):
		t.Fatal("shutdown did not complete")
	}
}

func TestNewSafe(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"valid", Config{WorkerCount: 2, QueueSize: 10}, false},
		{"single worker", Config{WorkerCount: 1}, false},
		{"explicit in flight", Config{WorkerCount: 2, MaxInFlight: 1}, false},
		{"zero workers", Config{WorkerCount: 0}, true},
		{"negative workers", Config{WorkerCount: -1}, true},
		{"negative queue", Config{WorkerCount: 2, QueueSize: -1}, true},
		{"negative in flight", Config{WorkerCount: 2, MaxInFlight: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := NewSafe[int](tt.config)
			if tt.wantErr {
				testutil.AssertError(t, err)
				if !gferrors.IsValidationError(err) {
					t.Errorf("expected ValidationError, got %T", err)
				}
				return
			}
			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, pool.Size(), tt.config.WorkerCount)
			shutdown(t, pool)
		})
	}
}

func TestNewWithConfigPanicsOnInvalidConfig(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic")
		}
	}()
	New[int](0)
}

func TestOrderedResults(t *testing.T) {
	for _, batchSize := range []int{1, 3, 10, 100} {
		t.Run(fmt.Sprintf("batch=%d", batchSize), func(t *testing.T) {
			pool := New[int](4)
			defer shutdown(t, pool)

			run := submitAll(pool, batchSize, jitterTasks(50)...)
			results := collect(t, run)

			testutil.AssertNoError(t, run.Err())
			testutil.AssertEqual(t, len(results), 50)
			for i, res := range results {
				testutil.AssertNoError(t, res.Error)
				testutil.AssertEqual(t, res.Seq, int64(i+1))
				testutil.AssertEqual(t, res.Value, i+1)
			}
		})
	}
}

func TestOrderIndependentOfPoolSize(t *testing.T) {
	values := func(workers int) []int {
		pool := New[int](workers)
		defer shutdown(t, pool)

		var out []int
		for _, res := range collect(t, submitAll(pool, 2, jitterTasks(30)...)) {
			out = append(out, res.Value)
		}
		return out
	}

	single, many := values(1), values(8)
	testutil.AssertEqual(t, len(single), len(many))
	for i := range single {
		testutil.AssertEqual(t, single[i], many[i])
	}
}

func TestEmptyRun(t *testing.T) {
	pool := New[int](2)
	defer shutdown(t, pool)

	run := submitAll[int](pool, 1)
	results := collect(t, run)

	testutil.AssertEqual(t, len(results), 0)
	testutil.AssertNoError(t, run.Err())

	select {
	case <-run.Done():
	case <-time.After(testutil.TestTimeout):
		t.Fatal("Done not closed after empty run")
	}
}

func TestTaskErrorKeepsPosition(t *testing.T) {
	pool := New[int](3)
	defer shutdown(t, pool)

	errBad := errors.New("bad row")
	tasks := jitterTasks(6)
	tasks[2] = TaskFunc[int](func(ctx context.Context) (int, error) {
		return 0, errBad
	})

	results := collect(t, submitAll(pool, 1, tasks...))
	testutil.AssertEqual(t, len(results), 6)
	for i, res := range results {
		if i == 2 {
			if !errors.Is(res.Error, errBad) {
				t.Errorf("result 3: got error %v, want %v", res.Error, errBad)
			}
			continue
		}
		testutil.AssertNoError(t, res.Error)
		testutil.AssertEqual(t, res.Value, i+1)
	}
}

func TestTaskPanicDefaultHandler(t *testing.T) {
	pool := New[int](2)
	defer shutdown(t, pool)

	tasks := jitterTasks(4)
	tasks[1] = TaskFunc[int](func(ctx context.Context) (int, error) {
		panic("boom")
	})

	results := collect(t, submitAll(pool, 1, tasks...))
	testutil.AssertEqual(t, len(results), 4)
	if !errors.Is(results[1].Error, ErrTaskPanicked) {
		t.Fatalf("expected ErrTaskPanicked, got %v", results[1].Error)
	}
	testutil.AssertEqual(t, results[3].Value, 4)
}

func TestPanicHandler(t *testing.T) {
	var recovered atomic.Value
	pool := NewWithConfig[int](Config{
		WorkerCount: 1,
		PanicHandler: func(r interface{}) {
			recovered.Store(r)
		},
	})
	defer shutdown(t, pool)

	results := collect(t, submitAll[int](pool, 1, TaskFunc[int](func(ctx context.Context) (int, error) {
		panic("custom")
	})))

	testutil.AssertEqual(t, len(results), 1)
	testutil.AssertNoError(t, results[0].Error)
	testutil.AssertEqual(t, recovered.Load(), interface{}("custom"))
}

func TestAbort(t *testing.T) {
	pool := New[int](2)
	defer shutdown(t, pool)

	run := submitAll(pool, 1, jitterTasks(100)...)

	for i := 1; i <= 2; i++ {
		res := <-run.Results()
		testutil.AssertEqual(t, res.Seq, int64(i))
	}
	run.Abort()

	// whatever is still buffered is drained; the channel must close
	collect(t, run)
	if !errors.Is(run.Err(), gferrors.ErrRunAborted) {
		t.Fatalf("Err() = %v, want ErrRunAborted", run.Err())
	}

	// the pool survives an aborted run
	next := submitAll(pool, 1, jitterTasks(5)...)
	testutil.AssertEqual(t, len(collect(t, next)), 5)
	testutil.AssertNoError(t, next.Err())
}

func TestTerminateReleasesConsumer(t *testing.T) {
	pool := New[int](2)

	var started sync.WaitGroup
	started.Add(2)
	blocking := func(ctx context.Context) (int, error) {
		started.Done()
		<-ctx.Done()
		return 0, ctx.Err()
	}
	run := submitAll[int](pool, 1, TaskFunc[int](blocking), TaskFunc[int](blocking))

	released := make(chan struct{})
	go func() {
		defer close(released)
		for range run.Results() {
		}
	}()

	started.Wait()
	terminated := pool.Terminate()

	select {
	case <-released:
	case <-time.After(testutil.TestTimeout):
		t.Fatal("consumer still blocked after Terminate")
	}
	select {
	case <-terminated:
	case <-time.After(testutil.TestTimeout):
		t.Fatal("workers did not exit after Terminate")
	}

	if !errors.Is(run.Err(), gferrors.ErrPoolTerminated) {
		t.Fatalf("Err() = %v, want ErrPoolTerminated", run.Err())
	}

	// later submissions end immediately
	late := pool.SubmitOrdered(make(chan Task[int]), 1)
	testutil.AssertEqual(t, len(collect(t, late)), 0)
	if !errors.Is(late.Err(), gferrors.ErrPoolTerminated) {
		t.Fatalf("late Err() = %v, want ErrPoolTerminated", late.Err())
	}

	// Terminate is idempotent
	<-pool.Terminate()
}

func TestSubmitAfterShutdown(t *testing.T) {
	pool := New[int](1)
	shutdown(t, pool)

	run := pool.SubmitOrdered(make(chan Task[int]), 1)
	collect(t, run)
	if !errors.Is(run.Err(), gferrors.ErrClosed) {
		t.Fatalf("Err() = %v, want ErrClosed", run.Err())
	}
}

func TestShutdownWaitsForActiveRun(t *testing.T) {
	pool := New[int](2)
	run := submitAll(pool, 1, jitterTasks(20)...)

	done := pool.Shutdown()
	results := collect(t, run)
	testutil.AssertEqual(t, len(results), 20)

	select {
	case <-done:
	case <-time.After(testutil.TestTimeout):
		t.Fatal("shutdown did not complete")
	}
}

func TestWorkerID(t *testing.T) {
	const workers = 3
	pool := New[int](workers)
	defer shutdown(t, pool)

	tasks := make([]Task[int], 20)
	for i := range tasks {
		tasks[i] = TaskFunc[int](func(ctx context.Context) (int, error) {
			id, ok := WorkerID(ctx)
			if !ok {
				return -1, errors.New("no worker id")
			}
			return id, nil
		})
	}

	for _, res := range collect(t, submitAll(pool, 1, tasks...)) {
		testutil.AssertNoError(t, res.Error)
		if res.Value < 0 || res.Value >= workers {
			t.Fatalf("worker id %d out of range", res.Value)
		}
		testutil.AssertEqual(t, res.Value, res.WorkerID)
	}

	if _, ok := WorkerID(context.Background()); ok {
		t.Error("WorkerID should report false outside a task")
	}
}

func TestHooks(t *testing.T) {
	var workerStarts, workerStops, taskStarts, taskCompletes, taskErrors int32

	pool := NewWithConfig[int](Config{
		WorkerCount:   3,
		OnWorkerStart: func(int) { atomic.AddInt32(&workerStarts, 1) },
		OnWorkerStop:  func(int) { atomic.AddInt32(&workerStops, 1) },
		OnTaskStart:   func(int) { atomic.AddInt32(&taskStarts, 1) },
		OnTaskComplete: func(_ int, _ time.Duration, err error) {
			atomic.AddInt32(&taskCompletes, 1)
			if err != nil {
				atomic.AddInt32(&taskErrors, 1)
			}
		},
	})

	tasks := jitterTasks(10)
	tasks[4] = TaskFunc[int](func(ctx context.Context) (int, error) {
		return 0, errors.New("fail")
	})
	collect(t, submitAll(pool, 2, tasks...))
	shutdown(t, pool)

	testutil.AssertEqual(t, atomic.LoadInt32(&workerStarts), int32(3))
	testutil.AssertEqual(t, atomic.LoadInt32(&workerStops), int32(3))
	testutil.AssertEqual(t, atomic.LoadInt32(&taskStarts), int32(10))
	testutil.AssertEqual(t, atomic.LoadInt32(&taskCompletes), int32(10))
	testutil.AssertEqual(t, atomic.LoadInt32(&taskErrors), int32(1))
}

func TestTaskTimeout(t *testing.T) {
	pool := NewWithConfig[int](Config{
		WorkerCount: 1,
		TaskTimeout: 20 * time.Millisecond,
	})
	defer shutdown(t, pool)

	results := collect(t, submitAll[int](pool, 1, TaskFunc[int](func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})))

	testutil.AssertEqual(t, len(results), 1)
	if !errors.Is(results[0].Error, context.DeadlineExceeded) {
		t.Fatalf("got %v, want deadline exceeded", results[0].Error)
	}
}

func TestMaxInFlightBoundsReadAhead(t *testing.T) {
	pool := NewWithConfig[int](Config{
		WorkerCount: 2,
		MaxInFlight: 2,
	})
	defer shutdown(t, pool)

	var executed int32
	tasks := make([]Task[int], 20)
	for i := range tasks {
		n := i + 1
		tasks[i] = TaskFunc[int](func(ctx context.Context) (int, error) {
			atomic.AddInt32(&executed, 1)
			return n, nil
		})
	}
	run := submitAll(pool, 1, tasks...)

	// nobody reads results yet, so only MaxInFlight batches may run
	testutil.Eventually(t, func() bool {
		return atomic.LoadInt32(&executed) == 2
	}, testutil.TestTimeout, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	testutil.AssertEqual(t, atomic.LoadInt32(&executed), int32(2))

	results := collect(t, run)
	testutil.AssertEqual(t, len(results), 20)
	testutil.AssertEqual(t, atomic.LoadInt32(&executed), int32(20))
}

func TestCounters(t *testing.T) {
	pool := New[int](4)
	defer shutdown(t, pool)

	collect(t, submitAll(pool, 3, jitterTasks(25)...))

	testutil.AssertEqual(t, pool.TotalSubmitted(), int64(25))
	testutil.AssertEqual(t, pool.TotalCompleted(), int64(25))
	testutil.AssertEqual(t, pool.ActiveWorkers(), 0)
}

func TestConcurrentRuns(t *testing.T) {
	pool := New[int](4)
	defer shutdown(t, pool)

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run := submitAll(pool, 2, jitterTasks(40)...)
			n := 0
			for res := range run.Results() {
				n++
				if res.Value != n {
					t.Errorf("run out of order: got %d at position %d", res.Value, n)
					return
				}
			}
		}()
	}
	wg.Wait()
}
