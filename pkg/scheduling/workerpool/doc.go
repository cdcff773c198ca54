/*
Package workerpool provides a fixed-size worker pool that executes tasks
concurrently and delivers their results in the order the tasks were submitted.

A pool owns a fixed number of worker goroutines. Work is handed to it as an
ordered run: a channel of tasks that the pool numbers from 1, groups into
batches, and distributes to whichever worker is free. Results are buffered
and reordered so the consumer always sees them by sequence number, no matter
which worker finished first.

Basic usage:

	pool := workerpool.New[string](4)
	defer pool.Shutdown()

	tasks := make(chan workerpool.Task[string])
	go func() {
		defer close(tasks)
		for _, line := range lines {
			line := line
			tasks <- workerpool.TaskFunc[string](func(ctx context.Context) (string, error) {
				return strings.ToUpper(line), nil
			})
		}
	}()

	run := pool.SubmitOrdered(tasks, 1)
	for result := range run.Results() {
		fmt.Println(result.Seq, result.Value, result.Error)
	}
	if err := run.Err(); err != nil {
		log.Printf("run ended early: %v", err)
	}

Batching:

The batchSize argument of SubmitOrdered sets how many consecutive tasks a
worker receives per handoff. Larger batches reduce channel traffic for cheap
tasks; they never change the order results are delivered in.

Back-pressure:

Config.MaxInFlight bounds how many batches of one run may be queued, running
or waiting behind an earlier result. When the consumer stops reading, the run
stops pulling tasks from the input channel once that bound is reached.

Per-worker state:

A task can find out which worker is running it:

	id, _ := workerpool.WorkerID(ctx)

IDs run from 0 to Size()-1, so a slice of per-worker state indexed by ID needs
no locking.

Stopping:

There are three ways to stop work:

	run.Abort()       // abandon one run; the pool stays usable
	pool.Terminate()  // stop every run and every worker immediately
	pool.Shutdown()   // wait for active runs, then stop the workers

After Terminate, consumers blocked on Results are released, the run's Err
reports ErrPoolTerminated, and results still in flight are discarded. Tasks see
their context canceled and should return promptly.

Panics:

A task that panics does not take its worker down. Without a PanicHandler the
panic is returned as the result's error, wrapping ErrTaskPanicked.

Monitoring:

NewWithMetrics registers the pool with a metrics.Registry and reports task
counts, task durations and worker gauges under the given pool name.
*/
package workerpool
