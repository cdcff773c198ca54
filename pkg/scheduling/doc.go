/*
Package scheduling groups the execution primitives of parcsv.

  - workerpool: fixed worker pool that returns results in submission order
  - pipeline: maps CSV files row by row on a worker pool
  - scheduler: reruns a job on a cron schedule

Worker Pool:

	pool := workerpool.New[string](4)
	defer pool.Shutdown()

	run := pool.SubmitOrdered(tasks, 1)
	for result := range run.Results() {
		fmt.Println(result.Seq, result.Value)
	}

Pipeline:

	outputs, err := pipeline.Process(ctx, m, []string{"a.csv", "b.csv"}, pipeline.DefaultOptions())
	os.Exit(pipeline.ExitCode(err))

Scheduler:

	runner, _ := scheduler.New(scheduler.Config{Schedule: "@every 15m"})
	err := runner.Run(ctx, func(ctx context.Context, run int) error {
		_, err := pipeline.Process(ctx, m, paths, opts)
		return err
	})
*/
package scheduling
