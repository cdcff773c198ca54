/*
Package scheduler reruns a job on a cron schedule.

A Runner wraps robfig/cron with the policies a batch job needs: executions
never overlap, a panicking execution is logged instead of crashing the
process, and a terminal error such as a user interrupt ends the schedule.

Basic usage:

	runner, err := scheduler.New(scheduler.Config{
		Schedule: "0 * * * *", // top of every hour
		MaxRuns:  24,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	err = runner.Run(ctx, func(ctx context.Context, run int) error {
		_, err := pipeline.Process(ctx, m, paths, opts)
		return err
	})

Run blocks until ctx is done, MaxRuns executions have finished, or an
execution returns a terminal error. Ordinary errors are logged and the next
activation runs as usual.

Expressions:

Schedules use the standard five cron fields or a descriptor:

	"30 2 * * 1-5"   // 02:30 on weekdays
	"@daily"         // midnight
	"@every 10m"     // fixed interval

Retries:

	Config.Retry = scheduler.Backoff{MaxRetries: 3, InitialDelay: time.Second, MaxDelay: time.Minute}

retries a failed execution inside the same activation, doubling the delay
each time.
*/
package scheduler
