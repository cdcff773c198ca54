package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	gferrors "github.com/vnykmshr/parcsv/pkg/common/errors"
	"github.com/vnykmshr/parcsv/pkg/common/validation"
)

// Func is one scheduled execution. run counts executions from 1.
type Func func(ctx context.Context, run int) error

// Backoff retries a failed execution with exponentially growing delays.
type Backoff struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration
}

// Wrap returns fn with retries. Terminal errors are never retried.
func (b Backoff) Wrap(fn Func) Func {
	if b.MaxRetries <= 0 {
		return fn
	}
	return func(ctx context.Context, run int) error {
		var lastErr error
		delay := b.InitialDelay

		for attempt := 0; attempt <= b.MaxRetries; attempt++ {
			if attempt > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}

			lastErr = fn(ctx, run)
			if lastErr == nil || gferrors.IsTerminal(lastErr) {
				return lastErr
			}

			// Double delay for next attempt
			delay *= 2
			if b.MaxDelay > 0 && delay > b.MaxDelay {
				delay = b.MaxDelay
			}
		}

		return lastErr
	}
}

// Config holds runner configuration.
type Config struct {
	// Schedule is a standard five-field cron expression or a descriptor
	// such as "@hourly" or "@every 10m".
	Schedule string

	// Location evaluates the schedule. Default: time.Local
	Location *time.Location

	// MaxRuns stops the runner after that many executions. Zero means
	// run until the context is done.
	MaxRuns int

	// Retry configures retries of a failed execution.
	Retry Backoff

	// Logger receives scheduling events. Default: slog.Default()
	Logger *slog.Logger
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validation.ValidateNotEmpty("scheduler", "schedule", c.Schedule); err != nil {
		return err
	}
	if err := ValidateExpression(c.Schedule); err != nil {
		return err
	}
	if err := validation.ValidateNonNegative("scheduler", "max_runs", c.MaxRuns); err != nil {
		return err
	}
	return validation.ValidateNonNegative("scheduler", "retry.max_retries", c.Retry.MaxRetries)
}

// Runner executes a Func on a cron schedule. Executions never overlap: a
// tick that arrives while the previous execution is still going is skipped.
type Runner struct {
	config   Config
	schedule cron.Schedule
	logger   *slog.Logger
}

// New creates a Runner from a cron expression.
func New(config Config) (*Runner, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	schedule, _ := cron.ParseStandard(config.Schedule)
	return NewWithSchedule(schedule, config), nil
}

// NewWithSchedule creates a Runner from a parsed schedule. Config.Schedule
// is only used for logging.
func NewWithSchedule(schedule cron.Schedule, config Config) *Runner {
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Runner{
		config:   config,
		schedule: schedule,
		logger:   config.Logger.With(slog.String("schedule", config.Schedule)),
	}
}

// Next returns the first activation after t.
func (r *Runner) Next(t time.Time) time.Time {
	return r.schedule.Next(t.In(r.config.Location))
}

// Run blocks, calling fn on every activation, until ctx is done, MaxRuns
// executions have finished, or fn returns a terminal error. Other errors
// are logged and the schedule continues. Run waits for an execution in
// progress before returning and returns the terminal error, if any.
func (r *Runner) Run(ctx context.Context, fn Func) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fn = r.config.Retry.Wrap(fn)
	cl := cronLogger{r.logger}

	c := cron.New(
		cron.WithLocation(r.config.Location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	var (
		mu      sync.Mutex
		runs    int
		lastErr error
	)

	c.Schedule(r.schedule, cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}

		mu.Lock()
		if r.config.MaxRuns > 0 && runs >= r.config.MaxRuns {
			mu.Unlock()
			return
		}
		runs++
		run := runs
		mu.Unlock()

		start := time.Now()
		r.logger.Info("scheduled run started", slog.Int("run", run))
		err := fn(ctx, run)

		attrs := []any{slog.Int("run", run), slog.Duration("duration", time.Since(start))}
		switch {
		case err == nil:
			r.logger.Info("scheduled run finished", attrs...)
		case gferrors.IsTerminal(err):
			r.logger.Error("scheduled run interrupted", append(attrs, slog.String("error", err.Error()))...)
			mu.Lock()
			lastErr = err
			mu.Unlock()
			cancel()
			return
		default:
			r.logger.Error("scheduled run failed", append(attrs, slog.String("error", err.Error()))...)
		}

		if r.config.MaxRuns > 0 && run >= r.config.MaxRuns {
			cancel()
			return
		}
		r.logger.Info("next run scheduled", slog.Time("at", r.Next(time.Now())))
	}))

	r.logger.Info("scheduler started",
		slog.Time("next", r.Next(time.Now())),
		slog.Int("max_runs", r.config.MaxRuns),
	)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()

	mu.Lock()
	defer mu.Unlock()
	r.logger.Info("scheduler stopped", slog.Int("runs", runs))
	return lastErr
}

// ValidateExpression checks a cron expression without scheduling it.
func ValidateExpression(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return gferrors.NewValidationError("scheduler", "schedule", expr, err.Error()).
			WithHint(`use five fields such as "0 * * * *" or a descriptor such as "@every 10m"`)
	}
	return nil
}
