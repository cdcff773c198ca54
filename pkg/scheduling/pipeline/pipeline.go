package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	gferrors "github.com/vnykmshr/parcsv/pkg/common/errors"
	"github.com/vnykmshr/parcsv/pkg/common/validation"
	"github.com/vnykmshr/parcsv/pkg/mapper"
	"github.com/vnykmshr/parcsv/pkg/progress"
	"github.com/vnykmshr/parcsv/pkg/scheduling/workerpool"
	"github.com/vnykmshr/parcsv/pkg/streaming/reader"
	"github.com/vnykmshr/parcsv/pkg/streaming/writer"
)

// ExitInterrupted is the process exit status of a job ended by a user
// interrupt.
const ExitInterrupted = 130

// Stats holds job execution statistics.
type Stats struct {
	Files     int
	Completed int
	Stopped   int
	Failed    int
	Cancelled int

	Rows      int64
	Succeeded int64
	FailedRow int64
	Dropped   int64

	Duration time.Duration
}

// Job maps files one after another on a shared worker pool.
type Job struct {
	opts    Options
	mapper  mapper.Mapper
	mappers []mapper.Mapper
	adapter *mapper.Adapter
	pool    workerpool.Pool[mapper.Result]
	ctrl    *Controller
	logger  *slog.Logger

	mu        sync.Mutex
	summaries []progress.Summary
	started   time.Time
}

// NewJob validates opts and starts the worker pool. Every worker gets its
// own copy of m when m implements mapper.Cloner. Close releases the pool.
func NewJob(m mapper.Mapper, opts Options) (*Job, error) {
	if err := validation.ValidateNotNil("pipeline", "mapper", m); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	logger := opts.Logger.With(slog.String("job_id", opts.JobID))

	mappers := make([]mapper.Mapper, opts.Workers)
	for i := range mappers {
		mappers[i] = mapper.CopyFor(m)
	}

	pool := workerpool.NewWithMetrics[mapper.Result](workerpool.Config{
		WorkerCount: opts.Workers,
	}, "rows", opts.Metrics)

	j := &Job{
		opts:    opts,
		mapper:  m,
		mappers: mappers,
		adapter: mapper.NewAdapter(logger, opts.RowField, opts.SucceededField),
		pool:    pool,
		logger:  logger,
	}
	j.ctrl = NewController(pool, ControllerConfig{
		TeardownTimeout: opts.TeardownTimeout,
		ErrOut:          opts.ErrOut,
		Logger:          logger,
		Metrics:         opts.Metrics,
	})
	return j, nil
}

// ID returns the job ID.
func (j *Job) ID() string {
	return j.opts.JobID
}

// Controller returns the job's cancellation controller.
func (j *Job) Controller() *Controller {
	return j.ctrl
}

// Run processes paths strictly in order and returns the output paths of the
// files it worked on.
//
// A stop request ends the current file; with StopJob it also skips the
// remaining files and the returned error wraps mapper.ErrStop. Read and
// write errors end only their file and are joined into the returned error.
// When ctx is done the pool is terminated, no further file is touched and
// the error is ErrInterrupted.
func (j *Job) Run(ctx context.Context, paths []string) ([]string, error) {
	j.mu.Lock()
	j.started = time.Now()
	j.mu.Unlock()
	stop := j.ctrl.Watch(ctx)

	j.logger.Info("job started",
		slog.Int("files", len(paths)),
		slog.Int("workers", j.opts.Workers),
		slog.Int("batch_size", j.opts.BatchSize),
	)

	var outputs []string
	var errs []error

files:
	for _, path := range paths {
		if ctx.Err() != nil || j.ctrl.Cancelled() {
			break
		}

		out, err := j.ProcessFile(ctx, path)
		if out != "" {
			outputs = append(outputs, out)
		}

		switch {
		case err == nil:
		case gferrors.IsInterrupted(err):
			break files
		case mapper.IsStop(err):
			if j.opts.StopScope == StopJob {
				errs = append(errs, err)
				j.logger.Error("stop requested, skipping remaining files", slog.String("input", path))
				break files
			}
		default:
			errs = append(errs, err)
		}
	}

	if !stop() {
		<-j.ctrl.Done()
		j.logger.Error("job interrupted", slog.Int("outputs", len(outputs)))
		return outputs, gferrors.ErrInterrupted
	}

	j.logger.Info("job finished",
		slog.Int("outputs", len(outputs)),
		slog.Duration("duration", j.Stats().Duration),
	)
	return outputs, errors.Join(errs...)
}

// ProcessFile maps a single file and returns its output path. The output
// path is empty when the file could not be opened or created.
func (j *Job) ProcessFile(ctx context.Context, path string) (string, error) {
	if j.ctrl.Cancelled() {
		return "", gferrors.ErrInterrupted
	}

	out, err := OutputPath(path, j.opts.Suffix, j.opts.Extension)
	if err != nil {
		j.logger.Error("file skipped", slog.String("input", path), slog.String("error", err.Error()))
		return "", fmt.Errorf("%s: %w", path, err)
	}

	src, err := reader.Open(path)
	if err != nil {
		j.logger.Error("file skipped", slog.String("input", path), slog.String("error", err.Error()))
		return "", err
	}
	defer src.Close()

	wcfg := writer.DefaultConfig()
	wcfg.RowField = j.opts.RowField
	wcfg.SucceededField = j.opts.SucceededField
	wcfg.IgnoreExtra = j.opts.IgnoreExtraFields
	wcfg.Sync = j.opts.Sync
	wcfg.Metrics = j.opts.Metrics

	dst, err := writer.Create(out, j.mapper.Fields(), wcfg)
	if err != nil {
		j.logger.Error("file skipped", slog.String("input", path), slog.String("error", err.Error()))
		return "", fmt.Errorf("%s: %w", path, err)
	}
	defer dst.Close()

	info := progress.FileInfo{
		JobID:   j.opts.JobID,
		Input:   path,
		Output:  out,
		Fields:  j.mapper.Fields(),
		Started: time.Now(),
	}
	j.opts.Reporter.FileStarted(info)

	summary := j.mapFile(ctx, src, dst, info)
	summary.Finished = time.Now()

	j.record(summary)
	j.opts.Reporter.FileFinished(summary)

	switch summary.Status {
	case progress.StatusCancelled:
		return out, gferrors.ErrInterrupted
	case progress.StatusCompleted:
		return out, nil
	default:
		return out, fmt.Errorf("%s: %w", path, summary.Err)
	}
}

// mapFile runs the dispatcher and the writer loop for one file.
func (j *Job) mapFile(ctx context.Context, src *reader.Reader, dst *writer.Writer, info progress.FileInfo) progress.Summary {
	summary := progress.Summary{
		JobID:   info.JobID,
		Input:   info.Input,
		Output:  info.Output,
		Started: info.Started,
		Status:  progress.StatusCompleted,
	}

	tasks := make(chan workerpool.Task[mapper.Result])
	run := j.pool.SubmitOrdered(tasks, j.opts.BatchSize)

	var g errgroup.Group
	g.Go(func() error {
		return j.dispatch(src, run, tasks)
	})

	var stopErr, writeErr error
	for res := range run.Results() {
		if ctx.Err() != nil || j.ctrl.Cancelled() {
			break
		}

		out := res.Value
		if res.Error != nil {
			if mapper.IsStop(res.Error) {
				stopErr = res.Error
				break
			}
			// failure outside the adapter, such as a task timeout
			j.logger.Error("task failed",
				slog.Int64("row", res.Seq),
				slog.String("error", res.Error.Error()),
			)
			out = mapper.Result{Seq: res.Seq}
		}

		err := dst.WriteRow(ctx, writer.Row{Seq: out.Seq, Succeeded: out.Succeeded, Values: out.Values})
		if errors.Is(err, writer.ErrRowDropped) {
			j.logger.Error("error writing row", slog.Int64("row", out.Seq), slog.String("error", err.Error()))
			summary.Dropped++
			continue
		}
		if err != nil {
			writeErr = err
			break
		}

		summary.Rows++
		if out.Succeeded {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
		j.opts.Reporter.RowWritten(info, progress.Row{
			Seq:       out.Seq,
			Succeeded: out.Succeeded,
			Totals:    summary.Totals(),
		})
	}

	// releases the dispatcher if the loop ended early
	run.Abort()
	readErr := g.Wait()

	switch {
	case ctx.Err() != nil || j.ctrl.Cancelled() || errors.Is(run.Err(), gferrors.ErrPoolTerminated):
		summary.Status = progress.StatusCancelled
		summary.Err = gferrors.ErrInterrupted
	case stopErr != nil:
		summary.Status = progress.StatusStopped
		summary.Err = stopErr
		j.logger.Error("file stopped by transform",
			slog.String("input", info.Input),
			slog.Int64("rows", summary.Rows),
			slog.String("error", stopErr.Error()),
		)
	case writeErr != nil || readErr != nil:
		summary.Status = progress.StatusFailed
		summary.Err = errors.Join(readErr, writeErr)
		j.logger.Error("file failed",
			slog.String("input", info.Input),
			slog.Int64("rows", summary.Rows),
			slog.String("error", summary.Err.Error()),
		)
	default:
		j.logger.Debug("file finished",
			slog.String("input", info.Input),
			slog.String("output", info.Output),
			slog.Int64("rows", summary.Rows),
			slog.Int64("failed", summary.Failed),
			slog.Int64("dropped", summary.Dropped),
		)
	}
	return summary
}

func (j *Job) record(s progress.Summary) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.summaries = append(j.summaries, s)
}

// Summaries returns the summary of every file processed so far.
func (j *Job) Summaries() []progress.Summary {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]progress.Summary(nil), j.summaries...)
}

// Stats returns job execution statistics.
func (j *Job) Stats() Stats {
	j.mu.Lock()
	defer j.mu.Unlock()

	var s Stats
	for _, sum := range j.summaries {
		s.Files++
		switch sum.Status {
		case progress.StatusCompleted:
			s.Completed++
		case progress.StatusStopped:
			s.Stopped++
		case progress.StatusFailed:
			s.Failed++
		case progress.StatusCancelled:
			s.Cancelled++
		}
		s.Rows += sum.Rows
		s.Succeeded += sum.Succeeded
		s.FailedRow += sum.Failed
		s.Dropped += sum.Dropped
	}
	if !j.started.IsZero() {
		s.Duration = time.Since(j.started)
	}
	return s
}

// Close releases the worker pool.
func (j *Job) Close() error {
	if j.ctrl.Cancelled() {
		<-j.ctrl.Done()
		return nil
	}
	<-j.pool.Shutdown()
	return nil
}

// Process maps every file in paths with m, one file at a time, and returns
// the output paths in input order. See Job.Run for error semantics.
func Process(ctx context.Context, m mapper.Mapper, paths []string, opts Options) ([]string, error) {
	job, err := NewJob(m, opts)
	if err != nil {
		return nil, err
	}
	defer job.Close()

	return job.Run(ctx, paths)
}

// ExitCode maps the error returned by Process to a process exit status:
// 0 on success, ExitInterrupted for a user interrupt, 1 otherwise.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case gferrors.IsInterrupted(err):
		return ExitInterrupted
	default:
		return 1
	}
}
