/*
Package pipeline maps CSV files row by row on a worker pool and writes the
results in input order.

Each input file is read as a stream of records keyed by its header. Every
record is numbered from 1 and handed to the mapper on one of the pool's
workers. Results come back in sequence order and are appended to the output
file immediately, so the output is a prefix of the complete result at every
moment.

# Quick Start

	m := mapper.Func([]string{"upper"}, func(ctx context.Context, rec mapper.Record, diag *mapper.Diagnostics) (mapper.Record, error) {
		return mapper.Record{"upper": strings.ToUpper(rec["name"])}, nil
	})

	outputs, err := pipeline.Process(ctx, m, []string{"people.csv"}, pipeline.DefaultOptions())
	os.Exit(pipeline.ExitCode(err))

people.csv becomes people_mapped.csv:

	row,succeeded,upper
	1,true,ALICE
	2,false,
	3,true,CAROL

# Row outcomes

A row whose transform returns an error, or panics, is written with
succeeded=false and empty values. Its error and any diagnostics the transform
printed go to the logger, never to the output file.

A row whose values cannot be serialised (an undeclared field, invalid UTF-8)
is logged and skipped. Later rows are unaffected.

# Stopping

A transform can end processing early by returning mapper.Stop. With StopFile
(the default) the current file ends after the rows before the stopping row
and the job moves on to the next file. With StopJob the remaining files are
skipped too and Process returns an error wrapping mapper.ErrStop.

# Cancellation

When ctx is done the Controller terminates the pool, waits up to
TeardownTimeout for the workers, and writes CancelNotice to Options.ErrOut.
Output already written stays on disk; no later file is opened. Process
returns ErrInterrupted and ExitCode maps it to 130.

# Configuration

	opts := pipeline.DefaultOptions()
	opts.Workers = 8                  // zero means one per CPU
	opts.BatchSize = 50               // rows per worker handoff
	opts.Suffix = "_out"              // people_out.csv
	opts.StopScope = pipeline.StopJob
	opts.Reporter = progress.NewConsole(os.Stderr)
	opts.Metrics = metrics.NewRegistry(prometheus.DefaultRegisterer)

Per-worker mapper state is supported through mapper.Cloner: each worker gets
its own copy for the lifetime of the job.
*/
package pipeline
