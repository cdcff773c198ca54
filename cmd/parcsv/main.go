// Command parcsv maps CSV files with one of the built-in mappers.
//
//	parcsv -mapper identity -fields id,name people.csv orders.csv
//	parcsv -mapper constant -set a=1,b=2 -workers 8 -batch 50 data.csv
//	parcsv -mapper identity -fields id -when id=1000 -stop-scope job big.csv
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/vnykmshr/parcsv"
	"github.com/vnykmshr/parcsv/pkg/mapper"
	"github.com/vnykmshr/parcsv/pkg/scheduling/pipeline"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg := parcsv.DefaultConfig()
	fs := flag.NewFlagSet("parcsv", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: parcsv [flags] file.csv...\n\nmappers: %s\n\n", strings.Join(mapper.Names(), ", "))
		fs.PrintDefaults()
	}

	var (
		name      = fs.String("mapper", "identity", "built-in mapper to apply")
		fields    = fs.String("fields", "", "comma-separated output fields")
		set       = fs.String("set", "", "name=value assignments for the constant mapper")
		when      = fs.String("when", "", "field=value condition that stops processing")
		failMsg   = fs.String("fail-message", "", "error raised by the fail mapper")
		stopScope = fs.String("stop-scope", cfg.StopScope.String(), "what a stop abandons: file or job")
		quiet     = fs.Bool("quiet", false, "do not print the row counter")
	)
	fs.StringVar(&cfg.Suffix, "suffix", cfg.Suffix, "suffix appended to the input name")
	fs.StringVar(&cfg.Extension, "ext", cfg.Extension, "extension of output files")
	fs.IntVar(&cfg.BatchSize, "batch", cfg.BatchSize, "rows handed to a worker at once")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "parallel workers, 0 for one per CPU")
	fs.StringVar(&cfg.RowField, "row-field", cfg.RowField, "name of the row number column")
	fs.StringVar(&cfg.SucceededField, "succeeded-field", cfg.SucceededField, "name of the success column")
	fs.BoolVar(&cfg.IgnoreExtraFields, "ignore-extra", cfg.IgnoreExtraFields, "drop undeclared fields instead of the row")
	fs.BoolVar(&cfg.Sync, "sync", cfg.Sync, "fsync the output after every row")
	fs.DurationVar(&cfg.TeardownTimeout, "teardown-timeout", cfg.TeardownTimeout, "how long Ctrl-C waits for workers")
	fs.StringVar(&cfg.Log.Path, "log", cfg.Log.Path, `log file, "-" for stderr`)
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "debug, info, warn or error")
	fs.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "text or json")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", "", "publish progress to this Redis server")
	fs.StringVar(&cfg.RedisKey, "redis-key", cfg.RedisKey, "prefix of the Redis progress keys")
	fs.DurationVar(&cfg.RedisInterval, "redis-interval", cfg.RedisInterval, "minimum time between Redis row updates")
	fs.StringVar(&cfg.HistoryPath, "history", "", "record every file in this SQLite database")
	fs.StringVar(&cfg.Schedule, "schedule", "", `rerun on a cron schedule, e.g. "@every 1h"`)
	fs.IntVar(&cfg.MaxRuns, "max-runs", 0, "stop after this many scheduled runs")
	fs.StringVar(&cfg.JobID, "job-id", "", "job ID for logs and reports, generated when empty")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	scope, err := pipeline.ParseStopScope(*stopScope)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parcsv: %v\n", err)
		return 2
	}
	cfg.StopScope = scope
	cfg.Progress = !*quiet

	m, err := mapper.Lookup(*name, mapper.Params{
		Fields:      splitList(*fields),
		Set:         *set,
		StopWhen:    *when,
		FailMessage: *failMsg,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "parcsv: %v\n", err)
		return 2
	}

	return parcsv.MainWithConfig(m, fs.Args(), cfg)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
