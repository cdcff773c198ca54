/*
Package parcsv maps the rows of CSV files in parallel and writes the results
next to each input, in input order.

A Mapper declares its output fields and transforms one record at a time:

	m := mapper.Func([]string{"a", "b"}, func(ctx context.Context, rec mapper.Record, diag *mapper.Diagnostics) (mapper.Record, error) {
		diag.Printf("seen %s", rec["id"]) // goes to the log, never to the output
		return mapper.Record{"a": "1", "b": "2"}, nil
	})

	func main() {
		os.Exit(parcsv.Main(m, os.Args[1:]))
	}

For every input, say data.csv, Main writes data_mapped.csv:

	row,succeeded,a,b
	1,true,1,2
	2,true,1,2

Rows whose transform fails are written with succeeded=false. Ctrl-C stops
every worker, prints "Cancelled by Ctrl-C!" and exits with status 130.

Packages:

  - pkg/mapper: the Mapper contract, the transform adapter and built-in mappers
  - pkg/scheduling/workerpool: ordered worker pool
  - pkg/scheduling/pipeline: the per-file job, cancellation and naming
  - pkg/scheduling/scheduler: cron reruns
  - pkg/streaming/reader, pkg/streaming/writer: CSV input and durable output
  - pkg/progress: console, log, Prometheus and Redis progress reporters
  - pkg/store/history: SQLite run history
  - pkg/metrics: Prometheus registry and /metrics server

Configuration:

	cfg := parcsv.DefaultConfig()
	cfg.Workers = 8
	cfg.BatchSize = 20
	cfg.Suffix = "_out"
	cfg.MetricsAddr = ":9090"
	cfg.HistoryPath = "parcsv.db"
	os.Exit(parcsv.MainWithConfig(m, files, cfg))
*/
package parcsv
