// Package metrics provides Prometheus instrumentation for parcsv components.
//
// A Registry is constructed explicitly for each job and handed to the
// components that report into it; nothing registers at import time.
//
//	reg := prometheus.NewRegistry()
//	m := metrics.NewRegistry(reg)
//
//	pool := workerpool.NewWithMetrics[mapper.Result](workerpool.Config{WorkerCount: 4}, "rows", m)
//
// Expose the registry over HTTP with NewServer:
//
//	srv := metrics.NewServer(":9090", reg)
//	go srv.ListenAndServe()
//
// # Available Metrics
//
// Worker pool (label pool_name):
//   - parcsv_workerpool_tasks_executed_total
//   - parcsv_workerpool_tasks_failed_total
//   - parcsv_workerpool_task_duration_seconds
//   - parcsv_workerpool_size, parcsv_workerpool_active_workers, parcsv_workerpool_queued_batches
//
// Pipeline:
//   - parcsv_pipeline_rows_total{outcome="succeeded|failed|dropped"}
//   - parcsv_pipeline_files_total{status}
//   - parcsv_pipeline_cancellations_total
//
// Writer (label writer_name):
//   - parcsv_writer_flushes_total
//   - parcsv_writer_bytes_written_total
package metrics
