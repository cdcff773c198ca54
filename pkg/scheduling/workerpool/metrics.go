package workerpool

import (
	"time"

	"github.com/vnykmshr/parcsv/pkg/metrics"
)

// MetricsPool wraps a worker Pool with Prometheus metrics collection.
type MetricsPool[T any] struct {
	Pool[T]
	name     string
	registry *metrics.Registry
}

// NewWithMetrics creates a worker pool that reports task counts, durations and
// worker gauges to registry under the given pool name. The config's task
// hooks are preserved and run before the metric updates.
func NewWithMetrics[T any](config Config, name string, registry *metrics.Registry) Pool[T] {
	if registry == nil {
		return NewWithConfig[T](config)
	}

	mp := &MetricsPool[T]{name: name, registry: registry}

	onStart := config.OnTaskStart
	config.OnTaskStart = func(workerID int) {
		if onStart != nil {
			onStart(workerID)
		}
		mp.updateMetrics()
	}

	onComplete := config.OnTaskComplete
	config.OnTaskComplete = func(workerID int, duration time.Duration, err error) {
		if onComplete != nil {
			onComplete(workerID, duration, err)
		}
		mp.registry.TaskExecutionDuration.WithLabelValues(mp.name).Observe(duration.Seconds())
		mp.registry.TasksExecuted.WithLabelValues(mp.name).Inc()
		if err != nil {
			mp.registry.TasksFailed.WithLabelValues(mp.name).Inc()
		}
	}

	mp.Pool = NewWithConfig[T](config)
	mp.updateMetrics()
	return mp
}

// SubmitOrdered starts an ordered run and refreshes the pool gauges.
func (mp *MetricsPool[T]) SubmitOrdered(tasks <-chan Task[T], batchSize int) Run[T] {
	run := mp.Pool.SubmitOrdered(tasks, batchSize)
	mp.updateMetrics()
	return run
}

// Terminate stops the pool and zeroes the activity gauges.
func (mp *MetricsPool[T]) Terminate() <-chan struct{} {
	done := mp.Pool.Terminate()
	mp.registry.WorkerPoolActive.WithLabelValues(mp.name).Set(0)
	mp.registry.WorkerPoolQueued.WithLabelValues(mp.name).Set(0)
	return done
}

// updateMetrics updates the current state metrics.
func (mp *MetricsPool[T]) updateMetrics() {
	// hooks can fire before the embedded pool is assigned
	if mp.Pool == nil {
		return
	}
	mp.registry.WorkerPoolSize.WithLabelValues(mp.name).Set(float64(mp.Pool.Size()))
	mp.registry.WorkerPoolActive.WithLabelValues(mp.name).Set(float64(mp.Pool.ActiveWorkers()))
	mp.registry.WorkerPoolQueued.WithLabelValues(mp.name).Set(float64(mp.Pool.QueueSize()))
}
