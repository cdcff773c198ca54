package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vnykmshr/parcsv/pkg/metrics"
)

// CancelNotice is written to the error output when a job is interrupted.
const CancelNotice = "Cancelled by Ctrl-C!"

// State is the cancellation state of a job.
type State int32

const (
	// Running is the initial state.
	Running State = iota

	// Cancelling means an interrupt arrived and workers are being stopped.
	Cancelling

	// Terminated means workers are gone and the notice was written.
	Terminated
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Cancelling:
		return "cancelling"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// terminator is the part of the worker pool the controller drives.
type terminator interface {
	Terminate() <-chan struct{}
}

// ControllerConfig holds the collaborators of a Controller.
type ControllerConfig struct {
	// TeardownTimeout bounds the wait for workers. Zero waits forever.
	TeardownTimeout time.Duration

	// ErrOut receives CancelNotice.
	ErrOut io.Writer

	// Logger receives cancellation events.
	Logger *slog.Logger

	// Metrics counts cancelled jobs. Optional.
	Metrics *metrics.Registry
}

// Controller is the single cancellation path of a job. Only the
// coordinating goroutine observes the interrupt; workers see nothing but
// the pool terminating.
type Controller struct {
	pool   terminator
	config ControllerConfig

	state atomic.Int32
	once  sync.Once
	done  chan struct{}
}

// NewController creates a Controller in the Running state.
func NewController(pool terminator, config ControllerConfig) *Controller {
	if config.ErrOut == nil {
		config.ErrOut = io.Discard
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Controller{
		pool:   pool,
		config: config,
		done:   make(chan struct{}),
	}
}

// Watch cancels the job when ctx is done. The returned function detaches
// the controller and reports true if it did so before cancellation began.
func (c *Controller) Watch(ctx context.Context) (stop func() bool) {
	return context.AfterFunc(ctx, c.Cancel)
}

// Cancel moves the controller from Running to Terminated: it terminates the
// pool, waits for teardown and writes CancelNotice. Only the first call has
// any effect; it returns once the controller is Terminated.
func (c *Controller) Cancel() {
	c.once.Do(func() {
		c.state.Store(int32(Cancelling))
		c.config.Logger.Warn("interrupt received, terminating workers")

		terminated := c.pool.Terminate()
		if c.config.TeardownTimeout > 0 {
			timer := time.NewTimer(c.config.TeardownTimeout)
			select {
			case <-terminated:
			case <-timer.C:
				c.config.Logger.Error("workers did not stop in time",
					slog.Duration("timeout", c.config.TeardownTimeout))
			}
			timer.Stop()
		} else {
			<-terminated
		}

		fmt.Fprintln(c.config.ErrOut, CancelNotice)
		c.config.Logger.Error(CancelNotice)
		if c.config.Metrics != nil {
			c.config.Metrics.JobsCancelled.Inc()
		}

		c.state.Store(int32(Terminated))
		close(c.done)
	})
	<-c.done
}

// State returns the current state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Cancelled reports whether cancellation has begun.
func (c *Controller) Cancelled() bool {
	return c.State() != Running
}

// Done is closed once the controller reaches Terminated.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}
