package pipeline

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vnykmshr/parcsv/pkg/common/validation"
	"github.com/vnykmshr/parcsv/pkg/metrics"
	"github.com/vnykmshr/parcsv/pkg/progress"
)

// StopScope decides how far a stop request from a transform reaches.
type StopScope int

const (
	// StopFile abandons the rest of the current file; later files still run.
	StopFile StopScope = iota

	// StopJob abandons the current file and every file after it.
	StopJob
)

func (s StopScope) String() string {
	switch s {
	case StopFile:
		return "file"
	case StopJob:
		return "job"
	default:
		return fmt.Sprintf("StopScope(%d)", int(s))
	}
}

// ParseStopScope parses "file" or "job".
func ParseStopScope(s string) (StopScope, error) {
	if err := validation.ValidateOneOf("pipeline", "stop_scope", strings.ToLower(s), "file", "job"); err != nil {
		return StopFile, err
	}
	if strings.EqualFold(s, "job") {
		return StopJob, nil
	}
	return StopFile, nil
}

// Options configures a job.
type Options struct {
	// Suffix is appended to the input file stem to name the output.
	// Default: "_mapped"
	Suffix string

	// Extension of output files.
	// Default: ".csv"
	Extension string

	// BatchSize is the number of rows handed to a worker at once.
	// Default: 1
	BatchSize int

	// Workers is the number of parallel workers. Zero means one per CPU.
	Workers int

	// RowField and SucceededField name the two leading output columns.
	// Defaults: "row" and "succeeded"
	RowField       string
	SucceededField string

	// StopScope decides what a stop request from the transform abandons.
	// Default: StopFile
	StopScope StopScope

	// TeardownTimeout bounds how long cancellation waits for workers.
	// Default: 5s
	TeardownTimeout time.Duration

	// Sync fsyncs the output after every row.
	Sync bool

	// IgnoreExtraFields writes rows whose transform returned undeclared
	// fields, dropping those fields, instead of skipping the row.
	IgnoreExtraFields bool

	// Logger receives row diagnostics and job events.
	Logger *slog.Logger

	// ErrOut receives the user-facing cancellation notice.
	// Default: os.Stderr
	ErrOut io.Writer

	// Reporter receives progress events. Optional.
	Reporter progress.Reporter

	// Metrics instruments the worker pool and writer. Optional.
	Metrics *metrics.Registry

	// JobID identifies the job in logs and reports. Generated when empty.
	JobID string
}

// DefaultOptions returns the default job options.
func DefaultOptions() Options {
	return Options{
		Suffix:          "_mapped",
		Extension:       ".csv",
		BatchSize:       1,
		RowField:        "row",
		SucceededField:  "succeeded",
		StopScope:       StopFile,
		TeardownTimeout: 5 * time.Second,
	}
}

// Validate checks the options.
func (o Options) Validate() error {
	if err := validation.ValidatePositive("pipeline", "batch_size", o.BatchSize); err != nil {
		return err
	}
	if err := validation.ValidateNonNegative("pipeline", "workers", o.Workers); err != nil {
		return err
	}
	if err := validation.ValidateNotEmpty("pipeline", "extension", o.Extension); err != nil {
		return err
	}
	if err := validation.ValidateNotEmpty("pipeline", "row_field", o.RowField); err != nil {
		return err
	}
	if err := validation.ValidateNotEmpty("pipeline", "succeeded_field", o.SucceededField); err != nil {
		return err
	}
	if err := validation.ValidateOneOf("pipeline", "stop_scope", o.StopScope.String(), "file", "job"); err != nil {
		return err
	}
	return validation.ValidateNonNegativeDuration("pipeline", "teardown_timeout", o.TeardownTimeout)
}

// withDefaults fills in the optional collaborators.
func (o Options) withDefaults() Options {
	if o.Workers == 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.JobID == "" {
		o.JobID = uuid.NewString()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.ErrOut == nil {
		o.ErrOut = os.Stderr
	}
	if o.Reporter == nil {
		o.Reporter = progress.Nop{}
	}
	return o
}
