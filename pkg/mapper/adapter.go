package mapper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Result is the outcome of one transform invocation, paired with the
// sequence number of the input record it came from.
type Result struct {
	// Seq is the 1-based position of the input record.
	Seq int64

	// Succeeded is true when the transform returned normally.
	Succeeded bool

	// Values holds the transformed fields. Always nil when Succeeded is false.
	Values Record
}

// PanicError is the per-row failure recorded when a transform panics.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("transform panicked: %v", e.Value)
}

// Adapter runs a single Mapper invocation with output capture, failure
// containment and result tagging.
type Adapter struct {
	logger   *slog.Logger
	reserved []string
}

// NewAdapter creates an Adapter that logs to logger. Reserved names are
// output columns owned by the writer; a transform cannot set them.
func NewAdapter(logger *slog.Logger, reserved ...string) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{logger: logger, reserved: reserved}
}

// Apply transforms rec, the record at position seq.
//
// Ordinary errors and panics are absorbed: the returned Result has
// Succeeded=false and the error is nil. A stop request is logged and
// returned as the error.
func (a *Adapter) Apply(ctx context.Context, m Mapper, seq int64, rec Record) (Result, error) {
	diag := &Diagnostics{}
	values, err := a.invoke(ctx, m, rec, diag)

	attrs := []any{slog.Int64("row", seq), slog.Any("item", rec)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		attrs = appendCaptured(attrs, diag)

		if IsStop(err) {
			a.logger.ErrorContext(ctx, "transform requested stop", attrs...)
			return Result{Seq: seq}, err
		}

		var perr *PanicError
		if errors.As(err, &perr) {
			attrs = append(attrs, slog.String("stack", string(perr.Stack)))
		}
		a.logger.ErrorContext(ctx, "transform failed", attrs...)
		return Result{Seq: seq}, nil
	}

	if out := diag.ErrorOutput(); out != "" {
		a.logger.ErrorContext(ctx, "transform error output", append(attrs, slog.String("output", out))...)
	}
	if out := diag.Output(); out != "" {
		a.logger.InfoContext(ctx, "transform output", append(attrs, slog.String("output", out))...)
	}

	return Result{Seq: seq, Succeeded: true, Values: a.strip(values)}, nil
}

func (a *Adapter) invoke(ctx context.Context, m Mapper, rec Record, diag *Diagnostics) (values Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			values = nil
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return m.Transform(ctx, rec, diag)
}

// strip removes reserved columns, copying only when there is something to remove.
func (a *Adapter) strip(values Record) Record {
	if values == nil {
		return Record{}
	}
	for _, name := range a.reserved {
		if _, ok := values[name]; ok {
			values = values.Clone()
			for _, n := range a.reserved {
				delete(values, n)
			}
			break
		}
	}
	return values
}

func appendCaptured(attrs []any, diag *Diagnostics) []any {
	if out := diag.Output(); out != "" {
		attrs = append(attrs, slog.String("output", out))
	}
	if out := diag.ErrorOutput(); out != "" {
		attrs = append(attrs, slog.String("error_output", out))
	}
	return attrs
}
