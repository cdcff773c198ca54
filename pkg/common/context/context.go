// Package context provides helpers for contexts that carry a user interrupt
// as their cancellation cause.
package context

import (
	"context"
	"errors"
	"os"
	"os/signal"

	gferrors "github.com/vnykmshr/parcsv/pkg/common/errors"
)

// WithInterrupt returns a context and a function that cancels it with
// ErrInterrupted as the cause.
func WithInterrupt(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)
	return ctx, func() { cancel(gferrors.ErrInterrupted) }
}

// NotifyInterrupt returns a context that is canceled with ErrInterrupted when one
// of the given signals arrives. Only the calling process subscribes; the
// returned stop function restores default signal handling.
func NotifyInterrupt(parent context.Context, signals ...os.Signal) (context.Context, func()) {
	ctx, interrupt := WithInterrupt(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, signals...)

	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			interrupt()
		case <-done:
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		select {
		case <-done:
		default:
			close(done)
		}
	}
}

// IsCanceled returns true if the context has been canceled
func IsCanceled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// IsInterrupted returns true if the context was canceled by a user interrupt.
// A plain cancellation of a context without a cause also counts: the job
// context has no other cancellation source.
func IsInterrupted(ctx context.Context) bool {
	if !IsCanceled(ctx) {
		return false
	}
	cause := context.Cause(ctx)
	return errors.Is(cause, gferrors.ErrInterrupted) || errors.Is(cause, context.Canceled)
}
