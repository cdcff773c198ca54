package mapper

import (
	"errors"
	"fmt"
)

// ErrStop marks a deliberate request from a transform to stop processing.
var ErrStop = errors.New("stop processing")

// StopError carries the reason a transform asked to stop.
type StopError struct {
	Reason string
	Cause  error
}

// Stop returns an error that halts processing of the current file.
func Stop(reason string) error {
	return &StopError{Reason: reason}
}

// StopWith wraps cause in a stop request.
func StopWith(reason string, cause error) error {
	return &StopError{Reason: reason, Cause: cause}
}

func (e *StopError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("stop processing: %s: %v", e.Reason, e.Cause)
	}
	return "stop processing: " + e.Reason
}

// Is matches ErrStop.
func (e *StopError) Is(target error) bool {
	return target == ErrStop
}

func (e *StopError) Unwrap() error {
	return e.Cause
}

// IsStop reports whether err is a stop request.
func IsStop(err error) bool {
	return errors.Is(err, ErrStop)
}
