package job

import (
	"errors"
	"fmt"
)

var (
	// ErrNotScheduled is returned when addressing a key that has no record.
	ErrNotScheduled = errors.New("job not scheduled")

	// ErrAbandoned is the result of a run that was removed from the worker
	// queue by Stop or Unschedule before its body started.
	ErrAbandoned = errors.New("job run abandoned before start")
)

// NotScheduledError carries the key that was not found.
// errors.Is(err, ErrNotScheduled) matches it.
type NotScheduledError struct {
	Key Key
}

func (e *NotScheduledError) Error() string {
	return fmt.Sprintf("job %s not scheduled", e.Key)
}

func (e *NotScheduledError) Is(target error) bool { return target == ErrNotScheduled }

func notScheduled(key Key) error { return &NotScheduledError{Key: key} }

// PanicError is recorded when a task body panics.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }
