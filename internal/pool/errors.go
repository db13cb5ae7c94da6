package pool

import "errors"

var (
	ErrStopped   = errors.New("worker pool stopped")
	ErrQueueFull = errors.New("worker pool queue full")
	ErrNilFunc   = errors.New("worker pool: nil func")
)
