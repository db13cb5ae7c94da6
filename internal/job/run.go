package job

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

const (
	runQueued int32 = iota
	runStarted
	runAbandoned
)

// Run is the handle of one asynchronous execution of a job.
type Run struct {
	id  string
	key Key

	state atomic.Int32
	done  chan struct{}
	once  sync.Once
	err   error
}

func newRun(key Key) *Run {
	return &Run{id: uuid.NewString(), key: key, done: make(chan struct{})}
}

func (r *Run) ID() string { return r.id }
func (r *Run) Key() Key   { return r.key }

// Done is closed when the run finished or was abandoned.
func (r *Run) Done() <-chan struct{} { return r.done }

// Err returns the outcome once Done is closed; nil before that.
func (r *Run) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Wait blocks until the run is done or ctx ends.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// start moves a queued run to started. It fails if the run was abandoned.
func (r *Run) start() bool { return r.state.CompareAndSwap(runQueued, runStarted) }

// abandon moves a queued run to abandoned. It fails once the body started.
func (r *Run) abandon() bool { return r.state.CompareAndSwap(runQueued, runAbandoned) }

func (r *Run) finish(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}
