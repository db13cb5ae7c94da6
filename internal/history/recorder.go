package history

import (
	"context"
	"time"

	"github.com/google/uuid"

	"jobsched/internal/eventbus"
	"jobsched/internal/job"
	"jobsched/internal/observe"
	logx "jobsched/pkg/logx"
)

const appendTimeout = 2 * time.Second

// Recorder appends job outcomes published on the bus to a store. It
// subscribes on construction so no event published before Run is lost, up
// to the subscription buffer.
type Recorder struct {
	store Store
	log   logx.Logger
	ch    <-chan eventbus.Event
	unsub func()
}

func NewRecorder(store Store, bus eventbus.Bus, buffer int, log logx.Logger) *Recorder {
	if log.IsZero() {
		log = logx.Nop()
	}
	if buffer <= 0 {
		buffer = 256
	}
	ch, unsub := bus.Subscribe(buffer, eventbus.JobSucceeded, eventbus.JobFailed, eventbus.JobSkipped)
	return &Recorder{store: store, log: log.With(logx.String("comp", "history")), ch: ch, unsub: unsub}
}

// Run consumes events until ctx ends or Close is called. Events already
// buffered when ctx ends are still recorded.
func (r *Recorder) Run(ctx context.Context) error {
	defer r.unsub()
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return nil
		case ev, ok := <-r.ch:
			if !ok {
				return nil
			}
			r.record(ev)
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case ev, ok := <-r.ch:
			if !ok {
				return
			}
			r.record(ev)
		default:
			return
		}
	}
}

// Close unsubscribes from the bus, ending Run.
func (r *Recorder) Close() { r.unsub() }

func (r *Recorder) record(ev eventbus.Event) {
	je, ok := ev.Data.(observe.JobEvent)
	if !ok {
		return
	}
	e, keep := entryFor(ev.Type, je)
	if !keep {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()
	if err := r.store.Append(ctx, e); err != nil {
		r.log.Warn("history append failed", logx.String("job", e.Key), logx.Err(err))
	}
}

// entryFor maps a bus event to an entry. Skips are kept only when they mean
// lost work: a rejected or overlapping run.
func entryFor(typ string, je observe.JobEvent) (Entry, bool) {
	e := Entry{
		ID:         uuid.NewString(),
		Key:        je.Key,
		At:         je.At,
		DurationMS: je.Took.Milliseconds(),
		Error:      je.Error,
		Reason:     je.Reason,
	}
	switch typ {
	case eventbus.JobSucceeded:
		e.Outcome = Succeeded
	case eventbus.JobFailed:
		e.Outcome = Failed
	case eventbus.JobSkipped:
		switch job.SkipReason(je.Reason) {
		case job.SkipRejected, job.SkipRunning:
			e.Outcome = Skipped
		default:
			return Entry{}, false
		}
	default:
		return Entry{}, false
	}
	return e, true
}
