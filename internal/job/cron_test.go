package job

import (
	"context"
	"testing"
	"time"

	logx "jobsched/pkg/logx"
)

func TestFixedDelayNext(t *testing.T) {
	t.Parallel()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s := &fixedDelay{initial: 3 * time.Second, period: time.Minute}

	if got := s.Next(base); !got.Equal(base.Add(3 * time.Second)) {
		t.Fatalf("first Next = %v", got)
	}
	later := base.Add(10 * time.Second)
	if got := s.Next(later); !got.Equal(later.Add(time.Minute)) {
		t.Fatalf("second Next = %v", got)
	}
}

func TestCronTimersFire(t *testing.T) {
	t.Parallel()
	timers := NewCronTimers(time.UTC, logx.Nop())
	timers.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		timers.Stop(ctx)
	}()

	fired := make(chan struct{}, 4)
	tm := timers.Schedule(0, time.Hour, func() { fired <- struct{}{} })
	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("timer did not fire")
	}

	if next := tm.Next(); next.IsZero() {
		t.Fatal("Next is zero for an armed timer")
	}
	tm.Cancel()
	tm.Cancel()
	if next := tm.Next(); !next.IsZero() {
		t.Fatalf("Next after Cancel = %v", next)
	}
}
