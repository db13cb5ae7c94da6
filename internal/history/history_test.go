package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"jobsched/internal/eventbus"
	"jobsched/internal/job"
	"jobsched/internal/observe"
	logx "jobsched/pkg/logx"
)

func openTestStore(t *testing.T, driver string) Store {
	t.Helper()
	st, err := Open(Config{Driver: driver, Path: filepath.Join(t.TempDir(), "history."+driver)}, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%s) error: %v", driver, err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestStores(t *testing.T) {
	t.Parallel()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, driver := range []string{"file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			st := openTestStore(t, driver)
			ctx := context.Background()

			entries := []Entry{
				{ID: "1", Key: "a/t/1", Outcome: Succeeded, At: base, DurationMS: 10},
				{ID: "2", Key: "a/t/2", Outcome: Failed, At: base.Add(time.Minute), Error: "boom"},
				{ID: "3", Key: "a/t/1", Outcome: Skipped, At: base.Add(2 * time.Minute), Reason: "rejected"},
				{ID: "4", Key: "a/t/1", Outcome: Succeeded, At: base.Add(3 * time.Minute), DurationMS: 7},
			}
			for _, e := range entries {
				if err := st.Append(ctx, e); err != nil {
					t.Fatalf("Append(%s) error: %v", e.ID, err)
				}
			}

			got, err := st.Recent(ctx, Query{Key: "a/t/1", Limit: 2})
			if err != nil {
				t.Fatalf("Recent error: %v", err)
			}
			if len(got) != 2 || got[0].ID != "4" || got[1].ID != "3" {
				t.Fatalf("Recent = %+v", got)
			}
			if got[1].Reason != "rejected" || got[1].Outcome != Skipped {
				t.Fatalf("entry 3 = %+v", got[1])
			}
			if !got[0].At.Equal(base.Add(3*time.Minute)) || got[0].DurationMS != 7 {
				t.Fatalf("entry 4 = %+v", got[0])
			}

			all, err := st.Recent(ctx, Query{Since: base.Add(time.Minute)})
			if err != nil {
				t.Fatalf("Recent error: %v", err)
			}
			if len(all) != 3 || all[2].Error != "boom" {
				t.Fatalf("Recent since = %+v", all)
			}

			removed, err := st.Prune(ctx, base.Add(90*time.Second))
			if err != nil {
				t.Fatalf("Prune error: %v", err)
			}
			if removed != 2 {
				t.Fatalf("Prune removed %d, want 2", removed)
			}
			left, _ := st.Recent(ctx, Query{})
			if len(left) != 2 {
				t.Fatalf("after prune = %+v", left)
			}

			if err := st.Append(ctx, Entry{ID: "5", Key: "a/t/2", Outcome: Succeeded, At: base.Add(4 * time.Minute)}); err != nil {
				t.Fatalf("Append after prune error: %v", err)
			}
			if left, _ := st.Recent(ctx, Query{}); len(left) != 3 || left[0].ID != "5" {
				t.Fatalf("after append = %+v", left)
			}
		})
	}
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	t.Parallel()
	for _, d := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: d}, logx.Nop())
		if st != nil || err != nil {
			t.Fatalf("Open(%q) = %v, %v", d, st, err)
		}
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("Open(redis) = %v", err)
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestFileStoreClosed(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, "file")
	if err := st.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := st.Append(context.Background(), Entry{ID: "x"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Append after close = %v", err)
	}
}

func TestFilePruneKeepsStoreUsableWhenSwapFails(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, "file")
	fs := st.(*fileStore)
	ctx := context.Background()
	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	for i, age := range []time.Duration{48 * time.Hour, time.Hour} {
		if err := st.Append(ctx, Entry{ID: string(rune('a' + i)), Key: "k", Outcome: Succeeded, At: now.Add(-age)}); err != nil {
			t.Fatal(err)
		}
	}

	fs.rename = func(string, string) error { return errors.New("disk full") }
	if _, err := st.Prune(ctx, now.Add(-24*time.Hour)); err == nil {
		t.Fatal("Prune succeeded with a failing rename")
	}
	if err := st.Append(ctx, Entry{ID: "c", Key: "k", Outcome: Failed, At: now}); err != nil {
		t.Fatalf("Append after failed prune: %v", err)
	}
	got, err := st.Recent(ctx, Query{Key: "k"})
	if err != nil || len(got) != 3 {
		t.Fatalf("Recent = %d entries, %v; want 3", len(got), err)
	}

	fs.rename = os.Rename
	n, err := st.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("Prune = %d, %v; want 1", n, err)
	}
	if err := st.Append(ctx, Entry{ID: "d", Key: "k", Outcome: Succeeded, At: now}); err != nil {
		t.Fatalf("Append after prune: %v", err)
	}
	if got, _ := st.Recent(ctx, Query{Key: "k"}); len(got) != 3 || got[0].ID != "d" {
		t.Fatalf("Recent after prune = %+v", got)
	}
}

func TestRecorder(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, "file")
	bus := eventbus.New()
	rec := NewRecorder(st, bus, 16, logx.Nop())
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	l := observe.NewBusListener(bus, func() time.Time { return at })
	key := job.Category("c").Type("t").Key("1")

	l.OnStart(key)
	l.OnSuccess(key, 1500*time.Millisecond)
	l.OnFailure(key, errors.New("boom"), time.Second)
	l.OnSkip(key, job.SkipSchedulerPaused)
	l.OnSkip(key, job.SkipRejected)
	rec.Close()

	if err := rec.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	got, err := st.Recent(context.Background(), Query{Key: key.String()})
	if err != nil {
		t.Fatalf("Recent error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("recorded %d entries, want 3: %+v", len(got), got)
	}
	outcomes := map[Outcome]Entry{}
	for _, e := range got {
		outcomes[e.Outcome] = e
		if e.ID == "" || !e.At.Equal(at) {
			t.Fatalf("entry = %+v", e)
		}
	}
	if outcomes[Succeeded].DurationMS != 1500 {
		t.Fatalf("success = %+v", outcomes[Succeeded])
	}
	if outcomes[Failed].Error != "boom" {
		t.Fatalf("failure = %+v", outcomes[Failed])
	}
	if outcomes[Skipped].Reason != string(job.SkipRejected) {
		t.Fatalf("skip = %+v", outcomes[Skipped])
	}
}
