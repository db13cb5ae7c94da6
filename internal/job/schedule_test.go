package job

import (
	"context"
	"slices"
	"testing"
	"time"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		raw    string
		period time.Duration
	}{
		{name: "empty", raw: "", period: 0},
		{name: "none", raw: "none", period: 0},
		{name: "never", raw: "Never", period: 0},
		{name: "duration", raw: "10m", period: 10 * time.Minute},
		{name: "compound duration", raw: "2h30m", period: 150 * time.Minute},
		{name: "at every", raw: "@every 5s", period: 5 * time.Second},
		{name: "prefixed interval", raw: "interval:45s", period: 45 * time.Second},
		{name: "every prefix hhmm", raw: "every: 00:50", period: 50 * time.Minute},
		{name: "hhmm", raw: "01:30", period: 90 * time.Minute},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got.Period() != tt.period {
				t.Fatalf("Period = %v, want %v", got.Period(), tt.period)
			}
			if got.IsNone() != (tt.period == 0) {
				t.Fatalf("IsNone = %v for %q", got.IsNone(), tt.raw)
			}
			if got.InitialDelay() != 0 {
				t.Fatalf("InitialDelay = %v, want 0", got.InitialDelay())
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"not-a-schedule", "*/5 * * * *", "@daily", "-5m", "0s", "01:75", "interval:"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Fatalf("ParseSchedule(%q): expected error", raw)
		}
	}
}

func TestScheduleConstructors(t *testing.T) {
	t.Parallel()

	s := NewSchedule(1, 5, time.Minute)
	if s.InitialDelay() != time.Minute || s.Period() != 5*time.Minute {
		t.Fatalf("NewSchedule = %v", s)
	}
	if got := s.String(); got != "every 5m0s after 1m0s" {
		t.Fatalf("String = %q", got)
	}

	after := EverySecond.After(3 * time.Second)
	if after.InitialDelay() != 3*time.Second || after.Period() != time.Second {
		t.Fatalf("After = %v", after)
	}
	if EverySecond.InitialDelay() != 0 {
		t.Fatal("After must not mutate the preset")
	}

	if !None.After(time.Minute).IsNone() {
		t.Fatal("None.After must stay None")
	}
	if None.String() != "none" {
		t.Fatalf("None.String = %q", None.String())
	}
	if !Every(-time.Second).IsNone() {
		t.Fatal("negative period must be None")
	}
	if EveryDay.Period() != 24*time.Hour || EveryHour.Period() != time.Hour || EveryMinute.Period() != time.Minute {
		t.Fatal("unexpected preset periods")
	}
}

func TestKeyStringAndParse(t *testing.T) {
	t.Parallel()

	k := Category("scm").Type("indexation").Key("repo/one")
	if got := k.String(); got != "scm/indexation/repo/one" {
		t.Fatalf("String = %q", got)
	}
	if k.Category() != "scm" {
		t.Fatalf("Category = %q", k.Category())
	}

	parsed, err := ParseKey(k.String())
	if err != nil {
		t.Fatalf("ParseKey error: %v", err)
	}
	if parsed != k {
		t.Fatalf("ParseKey = %v, want %v", parsed, k)
	}

	for _, raw := range []string{"", "a/b", "a//c", "/b/c"} {
		if _, err := ParseKey(raw); err == nil {
			t.Fatalf("ParseKey(%q): expected error", raw)
		}
	}
}

func TestKeyCompare(t *testing.T) {
	t.Parallel()

	a1 := Category("a").Type("t").Key("1")
	a2 := Category("a").Type("t").Key("2")
	au := Category("a").Type("u").Key("0")
	b0 := Category("b").Type("a").Key("0")

	keys := []Key{b0, a2, au, a1}
	slices.SortFunc(keys, Key.Compare)
	want := []Key{a1, a2, au, b0}
	if !slices.Equal(keys, want) {
		t.Fatalf("sorted = %v, want %v", keys, want)
	}
	if a1.Compare(Category("a").Type("t").Key("1")) != 0 {
		t.Fatal("equal keys must compare 0")
	}
}

func TestChainOrder(t *testing.T) {
	t.Parallel()

	var trace []string
	mark := func(name string) Decorator {
		return func(_ Job, next Task) Task {
			return func(ctx context.Context) error {
				trace = append(trace, name)
				return next(ctx)
			}
		}
	}
	task := Chain(mark("outer"), nil, mark("inner"))(nil, func(context.Context) error {
		trace = append(trace, "body")
		return nil
	})
	if err := task(context.Background()); err != nil {
		t.Fatalf("task error: %v", err)
	}
	if want := []string{"outer", "inner", "body"}; !slices.Equal(trace, want) {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
}
