package job

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Schedule is an immutable fixed-delay schedule: the first tick happens after
// the initial delay, every following tick one period after the previous tick
// was invoked. The zero period means the job never fires on its own (None).
type Schedule struct {
	initial time.Duration
	period  time.Duration
}

var (
	// None never fires automatically; only FireImmediately runs the job.
	None = Schedule{}

	EverySecond = Every(time.Second)
	EveryMinute = Every(time.Minute)
	EveryHour   = Every(time.Hour)
	EveryDay    = Every(24 * time.Hour)
)

// Every returns a schedule firing immediately, then every period.
func Every(period time.Duration) Schedule {
	if period < 0 {
		period = 0
	}
	return Schedule{period: period}
}

// NewSchedule builds a schedule from an (initial delay, period, unit) triple,
// e.g. NewSchedule(1, 5, time.Minute).
func NewSchedule(initial, period int64, unit time.Duration) Schedule {
	return Every(time.Duration(period) * unit).After(time.Duration(initial) * unit)
}

// After returns a copy of s whose first tick is delayed by d.
func (s Schedule) After(d time.Duration) Schedule {
	if d < 0 {
		d = 0
	}
	if s.IsNone() {
		return s
	}
	s.initial = d
	return s
}

func (s Schedule) InitialDelay() time.Duration { return s.initial }
func (s Schedule) Period() time.Duration       { return s.period }

// IsNone reports whether the schedule never fires automatically.
func (s Schedule) IsNone() bool { return s.period <= 0 }

func (s Schedule) String() string {
	if s.IsNone() {
		return "none"
	}
	if s.initial > 0 {
		return fmt.Sprintf("every %s after %s", s.period, s.initial)
	}
	return fmt.Sprintf("every %s", s.period)
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseSchedule parses a schedule string into a fixed-delay schedule.
//
// Supported forms:
//   - "none" (or empty): never fires automatically
//   - Go duration: "55m", "2h30m"
//   - HH:MM interval: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
//   - "@every 5m"
//   - "interval:" or "every:" prefixes in front of any of the interval forms
//
// Cron expressions are rejected: the scheduler only knows fixed delays.
func ParseSchedule(raw string) (Schedule, error) {
	s := strings.TrimSpace(raw)
	low := strings.ToLower(s)
	switch {
	case s == "" || low == "none" || low == "never":
		return None, nil
	case strings.HasPrefix(low, "@every"):
		s = strings.TrimSpace(s[len("@every"):])
	case strings.HasPrefix(low, "interval:"):
		s = strings.TrimSpace(s[len("interval:"):])
	case strings.HasPrefix(low, "every:"):
		s = strings.TrimSpace(s[len("every:"):])
	case strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@"):
		return None, fmt.Errorf("invalid schedule %q: cron expressions are not supported, use a duration like '55m'", raw)
	}
	d, err := parseInterval(s)
	if err != nil {
		return None, err
	}
	return Every(d), nil
}

func parseInterval(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, fmt.Errorf("interval required")
	}
	if reHHMM.MatchString(v) {
		return parseHHMMDuration(v)
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q (use HH:MM or Go duration like '55m'/'2h30m')", v)
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be > 0")
	}
	return d, nil
}

func parseHHMMDuration(v string) (time.Duration, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, fmt.Errorf("invalid HH:MM %q", v)
	}
	var hh int
	for i := 0; i < len(m[1]); i++ {
		hh = hh*10 + int(m[1][i]-'0')
	}
	mm := int(m[2][0]-'0')*10 + int(m[2][1]-'0')
	if mm > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", v)
	}
	d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	if d <= 0 {
		return 0, fmt.Errorf("interval must be > 0")
	}
	return d, nil
}
