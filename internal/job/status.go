package job

import "time"

// Status is a point-in-time snapshot of a scheduled job. It is computed on
// every query; the execution record stays the state of record.
type Status struct {
	Key         Key
	Description string
	Schedule    Schedule

	Running  bool
	Paused   bool
	Disabled bool
	Valid    bool
	Stopped  bool

	RunCount        int64
	LastRunAt       time.Time
	LastRunDuration time.Duration
	LastError       string
	LastErrorCount  int64

	// NextRunAt is zero when the job will not fire on its own: paused,
	// disabled, invalid, stopped or scheduled with None.
	NextRunAt time.Time
}
