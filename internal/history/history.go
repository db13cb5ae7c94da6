// Package history persists the outcome of job runs.
//
// Drivers:
//   - "file": append-only JSON Lines file
//   - "sqlite": SQLite database (modernc.org/sqlite, no cgo)
//
// An empty driver or "none" disables history.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	logx "jobsched/pkg/logx"
)

var (
	ErrClosed        = errors.New("history store closed")
	ErrUnknownDriver = errors.New("unknown history driver")
)

type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only
}

type Outcome string

const (
	Succeeded Outcome = "success"
	Failed    Outcome = "failure"
	Skipped   Outcome = "skipped"
)

// Entry is one recorded run outcome.
type Entry struct {
	ID         string    `json:"id"`
	Key        string    `json:"key"`
	Outcome    Outcome   `json:"outcome"`
	At         time.Time `json:"at"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

// Query selects entries; zero fields do not filter.
type Query struct {
	Key   string
	Since time.Time
	// Limit caps the result, newest entries first. Defaults to 50.
	Limit int
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return 50
	}
	return q.Limit
}

func (q Query) match(e Entry) bool {
	if q.Key != "" && e.Key != q.Key {
		return false
	}
	if !q.Since.IsZero() && e.At.Before(q.Since) {
		return false
	}
	return true
}

type Store interface {
	Append(ctx context.Context, e Entry) error
	// Recent returns matching entries, newest first.
	Recent(ctx context.Context, q Query) ([]Entry, error)
	// Prune deletes entries older than before and reports how many went.
	Prune(ctx context.Context, before time.Time) (int64, error)
	Close() error
}

// Open initializes the configured store. It returns (nil, nil) when history
// is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "history"), logx.String("driver", driver))

	switch driver {
	case "file", "jsonl":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}
