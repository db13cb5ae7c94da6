package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "jobsched/pkg/logx"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	key         TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	at          INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	err         TEXT,
	reason      TEXT
);
CREATE INDEX IF NOT EXISTS runs_key_at ON runs(key, at);
CREATE INDEX IF NOT EXISTS runs_at ON runs(at);
`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("history.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			log.Debug("sqlite pragma failed", logx.String("pragma", p), logx.Err(err))
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history schema: %w", err)
	}
	log.Debug("history database opened", logx.String("path", path))
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Append(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(id, key, outcome, at, duration_ms, err, reason) VALUES(?,?,?,?,?,?,?)`,
		e.ID, e.Key, string(e.Outcome), e.At.UnixMilli(), e.DurationMS, nullStr(e.Error), nullStr(e.Reason),
	)
	return err
}

func (s *sqliteStore) Recent(ctx context.Context, q Query) ([]Entry, error) {
	var since int64
	if !q.Since.IsZero() {
		since = q.Since.UnixMilli()
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, key, outcome, at, duration_ms, err, reason FROM runs
		 WHERE (? = '' OR key = ?) AND at >= ?
		 ORDER BY at DESC, rowid DESC LIMIT ?`,
		q.Key, q.Key, since, q.limit(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e            Entry
			outcome      string
			at           int64
			errS, reason sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Key, &outcome, &at, &e.DurationMS, &errS, &reason); err != nil {
			return nil, err
		}
		e.Outcome = Outcome(outcome)
		e.At = time.UnixMilli(at).UTC()
		e.Error = errS.String
		e.Reason = reason.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE at < ?`, before.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
