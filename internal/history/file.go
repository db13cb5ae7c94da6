package history

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	logx "jobsched/pkg/logx"
)

// fileStore appends entries to a JSON Lines file. Queries scan the file;
// Prune rewrites it through a temporary file.
type fileStore struct {
	log  logx.Logger
	path string

	rename func(oldpath, newpath string) error

	mu     sync.Mutex
	f      *os.File // reopened on demand after a failed swap
	closed bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("history.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	log.Debug("history file opened", logx.String("path", path))
	return &fileStore{log: log, path: path, f: f, rename: os.Rename}, nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
}

// fileLocked returns the append handle, reopening it if a previous Prune
// could not.
func (s *fileStore) fileLocked() (*os.File, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.f == nil {
		f, err := openAppend(s.path)
		if err != nil {
			return nil, fmt.Errorf("reopen history file: %w", err)
		}
		s.f = f
	}
	return s.f, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *fileStore) Append(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.fileLocked()
	if err != nil {
		return err
	}
	return json.NewEncoder(f).Encode(e)
}

func (s *fileStore) Recent(ctx context.Context, q Query) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	limit := q.limit()
	var out []Entry
	err := s.scanLocked(ctx, func(e Entry) {
		if !q.match(e) {
			return
		}
		out = append(out, e)
		if len(out) > limit {
			out = out[1:]
		}
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

func (s *fileStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	tmp := s.path + ".tmp"
	tf, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, err
	}
	w := bufio.NewWriter(tf)
	enc := json.NewEncoder(w)
	var removed int64
	var encErr error
	err = s.scanLocked(ctx, func(e Entry) {
		if e.At.Before(before) {
			removed++
			return
		}
		if encErr == nil {
			encErr = enc.Encode(e)
		}
	})
	if err == nil {
		err = encErr
	}
	if err == nil {
		err = w.Flush()
	}
	if cerr := tf.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	if removed == 0 {
		_ = os.Remove(tmp)
		return 0, nil
	}

	// The old handle stays valid until the swap succeeded.
	if err := s.rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("replace history file: %w", err)
	}
	if s.f != nil {
		if err := s.f.Close(); err != nil {
			s.log.Debug("history file close failed", logx.Err(err))
		}
		s.f = nil
	}
	if _, err := s.fileLocked(); err != nil {
		return removed, err
	}
	return removed, nil
}

// scanLocked decodes every line of the file, skipping corrupt ones.
func (s *fileStore) scanLocked(ctx context.Context, fn func(Entry)) error {
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for n := 0; sc.Scan(); n++ {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		fn(e)
	}
	return sc.Err()
}
