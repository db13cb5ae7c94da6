// Package debugserver runs the optional debug HTTP listener: net/http/pprof
// handlers plus a JSON view of the scheduler's job statuses.
package debugserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"runtime"
	"sync"
	"time"

	"jobsched/internal/job"
	logx "jobsched/pkg/logx"
)

type Config struct {
	Enabled              bool
	Addr                 string
	BlockProfileRate     int
	MutexProfileFraction int
}

// StatusSource is the read side of the scheduler.
type StatusSource interface {
	JobStatuses() []job.Status
	Paused() bool
}

// Server manages the lifecycle of the debug listener. Apply may be called
// repeatedly; the listener is only restarted when the address changes.
type Server struct {
	mu     sync.Mutex
	log    logx.Logger
	status StatusSource

	srv  *http.Server
	ln   net.Listener
	addr string
}

func New(status StatusSource, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{status: status, log: log.With(logx.String("comp", "debug"))}
}

// Apply starts, stops or moves the listener according to cfg and updates
// the runtime profile rates. A failed listen is logged and returned.
func (s *Server) Apply(ctx context.Context, cfg Config) error {
	runtime.SetBlockProfileRate(cfg.BlockProfileRate)
	runtime.SetMutexProfileFraction(cfg.MutexProfileFraction)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !cfg.Enabled {
		s.stopLocked(ctx)
		return nil
	}
	if s.srv != nil && s.addr == cfg.Addr {
		return nil
	}
	s.stopLocked(ctx)
	return s.startLocked(cfg)
}

func (s *Server) startLocked(cfg Config) error {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		s.log.Warn("debug listen failed", logx.String("addr", cfg.Addr), logx.Err(err))
		return err
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	s.srv = srv
	s.ln = ln
	// Keep the configured addr so an unchanged config is a no-op even with
	// port 0.
	s.addr = cfg.Addr

	bound := ln.Addr().String()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("debug server error", logx.String("addr", bound), logx.Err(err))
		}
	}()
	s.log.Info("debug server enabled", logx.String("addr", bound))
	return nil
}

// Handler returns the debug mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.HandleFunc("/debug/jobs", s.serveJobs)
	return mux
}

// Stop shuts the listener down.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(ctx)
}

func (s *Server) stopLocked(ctx context.Context) {
	if s.srv == nil {
		return
	}
	srv, ln, addr := s.srv, s.ln, s.ln.Addr().String()
	s.srv, s.ln, s.addr = nil, nil, ""

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Warn("debug shutdown error", logx.String("addr", addr), logx.Err(err))
	}
	_ = ln.Close()
	s.log.Info("debug server disabled", logx.String("addr", addr))
}

// Addr reports the bound address, empty when not running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

type jobView struct {
	Key             string     `json:"key"`
	Description     string     `json:"description,omitempty"`
	Schedule        string     `json:"schedule"`
	Running         bool       `json:"running"`
	Paused          bool       `json:"paused"`
	Disabled        bool       `json:"disabled"`
	Valid           bool       `json:"valid"`
	Stopped         bool       `json:"stopped"`
	RunCount        int64      `json:"run_count"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	LastRunDuration string     `json:"last_run_duration,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	LastErrorCount  int64      `json:"last_error_count,omitempty"`
	NextRunAt       *time.Time `json:"next_run_at,omitempty"`
}

type jobsResponse struct {
	Paused bool      `json:"paused"`
	Jobs   []jobView `json:"jobs"`
}

func (s *Server) serveJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	statuses := s.status.JobStatuses()
	resp := jobsResponse{Paused: s.status.Paused(), Jobs: make([]jobView, 0, len(statuses))}
	for _, st := range statuses {
		resp.Jobs = append(resp.Jobs, viewOf(st))
	}
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		s.log.Debug("debug jobs encode failed", logx.Err(err))
	}
}

func viewOf(st job.Status) jobView {
	v := jobView{
		Key:            st.Key.String(),
		Description:    st.Description,
		Schedule:       st.Schedule.String(),
		Running:        st.Running,
		Paused:         st.Paused,
		Disabled:       st.Disabled,
		Valid:          st.Valid,
		Stopped:        st.Stopped,
		RunCount:       st.RunCount,
		LastError:      st.LastError,
		LastErrorCount: st.LastErrorCount,
	}
	if !st.LastRunAt.IsZero() {
		t := st.LastRunAt
		v.LastRunAt = &t
		v.LastRunDuration = st.LastRunDuration.String()
	}
	if !st.NextRunAt.IsZero() {
		t := st.NextRunAt
		v.NextRunAt = &t
	}
	return v
}
