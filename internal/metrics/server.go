package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Iron-Ham/pollrunner/internal/logging"
	"github.com/Iron-Ham/pollrunner/internal/report"
)

const shutdownTimeout = 5 * time.Second

// StatusSource provides the live worker view served on /status.
// *pool.Pool satisfies it.
type StatusSource interface {
	RunID() string
	Running() int
	Snapshot() []report.Worker
}

// Status is the /status response body.
type Status struct {
	RunID          string          `json:"run_id"`
	Running        int             `json:"running"`
	TotalSuccesses int64           `json:"total_successes"`
	TotalFailures  int64           `json:"total_failures"`
	Workers        []report.Worker `json:"workers"`
}

// Server serves /metrics, /healthz and /status.
type Server struct {
	addr      string
	collector *Collector
	source    StatusSource
	logger    *logging.Logger
	router    chi.Router
}

// NewServer creates a Server listening on addr once Serve is called.
func NewServer(addr string, collector *Collector, source StatusSource, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NopLogger()
	}
	s := &Server{
		addr:      addr,
		collector: collector,
		source:    source,
		logger:    logger,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.recoverer)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.collector.Registry(), promhttp.HandlerOpts{}))
	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/status/{worker}", s.handleWorkerStatus)
	return r
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Serve listens on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("metrics listen on %s: %w", s.addr, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("metrics server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	running := s.source.Running()
	status := http.StatusOK
	body := map[string]any{"status": "ok", "running": running}
	if running == 0 {
		status = http.StatusServiceUnavailable
		body["status"] = "no workers running"
	}
	writeJSON(w, status, body)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	workers := s.source.Snapshot()
	st := Status{
		RunID:   s.source.RunID(),
		Running: s.source.Running(),
		Workers: workers,
	}
	for _, wk := range workers {
		st.TotalSuccesses += wk.Successes
		st.TotalFailures += wk.Failures
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleWorkerStatus(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "worker"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "worker must be an integer index")
		return
	}
	for _, wk := range s.source.Snapshot() {
		if wk.Index == index {
			writeJSON(w, http.StatusOK, wk)
			return
		}
	}
	writeError(w, http.StatusNotFound, fmt.Sprintf("no worker %d", index))
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("metrics handler panicked", "path", r.URL.Path, "panic", fmt.Sprint(rec))
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
