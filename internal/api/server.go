package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/domcapture/internal/capture"
)

const (
	requestTimeout  = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

// RecordSource exposes the aggregator's read side.
type RecordSource interface {
	Snapshot() []capture.Record
	Counts() map[capture.Status]int
}

// StateSource reports the cancellation controller's state.
type StateSource interface {
	State() fmt.Stringer
}

// QueueSource reports how much of the URL set is still waiting.
type QueueSource interface {
	Len() int
	Total() int
}

// HostSource reports how many distinct hosts have been throttled.
type HostSource interface {
	Hosts() int
}

// StateFunc adapts a function to StateSource.
type StateFunc func() fmt.Stringer

// State implements StateSource.
func (f StateFunc) State() fmt.Stringer { return f() }

// Options configures the status server.
type Options struct {
	RunID    string
	Queue    QueueSource
	Hosts    HostSource
	Records  RecordSource
	State    StateSource
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// Server serves run status over HTTP.
type Server struct {
	router chi.Router
	opts   Options
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{opts: opts, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	r.Route("/v1", func(r chi.Router) {
		r.Get("/progress", s.progress)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown status server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) progress(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Records == nil {
		writeError(w, http.StatusServiceUnavailable, "run not started")
		return
	}
	records := s.opts.Records.Snapshot()
	counts := s.opts.Records.Counts()

	resp := progressDTO{
		RunID:    s.opts.RunID,
		Recorded: len(records),
		Counts:   make(map[string]int, len(counts)),
		Rows:     make([]rowDTO, 0, len(records)),
	}
	if s.opts.Queue != nil {
		resp.Total = s.opts.Queue.Total()
		resp.Pending = s.opts.Queue.Len()
	}
	if s.opts.Hosts != nil {
		resp.Hosts = s.opts.Hosts.Hosts()
	}
	if s.opts.State != nil {
		resp.State = s.opts.State.State().String()
	}
	for status, n := range counts {
		resp.Counts[string(status)] = n
	}
	for _, rec := range records {
		resp.Rows = append(resp.Rows, toRowDTO(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

func toRowDTO(rec capture.Record) rowDTO {
	row := rowDTO{
		URL:       rec.URL,
		Status:    string(rec.Outcome.Status),
		Timestamp: rec.Outcome.Timestamp,
	}
	if rec.Outcome.Succeeded() {
		row.Title = rec.Outcome.Title
		row.Screenshot = rec.Outcome.ScreenshotPath
	} else {
		row.Note = rec.Outcome.Note()
	}
	return row
}

type progressDTO struct {
	RunID    string         `json:"run_id"`
	State    string         `json:"state"`
	Total    int            `json:"total"`
	Pending  int            `json:"pending"`
	Recorded int            `json:"recorded"`
	Hosts    int            `json:"hosts"`
	Counts   map[string]int `json:"counts"`
	Rows     []rowDTO       `json:"rows"`
}

type rowDTO struct {
	URL        string    `json:"url"`
	Status     string    `json:"status"`
	Title      string    `json:"title,omitempty"`
	Screenshot string    `json:"screenshot,omitempty"`
	Note       string    `json:"note,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Debug("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
