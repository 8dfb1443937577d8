package httpserver

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tombailey/dueue/internal/dueue"
	logpkg "github.com/tombailey/dueue/pkg/log"
)

// healthChecker is satisfied by engines that can probe their backing store.
type healthChecker interface {
	CheckHealth(ctx context.Context) error
}

// Options configures the HTTP server.
type Options struct {
	Service *dueue.Service
	Logger  logpkg.Logger
	// Engine enables the health probe when the configured engine supports
	// one. Optional.
	Engine dueue.Engine
	// Gatherer backs the /metrics endpoint. Optional; nil disables it.
	Gatherer prometheus.Gatherer
}

// Server exposes the queue operations over HTTP.
type Server struct {
	svc    *dueue.Service
	logger logpkg.Logger
	health healthChecker
	srv    *http.Server
	lis    net.Listener
}

// New wires the routes and middleware. The handler is available via Handler
// for tests; ListenAndServe runs it for real.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.New(logpkg.WithLevel(logpkg.InfoLevel))
	}
	logger = logger.With(logpkg.Str("component", "http"))

	s := &Server{svc: opts.Service, logger: logger}
	if hc, ok := opts.Engine.(healthChecker); ok {
		s.health = hc
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /queue/{queueName}", s.handlePublish)
	mux.HandleFunc("GET /queue/{queueName}", s.handleReceive)
	mux.HandleFunc("DELETE /queue/{queueName}/{messageId}", s.handleAcknowledge)
	mux.HandleFunc("GET /health", s.handleHealth)
	if opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	s.srv = &http.Server{Handler: s.recoverPanic(s.accessLog(mux))}
	return s
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	s.logger.Info("http server listening", logpkg.Str("addr", l.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Close releases the listener without waiting for in-flight requests.
func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			logpkg.Str("method", r.Method),
			logpkg.Str("path", r.URL.Path),
			logpkg.Int("status", rec.status),
			logpkg.Dur("elapsed", time.Since(start)),
		)
	})
}

// recoverPanic converts handler panics into empty 500 responses.
func (s *Server) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("handler panic",
					logpkg.Str("path", r.URL.Path),
					logpkg.F("panic", rec),
				)
				w.WriteHeader(http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	queue := r.PathValue("queueName")

	// Fields decode individually so each validation failure names the
	// field at fault.
	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object.")
		return
	}

	var message string
	if raw, ok := body["message"]; !ok || string(raw) == "null" || json.Unmarshal(raw, &message) != nil {
		writeError(w, http.StatusBadRequest, "message is required.")
		return
	}

	// Expiry is an absolute unix timestamp in seconds.
	var expiry *time.Time
	if raw, ok := body["expiry"]; ok {
		var secs int64
		if string(raw) == "null" || json.Unmarshal(raw, &secs) != nil {
			writeError(w, http.StatusBadRequest, "expiry must be a unix timestamp in seconds.")
			return
		}
		e := time.Unix(secs, 0)
		expiry = &e
	}

	if _, err := s.svc.Publish(r.Context(), queue, message, expiry); err != nil {
		s.logger.Error("publish failed", logpkg.Str("queue", queue), logpkg.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var deadlinePattern = regexp.MustCompile(`^\d+$`)

func (s *Server) handleReceive(w http.ResponseWriter, r *http.Request) {
	queue := r.PathValue("queueName")
	query := r.URL.Query()

	subscriber := query.Get("subscriberId")
	if subscriber == "" {
		writeError(w, http.StatusBadRequest, "subscriberId is required.")
		return
	}

	// The deadline arrives as an absolute unix timestamp in seconds.
	var deadline time.Time
	if raw := query.Get("acknowledgementDeadline"); raw != "" {
		if !deadlinePattern.MatchString(raw) {
			writeError(w, http.StatusBadRequest, "acknowledgementDeadline must be a non-negative unix timestamp.")
			return
		}
		secs, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "acknowledgementDeadline must be a non-negative unix timestamp.")
			return
		}
		deadline = time.Unix(secs, 0)
	}

	message, err := s.svc.Receive(r.Context(), queue, subscriber, deadline)
	if err != nil {
		s.logger.Error("receive failed", logpkg.Str("queue", queue), logpkg.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if message == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"id":      message.ID,
		"message": message.Body,
	})
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	queue := r.PathValue("queueName")
	id := r.PathValue("messageId")

	subscriber := r.URL.Query().Get("subscriberId")
	if subscriber == "" {
		writeError(w, http.StatusBadRequest, "subscriberId is required.")
		return
	}

	if err := s.svc.Acknowledge(r.Context(), queue, subscriber, id); err != nil {
		s.logger.Error("acknowledge failed", logpkg.Str("queue", queue), logpkg.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.CheckHealth(r.Context()); err != nil {
			s.logger.Warn("health probe failed", logpkg.Err(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "fail"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "pass"})
}
