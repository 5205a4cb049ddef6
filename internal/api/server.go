// Package api exposes the HTTP interface for the ingestion service.
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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kbforge/ingest/internal/client"
	"github.com/kbforge/ingest/internal/config"
	"github.com/kbforge/ingest/internal/pattern"
	"github.com/kbforge/ingest/internal/request"
	"github.com/kbforge/ingest/internal/review"
	"github.com/kbforge/ingest/internal/tracker"
	"github.com/kbforge/ingest/internal/upload"
)

// Backend is the ingestion collaborator the server delegates fetching,
// crawling, and uploading to.
type Backend interface {
	PreviewLinks(ctx context.Context, url string, patterns pattern.Set) (review.Preview, error)
	SubmitCrawl(ctx context.Context, req request.CrawlRequest) (client.SubmitResult, error)
	SubmitUpload(ctx context.Context, req upload.Request) (client.SubmitResult, error)
	Progress(ctx context.Context, progressID string) (tracker.Update, error)
}

// IDGenerator mints session identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Server wires HTTP handlers to the review sessions, request builder, and
// operation tracker.
type Server struct {
	router   chi.Router
	backend  Backend
	builder  *request.Builder
	tracker  *tracker.Tracker
	sessions *sessionRegistry
	idGen    IDGenerator
	cfg      config.Config
	logger   *zap.Logger

	watchCtx    context.Context
	watchCancel context.CancelFunc
}

// NewServer constructs a Server with middleware and routes. metricsHandler
// may be nil, in which case the default Prometheus handler is used.
func NewServer(
	backend Backend,
	builder *request.Builder,
	trk *tracker.Tracker,
	idGen IDGenerator,
	cfg config.Config,
	logger *zap.Logger,
	metricsHandler http.Handler,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	watchCtx, watchCancel := context.WithCancel(context.Background())
	s := &Server{
		backend:     backend,
		builder:     builder,
		tracker:     trk,
		sessions:    newSessionRegistry(cfg.Ingest.MaxSessionsPerServer),
		idGen:       idGen,
		cfg:         cfg,
		logger:      logger,
		watchCtx:    watchCtx,
		watchCancel: watchCancel,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/validate-url", s.validateURL)
		r.Post("/crawl", s.submitCrawl)
		r.Post("/documents", s.submitDocuments)
		r.Route("/review", func(r chi.Router) {
			r.Post("/", s.createReview)
			r.Route("/{session_id}", func(r chi.Router) {
				r.Get("/", s.getReview)
				r.Post("/actions", s.reviewAction)
				r.Post("/filters", s.reviewFilters)
				r.Post("/proceed", s.reviewProceed)
				r.Delete("/", s.deleteReview)
			})
		})
		r.Route("/operations", func(r chi.Router) {
			r.Get("/", s.listOperations)
			r.Get("/{progress_id}", s.getOperation)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Shutdown stops the progress watch goroutines spawned for accepted
// operations.
func (s *Server) Shutdown() {
	s.watchCancel()
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// watchProgress follows an accepted operation until it reaches a terminal
// status, feeding snapshots through the tracker's sinks.
func (s *Server) watchProgress(progressID string) {
	interval := s.cfg.ProgressPollInterval()
	if interval <= 0 {
		interval = 2 * time.Second
	}
	go func() {
		if err := s.tracker.Watch(s.watchCtx, s.backend, progressID, interval); err != nil &&
			!errors.Is(err, context.Canceled) {
			s.logger.Warn("progress watch ended",
				zap.String("progress_id", progressID),
				zap.Error(err))
		}
	}()
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
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
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

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

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

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
