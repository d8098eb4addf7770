// Package api exposes the HTTP interface for the scraper service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/poolspel/matchdata-crawler/internal/metrics"
	"github.com/poolspel/matchdata-crawler/internal/scrape"
)

// Server wires HTTP handlers to the queue and the scrape pipeline's
// observable state.
type Server struct {
	router    chi.Router
	queue     *scrape.Queue
	analytics *scrape.Analytics
	breaker   *scrape.CircuitBreaker
	remote    scrape.RemoteExtractor
	draws     *scrape.DrawCoordinator
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	queue *scrape.Queue,
	analytics *scrape.Analytics,
	breaker *scrape.CircuitBreaker,
	remote scrape.RemoteExtractor,
	draws *scrape.DrawCoordinator,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		queue:     queue,
		analytics: analytics,
		breaker:   breaker,
		remote:    remote,
		draws:     draws,
		logger:    logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/scrapes", func(r chi.Router) {
			r.Post("/", s.submitScrape)
			r.Get("/{task_id}", s.getScrapeStatus)
		})
		r.Post("/draws", s.activateDraw)
		r.Get("/analytics", s.getAnalytics)
		r.Get("/breaker", s.getBreaker)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The browser path works without the remote service, so an unhealthy
	// remote only degrades readiness, it does not fail it. restart_needed is
	// the supervisor's cue to bounce the extraction service.
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ready",
		"remote_healthy": s.remote != nil && s.remote.Healthy(r.Context()),
		"restart_needed": s.remote != nil && s.remote.RestartNeeded(),
	})
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
			elapsed := time.Since(start)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", elapsed.Milliseconds()),
			)
			metrics.ObserveHTTPRequest(r.Method, r.URL.Path, ww.status, elapsed)
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

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
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
