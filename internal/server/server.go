// Package server provides the HTTP API for submitting and tracking research jobs.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/interview-prep/internal/config"
	"github.com/jonathan/interview-prep/internal/db"
	"github.com/jonathan/interview-prep/internal/notify"
	"github.com/jonathan/interview-prep/internal/progress"
	"github.com/jonathan/interview-prep/internal/server/middleware"
	"github.com/jonathan/interview-prep/internal/server/ratelimit"
	"github.com/jonathan/interview-prep/internal/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Orchestrator runs jobs in the background.
type Orchestrator interface {
	Submit(ctx context.Context, in types.JobInput) (*types.Job, error)
	Retry(ctx context.Context, id uuid.UUID) (*types.Job, error)
	Active(id uuid.UUID) bool
}

// Config holds server configuration
type Config struct {
	Address string
	// JWT enables bearer authentication on job routes. Nil leaves them open.
	JWT       *config.JWTConfig
	RateLimit *ratelimit.Config
	Stall     progress.StallPolicy
	// Heartbeat is the idle interval between keep-alive comments on event streams.
	Heartbeat time.Duration
	// EventPoll re-reads the job on event streams when no notification arrives.
	EventPoll time.Duration
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	store       db.Store
	orch        Orchestrator
	events      notify.Subscriber
	jwtService  *JWTService
	rateLimiter *ratelimit.Limiter
	stall       progress.StallPolicy
	heartbeat   time.Duration
	eventPoll   time.Duration
	log         *zap.Logger
	now         func() time.Time
}

// New creates a server. events may be nil, in which case event streams poll the store.
func New(cfg Config, store db.Store, orch Orchestrator, events notify.Subscriber, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Stall == (progress.StallPolicy{}) {
		cfg.Stall = progress.DefaultStallPolicy()
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 15 * time.Second
	}
	if cfg.EventPoll <= 0 {
		cfg.EventPoll = 5 * time.Second
	}

	s := &Server{
		store:       store,
		orch:        orch,
		events:      events,
		rateLimiter: ratelimit.NewLimiter(cfg.RateLimit),
		stall:       cfg.Stall,
		heartbeat:   cfg.Heartbeat,
		eventPoll:   cfg.EventPoll,
		log:         logger,
		now:         time.Now,
	}
	if cfg.JWT != nil {
		s.jwtService = NewJWTService(cfg.JWT)
	}

	s.httpServer = &http.Server{
		Addr:        cfg.Address,
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// No write timeout: event streams stay open until the job finishes.
		IdleTimeout: 60 * time.Second,
	}
	return s
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /jobs", s.protect(s.handleSubmitJob))
	mux.Handle("GET /jobs", s.protect(s.handleListJobs))
	mux.Handle("GET /jobs/{id}", s.protect(s.handleGetJob))
	mux.Handle("DELETE /jobs/{id}", s.protect(s.handleDeleteJob))
	mux.Handle("GET /jobs/{id}/events", s.protect(s.handleJobEvents))
	mux.Handle("POST /jobs/{id}/retry", s.protect(s.handleRetryJob))
	mux.Handle("GET /jobs/{id}/artifact", s.protect(s.handleGetArtifact))
	mux.Handle("GET /jobs/{id}/output", s.protect(s.handleGetOutput))

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s.withRateLimit(middleware.Logging(s.log.Named("http"))(s.withCORS(mux)))
}

// protect wraps h with bearer authentication when JWT is configured.
func (s *Server) protect(h http.HandlerFunc) http.Handler {
	if s.jwtService == nil {
		return h
	}
	return middleware.AuthMiddleware(s.jwtService.AsTokenValidator())(h)
}

// ListenAndServe serves until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.log.Info("server starting", zap.String("address", s.httpServer.Addr), zap.Bool("auth", s.jwtService != nil))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for handlers until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.rateLimiter.Stop()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.log.Info("server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(clientID(r), r.URL.Path, r.Method)
		setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientID uses the IP address from RemoteAddr.
func clientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]any{
		"error":   "rate_limit_exceeded",
		"message": "Rate limit exceeded. Please try again later.",
		"limit":   info.Limit,
	}
	if info.RetryAfter > 0 {
		secs := int(info.RetryAfter.Seconds()) + 1
		response["retry_after"] = secs
		w.Header().Set("Retry-After", fmt.Sprintf("%d", secs))
	}
	s.jsonResponse(w, http.StatusTooManyRequests, response)
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn("failed to encode response", zap.Error(err))
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": errorCode(status), "message": message})
}

// fail maps err to a status code and writes it. Internal errors are logged and hidden.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		s.errorResponse(w, status, "internal server error")
		return
	}
	s.errorResponse(w, status, err.Error())
}
