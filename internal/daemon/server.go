package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/felixgeelhaar/skillrank/internal/calibration"
	"github.com/felixgeelhaar/skillrank/internal/config"
	"github.com/felixgeelhaar/skillrank/internal/domain"
	"github.com/felixgeelhaar/skillrank/internal/queue"
	"github.com/felixgeelhaar/skillrank/internal/rating"
	"github.com/felixgeelhaar/skillrank/internal/recommend"
	"github.com/felixgeelhaar/skillrank/internal/skills"
)

// FeedbackApplier applies feedback synchronously; *rating.Engine satisfies it
type FeedbackApplier interface {
	Apply(ctx context.Context, ev domain.FeedbackEvent) (*rating.Result, error)
}

// Recommender ranks materials for a user; *recommend.Service satisfies it
type Recommender interface {
	Recommend(ctx context.Context, userID string, limit int) (*recommend.Ranking, error)
}

// FeedbackPublisher hands feedback to the queue; *queue.Producer satisfies it
type FeedbackPublisher interface {
	PublishFeedback(ctx context.Context, msg *queue.FeedbackMessage) error
}

// Server represents the skillrank daemon HTTP server
type Server struct {
	cfg    *config.LocalConfig
	server *http.Server
	router *http.ServeMux
	logger *slog.Logger

	store       skills.Store
	engine      FeedbackApplier
	recommender Recommender
	calibrator  *calibration.Calibrator
	publisher   FeedbackPublisher
	limiter     ratelimit.RateLimiter
}

// ServerConfig holds configuration for creating a new server
type ServerConfig struct {
	Config      *config.LocalConfig
	Store       skills.Store
	Engine      FeedbackApplier
	Recommender Recommender
	Calibrator  *calibration.Calibrator
	Publisher   FeedbackPublisher // optional; enables ?async=true
	Logger      *slog.Logger
}

// NewServer creates a new daemon server
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Config == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Store == nil || cfg.Engine == nil || cfg.Recommender == nil || cfg.Calibrator == nil {
		return nil, errors.New("store, engine, recommender and calibrator are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:         cfg.Config,
		router:      http.NewServeMux(),
		logger:      logger,
		store:       cfg.Store,
		engine:      cfg.Engine,
		recommender: cfg.Recommender,
		calibrator:  cfg.Calibrator,
		publisher:   cfg.Publisher,
	}

	if rate := cfg.Config.Daemon.RateLimit; rate > 0 {
		s.limiter = ratelimit.New(&ratelimit.Config{
			Rate:     rate,
			Burst:    rate * 3,
			Interval: time.Second,
		})
	}

	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.Config.Daemon.Bind, cfg.Config.Daemon.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /v1/health", s.handleHealth)

	s.router.HandleFunc("POST /v1/feedback", s.handleFeedback)
	s.router.HandleFunc("GET /v1/profiles/{userID}", s.handleGetProfile)
	s.router.HandleFunc("GET /v1/recommendations/{userID}", s.handleRecommendations)

	s.router.HandleFunc("GET /v1/calibration", s.handleCalibrationTable)
	s.router.HandleFunc("GET /v1/calibration/{label}", s.handleCalibration)

	s.router.Handle("GET /metrics", promhttp.Handler())
}

// Handler returns the router wrapped in the middleware chain
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	if s.limiter != nil {
		h = rateLimitMiddleware(s.limiter, h)
	}
	h = loggingMiddleware(s.logger, h)
	h = correlationIDMiddleware(h)
	return recoveryMiddleware(s.logger, h)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting skillrank daemon",
		"addr", s.server.Addr,
		"storage", s.cfg.Storage.Driver,
		"async_feedback", s.publisher != nil,
	)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down daemon...")

	if s.limiter != nil {
		if err := s.limiter.Close(); err != nil {
			s.logger.Warn("failed to close rate limiter", "error", err)
		}
	}

	return s.server.Shutdown(ctx)
}

// Helper methods

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	writeJSON(s.logger, w, status, data)
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]any{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	s.jsonResponse(w, status, response)
}

func writeJSON(logger *slog.Logger, w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}
