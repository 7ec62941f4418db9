// Package api exposes the prediction pipeline over a local HTTP API.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/stake-pf-predict-go/internal/backend"
	"github.com/MJE43/stake-pf-predict-go/internal/pipeline"
	"github.com/MJE43/stake-pf-predict-go/internal/store"
)

const defaultRequestTimeout = 30 * time.Second

// Options configures a Server. DB may be nil when history is disabled.
type Options struct {
	DB             store.DB
	Logger         *slog.Logger
	RequestTimeout time.Duration
	AllowedOrigins []string
}

// Server handles HTTP requests
type Server struct {
	pipeline       *pipeline.Pipeline
	selector       *backend.Selector
	db             store.DB
	errorHandler   *ErrorHandler
	logger         *slog.Logger
	requestTimeout time.Duration
	allowedOrigins []string
	startTime      time.Time
}

// NewServer creates a new API server
func NewServer(p *pipeline.Pipeline, selector *backend.Selector, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "api")
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Server{
		pipeline:       p,
		selector:       selector,
		db:             opts.DB,
		errorHandler:   NewErrorHandler(logger),
		logger:         logger,
		requestTimeout: timeout,
		allowedOrigins: opts.AllowedOrigins,
		startTime:      time.Now(),
	}
}

// Routes sets up the HTTP routes with proper middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.RequestLoggingMiddleware)
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(middleware.Timeout(s.requestTimeout))
	r.Use(s.CORSMiddleware)

	r.Get("/health", s.handleHealthCheck)
	r.Get("/health/live", s.handleLiveness)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/backend", s.handleBackend)
		r.Get("/games", s.handleListGames)
		r.Post("/predict", s.handlePredict)
		r.Post("/digest", s.handleDigest)
		r.Get("/predictions", s.handleListPredictions)
		r.Get("/predictions/{id}", s.handleGetPrediction)
	})

	return r
}

// writeJSON writes a JSON response with proper headers
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
