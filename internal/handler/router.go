// Package handler provides the HTTP gateway of Owl Middleware.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/prn-tf/owl-middleware/internal/metrics"
)

// Router wires the gateway's handlers behind a chi router.
type Router struct {
	authHandler      *AuthHandler
	containerHandler *ContainerHandler
	fileHandler      *FileHandler
	searchHandler    *SearchHandler
	ocrHandler       *OCRHandler
	authMiddleware   func(http.Handler) http.Handler
	metrics          *metrics.Metrics
	metricsHandler   http.Handler
	metricsPath      string
	logger           zerolog.Logger
}

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	AuthHandler      *AuthHandler
	ContainerHandler *ContainerHandler
	FileHandler      *FileHandler
	SearchHandler    *SearchHandler
	OCRHandler       *OCRHandler

	// AuthMiddleware guards every route except /health, the metrics
	// endpoint, registration and login.
	AuthMiddleware func(http.Handler) http.Handler

	// Metrics may be nil. MetricsHandler is mounted at MetricsPath when set.
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
	MetricsPath    string

	Logger zerolog.Logger
}

// NewRouter creates a new Router.
func NewRouter(config RouterConfig) *Router {
	path := config.MetricsPath
	if path == "" {
		path = "/metrics"
	}
	return &Router{
		authHandler:      config.AuthHandler,
		containerHandler: config.ContainerHandler,
		fileHandler:      config.FileHandler,
		searchHandler:    config.SearchHandler,
		ocrHandler:       config.OCRHandler,
		authMiddleware:   config.AuthMiddleware,
		metrics:          config.Metrics,
		metricsHandler:   config.MetricsHandler,
		metricsPath:      path,
		logger:           config.Logger.With().Str("component", "router").Logger(),
	}
}

// Handler returns the main HTTP handler.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger(rt.logger))
	if rt.metrics != nil {
		r.Use(Metrics(rt.metrics))
	}
	r.Use(Recoverer(rt.logger))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})

	// Health check (no auth)
	r.Get("/health", rt.handleHealth)
	if rt.metricsHandler != nil {
		r.Method(http.MethodGet, rt.metricsPath, rt.metricsHandler)
	}
	if rt.authHandler != nil {
		rt.authHandler.RegisterPublicRoutes(r)
	}

	r.Group(func(r chi.Router) {
		if rt.authMiddleware != nil {
			r.Use(rt.authMiddleware)
		}
		if rt.authHandler != nil {
			rt.authHandler.RegisterRoutes(r)
		}
		if rt.containerHandler != nil {
			rt.containerHandler.RegisterRoutes(r)
		}
		if rt.fileHandler != nil {
			rt.fileHandler.RegisterRoutes(r)
		}
		if rt.searchHandler != nil {
			rt.searchHandler.RegisterRoutes(r)
		}
		if rt.ocrHandler != nil {
			rt.ocrHandler.RegisterRoutes(r)
		}
	})

	return r
}

// handleHealth handles health check requests.
func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
