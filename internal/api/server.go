// Package api provides the HTTP API server and handlers for Cover Finder.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/listenupapp/coverfinder-server/internal/config"
	"github.com/listenupapp/coverfinder-server/internal/ratelimit"
	"github.com/listenupapp/coverfinder-server/internal/service"
	"github.com/listenupapp/coverfinder-server/internal/sitemap"
	"github.com/listenupapp/coverfinder-server/internal/store"
	"github.com/listenupapp/coverfinder-server/internal/tracking"
	"github.com/listenupapp/coverfinder-server/internal/validation"
)

// Version is reported in the OpenAPI document.
const Version = "1.0.0"

// Services groups the business logic used by the API server.
type Services struct {
	Catalog *service.CatalogService
	Tracker *tracking.Tracker
	Sitemap *sitemap.Builder
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	store        *store.Store
	services     *Services
	config       *config.Config
	router       *chi.Mux
	api          huma.API
	trackLimiter *ratelimit.KeyedRateLimiter
	validator    *validation.Validator
	logger       *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(st *store.Store, services *Services, cfg *config.Config, logger *slog.Logger) *Server {
	router := chi.NewRouter()

	s := &Server{
		store:        st,
		services:     services,
		config:       cfg,
		router:       router,
		trackLimiter: ratelimit.PerMinute(cfg.Server.TrackRateLimitPerMinute, cfg.Server.TrackRateLimitBurst),
		validator:    validation.New(),
		logger:       logger,
	}

	s.setupMiddleware()

	humaConfig := huma.DefaultConfig(cfg.Server.Name+" API", Version)
	humaConfig.Info.Description = "Album cover search with visitor activity tracking"
	s.api = humachi.New(router, humaConfig)
	RegisterErrorHandler()

	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API exposes the huma API, mainly for tests.
func (s *Server) API() huma.API {
	return s.api
}

// Close releases background resources held by the server.
func (s *Server) Close() {
	s.trackLimiter.Stop()
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.observe)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", MaintenanceTokenHeader},
		MaxAge:         86400,
	}))
	s.router.Use(withClientIP)
	s.router.Use(onPrefix("/api/v1", httprate.Limit(
		s.config.Server.RateLimitPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(s.rateLimited),
	)))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.registerHealthRoutes()
	s.registerCatalogRoutes()
	s.registerTrackingRoutes()
	s.registerStatsRoutes()
	s.registerMaintenanceRoutes()

	// Plain chi routes outside the OpenAPI surface.
	s.router.Get("/sitemap.xml", s.handleSitemap)
	s.router.Handle("/metrics", promhttp.Handler())
}
