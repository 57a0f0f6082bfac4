package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	engageotel "github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/otel"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/pipeline"
)

const (
	defaultTimeout = 60 * time.Second
	maxBodyBytes   = 64 << 10
)

// Server holds the assembled runtime behind the HTTP API.
type Server struct {
	router      *chi.Mux
	rt          *pipeline.Runtime
	adminKey    string
	corsOrigins []string
	version     string
	startTime   time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithCORSOrigins sets allowed CORS origins (["*"] allows any).
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithAdminKey enables the operator routes (kill switch) behind key.
func WithAdminKey(key string) Option {
	return func(s *Server) { s.adminKey = key }
}

// WithVersion sets the build version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer builds a Server over an assembled runtime.
func NewServer(rt *pipeline.Runtime, opts ...Option) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		rt:          rt,
		corsOrigins: []string{"*"},
		version:     "dev",
		startTime:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the chi router with all middleware and routes.
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(engageotel.Middleware())
	r.Use(CORSMiddleware(s.corsOrigins))

	// Unauthenticated
	r.Get("/health", s.handleHealth)
	r.Get("/v1/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.rt.Tenants))
		r.Use(middleware.Timeout(defaultTimeout))

		r.Post("/v1/engage", s.handleEngage)

		r.Get("/v1/actions", s.handleActionsList)
		r.Get("/v1/actions/{id}", s.handleActionGet)
		r.Post("/v1/actions/{id}/decision", s.handleActionDecision)
		r.Post("/v1/actions/{id}/executed", s.handleActionExecuted)

		r.Get("/v1/audit", s.handleAudit)
	})

	r.Group(func(r chi.Router) {
		r.Use(AdminMiddleware(s.adminKey))
		r.Get("/v1/killswitch", s.handleKillSwitchGet)
		r.Put("/v1/killswitch", s.handleKillSwitchPut)
	})

	return r
}
