package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hexrift/licensor/internal/api/handler"
	mw "github.com/hexrift/licensor/internal/api/middleware"
	"github.com/hexrift/licensor/internal/api/response"
	"github.com/hexrift/licensor/internal/core"
)

// Server is the HTTP surface over the license core: a public verify endpoint
// and an API-key-guarded admin API.
type Server struct {
	router   chi.Router
	logger   zerolog.Logger
	services *core.Services
	pool     *pgxpool.Pool
}

// NewServer wires handlers and middleware onto a chi router.
func NewServer(logger zerolog.Logger, services *core.Services, pool *pgxpool.Pool) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		logger:   logger,
		services: services,
		pool:     pool,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	verify := handler.NewVerify(s.services.Engine)
	license := handler.NewLicense(s.services.License, s.services.Issuer, s.services.Reset)
	apiKey := handler.NewAPIKey(s.services.APIKey)

	s.router.Route("/api/v1", func(r chi.Router) {
		// License clients authenticate with the key itself.
		r.Post("/verify", verify.Post)

		r.Group(func(r chi.Router) {
			r.Use(mw.Auth(s.services.APIKey))

			r.Post("/licenses/batch", license.IssueBatch)
			r.Get("/licenses", license.List)
			r.Get("/licenses/{id}", license.Get)
			r.Delete("/licenses/{id}", license.Delete)
			r.Post("/licenses/{id}/ban", license.Ban)
			r.Post("/licenses/{id}/unban", license.Unban)
			r.Post("/licenses/{id}/activate", license.Activate)
			r.Post("/licenses/{id}/deactivate", license.Deactivate)
			r.Post("/licenses/{id}/reset-hwid", license.ResetHWID)
			r.Put("/licenses/{id}/owner", license.AssignOwner)

			r.Post("/api-keys", apiKey.Create)
			r.Delete("/api-keys/{id}", apiKey.Revoke)
		})
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.pool != nil {
		if err := s.pool.Ping(r.Context()); err != nil {
			response.WriteError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
