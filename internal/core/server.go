// Package core provides the HTTP chassis for the membersync ingress
// service: a chi router with the cross-cutting middleware (panic recovery,
// request correlation, structured request logging) applied before requests
// reach domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"membersync/internal/config"
)

// RouteRegistrar mounts a group of handler routes on the router. Handlers
// register themselves through this indirection to avoid an import cycle
// between core and the handler packages.
type RouteRegistrar func(r chi.Router)

// Server encapsulates the ingress dependencies, allowing injection during
// testing and distinct configuration per environment.
type Server struct {
	Config *config.Config
	Logger *slog.Logger

	Registrars []RouteRegistrar

	router *chi.Mux
}

// NewServer validates critical dependencies and prepares the router. The
// caller mounts routes via MountRoutes after registering handlers.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// MountRoutes applies the global middleware chain and registers all routes.
//
// Middleware order matters: Recoverer is outermost so it catches panics from
// everything below; RequestID runs before the logger so every log line
// carries the correlation id.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))

	for _, registrar := range s.Registrars {
		registrar(s.router)
	}

	s.router.Get("/health", s.HandleHealth)
}

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration in tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown performs a graceful termination of server resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown complete")
	return nil
}
