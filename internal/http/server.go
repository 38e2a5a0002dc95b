// Package http exposes the recurrence engine over a small JSON API: on-demand
// batch runs, next-occurrence previews, missing-occurrence scans and backfill.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	applog "ricorrenti/internal/log"
	"ricorrenti/internal/middleware/security"
)

type Server struct {
	http.Server
	rateLimiter *rateLimiter
}

// NewServer builds the API server listening on addr.
func NewServer(addr string, h *Handler, logger *applog.Logger) *Server {
	rl := newRateLimiter(60)
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		rateLimiter: rl,
	}
	s.Handler = newRouter(h, logger, rl)
	return s
}

// newRouter wires middleware and routes. rl may be nil.
func newRouter(h *Handler, logger *applog.Logger, rl *rateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(applog.Middleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(security.Headers(security.DefaultHeadersConfig()))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Health)
	r.Get("/readyz", h.Ready)

	r.Route("/api/recurrences", func(r chi.Router) {
		if rl != nil {
			r.Use(rl.middleware)
		}
		r.Get("/", h.ListRules)
		r.Post("/run", h.Run)
		r.Get("/{id}/next", h.Next)
		r.Get("/{id}/missing", h.Missing)
		r.Post("/{id}/backfill", h.Backfill)
	})

	return r
}

// Shutdown stops the rate limiter and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.rateLimiter != nil {
		s.rateLimiter.stop()
	}
	return s.Server.Shutdown(ctx)
}
