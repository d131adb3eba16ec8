// Package server wires the HTTP surface: routing, auth, rate limits, and
// the security/logging middleware stack.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/recintake/recintake/internal/auth"
	"github.com/recintake/recintake/internal/ratelimit"
	"github.com/recintake/recintake/internal/recording"
	"github.com/recintake/recintake/internal/shortlink"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Pinger          Pinger
	Resolver        *auth.Resolver
	Recording       *recording.Handler
	Links           *shortlink.Handler
	BaseURL         string
	StorageEndpoint string
}

type Server struct {
	router    chi.Router
	pinger    Pinger
	resolver  *auth.Resolver
	recording *recording.Handler
	links     *shortlink.Handler
}

func New(cfg Config) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(slogMiddleware)
	r.Use(securityHeaders(SecurityConfig{
		BaseURL:         cfg.BaseURL,
		StorageEndpoint: cfg.StorageEndpoint,
	}))

	s := &Server{
		router:    r,
		pinger:    cfg.Pinger,
		resolver:  cfg.Resolver,
		recording: cfg.Recording,
		links:     cfg.Links,
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)

	if s.recording != nil {
		uploadLimiter := ratelimit.NewLimiter(0.2, 3)
		s.router.Group(func(r chi.Router) {
			r.Use(uploadLimiter.Middleware)
			r.Use(s.resolver.Optional)
			// Transcode plus transcription of a long recording can take
			// minutes; the route timeout bounds it, not the server timeouts.
			r.Use(middleware.Timeout(10 * time.Minute))
			r.Post("/api/upload-with-ai", s.recording.Upload)
		})

		s.router.Group(func(r chi.Router) {
			r.Use(s.resolver.Middleware)
			r.Get("/api/my-videos", s.recording.List)
			r.Delete("/api/delete-video", s.recording.Delete)
			r.Post("/api/analyze-text", s.recording.AnalyzeText)
		})
	}

	if s.links != nil {
		shortenLimiter := ratelimit.NewLimiter(2, 10)
		s.router.Group(func(r chi.Router) {
			r.Use(shortenLimiter.Middleware)
			r.Use(s.resolver.Optional)
			r.Post("/api/shorten", s.links.Shorten)
		})

		s.router.Group(func(r chi.Router) {
			r.Use(s.resolver.Middleware)
			r.Get("/api/get-secure-video/{id}", s.links.SecureVideo)
		})

		s.router.Get("/s/{id}", s.links.Resolve)
		s.router.Get("/v/{id}", s.links.GatePage)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unhealthy","error":"database unreachable"}`))
			return
		}
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
