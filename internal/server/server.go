// Package server exposes the worker runtime over HTTP: a catch-all
// route that dispatches fetch events and a trigger route for scheduled
// events.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/drivly/miniflare/internal/worker"
)

// scheduledPath is the trigger route for timer-driven invocations.
const scheduledPath = "/cdn-cgi/mf/scheduled"

// Config holds server configuration.
type Config struct {
	Host         string
	Port         int
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:         "127.0.0.1",
		Port:         8787,
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server is the HTTP trigger surface for one worker scope. The scope
// can be swapped at runtime when the dev watcher rebuilds it.
type Server struct {
	config  *Config
	router  *chi.Mux
	httpSrv *http.Server
	log     zerolog.Logger

	mu    sync.RWMutex
	scope *worker.Scope
}

// New creates a Server dispatching to scope.
func New(cfg *Config, scope *worker.Scope, log zerolog.Logger) *Server {
	s := &Server{
		config: cfg,
		router: chi.NewRouter(),
		log:    log,
		scope:  scope,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get(scheduledPath, s.handleScheduled)
	s.router.HandleFunc("/*", s.handleFetch)
}

// Scope returns the currently active scope.
func (s *Server) Scope() *worker.Scope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scope
}

// SetScope swaps the active scope. In-flight dispatches keep the scope
// they started with.
func (s *Server) SetScope(scope *worker.Scope) {
	s.mu.Lock()
	s.scope = scope
	s.mu.Unlock()
}

// Handler returns the server's HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start begins serving and blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.log.Info().Str("addr", addr).Msg("worker runtime listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
