// Package api exposes ingestion, search and question answering over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"coderag/internal/index"
	"coderag/internal/log"
	"coderag/internal/rag"
	"coderag/internal/source"
	"coderag/internal/store"
)

// Service is the corpus API served over HTTP. Ingests go through Reserve so a
// busy server is detected before the source is fetched.
type Service interface {
	Reserve(tenantID string) (*index.Reservation, error)
	Search(ctx context.Context, tenantID, question string, k int) index.SearchResult
	Delete(ctx context.Context, tenantID string) error
	Tenants(ctx context.Context) ([]store.Manifest, error)
}

// Materializer turns an ingest source reference into a local tree.
type Materializer interface {
	Materialize(ctx context.Context, ref string) (*source.Tree, error)
}

// Asker answers questions. It is optional; without one /query returns 501.
type Asker interface {
	Ask(ctx context.Context, tenantID, question string, k int) (rag.Answer, error)
}

// Server represents the HTTP API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	service    Service
	sources    Materializer
	policy     source.Policy
	asker      Asker
	logger     *slog.Logger
	addr       string
}

// Option configures a Server.
type Option func(*Server)

// WithSourcePolicy sets which ingest sources clients may name. Without it
// only network git remotes are accepted.
func WithSourcePolicy(p source.Policy) Option {
	return func(s *Server) {
		s.policy = p
	}
}

// NewServer creates a new API Server with all routes mounted. asker may be nil.
func NewServer(addr string, svc Service, sources Materializer, asker Asker, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		service: svc,
		sources: sources,
		asker:   asker,
		logger:  log.OrDefault(logger),
		addr:    addr,
	}
	for _, o := range opts {
		o(s)
	}

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(Logging(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/health", s.health)
	s.router.Post("/ingest", s.ingest)
	s.router.Post("/search", s.search)
	s.router.Post("/query", s.query)
	s.router.Get("/tenants", s.listTenants)
	s.router.Delete("/tenants/{tenantID}", s.deleteTenant)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Ingests of large trees run inside the request.
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server. It blocks until the server stops and returns
// nil after Shutdown, including a Shutdown that ran first.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.addr
}
