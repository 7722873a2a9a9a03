// Package server provides the thin HTTP surface around the extraction pipeline.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/common"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/export"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/pipeline"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/store"
)

// Server exposes the pipeline, the invoice store, and the XLSX export.
type Server struct {
	proc     *pipeline.Processor
	invoices *store.Store
	exporter *export.Service
	cfg      common.ServerConfig
	logger   *slog.Logger
	server   *http.Server
}

func NewServer(
	proc *pipeline.Processor,
	invoices *store.Store,
	exporter *export.Service,
	cfg common.ServerConfig,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		proc:     proc,
		invoices: invoices,
		exporter: exporter,
		cfg:      cfg,
		logger:   logger,
	}
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Post("/api/v1/invoices", s.handleProcess)
	r.Get("/api/v1/invoices", s.handleList)
	r.Get("/api/v1/invoices/export", s.handleExport)
	r.Get("/api/v1/invoices/{id}", s.handleGet)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.routes(),
	}
	s.logger.Info("http server starting", "addr", s.cfg.Addr)
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
