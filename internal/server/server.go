package server

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/contractops/msa-extractor/internal/common"
	"github.com/contractops/msa-extractor/internal/export"
	"github.com/contractops/msa-extractor/internal/extractor"
	"github.com/contractops/msa-extractor/internal/repository"
)

// Server owns the HTTP surface: upload intake, job queries, result export.
// Extractions run on bounded background workers; the handler returns as
// soon as the job row exists.
type Server struct {
	cfg         common.ServerConfig
	coordinator *extractor.Coordinator
	jobs        repository.JobRepository
	exporter    *export.Service
	db          *sql.DB
	logger      *slog.Logger
	sem         chan struct{}
}

func NewServer(cfg common.ServerConfig, coordinator *extractor.Coordinator, jobs repository.JobRepository, exporter *export.Service, db *sql.DB, logger *slog.Logger) *Server {
	if cfg.MaxConcurrentExtractions <= 0 {
		cfg.MaxConcurrentExtractions = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:         cfg,
		coordinator: coordinator,
		jobs:        jobs,
		exporter:    exporter,
		db:          db,
		logger:      logger,
		sem:         make(chan struct{}, cfg.MaxConcurrentExtractions),
	}
}

// Router builds the chi route tree.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))

	r.Get("/healthz", s.handleHealthz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apiKeyAuth(s.cfg.APIKey, s.logger))

		r.Post("/extract", s.handleExtract)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Get("/jobs/{id}/result", s.handleGetResult)
		r.Get("/jobs/{id}/logs", s.handleGetLogs)
		r.Delete("/jobs/{id}", s.handleDeleteJob)
		r.Get("/export", s.handleExport)
	})
	return r
}

// ListenAndServe runs the HTTP server until ctx is canceled, then drains
// with a shutdown grace period.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server.listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("server.shutting_down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
