package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/thinkbook-lm/thinkbook/internal/api/handlers"
	"github.com/thinkbook-lm/thinkbook/internal/config"
	"github.com/thinkbook-lm/thinkbook/internal/core/extract"
	"github.com/thinkbook-lm/thinkbook/internal/services"
	"github.com/thinkbook-lm/thinkbook/internal/storage"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer builds and wires all routes. The streaming endpoint sits
// outside the timeout middleware since generation can outlive it.
func NewServer(cfg *config.Config, rag *services.RagService, uploads storage.UploadStore, extractor *extract.Registry, logger *zap.Logger) *Server {
	docHandler := handlers.NewDocumentHandler(rag, uploads, extractor, cfg.MaxUploadBytes, cfg.AllowedExtensions, logger)
	queryHandler := handlers.NewQueryHandler(rag, logger)
	healthHandler := handlers.NewHealthHandler(rag, cfg.StoreBackend)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", healthHandler.Health)

	r.Route("/api", func(api chi.Router) {
		api.Group(func(timed chi.Router) {
			timed.Use(middleware.Timeout(2 * time.Minute))
			timed.Post("/upload_file", docHandler.UploadFile)
			timed.Get("/list_files", docHandler.ListFiles)
			timed.Delete("/delete_file", docHandler.DeleteFile)
			timed.Get("/get_file_text", docHandler.GetFileText)
			timed.Post("/query", queryHandler.Query)
		})

		api.Post("/query_stream", queryHandler.QueryStream)
	})

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Server{httpServer: httpSrv, logger: logger}
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}
