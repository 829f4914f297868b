package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/thinkbook-lm/thinkbook/internal/config"
	"github.com/thinkbook-lm/thinkbook/internal/core"
	"github.com/thinkbook-lm/thinkbook/internal/core/chunker"
	"github.com/thinkbook-lm/thinkbook/internal/core/extract"
	"github.com/thinkbook-lm/thinkbook/internal/core/llm"
	"github.com/thinkbook-lm/thinkbook/internal/core/store"
	"github.com/thinkbook-lm/thinkbook/internal/services"
	"github.com/thinkbook-lm/thinkbook/internal/storage"
)

// App owns every wired component and the HTTP server.
type App struct {
	Store   store.VectorStore
	Uploads storage.UploadStore
	Rag     *services.RagService
	Server  *Server
	Logger  *zap.Logger

	closers []func() error
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	a := &App{Logger: logger}

	registry := store.NewFileRegistry(cfg.DataDir, logger)

	vs, err := a.buildStore(ctx, cfg, registry, logger)
	if err != nil {
		return nil, err
	}
	a.Store = vs
	a.closers = append(a.closers, vs.Close)
	logger.Info("vector store ready", zap.String("backend", cfg.StoreBackend))

	uploads, err := a.buildUploads(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Uploads = uploads

	embedder, err := a.buildEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}

	generator, err := a.buildLLM(ctx, cfg)
	if err != nil {
		return nil, err
	}

	ch := chunker.New(
		chunker.Config{Size: cfg.ChunkSizeTokens, Overlap: cfg.ChunkOverlapTokens},
		chunker.NewTiktokenTokenizer(""),
		logger,
	)

	a.Rag = services.NewRagService(ch, embedder, generator, vs, cfg.MaxRetrievedChunks, logger)
	a.Server = NewServer(cfg, a.Rag, uploads, extract.NewRegistry(logger), logger)
	return a, nil
}

func (a *App) buildStore(ctx context.Context, cfg *config.Config, registry *store.FileRegistry, logger *zap.Logger) (store.VectorStore, error) {
	switch cfg.StoreBackend {
	case "qdrant":
		qs := store.NewQdrantStore(store.QdrantConfig{
			BaseURL:    cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.Collection,
			VectorSize: cfg.EmbedDim,
		}, registry, logger)
		return qs, nil
	case "pgvector":
		return store.NewPgVectorStore(ctx, cfg.DatabaseURL, cfg.EmbedDim, registry, logger)
	case "memory":
		return store.NewMemoryStore(registry, logger), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func (a *App) buildUploads(ctx context.Context, cfg *config.Config) (storage.UploadStore, error) {
	switch cfg.UploadBackend {
	case "s3":
		return storage.NewS3Store(ctx, cfg.AwsRegion, cfg.AwsAccessKey, cfg.AwsSecretKey, cfg.BucketName)
	case "local":
		return storage.NewLocalStore(cfg.UploadDir)
	default:
		return nil, fmt.Errorf("unknown upload backend %q", cfg.UploadBackend)
	}
}

func (a *App) buildEmbedder(ctx context.Context, cfg *config.Config) (core.EmbeddingProvider, error) {
	switch cfg.EmbedProvider {
	case "gemini":
		g, err := llm.NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbedModel)
		if err != nil {
			return nil, fmt.Errorf("init embedder: %w", err)
		}
		a.closers = append(a.closers, g.Close)
		return g, nil
	case "ollama":
		return llm.NewOllamaEmbedder(cfg.OllamaURL, cfg.EmbedModel), nil
	default:
		return nil, fmt.Errorf("unknown embed provider %q", cfg.EmbedProvider)
	}
}

func (a *App) buildLLM(ctx context.Context, cfg *config.Config) (core.LLMProvider, error) {
	switch cfg.GenProvider {
	case "gemini":
		g, err := llm.NewGeminiLLM(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.MaxGenTokens, cfg.Temperature)
		if err != nil {
			return nil, fmt.Errorf("init llm: %w", err)
		}
		a.closers = append(a.closers, g.Close)
		return g, nil
	case "ollama":
		return llm.NewOllamaLLM(cfg.OllamaURL, cfg.OllamaModel, cfg.MaxGenTokens, cfg.Temperature), nil
	default:
		return nil, fmt.Errorf("unknown gen provider %q", cfg.GenProvider)
	}
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("close failed", zap.Error(err))
		}
	}
	_ = a.Logger.Sync()
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		lvl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	return cfg.Build()
}
