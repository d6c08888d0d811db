// Package app assembles the components named in the configuration.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/statementrag/rag/internal/config"
	"github.com/statementrag/rag/internal/domain"
	"github.com/statementrag/rag/internal/embedding/hashing"
	"github.com/statementrag/rag/internal/embedding/ollama"
	"github.com/statementrag/rag/internal/embedding/openai"
	"github.com/statementrag/rag/internal/extract"
	"github.com/statementrag/rag/internal/ingest"
	llmollama "github.com/statementrag/rag/internal/llm/ollama"
	llmopenai "github.com/statementrag/rag/internal/llm/openai"
	"github.com/statementrag/rag/internal/retriever"
	"github.com/statementrag/rag/internal/service"
	"github.com/statementrag/rag/internal/vectorstore"
)

// App holds the query-side components sharing one vector store.
type App struct {
	Config    *config.AppConfig
	Logger    *zap.Logger
	Embedder  domain.Embedder
	Store     *vectorstore.Store
	Retriever *retriever.Retriever
	Generator domain.Generator
	Pipeline  *service.Pipeline
}

// Open builds the embedder, opens the store and wires the pipeline.
func Open(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	emb, err := NewEmbedder(cfg.Embedder)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	gen, err := NewGenerator(cfg.Generator)
	if err != nil {
		return nil, fmt.Errorf("generator: %w", err)
	}
	store, err := vectorstore.New(ctx, vectorstore.Options{
		IndexPath:    cfg.VectorStore.IndexPath,
		DocstorePath: cfg.VectorStore.DocstorePath,
		Format:       vectorstore.Format(cfg.VectorStore.IndexFormat),
	}, emb, logger)
	if err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}
	ret := retriever.New(store, cfg.Retriever.TopK, logger)

	logger.Info("components ready",
		zap.String("embedder", emb.ModelName()),
		zap.Int("dimensions", emb.Dimensions()),
		zap.String("generator", gen.ModelName()),
		zap.Int("documents", store.Len()))

	return &App{
		Config:    cfg,
		Logger:    logger,
		Embedder:  emb,
		Store:     store,
		Retriever: ret,
		Generator: gen,
		Pipeline:  service.NewPipeline(ret, gen, logger),
	}, nil
}

// Indexer returns an indexer reading records from the configured input dir.
func (a *App) Indexer(skipExisting bool) *service.Indexer {
	ix := service.NewIndexer(ingest.New(a.Config.Ingest.InputDir, a.Logger), a.Store, a.Logger)
	ix.SkipExisting = skipExisting
	return ix
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}

// NewEmbedder creates the embedder selected by cfg.Type.
func NewEmbedder(cfg config.EmbedderConfig) (domain.Embedder, error) {
	switch cfg.Type {
	case "ollama", "":
		emb, err := ollama.New(ollama.Config{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Timeout:    cfg.Timeout(),
			Dimensions: cfg.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		return emb, nil
	case "openai":
		client, err := openai.NewClient(openai.Config{
			BaseURL:    cfg.BaseURL,
			APIKeyEnv:  cfg.APIKeyEnv,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout(),
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	case "hashing":
		return hashing.NewEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("%w: embedder %q", domain.ErrUnknownProvider, cfg.Type)
	}
}

// NewGenerator creates the answer model selected by cfg.Type.
func NewGenerator(cfg config.GeneratorConfig) (domain.Generator, error) {
	switch cfg.Type {
	case "ollama", "":
		return llmollama.New(llmollama.Config{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout(),
		}), nil
	case "openai":
		client, err := llmopenai.NewClient(llmopenai.Config{
			BaseURL:     cfg.BaseURL,
			APIKeyEnv:   cfg.APIKeyEnv,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout(),
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("%w: generator %q", domain.ErrUnknownProvider, cfg.Type)
	}
}

// NewExtractor creates the image extractor. Vision calls always go to
// Ollama; the generator's base URL is reused when it is an Ollama one.
func NewExtractor(cfg *config.AppConfig, logger *zap.Logger) *extract.Extractor {
	baseURL := llmollama.DefaultBaseURL
	if cfg.Generator.Type == "ollama" && cfg.Generator.BaseURL != "" {
		baseURL = cfg.Generator.BaseURL
	}
	vision := llmollama.New(llmollama.Config{
		BaseURL: baseURL,
		Model:   cfg.Extractor.Model,
		Timeout: cfg.Generator.Timeout(),
	})
	return extract.New(vision, extract.Options{
		ImagesDir:         cfg.Extractor.ImagesDir,
		OutputDir:         cfg.Ingest.InputDir,
		Model:             cfg.Extractor.Model,
		RequestsPerSecond: cfg.Extractor.RequestsPerSecond,
	}, logger)
}
