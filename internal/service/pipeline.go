package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/statementrag/rag/internal/domain"
	"github.com/statementrag/rag/internal/prompt"
)

// FallbackAnswer is returned without calling the generator when retrieval
// finds nothing.
const FallbackAnswer = "No relevant information found in your knowledge base."

// ContextRetriever returns the context chunks for a question.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string) ([]string, error)
}

var _ domain.Querier = (*Pipeline)(nil)

// Pipeline answers questions from retrieved context.
type Pipeline struct {
	retriever ContextRetriever
	generator domain.Generator
	logger    *zap.Logger
}

// NewPipeline wires a retriever to a generator.
func NewPipeline(retriever ContextRetriever, generator domain.Generator, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{retriever: retriever, generator: generator, logger: logger.Named("pipeline")}
}

// Query retrieves context, renders the answer prompt and returns the
// generator's text verbatim. Nothing is retried.
func (p *Pipeline) Query(ctx context.Context, userQuery string) (string, error) {
	p.logger.Info("user query", zap.String("query", userQuery))
	chunks, err := p.retriever.Retrieve(ctx, userQuery)
	if err != nil {
		return "", fmt.Errorf("retrieve: %w", err)
	}
	if len(chunks) == 0 {
		p.logger.Warn("no context found, returning fallback answer")
		return FallbackAnswer, nil
	}

	rendered, err := prompt.Render(strings.Join(chunks, "\n"), userQuery)
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	p.logger.Debug("prompt sent to generator",
		zap.String("model", p.generator.ModelName()),
		zap.Int("chunks", len(chunks)),
		zap.Int("prompt_bytes", len(rendered)))

	answer, err := p.generator.Generate(ctx, rendered)
	if err != nil {
		p.logger.Error("generation failed", zap.Error(err))
		return "", fmt.Errorf("generate: %w: %w", domain.ErrGeneration, err)
	}
	p.logger.Info("answer generated", zap.Int("answer_bytes", len(answer)))
	return answer, nil
}
