// Package retriever fetches the chunks nearest to a question.
package retriever

import (
	"context"

	"go.uber.org/zap"

	"github.com/statementrag/rag/internal/domain"
)

const defaultTopK = 5

// Retriever fixes top-k over a shared store. It never opens a store of its own.
type Retriever struct {
	store  domain.Searcher
	topK   int
	logger *zap.Logger
}

// New creates a retriever. A non-positive topK selects 5.
func New(store domain.Searcher, topK int, logger *zap.Logger) *Retriever {
	if topK <= 0 {
		topK = defaultTopK
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{store: store, topK: topK, logger: logger.Named("retriever")}
}

// TopK returns the number of chunks requested per query.
func (r *Retriever) TopK() int { return r.topK }

// Retrieve returns the chunks nearest to query.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]string, error) {
	r.logger.Debug("retrieving context", zap.String("query", query), zap.Int("top_k", r.topK))
	results, err := r.store.Search(ctx, query, r.topK)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		r.logger.Warn("no relevant documents retrieved", zap.String("query", query))
	}
	return results, nil
}
