package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ChunkLoader produces the text chunks of the current corpus.
type ChunkLoader interface {
	LoadJSONFiles(ctx context.Context) ([]string, error)
}

// DocumentStore is the write side of the vector store.
type DocumentStore interface {
	AddDocuments(ctx context.Context, chunks []string) error
	Documents() []string
	Len() int
}

// Indexer feeds loaded chunks into the store.
type Indexer struct {
	loader ChunkLoader
	store  DocumentStore
	logger *zap.Logger

	// SkipExisting drops chunks whose exact text is already stored or
	// appeared earlier in the batch.
	SkipExisting bool
}

// NewIndexer creates an indexer.
func NewIndexer(loader ChunkLoader, store DocumentStore, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{loader: loader, store: store, logger: logger.Named("indexer")}
}

// Build loads the corpus and appends it to the store in one batch. It
// returns the number of chunks added.
func (ix *Indexer) Build(ctx context.Context) (int, error) {
	chunks, err := ix.loader.LoadJSONFiles(ctx)
	if err != nil {
		return 0, fmt.Errorf("load chunks: %w", err)
	}
	if ix.SkipExisting && len(chunks) > 0 {
		chunks = ix.newOnly(chunks)
	}
	if len(chunks) == 0 {
		ix.logger.Info("no documents to add", zap.Int("total", ix.store.Len()))
		return 0, nil
	}
	if err := ix.store.AddDocuments(ctx, chunks); err != nil {
		return 0, fmt.Errorf("add documents: %w", err)
	}
	ix.logger.Info("vector store updated", zap.Int("added", len(chunks)), zap.Int("total", ix.store.Len()))
	return len(chunks), nil
}

func (ix *Indexer) newOnly(chunks []string) []string {
	seen := make(map[string]struct{}, ix.store.Len())
	for _, d := range ix.store.Documents() {
		seen[d] = struct{}{}
	}
	out := chunks[:0:0]
	for _, c := range chunks {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	if skipped := len(chunks) - len(out); skipped > 0 {
		ix.logger.Info("skipped chunks already in store", zap.Int("skipped", skipped))
	}
	return out
}
