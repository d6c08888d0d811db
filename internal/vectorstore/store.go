// Package vectorstore pairs a flat L2 index with a positional docstore and
// persists both together.
package vectorstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/statementrag/rag/internal/domain"
	"github.com/statementrag/rag/internal/vectorstore/flat"
)

// Options locates the persisted index and docstore.
type Options struct {
	IndexPath    string
	DocstorePath string
	// Format is used when a new index file is written. Existing files are
	// read and rewritten in whatever format they already have.
	Format Format
}

// Store is the durable vector store. Position i of the index always
// corresponds to position i of the docstore.
//
// Store is safe for concurrent use within one process. The files are a
// single-writer resource: callers must not open two Stores over the same
// paths, in this process or another.
type Store struct {
	mu       sync.RWMutex
	opts     Options
	codec    IndexCodec
	embedder domain.Embedder
	index    *flat.Index
	docs     []string
	logger   *zap.Logger
}

// New loads the store from disk when both files exist, otherwise starts empty
// with the embedder's dimension.
func New(ctx context.Context, opts Options, embedder domain.Embedder, logger *zap.Logger) (*Store, error) {
	if opts.IndexPath == "" || opts.DocstorePath == "" {
		return nil, fmt.Errorf("vectorstore: index and docstore paths required: %w", domain.ErrInvalidInput)
	}
	if embedder == nil {
		return nil, fmt.Errorf("vectorstore: embedder required: %w", domain.ErrInvalidInput)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	codec, err := codecFor(opts.Format)
	if err != nil {
		return nil, err
	}
	for _, p := range []string{opts.IndexPath, opts.DocstorePath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("vectorstore: create directory: %w", err)
		}
	}

	s := &Store{
		opts:     opts,
		codec:    codec,
		embedder: embedder,
		logger:   logger.Named("vectorstore"),
	}

	indexExists := fileExists(opts.IndexPath)
	docsExist := fileExists(opts.DocstorePath)
	switch {
	case indexExists && docsExist:
		if err := s.load(ctx); err != nil {
			return nil, err
		}
	case indexExists || docsExist:
		s.logger.Warn("only one of index/docstore exists, starting empty",
			zap.String("index", opts.IndexPath),
			zap.Bool("index_exists", indexExists),
			zap.String("docstore", opts.DocstorePath),
			zap.Bool("docstore_exists", docsExist))
		fallthrough
	default:
		dim := embedder.Dimensions()
		idx, err := flat.New(dim)
		if err != nil {
			return nil, fmt.Errorf("vectorstore: embedder dimension %d: %w", dim, domain.ErrInvalidInput)
		}
		s.index = idx
		s.docs = []string{}
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	format, err := detectFormat(s.opts.IndexPath)
	if err != nil {
		return fmt.Errorf("vectorstore: %w", err)
	}
	if format != s.opts.Format && s.opts.Format != "" {
		s.logger.Info("existing index format differs from configured, keeping existing",
			zap.String("existing", string(format)),
			zap.String("configured", string(s.opts.Format)))
	}
	codec, err := codecFor(format)
	if err != nil {
		return err
	}
	idx, manifest, err := codec.ReadFile(ctx, s.opts.IndexPath)
	if err != nil {
		return fmt.Errorf("vectorstore: load index: %w", err)
	}
	if want := s.embedder.Dimensions(); idx.Dimension() != want {
		return fmt.Errorf("vectorstore: index dimension %d, embedder %q produces %d: %w",
			idx.Dimension(), s.embedder.ModelName(), want, domain.ErrDimensionMismatch)
	}

	raw, err := os.ReadFile(s.opts.DocstorePath)
	if err != nil {
		return fmt.Errorf("vectorstore: load docstore: %w", err)
	}
	var docs []string
	if err := json.Unmarshal(raw, &docs); err != nil {
		return fmt.Errorf("vectorstore: decode docstore: %v: %w", err, domain.ErrStoreCorrupt)
	}
	if docs == nil {
		docs = []string{}
	}
	if len(docs) != idx.Len() || manifest.DocstoreLen != len(docs) {
		return fmt.Errorf("vectorstore: index holds %d vectors, docstore %d chunks (committed %d): %w",
			idx.Len(), len(docs), manifest.DocstoreLen, domain.ErrStoreCorrupt)
	}
	if sha256.Sum256(raw) != manifest.DocstoreSum {
		return fmt.Errorf("vectorstore: docstore checksum does not match index: %w", domain.ErrStoreCorrupt)
	}

	s.codec = codec
	s.index = idx
	s.docs = docs
	s.logger.Info("loaded vector store",
		zap.Int("documents", len(docs)),
		zap.Int("dimension", idx.Dimension()),
		zap.String("format", string(format)))
	return nil
}

// AddDocuments embeds chunks in one batch, appends them and commits both
// files. Empty input is a no-op. On a failed commit the in-memory append
// is undone.
func (s *Store) AddDocuments(ctx context.Context, chunks []string) error {
	if len(chunks) == 0 {
		return nil
	}
	vectors, err := s.embedder.Embed(ctx, chunks)
	if err != nil {
		return fmt.Errorf("vectorstore: embed %d chunks: %w", len(chunks), err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("vectorstore: got %d vectors for %d chunks: %w", len(vectors), len(chunks), domain.ErrEmbeddingCount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.index.Len()
	if err := s.index.Add(vectors); err != nil {
		return fmt.Errorf("vectorstore: %w", err)
	}
	s.docs = append(s.docs, chunks...)

	if err := s.persist(ctx); err != nil {
		s.index.Truncate(prev)
		s.docs = s.docs[:prev]
		return fmt.Errorf("vectorstore: persist: %w", err)
	}
	s.logger.Debug("added documents", zap.Int("added", len(chunks)), zap.Int("total", len(s.docs)))
	return nil
}

// persist writes both files to temporaries, syncs them, then renames them
// into place. The index header records the docstore checksum so a commit
// torn between the two renames is detected on load.
func (s *Store) persist(ctx context.Context) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(s.docs); err != nil {
		return err
	}
	raw := buf.Bytes()
	manifest := flat.Manifest{DocstoreLen: len(s.docs), DocstoreSum: sha256.Sum256(raw)}

	docsTmp, err := writeTemp(s.opts.DocstorePath, func(path string) error {
		return os.WriteFile(path, raw, 0o644)
	})
	if err != nil {
		return err
	}
	indexTmp, err := writeTemp(s.opts.IndexPath, func(path string) error {
		return s.codec.WriteFile(ctx, path, s.index, manifest)
	})
	if err != nil {
		os.Remove(docsTmp)
		return err
	}

	if err := os.Rename(docsTmp, s.opts.DocstorePath); err != nil {
		os.Remove(docsTmp)
		os.Remove(indexTmp)
		return err
	}
	if err := os.Rename(indexTmp, s.opts.IndexPath); err != nil {
		os.Remove(indexTmp)
		return err
	}
	syncDir(filepath.Dir(s.opts.DocstorePath))
	syncDir(filepath.Dir(s.opts.IndexPath))
	return nil
}

// Search returns the text of the topK nearest chunks.
func (s *Store) Search(ctx context.Context, query string, topK int) ([]string, error) {
	results, err := s.SearchScored(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	return texts, nil
}

// SearchScored returns up to topK chunks ordered by ascending squared L2
// distance, ties by ascending position. An empty store yields no results.
func (s *Store) SearchScored(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 || s.Len() == 0 {
		return []domain.SearchResult{}, nil
	}
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("vectorstore: got %d vectors for query: %w", len(vectors), domain.ErrEmbeddingCount)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	hits, err := s.index.Search(vectors[0], topK)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: %w", err)
	}
	results := make([]domain.SearchResult, 0, len(hits))
	for _, h := range hits {
		if h.Position < 0 || h.Position >= len(s.docs) {
			continue
		}
		results = append(results, domain.SearchResult{Text: s.docs[h.Position], Distance: h.Distance, Position: h.Position})
	}
	return results, nil
}

// Len returns the number of stored chunks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Dimensions returns the fixed vector size of the index.
func (s *Store) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Dimension()
}

// Documents returns a copy of the docstore in position order.
func (s *Store) Documents() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.docs))
	copy(out, s.docs)
	return out
}

// Close implements io.Closer. Every commit is already on disk.
func (s *Store) Close() error { return nil }

func writeTemp(target string, write func(path string) error) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return "", err
	}
	tmp := f.Name()
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := write(tmp); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := fsync(tmp); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return tmp, nil
}

func fsync(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// syncDir flushes a directory entry after rename. Not every platform allows
// syncing a directory, so failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
