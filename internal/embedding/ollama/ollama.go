// Package ollama provides an embedding adapter for a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/statementrag/rag/internal/domain"
	"github.com/statementrag/rag/internal/embedding"
)

// Ensure Embedder implements the interface.
var _ domain.Embedder = (*Embedder)(nil)

// Default configuration values.
const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultTimeout = 30 * time.Second
)

// Config holds configuration for the Ollama embedder.
type Config struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434).
	BaseURL string

	// Model is the embedding model to use (default: all-minilm).
	Model string

	// Timeout is the request timeout (default: 30s).
	Timeout time.Duration

	// Dimensions is the embedding vector size. Zero looks the model up in
	// the known model table.
	Dimensions int
}

// Embedder generates embeddings using Ollama.
type Embedder struct {
	client     *http.Client
	baseURL    string
	model      string
	dimensions int
	// legacy is set once the server has answered 404 on /api/embed.
	legacy atomic.Bool
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type legacyRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type legacyResponse struct {
	Embedding []float32 `json:"embedding"`
}

var errNotFound = errors.New("endpoint not found")

// New creates an Ollama embedder.
func New(cfg Config) (*Embedder, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = embedding.DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Dimensions == 0 {
		d, ok := embedding.DimensionsFor(cfg.Model)
		if !ok {
			return nil, fmt.Errorf("ollama: unknown dimensions for model %q, set embedder.dimensions: %w", cfg.Model, domain.ErrInvalidInput)
		}
		cfg.Dimensions = d
	}
	return &Embedder{
		client:     &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}, nil
}

// Embed embeds all texts in one /api/embed call. Servers without that
// endpoint are served one /api/embeddings call per text.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if !e.legacy.Load() {
		var out embedResponse
		err := e.post(ctx, "/api/embed", embedRequest{Model: e.model, Input: texts}, &out)
		if err == nil {
			if len(out.Embeddings) != len(texts) {
				return nil, fmt.Errorf("ollama: %d embeddings for %d inputs: %w", len(out.Embeddings), len(texts), domain.ErrEmbeddingCount)
			}
			return out.Embeddings, nil
		}
		if !errors.Is(err, errNotFound) {
			return nil, err
		}
		e.legacy.Store(true)
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		var out legacyResponse
		if err := e.post(ctx, "/api/embeddings", legacyRequest{Model: e.model, Prompt: text}, &out); err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		vectors[i] = out.Embedding
	}
	return vectors, nil
}

func (e *Embedder) post(ctx context.Context, path string, body, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && path == "/api/embed" {
		return errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		msg, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("ollama error (status %d): failed to read response", resp.StatusCode)
		}
		return fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(msg))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Dimensions returns the embedding vector size.
func (e *Embedder) Dimensions() int { return e.dimensions }

// ModelName returns the name of the embedding model being used.
func (e *Embedder) ModelName() string { return e.model }

// Ping checks the server is reachable via /api/tags.
func (e *Embedder) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return fmt.Errorf("ollama: failed to create ping request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: ping failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama: API returned status %d", resp.StatusCode)
	}
	return nil
}
