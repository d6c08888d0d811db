package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/statementrag/rag/internal/domain"
	"github.com/statementrag/rag/internal/embedding"
)

var _ domain.Embedder = (*Client)(nil)

// Client is an OpenAI-compatible embeddings client.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	client     *http.Client
	maxRetries int
	sleep      func(ctx context.Context, d time.Duration) error
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL    string
	APIKeyEnv  string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Dimensions == 0 {
		d, ok := embedding.DimensionsFor(cfg.Model)
		if !ok {
			return nil, fmt.Errorf("openai: unknown dimensions for model %q, set embedder.dimensions: %w", cfg.Model, domain.ErrInvalidInput)
		}
		cfg.Dimensions = d
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     key,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: t},
		maxRetries: 5,
		sleep:      sleepCtx,
	}, nil
}

// ModelName returns the embedding model identifier.
func (c *Client) ModelName() string { return c.model }

// Dimensions returns the dimensionality of the produced embedding vectors.
func (c *Client) Dimensions() int { return c.dimensions }

type embeddingsRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns embedding vectors for texts, in input order. Rate limits and
// server errors are retried with capped exponential backoff.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	data, err := json.Marshal(embeddingsRequest{Input: texts, Model: c.model})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	url := c.baseURL + "/embeddings"

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, lastDelay(lastErr, attempt-1)); err != nil {
				return nil, err
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = &retryableError{status: resp.Status, retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
			continue
		}
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("openai embeddings failed: %s: %s", resp.Status, strings.TrimSpace(string(payload)))
		}

		var out embeddingsResponse
		if err := json.Unmarshal(payload, &out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		if len(out.Data) != len(texts) {
			return nil, fmt.Errorf("openai: %d embeddings for %d inputs: %w", len(out.Data), len(texts), domain.ErrEmbeddingCount)
		}
		sort.Slice(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })
		vectors := make([][]float32, len(out.Data))
		for i, d := range out.Data {
			vectors[i] = d.Embedding
		}
		return vectors, nil
	}
	return nil, fmt.Errorf("openai embeddings failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

type retryableError struct {
	status     string
	retryAfter time.Duration
}

func (e *retryableError) Error() string { return "openai embeddings: " + e.status }

func lastDelay(err error, attempt int) time.Duration {
	if re, ok := err.(*retryableError); ok && re.retryAfter >= 0 {
		return re.retryAfter
	}
	return retryDelay(attempt)
}

// parseRetryAfter returns -1 when the header is absent or not in seconds.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return -1
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return -1
	}
	return time.Duration(secs) * time.Second
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
