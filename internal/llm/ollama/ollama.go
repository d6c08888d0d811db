// Package ollama provides generation and vision adapters using Ollama.
package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/statementrag/rag/internal/domain"
)

// Ensure Client implements the interfaces.
var (
	_ domain.Generator   = (*Client)(nil)
	_ domain.VisionModel = (*Client)(nil)
)

// Default configuration values.
const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "qwen3:0.6b"
	DefaultTimeout = 120 * time.Second
)

// Config holds configuration for the Ollama client.
type Config struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434).
	BaseURL string

	// Model is the model to use (default: qwen3:0.6b).
	Model string

	// Temperature is sent with every request. Zero gives deterministic output.
	Temperature float64

	// Timeout is the request timeout (default: 120s).
	Timeout time.Duration
}

// Client calls /api/generate without streaming.
type Client struct {
	client      *http.Client
	baseURL     string
	model       string
	temperature float64
}

type generateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	Stream  bool     `json:"stream"`
	Images  []string `json:"images,omitempty"`
	Options options  `json:"options"`
}

type options struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// New creates an Ollama client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		client:      &http.Client{Timeout: cfg.Timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}
}

// Generate produces a completion for prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, generateRequest{Prompt: prompt})
}

// Describe sends prompt together with images to a vision-capable model.
func (c *Client) Describe(ctx context.Context, prompt string, images [][]byte) (string, error) {
	encoded := make([]string, len(images))
	for i, img := range images {
		encoded[i] = base64.StdEncoding.EncodeToString(img)
	}
	return c.generate(ctx, generateRequest{Prompt: prompt, Images: encoded})
}

func (c *Client) generate(ctx context.Context, reqBody generateRequest) (string, error) {
	reqBody.Model = c.model
	reqBody.Stream = false
	reqBody.Options = options{Temperature: c.temperature}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("ollama error (status %d): failed to read response", resp.StatusCode)
		}
		return "", fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(body))
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return genResp.Response, nil
}

// ModelName returns the name of the model being used.
func (c *Client) ModelName() string { return c.model }

// Ping validates the server is reachable by checking the /api/tags endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return fmt.Errorf("ollama: failed to create ping request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: ping failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("ollama: API returned status %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return fmt.Errorf("ollama: API returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
