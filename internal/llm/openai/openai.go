package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/statementrag/rag/internal/domain"
)

var _ domain.Generator = (*Client)(nil)

// Config configures an OpenAI-compatible chat completions client.
type Config struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Client sends each prompt as a single user message.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
}

// NewClient creates a client. The API key is read from cfg.APIKeyEnv.
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
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      key,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// Generate returns the content of the first choice.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	data, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []message{{Role: "user", Content: prompt}},
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("openai chat failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("openai chat returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}

// ModelName returns the chat model identifier.
func (c *Client) ModelName() string { return c.model }
