package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type string `yaml:"type" toml:"type" validate:"oneof=ollama openai hashing"`
	// Model is the embedding model id. Dimensions of zero looks the size up
	// from the known model table.
	Model       string `yaml:"model" toml:"model"`
	Dimensions  int    `yaml:"dimensions,omitempty" toml:"dimensions,omitempty" validate:"gte=0"`
	BaseURL     string `yaml:"base_url" toml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env,omitempty" toml:"api_key_env,omitempty"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs" validate:"gte=0"`
}

// GeneratorConfig selects the answer model.
type GeneratorConfig struct {
	Type        string  `yaml:"type" toml:"type" validate:"oneof=ollama openai"`
	Model       string  `yaml:"model" toml:"model" validate:"required"`
	BaseURL     string  `yaml:"base_url" toml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env,omitempty" toml:"api_key_env,omitempty"`
	Temperature float64 `yaml:"temperature" toml:"temperature" validate:"gte=0,lte=2"`
	TimeoutSecs int     `yaml:"timeout_secs" toml:"timeout_secs" validate:"gte=0"`
}

// ExtractorConfig configures image extraction with a vision model.
type ExtractorConfig struct {
	Model             string  `yaml:"model" toml:"model" validate:"required"`
	ImagesDir         string  `yaml:"images_dir" toml:"images_dir" validate:"required"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second" validate:"gte=0"`
}

// IngestConfig points at the record files produced by extraction.
type IngestConfig struct {
	InputDir string `yaml:"input_dir" toml:"input_dir" validate:"required"`
}

// VectorStoreConfig locates the persisted index and docstore.
type VectorStoreConfig struct {
	IndexPath    string `yaml:"index_path" toml:"index_path" validate:"required"`
	DocstorePath string `yaml:"docstore_path" toml:"docstore_path" validate:"required"`
	IndexFormat  string `yaml:"index_format" toml:"index_format" validate:"oneof=flat sqlite"`
}

// RetrieverConfig sets how many neighbors a query retrieves.
type RetrieverConfig struct {
	TopK int `yaml:"top_k" toml:"top_k" validate:"min=1"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr" toml:"addr" validate:"required"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" toml:"format" validate:"oneof=console json text"`
	File   string `yaml:"file" toml:"file"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder" toml:"embedder"`
	Generator   GeneratorConfig   `yaml:"generator" toml:"generator"`
	Extractor   ExtractorConfig   `yaml:"extractor" toml:"extractor"`
	Ingest      IngestConfig      `yaml:"ingest" toml:"ingest"`
	VectorStore VectorStoreConfig `yaml:"vector_store" toml:"vector_store"`
	Retriever   RetrieverConfig   `yaml:"retriever" toml:"retriever"`
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Log         LogConfig         `yaml:"log" toml:"log"`
}

// Timeout returns the embedder request timeout.
func (c EmbedderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// Timeout returns the generator request timeout.
func (c GeneratorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// Load reads a config from path, YAML or TOML by extension, then applies
// .env and environment overrides. A missing file yields the defaults.
func Load(path string) (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := unmarshal(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	applyConfigDefaults(cfg)
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/rag/config.yaml.
// If neither exists, it writes defaults to ~/.config/rag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := DefaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err != nil {
		if err := Save(userPath, Default()); err != nil {
			return nil, "", err
		}
	}
	cfg, err := Load(userPath)
	return cfg, userPath, err
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks field constraints.
func (c *AppConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (%s)", fe.Namespace(), fe.Tag(), fe.Param()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

// DefaultUserConfigPath returns ~/.config/rag/config.yaml.
func DefaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "rag", "config.yaml"), nil
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	return &AppConfig{
		Embedder: EmbedderConfig{
			Type:        "ollama",
			Model:       "all-minilm",
			BaseURL:     "http://localhost:11434",
			TimeoutSecs: 30,
		},
		Generator: GeneratorConfig{
			Type:        "ollama",
			Model:       "qwen3:0.6b",
			BaseURL:     "http://localhost:11434",
			TimeoutSecs: 120,
		},
		Extractor: ExtractorConfig{
			Model:             "qwen2.5vl:7b",
			ImagesDir:         "./data/extracted/images",
			RequestsPerSecond: 0.5,
		},
		Ingest:      IngestConfig{InputDir: "./data/output"},
		VectorStore: VectorStoreConfig{
			IndexPath:    "./data/vectorstore/index.bin",
			DocstorePath: "./data/vectorstore/docstore.json",
			IndexFormat:  "flat",
		},
		Retriever: RetrieverConfig{TopK: 5},
		Server:    ServerConfig{Addr: ":8080"},
		Log:       LogConfig{Level: "info", Format: "console", File: "./logs/rag.log"},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	def := Default()
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = def.Embedder.Type
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.BaseURL == "" || cfg.Embedder.BaseURL == def.Embedder.BaseURL {
			cfg.Embedder.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.APIKeyEnv == "" {
			cfg.Embedder.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.Model == "" || cfg.Embedder.Model == def.Embedder.Model {
			cfg.Embedder.Model = "text-embedding-3-small"
		}
	}
	if cfg.Embedder.Model == "" {
		cfg.Embedder.Model = def.Embedder.Model
	}
	if cfg.Embedder.BaseURL == "" {
		cfg.Embedder.BaseURL = def.Embedder.BaseURL
	}
	if cfg.Embedder.TimeoutSecs == 0 {
		cfg.Embedder.TimeoutSecs = def.Embedder.TimeoutSecs
	}

	if cfg.Generator.Type == "" {
		cfg.Generator.Type = def.Generator.Type
	}
	if cfg.Generator.Type == "openai" {
		if cfg.Generator.BaseURL == "" || cfg.Generator.BaseURL == def.Generator.BaseURL {
			cfg.Generator.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Generator.APIKeyEnv == "" {
			cfg.Generator.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Generator.Model == "" || cfg.Generator.Model == def.Generator.Model {
			cfg.Generator.Model = "gpt-4o-mini"
		}
	}
	if cfg.Generator.Model == "" {
		cfg.Generator.Model = def.Generator.Model
	}
	if cfg.Generator.BaseURL == "" {
		cfg.Generator.BaseURL = def.Generator.BaseURL
	}
	if cfg.Generator.TimeoutSecs == 0 {
		cfg.Generator.TimeoutSecs = def.Generator.TimeoutSecs
	}

	if cfg.Extractor.Model == "" {
		cfg.Extractor.Model = def.Extractor.Model
	}
	if cfg.Extractor.ImagesDir == "" {
		cfg.Extractor.ImagesDir = def.Extractor.ImagesDir
	}
	if cfg.Ingest.InputDir == "" {
		cfg.Ingest.InputDir = def.Ingest.InputDir
	}
	if cfg.VectorStore.IndexPath == "" {
		cfg.VectorStore.IndexPath = def.VectorStore.IndexPath
	}
	if cfg.VectorStore.DocstorePath == "" {
		cfg.VectorStore.DocstorePath = def.VectorStore.DocstorePath
	}
	if cfg.VectorStore.IndexFormat == "" {
		cfg.VectorStore.IndexFormat = def.VectorStore.IndexFormat
	}
	if cfg.Retriever.TopK == 0 {
		cfg.Retriever.TopK = def.Retriever.TopK
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = def.Log.Format
	}
}

func applyEnv(cfg *AppConfig) {
	if v := os.Getenv("MODEL_NAME"); v != "" {
		cfg.Generator.Model = v
	}
	if v := os.Getenv("VISION_MODEL_NAME"); v != "" {
		cfg.Extractor.Model = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.Embedder.Model = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		host := ollamaURL(v)
		if cfg.Embedder.Type == "ollama" {
			cfg.Embedder.BaseURL = host
		}
		if cfg.Generator.Type == "ollama" {
			cfg.Generator.BaseURL = host
		}
	}
	if v := os.Getenv("RAG_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retriever.TopK = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
}

// ollamaURL accepts OLLAMA_HOST in either host:port or URL form.
func ollamaURL(v string) string {
	if strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") {
		return strings.TrimRight(v, "/")
	}
	return "http://" + strings.TrimRight(v, "/")
}

func unmarshal(path string, data []byte, cfg *AppConfig) error {
	if isTOML(path) {
		return toml.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
