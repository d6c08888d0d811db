package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"MODEL_NAME", "VISION_MODEL_NAME", "EMBEDDING_MODEL", "OLLAMA_HOST", "RAG_TOP_K", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 5, cfg.Retriever.TopK)
	assert.Equal(t, "flat", cfg.VectorStore.IndexFormat)
}

func TestLoad_YAMLPartialKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
generator:
  model: llama3.2
retriever:
  top_k: 3
vector_store:
  index_format: sqlite
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "llama3.2", cfg.Generator.Model)
	assert.Equal(t, "ollama", cfg.Generator.Type)
	assert.Equal(t, 3, cfg.Retriever.TopK)
	assert.Equal(t, "sqlite", cfg.VectorStore.IndexFormat)
	assert.Equal(t, "./data/output", cfg.Ingest.InputDir)
	assert.Equal(t, 120, cfg.Generator.TimeoutSecs)
}

func TestLoad_TOML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "rag.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[embedder]
type = "hashing"
dimensions = 256

[server]
addr = "127.0.0.1:9000"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "hashing", cfg.Embedder.Type)
	assert.Equal(t, 256, cfg.Embedder.Dimensions)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
}

func TestLoad_OpenAIDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embedder:\n  type: openai\ngenerator:\n  type: openai\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Embedder.BaseURL)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedder.Model)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Embedder.APIKeyEnv)
	assert.Equal(t, "gpt-4o-mini", cfg.Generator.Model)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MODEL_NAME", "mistral")
	t.Setenv("VISION_MODEL_NAME", "llava")
	t.Setenv("EMBEDDING_MODEL", "nomic-embed-text")
	t.Setenv("OLLAMA_HOST", "gpu-box:11434")
	t.Setenv("RAG_TOP_K", "8")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "mistral", cfg.Generator.Model)
	assert.Equal(t, "llava", cfg.Extractor.Model)
	assert.Equal(t, "nomic-embed-text", cfg.Embedder.Model)
	assert.Equal(t, "http://gpu-box:11434", cfg.Embedder.BaseURL)
	assert.Equal(t, "http://gpu-box:11434", cfg.Generator.BaseURL)
	assert.Equal(t, 8, cfg.Retriever.TopK)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name string
		body string
	}{
		{"unknown embedder", "embedder:\n  type: word2vec\n"},
		{"unknown index format", "vector_store:\n  index_format: faiss\n"},
		{"negative top_k", "retriever:\n  top_k: -1\n"},
		{"temperature out of range", "generator:\n  temperature: 5\n"},
		{"malformed yaml", "retriever: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	clearEnv(t)
	for _, name := range []string{"config.yaml", "config.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			cfg := Default()
			cfg.Retriever.TopK = 7
			cfg.Generator.Temperature = 0.2
			require.NoError(t, Save(path, cfg))

			got, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, got)
		})
	}
}

func TestLoadDefault_WritesUserConfig(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	chdir(t, t.TempDir())

	cfg, path, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "rag", "config.yaml"), path)
	assert.FileExists(t, path)
	assert.Equal(t, Default(), cfg)
}

func TestLoadDefault_PrefersWorkingDirectory(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile("config.yaml", []byte("server:\n  addr: :9999\n"), 0o644))

	cfg, path, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, "config.yaml", path)
	assert.Equal(t, ":9999", cfg.Server.Addr)
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
