package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_SendsDeterministicRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var raw map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.Equal(t, "qwen3:0.6b", raw["model"])
		assert.Equal(t, "hello", raw["prompt"])
		assert.Equal(t, false, raw["stream"])
		assert.Equal(t, map[string]any{"temperature": 0.0}, raw["options"])
		assert.NotContains(t, raw, "images")
		_, _ = w.Write([]byte(`{"response":"hi there","done":true}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	got, err := c.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi there", got)
	assert.Equal(t, "qwen3:0.6b", c.ModelName())
}

func TestDescribe_EncodesImages(t *testing.T) {
	img := []byte{0x89, 'P', 'N', 'G'}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "qwen2.5vl:7b", req.Model)
		assert.Equal(t, []string{base64.StdEncoding.EncodeToString(img)}, req.Images)
		_, _ = w.Write([]byte(`{"response":"{\"bank_name\":\"ABC\"}","done":true}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "qwen2.5vl:7b"})
	got, err := c.Describe(context.Background(), "extract", [][]byte{img})
	require.NoError(t, err)
	assert.Equal(t, `{"bank_name":"ABC"}`, got)
}

func TestGenerate_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"model 'x' not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL}).Generate(context.Background(), "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestGenerate_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Config{BaseURL: srv.URL}).Generate(ctx, "p")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := New(Config{BaseURL: srv.URL}).Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
