package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/statementrag/rag/internal/domain"
)

type fakeQuerier struct {
	answer string
	err    error
	got    string
}

func (f *fakeQuerier) Query(_ context.Context, q string) (string, error) {
	f.got = q
	return f.answer, f.err
}

type fakeSearcher struct {
	docs  []string
	topK  int
	panic bool
}

func (f *fakeSearcher) Search(ctx context.Context, q string, k int) ([]string, error) {
	res, err := f.SearchScored(ctx, q, k)
	out := make([]string, len(res))
	for i, r := range res {
		out[i] = r.Text
	}
	return out, err
}

func (f *fakeSearcher) SearchScored(_ context.Context, _ string, k int) ([]domain.SearchResult, error) {
	if f.panic {
		panic("index exploded")
	}
	f.topK = k
	var out []domain.SearchResult
	for i, d := range f.docs {
		if i == k {
			break
		}
		out = append(out, domain.SearchResult{Text: d, Distance: float64(i), Position: i})
	}
	return out, nil
}

func (f *fakeSearcher) Len() int { return len(f.docs) }

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := New(&fakeQuerier{}, &fakeSearcher{docs: []string{"a", "b"}}, zap.NewNop(), Options{})
	rec := do(t, s.Handler(), http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","documents":2}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestQuery(t *testing.T) {
	q := &fakeQuerier{answer: "The closing balance is 75000.00."}
	s := New(q, &fakeSearcher{}, nil, Options{})
	rec := do(t, s.Handler(), http.MethodPost, "/v1/query", `{"query":"  closing balance?  "}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"answer":"The closing balance is 75000.00."}`, rec.Body.String())
	assert.Equal(t, "closing balance?", q.got)
}

func TestQuery_BadRequests(t *testing.T) {
	s := New(&fakeQuerier{}, &fakeSearcher{}, nil, Options{})
	for _, body := range []string{`{"query":"   "}`, `{}`, `not json`} {
		rec := do(t, s.Handler(), http.MethodPost, "/v1/query", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestQuery_FailureStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"generator down", fmt.Errorf("generate: %w: %w", domain.ErrGeneration, errors.New("connection refused")), http.StatusBadGateway},
		{"dimension mismatch", fmt.Errorf("retrieve: %w", domain.ErrDimensionMismatch), http.StatusInternalServerError},
		{"embedder down", fmt.Errorf("retrieve: %w", errors.New("embed query: connection refused")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.ErrorLevel)
			s := New(&fakeQuerier{err: tt.err}, &fakeSearcher{}, zap.New(core), Options{})
			rec := do(t, s.Handler(), http.MethodPost, "/v1/query", `{"query":"hi"}`)

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.err.Error())
			assert.Equal(t, 1, logs.FilterMessage("query failed").Len())
		})
	}
}

func TestSearch(t *testing.T) {
	fs := &fakeSearcher{docs: []string{"first", "second", "third"}}
	s := New(&fakeQuerier{}, fs, nil, Options{DefaultTopK: 2})

	rec := do(t, s.Handler(), http.MethodPost, "/v1/search", `{"query":"x"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, fs.topK)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "first", resp.Results[0].Text)

	rec = do(t, s.Handler(), http.MethodPost, "/v1/search", `{"query":"x","top_k":10}`)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Results, 3)
}

func TestSearch_EmptyStoreReturnsEmptyList(t *testing.T) {
	s := New(&fakeQuerier{}, &fakeSearcher{}, nil, Options{})
	rec := do(t, s.Handler(), http.MethodPost, "/v1/search", `{"query":"x"}`)
	assert.JSONEq(t, `{"results":[]}`, rec.Body.String())
}

func TestRequestIDPropagatedAndPanicRecovered(t *testing.T) {
	s := New(&fakeQuerier{}, &fakeSearcher{panic: true}, nil, Options{})
	req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(`{"query":"x"}`))
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

func TestNotFound(t *testing.T) {
	s := New(&fakeQuerier{}, &fakeSearcher{}, nil, Options{})
	rec := do(t, s.Handler(), http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"endpoint not found"}`, rec.Body.String())
}
