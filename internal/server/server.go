// Package server exposes the question answering pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/statementrag/rag/internal/domain"
)

const requestIDHeader = "X-Request-ID"

// Options configures the HTTP server.
type Options struct {
	Addr            string
	DefaultTopK     int
	ShutdownTimeout time.Duration
}

// Server serves /healthz, /v1/query and /v1/search.
type Server struct {
	querier  domain.Querier
	searcher domain.ScoredSearcher
	opts     Options
	logger   *zap.Logger

	// The pipeline is not safe for concurrent use.
	mu sync.Mutex
}

// New creates a server.
func New(querier domain.Querier, searcher domain.ScoredSearcher, logger *zap.Logger, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = 5
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	return &Server{querier: querier, searcher: searcher, opts: opts, logger: logger.Named("server")}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "https://*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.health)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/query", s.query)
		r.Post("/search", s.search)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "endpoint not found")
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", s.opts.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

type queryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

type queryResponse struct {
	Answer string `json:"answer"`
}

type searchResponse struct {
	Results []domain.SearchResult `json:"results"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"documents": s.searcher.Len(),
	})
}

func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuery(w, r)
	if !ok {
		return
	}
	var (
		answer string
		err    error
	)
	s.serialized(func() { answer, err = s.querier.Query(r.Context(), req.Query) })
	if err != nil {
		s.logger.Error("query failed", zap.String("request_id", w.Header().Get(requestIDHeader)), zap.Error(err))
		respondError(w, queryStatus(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, queryResponse{Answer: answer})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuery(w, r)
	if !ok {
		return
	}
	topK := req.TopK
	if topK <= 0 {
		topK = s.opts.DefaultTopK
	}
	var (
		results []domain.SearchResult
		err     error
	)
	s.serialized(func() { results, err = s.searcher.SearchScored(r.Context(), req.Query, topK) })
	if err != nil {
		s.logger.Error("search failed", zap.String("request_id", w.Header().Get(requestIDHeader)), zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		results = []domain.SearchResult{}
	}
	respondJSON(w, http.StatusOK, searchResponse{Results: results})
}

// queryStatus maps a pipeline error to an HTTP status: 502 when the
// generative model failed, 500 for local retrieval and store failures.
func queryStatus(err error) int {
	if errors.Is(err, domain.ErrGeneration) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) serialized(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

func decodeQuery(w http.ResponseWriter, r *http.Request) (queryRequest, bool) {
	var req queryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		respondError(w, http.StatusBadRequest, "query is required")
		return req, false
	}
	return req, true
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, statusCode int, msg string) {
	respondJSON(w, statusCode, errorResponse{Error: msg})
}
