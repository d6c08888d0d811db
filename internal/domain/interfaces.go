package domain

import "context"

// SearchResult is a retrieved text chunk with its squared L2 distance to the
// query and its position in the docstore.
type SearchResult struct {
	Text     string  `json:"text"`
	Distance float64 `json:"distance"`
	Position int     `json:"position"`
}

// Embedder converts text into fixed-length vectors.
// The same Embedder must be used for corpus and query embedding.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector size produced by the model.
	Dimensions() int

	// ModelName returns the embedding model identifier.
	ModelName() string
}

// Generator produces a completion for a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	ModelName() string
}

// VisionModel answers a prompt about one or more images.
type VisionModel interface {
	Describe(ctx context.Context, prompt string, images [][]byte) (string, error)
}

// Searcher returns the text chunks nearest to a query.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]string, error)
}

// ScoredSearcher is a Searcher that can also report distances and positions.
type ScoredSearcher interface {
	Searcher
	SearchScored(ctx context.Context, query string, topK int) ([]SearchResult, error)
	Len() int
}

// Querier answers a natural-language question.
type Querier interface {
	Query(ctx context.Context, query string) (string, error)
}
