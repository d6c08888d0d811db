// Package hashing embeds text offline by feature hashing into a fixed dimension.
package hashing

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// DefaultDimension matches the default sentence-transformer output size so
// an offline index has the same shape as a model-backed one.
const DefaultDimension = 384

// Embedder is a deterministic feature-hashing embedder. Each token is hashed
// to a signed bucket; the bucket counts are L2-normalized. It needs no
// corpus preparation and no network.
type Embedder struct {
	dimension    int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewEmbedder creates a hashing embedder. A non-positive dimension selects
// DefaultDimension.
func NewEmbedder(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Embedder{
		dimension:    dimension,
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+(?:[.,]\p{N}+)*`),
		stopwords:    defaultStopwords(),
	}
}

// ModelName returns the identifier of this embedder implementation.
func (e *Embedder) ModelName() string { return "hashing" }

// Dimensions returns the dimensionality of the produced embedding vectors.
func (e *Embedder) Dimensions() int { return e.dimension }

// Embed returns one vector per text. Texts without tokens map to the zero vector.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embed(text)
	}
	return out, nil
}

func (e *Embedder) embed(text string) []float32 {
	acc := make([]float64, e.dimension)
	for _, tok := range e.tokenize(text) {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()
		bucket := int(sum % uint64(e.dimension))
		if sum>>63 == 1 {
			acc[bucket]--
		} else {
			acc[bucket]++
		}
	}
	norm := 0.0
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	vec := make([]float32, e.dimension)
	if norm == 0 {
		return vec
	}
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}

func (e *Embedder) tokenize(text string) []string {
	lower := strings.ToLower(text)
	raw := e.tokenPattern.FindAllString(lower, -1)
	if len(raw) == 0 {
		return nil
	}
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "whose", "my", "me", "i", "do", "does", "did", "how", "much", "many",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
