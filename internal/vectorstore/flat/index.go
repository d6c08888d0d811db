package flat

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/statementrag/rag/internal/domain"
)

// Hit is a nearest-neighbour match: the insertion position of the vector and
// its squared L2 distance to the query.
type Hit struct {
	Position int
	Distance float64
}

// Index is an exact brute-force index using squared Euclidean distance.
// Vectors are append-only and addressed by insertion position.
// Index is not safe for concurrent use; callers serialize access.
type Index struct {
	dimension int
	data      []float32
}

// New creates an empty index for vectors of the given dimension.
func New(dimension int) (*Index, error) {
	if dimension <= 0 {
		return nil, errors.New("flat: dimension must be positive")
	}
	return &Index{dimension: dimension}, nil
}

// Dimension returns the fixed vector size.
func (x *Index) Dimension() int { return x.dimension }

// Len returns the number of stored vectors.
func (x *Index) Len() int { return len(x.data) / x.dimension }

// Add appends vectors in order. Either all vectors are added or none.
func (x *Index) Add(vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != x.dimension {
			return fmt.Errorf("flat: vector %d has %d dims, index has %d: %w", i, len(v), x.dimension, domain.ErrDimensionMismatch)
		}
	}
	grown := make([]float32, len(x.data), len(x.data)+len(vectors)*x.dimension)
	copy(grown, x.data)
	for _, v := range vectors {
		grown = append(grown, v...)
	}
	x.data = grown
	return nil
}

// Truncate drops every vector at position n and beyond.
func (x *Index) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n < x.Len() {
		x.data = x.data[:n*x.dimension]
	}
}

// Vector returns a copy of the vector stored at position i.
func (x *Index) Vector(i int) []float32 {
	if i < 0 || i >= x.Len() {
		return nil
	}
	out := make([]float32, x.dimension)
	copy(out, x.data[i*x.dimension:(i+1)*x.dimension])
	return out
}

// Search returns up to k hits ordered by ascending distance. Equal distances
// are ordered by ascending position.
func (x *Index) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != x.dimension {
		return nil, fmt.Errorf("flat: query has %d dims, index has %d: %w", len(query), x.dimension, domain.ErrDimensionMismatch)
	}
	n := x.Len()
	if k <= 0 || n == 0 {
		return nil, nil
	}
	hits := make([]Hit, 0, n)
	for i := 0; i < n; i++ {
		d := squaredL2(query, x.data[i*x.dimension:(i+1)*x.dimension])
		if math.IsNaN(d) {
			continue
		}
		hits = append(hits, Hit{Position: i, Distance: d})
	}
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Distance != hits[b].Distance {
			return hits[a].Distance < hits[b].Distance
		}
		return hits[a].Position < hits[b].Position
	})
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
