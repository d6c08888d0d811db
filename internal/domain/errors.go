package domain

import "errors"

var (
	// ErrDimensionMismatch indicates a vector whose length differs from the
	// index dimension. Mixing embedding models against one persisted index
	// is a configuration error.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrStoreCorrupt indicates the persisted index and docstore are not
	// aligned (different lengths or a docstore checksum mismatch).
	ErrStoreCorrupt = errors.New("vector store corrupt")

	// ErrEmbeddingCount indicates the embedder returned a different number
	// of vectors than texts it was given.
	ErrEmbeddingCount = errors.New("embedding count mismatch")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrGeneration indicates the generative model failed to produce an
	// answer. Retrieval failures are never wrapped with it.
	ErrGeneration = errors.New("generation failed")

	// ErrUnknownProvider indicates an unsupported provider type in config.
	ErrUnknownProvider = errors.New("unknown provider")
)
