package vectorstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/statementrag/rag/internal/domain"
	"github.com/statementrag/rag/internal/vectorstore/flat"
	"github.com/statementrag/rag/internal/vectorstore/sqlite"
)

// Format selects the on-disk layout of the index file.
type Format string

const (
	FormatFlat   Format = "flat"
	FormatSQLite Format = "sqlite"
)

// IndexCodec persists a flat index together with the manifest of the
// docstore it was committed with.
type IndexCodec interface {
	WriteFile(ctx context.Context, path string, idx *flat.Index, m flat.Manifest) error
	ReadFile(ctx context.Context, path string) (*flat.Index, flat.Manifest, error)
}

func codecFor(f Format) (IndexCodec, error) {
	switch f {
	case FormatFlat, "":
		return flat.Codec{}, nil
	case FormatSQLite:
		return sqlite.Codec{}, nil
	default:
		return nil, fmt.Errorf("index format %q: %w", f, domain.ErrInvalidInput)
	}
}

// detectFormat inspects the leading bytes of an existing index file.
func detectFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	head := make([]byte, len(sqlite.Header))
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	head = head[:n]
	switch {
	case bytes.Equal(head, []byte(sqlite.Header)):
		return FormatSQLite, nil
	case bytes.HasPrefix(head, []byte(flat.Magic)):
		return FormatFlat, nil
	default:
		return "", fmt.Errorf("unrecognized index file %s: %w", path, domain.ErrStoreCorrupt)
	}
}
