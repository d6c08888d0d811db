// Package ingest turns extraction record files into text chunks.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/statementrag/rag/internal/record"
)

// Ingestor reads *.json extraction records from one directory.
type Ingestor struct {
	inputDir string
	logger   *zap.Logger
}

// New creates an ingestor for inputDir.
func New(inputDir string, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{inputDir: inputDir, logger: logger.Named("ingest")}
}

// LoadJSONFiles converts every record file in the input directory into one
// chunk, in filename order. Files that fail to parse are logged and skipped.
// A missing or empty directory yields no chunks and no error.
func (in *Ingestor) LoadJSONFiles(ctx context.Context) ([]string, error) {
	files, err := in.listFiles()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		in.logger.Warn("no JSON files found", zap.String("dir", in.inputDir))
		return []string{}, nil
	}

	chunks := make([]string, 0, len(files))
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			in.logger.Error("read record file", zap.String("file", path), zap.Error(err))
			continue
		}
		rec, err := record.Decode(data)
		if err != nil {
			in.logger.Error("parse record file", zap.String("file", path), zap.Error(err))
			continue
		}
		chunks = append(chunks, JSONToText(rec))
	}
	in.logger.Info("loaded records",
		zap.Int("files", len(files)),
		zap.Int("chunks", len(chunks)),
		zap.String("dir", in.inputDir))
	return chunks, nil
}

func (in *Ingestor) listFiles() ([]string, error) {
	entries, err := os.ReadDir(in.inputDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("ingest: read dir %s: %w", in.inputDir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		files = append(files, filepath.Join(in.inputDir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// JSONToText flattens a record into "key: value" lines in key order, with
// underscores in keys replaced by spaces.
func JSONToText(rec record.Record) string {
	fields := rec.All()
	lines := make([]string, len(fields))
	for i, f := range fields {
		lines[i] = strings.ReplaceAll(f.Key, "_", " ") + ": " + record.ValueText(f.Value)
	}
	return strings.Join(lines, "\n")
}
