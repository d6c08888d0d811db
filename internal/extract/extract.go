// Package extract sends statement images to a vision model and stores the
// parsed fields as record files.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/statementrag/rag/internal/domain"
	"github.com/statementrag/rag/internal/prompt"
	"github.com/statementrag/rag/internal/record"
)

var imageExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".tiff": {}, ".bmp": {}, ".gif": {}, ".webp": {},
}

// Options configures an Extractor.
type Options struct {
	ImagesDir string
	OutputDir string
	// Model is the vision model name, for logs.
	Model string
	// RequestsPerSecond throttles vision calls. Zero or less disables throttling.
	RequestsPerSecond float64
	// Burst is the token bucket size (default 1).
	Burst int
}

// Result describes one processed image.
type Result struct {
	Image  string
	Output string
	Record record.Record
}

// Extractor turns images into record files.
type Extractor struct {
	vision  domain.VisionModel
	opts    Options
	limiter *rate.Limiter
	now     func() time.Time
	logger  *zap.Logger
}

// New creates an extractor.
func New(vision domain.VisionModel, opts Options, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	return &Extractor{
		vision:  vision,
		opts:    opts,
		limiter: rate.NewLimiter(limit, opts.Burst),
		now:     time.Now,
		logger:  logger.Named("extract"),
	}
}

// HasOutputs reports whether the output directory already holds record files.
func (x *Extractor) HasOutputs() (bool, error) {
	entries, err := os.ReadDir(x.opts.OutputDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			return true, nil
		}
	}
	return false, nil
}

// RunIfNeeded runs ProcessAll unless record files already exist.
func (x *Extractor) RunIfNeeded(ctx context.Context) ([]Result, error) {
	has, err := x.HasOutputs()
	if err != nil {
		return nil, fmt.Errorf("extract: check outputs: %w", err)
	}
	if has {
		x.logger.Info("skipped extraction, record files already exist", zap.String("dir", x.opts.OutputDir))
		return nil, nil
	}
	return x.ProcessAll(ctx)
}

// ProcessAll extracts every image in ImagesDir in filename order. A failed
// image is logged and skipped.
func (x *Extractor) ProcessAll(ctx context.Context) ([]Result, error) {
	if err := os.MkdirAll(x.opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("extract: create output dir: %w", err)
	}
	images, err := x.listImages()
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		x.logger.Info("no images found", zap.String("dir", x.opts.ImagesDir))
		return []Result{}, nil
	}
	x.logger.Info("extracting statements", zap.Int("images", len(images)), zap.String("model", x.opts.Model))

	results := make([]Result, 0, len(images))
	for i, path := range images {
		if err := x.limiter.Wait(ctx); err != nil {
			return results, err
		}
		x.logger.Info("processing image",
			zap.Int("n", i+1),
			zap.Int("of", len(images)),
			zap.String("image", filepath.Base(path)))
		res, err := x.processOne(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			x.logger.Error("image failed", zap.String("image", path), zap.Error(err))
			continue
		}
		results = append(results, res)
	}
	x.logger.Info("extraction finished", zap.Int("written", len(results)), zap.Int("images", len(images)))
	return results, nil
}

func (x *Extractor) processOne(ctx context.Context, path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, err
	}
	reply, err := x.vision.Describe(ctx, prompt.ExtractionInstructions, [][]byte{data})
	if err != nil {
		return Result{}, fmt.Errorf("vision model: %w", err)
	}
	rec := record.ParseLoose(reply)
	if rec.Len() == 0 {
		x.logger.Warn("no JSON object in model reply", zap.String("image", path))
	}
	base := filepath.Base(path)
	rec.SetString("source_file", base)
	rec.SetString("processing_timestamp", x.now().Format(time.RFC3339))

	out, err := rec.MarshalIndent("", "    ")
	if err != nil {
		return Result{}, err
	}
	outPath := filepath.Join(x.opts.OutputDir, strings.TrimSuffix(base, filepath.Ext(base))+"_parsed.json")
	if err := os.WriteFile(outPath, append(out, '\n'), 0o644); err != nil {
		return Result{}, err
	}
	x.logger.Info("saved record", zap.String("file", outPath))
	return Result{Image: path, Output: outPath, Record: rec}, nil
}

func (x *Extractor) listImages() ([]string, error) {
	entries, err := os.ReadDir(x.opts.ImagesDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("extract: read images dir: %w", err)
	}
	var images []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := imageExtensions[strings.ToLower(filepath.Ext(e.Name()))]; ok {
			images = append(images, filepath.Join(x.opts.ImagesDir, e.Name()))
		}
	}
	sort.Strings(images)
	return images, nil
}
