// Package logging builds the process-wide zap logger. It is called once from
// the CLI root; every component receives the logger through its constructor.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects level, encoding and an optional log file.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // console or json
	File   string // empty disables file output
}

// New builds a logger writing to stderr and, if set, to cfg.File.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		l, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
		level = l
	}

	var zc zap.Config
	switch strings.ToLower(cfg.Format) {
	case "json":
		zc = zap.NewProductionConfig()
	case "", "console", "text":
		zc = zap.NewDevelopmentConfig()
		zc.Development = false
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	default:
		return nil, fmt.Errorf("logging: unknown format %q", cfg.Format)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.DisableStacktrace = true
	zc.Sampling = nil
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("logging: create log dir: %w", err)
		}
		zc.OutputPaths = append(zc.OutputPaths, cfg.File)
	}
	return zc.Build()
}
