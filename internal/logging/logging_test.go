package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "rag.log")
	logger, err := New(Config{Level: "debug", Format: "json", File: path})
	require.NoError(t, err)

	logger.Named("vectorstore").Debug("loaded", zap.Int("documents", 3))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"logger":"vectorstore"`)
	assert.Contains(t, string(data), `"documents":3`)
}

func TestNew_Level(t *testing.T) {
	logger, err := New(Config{Level: "warn"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	logger, err = New(Config{})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(Config{Level: "chatty"})
	assert.Error(t, err)
	_, err = New(Config{Format: "xml"})
	assert.Error(t, err)
}
