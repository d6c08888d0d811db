package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type mockSearcher struct {
	results []string
	err     error
	gotK    int
	gotQ    string
}

func (m *mockSearcher) Search(_ context.Context, query string, topK int) ([]string, error) {
	m.gotQ, m.gotK = query, topK
	return m.results, m.err
}

func TestRetrieve_ForwardsTopK(t *testing.T) {
	s := &mockSearcher{results: []string{"a", "b"}}
	r := New(s, 3, zap.NewNop())

	got, err := r.Retrieve(context.Background(), "balance")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, 3, s.gotK)
	assert.Equal(t, "balance", s.gotQ)
}

func TestNew_DefaultTopK(t *testing.T) {
	assert.Equal(t, 5, New(&mockSearcher{}, 0, nil).TopK())
	assert.Equal(t, 5, New(&mockSearcher{}, -2, nil).TopK())
}

func TestRetrieve_WarnsOnEmpty(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	r := New(&mockSearcher{}, 5, zap.New(core))

	got, err := r.Retrieve(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 1, logs.Len())
}

func TestRetrieve_PropagatesError(t *testing.T) {
	boom := errors.New("embedder down")
	_, err := New(&mockSearcher{err: boom}, 5, nil).Retrieve(context.Background(), "q")
	assert.ErrorIs(t, err, boom)
}
