package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/statementrag/rag/internal/domain"
)

type stubRetriever struct {
	chunks []string
	err    error
}

func (s *stubRetriever) Retrieve(context.Context, string) ([]string, error) {
	return s.chunks, s.err
}

type recordingGenerator struct {
	answer  string
	err     error
	prompts []string
}

func (g *recordingGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	return g.answer, g.err
}

func (g *recordingGenerator) ModelName() string { return "stub" }

func TestQuery_FallbackWithoutGeneration(t *testing.T) {
	gen := &recordingGenerator{answer: "should not be used"}
	p := NewPipeline(&stubRetriever{}, gen, zap.NewNop())

	got, err := p.Query(context.Background(), "what is my balance?")
	require.NoError(t, err)
	assert.Equal(t, FallbackAnswer, got)
	assert.Empty(t, gen.prompts)
}

func TestQuery_BuildsPromptAndReturnsVerbatim(t *testing.T) {
	gen := &recordingGenerator{answer: "  The closing balance is 1200.50.\n"}
	p := NewPipeline(&stubRetriever{chunks: []string{"bank name: ABC", "closing balance: 1200.50"}}, gen, nil)

	got, err := p.Query(context.Background(), "closing balance?")
	require.NoError(t, err)
	assert.Equal(t, "  The closing balance is 1200.50.\n", got)

	require.Len(t, gen.prompts, 1)
	sent := gen.prompts[0]
	assert.Contains(t, sent, "<context>\nbank name: ABC\nclosing balance: 1200.50\n</context>")
	assert.Contains(t, sent, "User Query:\nclosing balance?")
}

func TestQuery_EmptyAnswerIsAnAnswer(t *testing.T) {
	gen := &recordingGenerator{answer: ""}
	p := NewPipeline(&stubRetriever{chunks: []string{"x"}}, gen, nil)

	got, err := p.Query(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestQuery_Errors(t *testing.T) {
	boom := errors.New("boom")

	_, err := NewPipeline(&stubRetriever{err: boom}, &recordingGenerator{}, nil).Query(context.Background(), "q")
	assert.ErrorIs(t, err, boom)
	assert.True(t, strings.HasPrefix(err.Error(), "retrieve:"))
	assert.NotErrorIs(t, err, domain.ErrGeneration)

	gen := &recordingGenerator{err: boom}
	_, err = NewPipeline(&stubRetriever{chunks: []string{"x"}}, gen, nil).Query(context.Background(), "q")
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, domain.ErrGeneration)
	assert.Len(t, gen.prompts, 1, "no retries")
}
