package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/statementrag/rag/internal/embedding/hashing"
	"github.com/statementrag/rag/internal/ingest"
	"github.com/statementrag/rag/internal/retriever"
	"github.com/statementrag/rag/internal/vectorstore"
)

type stubLoader struct {
	chunks []string
	err    error
}

func (l *stubLoader) LoadJSONFiles(context.Context) ([]string, error) { return l.chunks, l.err }

type memStore struct {
	docs  []string
	calls int
}

func (m *memStore) AddDocuments(_ context.Context, chunks []string) error {
	m.calls++
	m.docs = append(m.docs, chunks...)
	return nil
}
func (m *memStore) Documents() []string { return m.docs }
func (m *memStore) Len() int            { return len(m.docs) }

func TestIndexer_AppendsEverything(t *testing.T) {
	store := &memStore{docs: []string{"a"}}
	ix := NewIndexer(&stubLoader{chunks: []string{"a", "b", "b"}}, store, nil)

	n, err := ix.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"a", "a", "b", "b"}, store.docs)
}

func TestIndexer_SkipExisting(t *testing.T) {
	store := &memStore{docs: []string{"a"}}
	ix := NewIndexer(&stubLoader{chunks: []string{"a", "b", "b", "c"}}, store, nil)
	ix.SkipExisting = true

	n, err := ix.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "b", "c"}, store.docs)

	n, err = ix.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, store.calls)
}

func TestIndexer_NothingLoaded(t *testing.T) {
	store := &memStore{}
	n, err := NewIndexer(&stubLoader{}, store, nil).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, store.calls)
}

func TestIndexer_LoaderError(t *testing.T) {
	boom := errors.New("disk gone")
	_, err := NewIndexer(&stubLoader{err: boom}, &memStore{}, nil).Build(context.Background())
	assert.ErrorIs(t, err, boom)
}

// Two statements that differ only in the holder's name; a question naming
// one holder must rank that statement first.
func TestEndToEnd_HolderRankedFirst(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	records := filepath.Join(dir, "output")
	require.NoError(t, os.MkdirAll(records, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(records, "a_parsed.json"), []byte(`{
		"bank_name": "ABC Bank",
		"account_holder_name": "Jane Doe",
		"closing_balance": 1500.00,
		"currency": "INR"
	}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(records, "b_parsed.json"), []byte(`{
		"bank_name": "ABC Bank",
		"account_holder_name": "Rahul Sharma",
		"closing_balance": 1500.00,
		"currency": "INR"
	}`), 0o644))

	logger := zap.NewNop()
	store, err := vectorstore.New(ctx, vectorstore.Options{
		IndexPath:    filepath.Join(dir, "vs", "index.bin"),
		DocstorePath: filepath.Join(dir, "vs", "docstore.json"),
	}, hashing.NewEmbedder(0), logger)
	require.NoError(t, err)

	n, err := NewIndexer(ingest.New(records, logger), store, logger).Build(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	results, err := store.SearchScored(ctx, "account holder Rahul Sharma", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Contains(t, results[0].Text, "account holder name: Rahul Sharma")
	assert.LessOrEqual(t, results[0].Distance, results[1].Distance)

	gen := &recordingGenerator{answer: "Rahul Sharma"}
	p := NewPipeline(retriever.New(store, 2, logger), gen, logger)
	answer, err := p.Query(ctx, "account holder Rahul Sharma")
	require.NoError(t, err)
	assert.Equal(t, "Rahul Sharma", answer)
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "account holder name: Rahul Sharma\nclosing balance: 1500.00")
}
