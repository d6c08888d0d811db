package flat

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statementrag/rag/internal/domain"
)

func TestNewRejectsNonPositiveDimension(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)
	_, err = New(-3)
	assert.Error(t, err)
}

func TestIndex_SearchOrdersByDistanceThenPosition(t *testing.T) {
	idx, err := New(2)
	require.NoError(t, err)
	require.NoError(t, idx.Add([][]float32{
		{3, 0}, // 0: distance 9
		{1, 0}, // 1: distance 1
		{0, 1}, // 2: distance 1, tie with 1
		{0, 0}, // 3: distance 0
	}))

	hits, err := idx.Search([]float32{0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 4)

	positions := []int{hits[0].Position, hits[1].Position, hits[2].Position, hits[3].Position}
	assert.Equal(t, []int{3, 1, 2, 0}, positions)
	assert.InDelta(t, 0.0, hits[0].Distance, 1e-9)
	assert.InDelta(t, 9.0, hits[3].Distance, 1e-9)
}

func TestIndex_SearchBounds(t *testing.T) {
	idx, err := New(1)
	require.NoError(t, err)

	hits, err := idx.Search([]float32{1}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits, "empty index")

	require.NoError(t, idx.Add([][]float32{{1}, {2}, {3}}))

	hits, err = idx.Search([]float32{1}, 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = idx.Search([]float32{1}, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_DimensionMismatch(t *testing.T) {
	idx, err := New(3)
	require.NoError(t, err)

	err = idx.Add([][]float32{{1, 2, 3}, {1, 2}})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.Equal(t, 0, idx.Len(), "partial batch must not be appended")

	_, err = idx.Search([]float32{1}, 1)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestIndex_Truncate(t *testing.T) {
	idx, err := New(1)
	require.NoError(t, err)
	require.NoError(t, idx.Add([][]float32{{1}, {2}, {3}}))

	idx.Truncate(1)
	assert.Equal(t, 1, idx.Len())
	assert.Equal(t, []float32{1}, idx.Vector(0))
	assert.Nil(t, idx.Vector(1))
}

func TestCodec_RoundTrip(t *testing.T) {
	idx, err := New(3)
	require.NoError(t, err)
	require.NoError(t, idx.Add([][]float32{{0.5, -1, 2}, {3.25, 0, -0.125}}))
	m := Manifest{DocstoreLen: 2, DocstoreSum: sha256.Sum256([]byte(`["a","b"]`))}

	path := filepath.Join(t.TempDir(), "index.bin")
	ctx := context.Background()
	require.NoError(t, Codec{}.WriteFile(ctx, path, idx, m))

	got, gotM, err := Codec{}.ReadFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, m, gotM)
	assert.Equal(t, 3, got.Dimension())
	require.Equal(t, 2, got.Len())
	assert.Equal(t, []float32{0.5, -1, 2}, got.Vector(0))
	assert.Equal(t, []float32{3.25, 0, -0.125}, got.Vector(1))
}

func patched(data []byte, off int, v uint32) []byte {
	out := append([]byte(nil), data...)
	binary.LittleEndian.PutUint32(out[off:], v)
	return out
}

func TestDecode_Corrupt(t *testing.T) {
	idx, err := New(2)
	require.NoError(t, err)
	require.NoError(t, idx.Add([][]float32{{1, 2}}))

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, idx, Manifest{DocstoreLen: 1}))
	full := buf.Bytes()

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", append([]byte("NOTMAGIC"), full[8:]...)},
		{"short header", full[:20]},
		{"truncated vectors", full[:len(full)-3]},
		{"count beyond data", patched(full, len(Magic)+8, 0x7fffffff)},
		{"dimension out of range", patched(full, len(Magic)+4, 0x7fffffff)},
		{"zero dimension", patched(full, len(Magic)+4, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(bytes.NewReader(tt.data))
			assert.ErrorIs(t, err, domain.ErrStoreCorrupt)
		})
	}
}

func TestCodec_ReadFileRejectsSizeMismatch(t *testing.T) {
	ctx := context.Background()
	idx, err := New(2)
	require.NoError(t, err)
	require.NoError(t, idx.Add([][]float32{{1, 2}, {3, 4}}))
	path := filepath.Join(t.TempDir(), "index.bin")
	require.NoError(t, Codec{}.WriteFile(ctx, path, idx, Manifest{DocstoreLen: 2}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, patched(data, len(Magic)+8, 1), 0o644))
	_, _, err = Codec{}.ReadFile(ctx, path)
	assert.ErrorIs(t, err, domain.ErrStoreCorrupt)

	require.NoError(t, os.WriteFile(path, append(data, 0, 0, 0, 0), 0o644))
	_, _, err = Codec{}.ReadFile(ctx, path)
	assert.ErrorIs(t, err, domain.ErrStoreCorrupt)
}
