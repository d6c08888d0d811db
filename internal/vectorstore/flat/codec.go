package flat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/statementrag/rag/internal/domain"
)

// Magic opens every flat index file.
const Magic = "RAGVIDX1"

const (
	formatVersion uint32 = 1
	headerLen            = len(Magic) + 16 + 32

	// MaxDimension bounds the dimension accepted from a file header.
	MaxDimension = 1 << 16
)

// Manifest describes the docstore an index file was committed with.
type Manifest struct {
	DocstoreLen int
	DocstoreSum [32]byte
}

// Codec reads and writes indexes in the flat binary layout:
//
//	magic "RAGVIDX1" | version u32 | dim u32 | count u32 | docstore len u32 |
//	docstore sha256 [32]byte | count*dim float32
//
// All integers and floats are little-endian.
type Codec struct{}

// WriteFile writes idx to path, replacing its contents, and syncs it.
func (Codec) WriteFile(ctx context.Context, path string, idx *Index, m Manifest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := Encode(w, idx, m); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadFile loads an index written by WriteFile.
func (Codec) ReadFile(ctx context.Context, path string) (*Index, Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, Manifest{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, Manifest{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, Manifest{}, err
	}
	hdr := make([]byte, headerLen)
	if _, err := io.ReadFull(f, hdr); err != nil {
		return nil, Manifest{}, fmt.Errorf("flat: read header: %v: %w", err, domain.ErrStoreCorrupt)
	}
	dim, count, _, err := parseHeader(hdr)
	if err != nil {
		return nil, Manifest{}, err
	}
	if want := int64(headerLen) + 4*int64(dim)*int64(count); info.Size() != want {
		return nil, Manifest{}, fmt.Errorf("flat: file is %d bytes, header describes %d: %w", info.Size(), want, domain.ErrStoreCorrupt)
	}
	return Decode(io.MultiReader(bytes.NewReader(hdr), bufio.NewReader(f)))
}

// Encode writes idx and its manifest to w.
func Encode(w io.Writer, idx *Index, m Manifest) error {
	hdr := make([]byte, 0, headerLen)
	hdr = append(hdr, Magic...)
	hdr = binary.LittleEndian.AppendUint32(hdr, formatVersion)
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(idx.Dimension()))
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(idx.Len()))
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(m.DocstoreLen))
	hdr = append(hdr, m.DocstoreSum[:]...)
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	buf := make([]byte, 4*idx.Dimension())
	for i := 0; i < idx.Len(); i++ {
		EncodeVector(buf, idx.data[i*idx.dimension:(i+1)*idx.dimension])
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// Decode reads an index written by Encode. Structural problems are reported
// as domain.ErrStoreCorrupt. Vectors are allocated as they are read, so a
// damaged count fails at end of input.
func Decode(r io.Reader) (*Index, Manifest, error) {
	hdr := make([]byte, headerLen)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, Manifest{}, fmt.Errorf("flat: read header: %v: %w", err, domain.ErrStoreCorrupt)
	}
	dim, count, m, err := parseHeader(hdr)
	if err != nil {
		return nil, m, err
	}

	idx, err := New(dim)
	if err != nil {
		return nil, m, fmt.Errorf("flat: %v: %w", err, domain.ErrStoreCorrupt)
	}
	buf := make([]byte, 4*dim)
	var vectors [][]float32
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, m, fmt.Errorf("flat: read vector %d of %d: %v: %w", i, count, err, domain.ErrStoreCorrupt)
		}
		vectors = append(vectors, DecodeVector(buf))
	}
	if err := idx.Add(vectors); err != nil {
		return nil, m, err
	}
	return idx, m, nil
}

func parseHeader(hdr []byte) (dim, count int, m Manifest, err error) {
	if !bytes.Equal(hdr[:len(Magic)], []byte(Magic)) {
		return 0, 0, m, fmt.Errorf("flat: bad magic %q: %w", hdr[:len(Magic)], domain.ErrStoreCorrupt)
	}
	p := hdr[len(Magic):]
	if v := binary.LittleEndian.Uint32(p[0:4]); v != formatVersion {
		return 0, 0, m, fmt.Errorf("flat: unsupported version %d: %w", v, domain.ErrStoreCorrupt)
	}
	dim = int(binary.LittleEndian.Uint32(p[4:8]))
	count = int(binary.LittleEndian.Uint32(p[8:12]))
	m.DocstoreLen = int(binary.LittleEndian.Uint32(p[12:16]))
	copy(m.DocstoreSum[:], p[16:48])
	if dim <= 0 || dim > MaxDimension {
		return 0, 0, m, fmt.Errorf("flat: dimension %d out of range: %w", dim, domain.ErrStoreCorrupt)
	}
	return dim, count, m, nil
}

// EncodeVector writes v into dst as little-endian float32. dst must hold 4*len(v) bytes.
func EncodeVector(dst []byte, v []float32) {
	for i, f := range v {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(f))
	}
}

// DecodeVector is the inverse of EncodeVector.
func DecodeVector(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
