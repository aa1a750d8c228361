package hitfile

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/hupe1980/flathits/blobstore"
	"github.com/hupe1980/flathits/codec"
	"github.com/hupe1980/flathits/table"
	"github.com/ulikunitz/xz"
)

// Writer assembles trees into a hit file.
type Writer struct {
	compression Compression
	codec       codec.Codec
	names       []string
	trees       []*table.Table
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithCompression sets the block compression. Default: zstd.
func WithCompression(c Compression) WriterOption {
	return func(w *Writer) {
		w.compression = c
	}
}

// WithCodec sets the directory codec. Default: codec.Default.
func WithCodec(c codec.Codec) WriterOption {
	return func(w *Writer) {
		w.codec = c
	}
}

// NewWriter creates an empty writer.
func NewWriter(optFns ...WriterOption) *Writer {
	w := &Writer{
		compression: CompressionZSTD,
		codec:       codec.Default,
	}
	for _, fn := range optFns {
		fn(w)
	}
	return w
}

// AddTree adds t under name. Trees are written in insertion order.
func (w *Writer) AddTree(name string, t *table.Table) error {
	for _, n := range w.names {
		if n == name {
			return fmt.Errorf("hitfile: duplicate tree %q", name)
		}
	}
	for _, c := range t.Columns() {
		if c.Kind() == table.KindString && !c.IsScalar() {
			return fmt.Errorf("%w: string column %q has shape %v", ErrUnsupportedColumn, c.Name(), c.Shape())
		}
	}
	w.names = append(w.names, name)
	w.trees = append(w.trees, t)
	return nil
}

// Bytes encodes the file.
func (w *Writer) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteTo encodes the file to out.
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	var body bytes.Buffer
	dir := Directory{Trees: make([]TreeEntry, 0, len(w.trees))}
	offset := int64(HeaderSize)

	for i, t := range w.trees {
		entry := TreeEntry{Name: w.names[i], Rows: t.NumRows()}
		for _, c := range t.Columns() {
			raw, err := encodeColumn(c)
			if err != nil {
				return 0, err
			}
			block, err := compressBlock(raw, w.compression)
			if err != nil {
				return 0, fmt.Errorf("hitfile: compress %q: %w", c.Name(), err)
			}
			lo, hi := stats(c)
			entry.Columns = append(entry.Columns, ColumnEntry{
				Name:   c.Name(),
				Kind:   c.Kind().String(),
				Shape:  c.Shape(),
				Offset: offset,
				Length: int64(len(block)),
				CRC:    checksum(block),
				Min:    lo,
				Max:    hi,
			})
			body.Write(block)
			offset += int64(len(block))
		}
		dir.Trees = append(dir.Trees, entry)
	}

	dirBytes, err := w.codec.Marshal(&dir)
	if err != nil {
		return 0, fmt.Errorf("hitfile: encode directory: %w", err)
	}
	h := header{
		Version:     Version,
		Compression: w.compression,
		Codec:       w.codec.ID(),
		Trees:       uint32(len(w.trees)),
		DirOffset:   uint64(offset),
		DirLength:   uint64(len(dirBytes)),
		DirCRC:      checksum(dirBytes),
	}

	var total int64
	for _, part := range [][]byte{h.encode(), body.Bytes(), dirBytes} {
		n, err := out.Write(part)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Save encodes the file and stores it under name.
func (w *Writer) Save(ctx context.Context, store blobstore.BlobStore, name string) error {
	data, err := w.Bytes()
	if err != nil {
		return err
	}
	return store.Put(ctx, name, data)
}

// xzMagic is the xz stream header.
var xzMagic = []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}

// WrapXZ compresses a whole encoded file into an xz stream, the form runs
// are archived in. Reader unwraps it transparently.
func WrapXZ(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	xw, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := xw.Write(data); err != nil {
		return nil, err
	}
	if err := xw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unwrapXZ(data []byte) ([]byte, error) {
	xr, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: xz: %w", ErrCorrupted, err)
	}
	out, err := io.ReadAll(xr)
	if err != nil {
		return nil, fmt.Errorf("%w: xz: %w", ErrCorrupted, err)
	}
	return out, nil
}
