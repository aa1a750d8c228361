package hitfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/flathits/blobstore"
	"github.com/hupe1980/flathits/codec"
	"github.com/hupe1980/flathits/cache"
	"github.com/hupe1980/flathits/selection"
	"github.com/hupe1980/flathits/source"
	"github.com/hupe1980/flathits/table"
)

// Reader reads hit files from a blob store. It implements source.Reader and
// is safe for concurrent use.
type Reader struct {
	store       blobstore.BlobStore
	concurrency int
	cache       cache.BlockCache
}

var _ source.Reader = (*Reader)(nil)

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithConcurrency sets how many column blocks are fetched in parallel.
// Default: 4.
func WithConcurrency(n int) ReaderOption {
	return func(r *Reader) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithBlockCache keeps decompressed column blocks in c across reads.
func WithBlockCache(c cache.BlockCache) ReaderOption {
	return func(r *Reader) {
		r.cache = c
	}
}

// NewReader creates a reader over store.
func NewReader(store blobstore.BlobStore, optFns ...ReaderOption) *Reader {
	r := &Reader{store: store, concurrency: 4}
	for _, fn := range optFns {
		fn(r)
	}
	return r
}

// Inspect returns the directory of the file at path.
func (r *Reader) Inspect(ctx context.Context, path string) (*Directory, error) {
	f, err := r.open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.dir, nil
}

// ListColumns implements source.Reader.
func (r *Reader) ListColumns(ctx context.Context, path, tree string) ([]string, error) {
	f, err := r.open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	te, err := f.dir.Tree(tree)
	if err != nil {
		return nil, fmt.Errorf("%w in %s", err, path)
	}
	return te.Names(), nil
}

// ReadTable implements source.Reader.
func (r *Reader) ReadTable(ctx context.Context, path, tree string, columns []string, sel string) (*table.Table, error) {
	pred, err := selection.Parse(sel)
	if err != nil {
		return nil, err
	}

	f, err := r.open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	te, err := f.dir.Tree(tree)
	if err != nil {
		return nil, fmt.Errorf("%w in %s", err, path)
	}

	needed := slices.Clone(columns)
	for _, name := range pred.Columns() {
		if !slices.Contains(needed, name) {
			needed = append(needed, name)
		}
	}
	entries := make([]*ColumnEntry, len(needed))
	for i, name := range needed {
		e, ok := te.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q in tree %s of %s", table.ErrColumnNotFound, name, tree, path)
		}
		entries[i] = e
	}

	// Type-check the predicate on the schema before touching any block.
	schema, err := emptyTable(entries)
	if err != nil {
		return nil, err
	}
	if err := pred.Validate(schema); err != nil {
		return nil, err
	}
	if te.Rows == 0 || ruledOut(te, pred) {
		return schema.Select(columns...)
	}

	cols := make([]*table.Column, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, e := range entries {
		g.Go(func() error {
			c, err := r.column(gctx, f, e, te.Rows)
			if err != nil {
				return err
			}
			cols[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	t, err := table.New(cols...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupted, err)
	}
	return source.Project(t, columns, sel)
}

func emptyTable(entries []*ColumnEntry) (*table.Table, error) {
	cols := make([]*table.Column, len(entries))
	for i, e := range entries {
		kind, err := table.ParseKind(e.Kind)
		if err != nil {
			return nil, fmt.Errorf("%w: column %q: %w", ErrCorrupted, e.Name, err)
		}
		c, err := table.Zeros(e.Name, kind, e.Shape, 0)
		if err != nil {
			return nil, fmt.Errorf("%w: column %q: %w", ErrCorrupted, e.Name, err)
		}
		cols[i] = c
	}
	return table.New(cols...)
}

// ruledOut reports whether column statistics prove that no row can satisfy pred.
func ruledOut(te *TreeEntry, pred selection.Predicate) bool {
	for _, c := range pred.Comparisons {
		e, ok := te.Column(c.Column)
		if !ok || e.Min == nil || e.Max == nil || c.Literal.IsString {
			continue
		}
		v := c.Literal.Num
		switch c.Relation {
		case selection.Less:
			if *e.Min >= v {
				return true
			}
		case selection.Greater:
			if *e.Max <= v {
				return true
			}
		case selection.Equal:
			if v < *e.Min || v > *e.Max {
				return true
			}
		}
	}
	return false
}

type file struct {
	path string
	blob blobstore.Blob
	hdr  header
	dir  *Directory
}

func (f *file) Close() error {
	return f.blob.Close()
}

func (r *Reader) open(ctx context.Context, path string) (*file, error) {
	blob, err := r.store.Open(ctx, path)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s: %w", source.ErrFileNotFound, path, err)
		}
		return nil, err
	}

	f, err := readFile(ctx, blob)
	if err != nil {
		_ = blob.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.path = path
	return f, nil
}

func readFile(ctx context.Context, blob blobstore.Blob) (*file, error) {
	prefix := make([]byte, HeaderSize)
	n, err := blob.ReadAt(ctx, prefix, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	prefix = prefix[:n]

	if bytes.HasPrefix(prefix, xzMagic) {
		packed, err := blobstore.ReadAll(ctx, blob)
		if err != nil {
			return nil, err
		}
		plain, err := unwrapXZ(packed)
		if err != nil {
			return nil, err
		}
		_ = blob.Close()
		blob = bytesBlob(plain)
		prefix = plain[:min(len(plain), HeaderSize)]
	}

	if len(prefix) >= len(Magic) && string(prefix[:len(Magic)]) != Magic {
		return nil, ErrBadMagic
	}
	hdr, err := decodeHeader(prefix)
	if err != nil {
		return nil, err
	}

	end := hdr.DirOffset + hdr.DirLength
	if hdr.DirOffset < HeaderSize || end < hdr.DirOffset || end > uint64(blob.Size()) {
		return nil, fmt.Errorf("%w: directory out of bounds", ErrCorrupted)
	}
	raw := make([]byte, hdr.DirLength)
	if _, err := blob.ReadAt(ctx, raw, int64(hdr.DirOffset)); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if got := checksum(raw); got != hdr.DirCRC {
		return nil, fmt.Errorf("%w: directory checksum %08x != %08x", ErrCorrupted, got, hdr.DirCRC)
	}
	c, ok := codec.ByID(hdr.Codec)
	if !ok {
		return nil, fmt.Errorf("%w: unknown directory codec %d", ErrCorrupted, hdr.Codec)
	}
	dir := &Directory{}
	if err := c.Unmarshal(raw, dir); err != nil {
		return nil, fmt.Errorf("%w: directory: %w", ErrCorrupted, err)
	}
	if uint32(len(dir.Trees)) != hdr.Trees {
		return nil, fmt.Errorf("%w: header lists %d trees, directory %d", ErrCorrupted, hdr.Trees, len(dir.Trees))
	}

	return &file{blob: blob, hdr: hdr, dir: dir}, nil
}

func (r *Reader) column(ctx context.Context, f *file, e *ColumnEntry, rows int) (*table.Column, error) {
	key := cache.Key{Path: f.path, Offset: e.Offset, CRC: e.CRC}
	if r.cache != nil {
		if payload, ok := r.cache.Get(ctx, key); ok {
			return decodeColumn(e, rows, payload)
		}
	}
	payload, err := f.payload(ctx, e)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.Set(ctx, key, payload)
	}
	return decodeColumn(e, rows, payload)
}

func (f *file) payload(ctx context.Context, e *ColumnEntry) ([]byte, error) {
	if e.Offset < HeaderSize || e.Length < blockHeaderSize || uint64(e.Offset+e.Length) > f.hdr.DirOffset {
		return nil, fmt.Errorf("%w: column %q block out of bounds", ErrCorrupted, e.Name)
	}
	block := make([]byte, e.Length)
	if _, err := f.blob.ReadAt(ctx, block, e.Offset); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if got := checksum(block); got != e.CRC {
		return nil, fmt.Errorf("%w: column %q checksum %08x != %08x", ErrCorrupted, e.Name, got, e.CRC)
	}
	payload, err := decompressBlock(block, f.hdr.Compression)
	if err != nil {
		return nil, fmt.Errorf("column %q: %w", e.Name, err)
	}
	return payload, nil
}

// bytesBlob serves an unwrapped xz file from memory.
type bytesBlob []byte

func (b bytesBlob) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(b)) {
		return 0, io.EOF
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b bytesBlob) Close() error { return nil }

func (b bytesBlob) Size() int64 { return int64(len(b)) }

func (b bytesBlob) Bytes() ([]byte, error) { return b, nil }
