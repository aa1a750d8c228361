package mmap

import (
	"errors"
	"io"
	"os"
	"sync/atomic"
)

var (
	// ErrClosed is returned when attempting to access a closed mapping.
	ErrClosed = errors.New("mmap: mapping is closed")
	// ErrInvalidSize is returned when the file size is invalid.
	ErrInvalidSize = errors.New("mmap: invalid file size")
)

// AccessPattern provides hints to the kernel about how the data will be accessed.
type AccessPattern int

const (
	// AccessDefault is the default access pattern (no specific advice).
	AccessDefault AccessPattern = iota
	// AccessSequential expects data to be accessed sequentially.
	AccessSequential
	// AccessRandom expects data to be accessed randomly.
	AccessRandom
)

// File is a read-only mapping of a whole file.
// Data is valid until Close is called.
type File struct {
	Data   []byte
	closed atomic.Bool
	unmap  func([]byte) error
}

// Open maps the file at path into memory.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	size := fi.Size()
	if size < 0 {
		return nil, ErrInvalidSize
	}
	if size == 0 {
		return &File{}, nil
	}

	data, unmap, err := osMap(f, int(size))
	if err != nil {
		return nil, err
	}
	return &File{Data: data, unmap: unmap}, nil
}

// Close unmaps the memory. It is idempotent.
func (m *File) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	data := m.Data
	m.Data = nil
	if m.unmap != nil && data != nil {
		return m.unmap(data)
	}
	return nil
}

// Advise provides hints to the kernel about how the memory will be accessed.
func (m *File) Advise(pattern AccessPattern) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if len(m.Data) == 0 {
		return nil
	}
	return osAdvise(m.Data, pattern)
}

// ReadAt implements io.ReaderAt.
func (m *File) ReadAt(p []byte, off int64) (int, error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}
	if off < 0 || off >= int64(len(m.Data)) {
		return 0, io.EOF
	}
	n := copy(p, m.Data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
