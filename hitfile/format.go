package hitfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/hupe1980/flathits/source"
)

const (
	// Magic identifies hit files.
	Magic = "HIT0"
	// Version is the current format version.
	Version uint16 = 1
	// HeaderSize is the fixed size of the file header.
	HeaderSize = 64
)

var (
	// ErrCorrupted is returned when a checksum or structural check fails.
	ErrCorrupted = errors.New("hitfile: corrupted")
	// ErrBadMagic is returned when the blob is not a hit file.
	ErrBadMagic = errors.New("hitfile: bad magic")
	// ErrUnsupportedVersion is returned for files written by a newer format.
	ErrUnsupportedVersion = errors.New("hitfile: unsupported version")
	// ErrTreeNotFound is returned when the file has no tree with the name.
	ErrTreeNotFound = source.ErrTreeNotFound
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

func checksum(b []byte) uint32 { return crc32.Checksum(b, crcTable) }

// header layout (little endian):
//
//	[0:4]   magic
//	[4:6]   version
//	[6]     compression
//	[7]     directory codec
//	[8:12]  tree count
//	[12:20] directory offset
//	[20:28] directory length
//	[28:32] directory crc
//	[32:60] reserved
//	[60:64] header crc over [0:60]
type header struct {
	Version     uint16
	Compression Compression
	Codec       uint8
	Trees       uint32
	DirOffset   uint64
	DirLength   uint64
	DirCRC      uint32
}

func (h header) encode() []byte {
	b := make([]byte, HeaderSize)
	copy(b[0:4], Magic)
	binary.LittleEndian.PutUint16(b[4:], h.Version)
	b[6] = byte(h.Compression)
	b[7] = h.Codec
	binary.LittleEndian.PutUint32(b[8:], h.Trees)
	binary.LittleEndian.PutUint64(b[12:], h.DirOffset)
	binary.LittleEndian.PutUint64(b[20:], h.DirLength)
	binary.LittleEndian.PutUint32(b[28:], h.DirCRC)
	binary.LittleEndian.PutUint32(b[60:], checksum(b[:60]))
	return b
}

func decodeHeader(b []byte) (header, error) {
	if len(b) < HeaderSize {
		return header{}, fmt.Errorf("%w: short header (%d bytes)", ErrCorrupted, len(b))
	}
	if string(b[0:4]) != Magic {
		return header{}, ErrBadMagic
	}
	if got, want := checksum(b[:60]), binary.LittleEndian.Uint32(b[60:]); got != want {
		return header{}, fmt.Errorf("%w: header checksum %08x != %08x", ErrCorrupted, got, want)
	}
	h := header{
		Version:     binary.LittleEndian.Uint16(b[4:]),
		Compression: Compression(b[6]),
		Codec:       b[7],
		Trees:       binary.LittleEndian.Uint32(b[8:]),
		DirOffset:   binary.LittleEndian.Uint64(b[12:]),
		DirLength:   binary.LittleEndian.Uint64(b[20:]),
		DirCRC:      binary.LittleEndian.Uint32(b[28:]),
	}
	if h.Version == 0 || h.Version > Version {
		return header{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	return h, nil
}

// Directory lists the trees of a file.
type Directory struct {
	Trees []TreeEntry `json:"trees"`
}

// Tree returns the entry for name.
func (d *Directory) Tree(name string) (*TreeEntry, error) {
	for i := range d.Trees {
		if d.Trees[i].Name == name {
			return &d.Trees[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTreeNotFound, name)
}

// TreeEntry describes one tree.
type TreeEntry struct {
	Name    string        `json:"name"`
	Rows    int           `json:"rows"`
	Columns []ColumnEntry `json:"columns"`
}

// Names returns the column names in catalog order.
func (t *TreeEntry) Names() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the entry for name.
func (t *TreeEntry) Column(name string) (*ColumnEntry, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// ColumnEntry describes one column block.
type ColumnEntry struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Shape  []int  `json:"shape,omitempty"`
	Offset int64  `json:"offset"`
	Length int64  `json:"length"`
	CRC    uint32 `json:"crc"`
	// Min and Max are set for non-empty numeric columns.
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}
