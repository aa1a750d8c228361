// Package codec centralizes encoding of hit file directories.
//
// Hit files record the codec that wrote their directory, so changing the
// default never breaks reading existing files.
package codec

import "fmt"

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
	// ID is the stable identifier stored in file headers.
	ID() uint8
}

// Default is the codec used when none is configured.
var Default Codec = GoJSON{}

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	default:
		return nil, false
	}
}

// ByID returns a built-in codec by the identifier stored in a header.
func ByID(id uint8) (Codec, bool) {
	switch id {
	case JSON{}.ID():
		return JSON{}, true
	case GoJSON{}.ID():
		return GoJSON{}, true
	default:
		return nil, false
	}
}

// MustMarshal is a helper for tests.
func MustMarshal(c Codec, v any) []byte {
	if c == nil {
		c = Default
	}
	b, err := c.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("codec %s marshal failed: %w", c.Name(), err))
	}
	return b
}
