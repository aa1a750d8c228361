package blobstore

import (
	"context"

	"github.com/hupe1980/flathits/resource"
)

// Throttled wraps a BlobStore so that every read waits on the controller's
// IO rate limit.
type Throttled struct {
	inner BlobStore
	rc    *resource.Controller
}

// NewThrottled creates a throttled store. A nil controller disables throttling.
func NewThrottled(inner BlobStore, rc *resource.Controller) *Throttled {
	return &Throttled{inner: inner, rc: rc}
}

// Open opens a blob whose reads are rate limited.
func (s *Throttled) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &throttledBlob{Blob: b, rc: s.rc}, nil
}

// Put writes through without throttling.
func (s *Throttled) Put(ctx context.Context, name string, data []byte) error {
	return s.inner.Put(ctx, name, data)
}

// List lists through without throttling.
func (s *Throttled) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

type throttledBlob struct {
	Blob
	rc *resource.Controller
}

func (b *throttledBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := b.rc.WaitIO(ctx, len(p)); err != nil {
		return 0, err
	}
	return b.Blob.ReadAt(ctx, p, off)
}
