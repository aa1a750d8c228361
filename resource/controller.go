// Package resource bounds the memory, concurrency and IO bandwidth used
// while loading hit tables.
package resource

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimit is returned when a reservation cannot fit under the memory limit.
var ErrMemoryLimit = errors.New("resource: memory limit exceeded")

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for loaded column data.
	// If 0, no hard limit is enforced (only tracking).
	MemoryLimitBytes int64

	// MaxConcurrentLoads is the maximum number of tables read at once.
	// If 0, defaults to 1.
	MaxConcurrentLoads int64

	// IOLimitBytesPerSec is the maximum read throughput from blob storage.
	// If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller manages shared resources across loads.
// A nil *Controller imposes no limits.
type Controller struct {
	cfg Config

	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	loadSem *semaphore.Weighted

	ioLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxConcurrentLoads <= 0 {
		cfg.MaxConcurrentLoads = 1
	}

	c := &Controller{
		cfg:     cfg,
		loadSem: semaphore.NewWeighted(cfg.MaxConcurrentLoads),
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// Config returns the limits the controller was built with.
func (c *Controller) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.cfg
}

// AcquireMemory reserves memory for a loaded table.
// If a hard limit is configured and usage would exceed it,
// this blocks until memory is available or ctx is canceled.
// Requests larger than the limit itself fail with ErrMemoryLimit.
func (c *Controller) AcquireMemory(ctx context.Context, bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.memSem != nil {
		if bytes > c.cfg.MemoryLimitBytes {
			return fmt.Errorf("%w: %d bytes requested, limit is %d", ErrMemoryLimit, bytes, c.cfg.MemoryLimitBytes)
		}
		if err := c.memSem.Acquire(ctx, bytes); err != nil {
			return err
		}
	}

	c.memUsed.Add(bytes)
	return nil
}

// TryAcquireMemory attempts to reserve memory without blocking.
// Returns true if acquired, false if limit would be exceeded.
func (c *Controller) TryAcquireMemory(bytes int64) bool {
	if c == nil || bytes <= 0 {
		return true
	}

	if c.memSem != nil && !c.memSem.TryAcquire(bytes) {
		return false
	}

	c.memUsed.Add(bytes)
	return true
}

// ReserveMemory is like TryAcquireMemory but reports a refusal as an
// ErrMemoryLimit error carrying the current usage.
func (c *Controller) ReserveMemory(bytes int64) error {
	if c.TryAcquireMemory(bytes) {
		return nil
	}
	return fmt.Errorf("%w: %d bytes requested, %d of %d in use",
		ErrMemoryLimit, bytes, c.MemoryUsage(), c.cfg.MemoryLimitBytes)
}

// ReleaseMemory releases reserved memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the current memory usage in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// AcquireLoad reserves a load slot, blocking while all slots are busy.
func (c *Controller) AcquireLoad(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.loadSem.Acquire(ctx, 1)
}

// TryAcquireLoad reserves a load slot without blocking.
func (c *Controller) TryAcquireLoad() bool {
	if c == nil {
		return true
	}
	return c.loadSem.TryAcquire(1)
}

// ReleaseLoad releases a load slot.
func (c *Controller) ReleaseLoad() {
	if c == nil {
		return
	}
	c.loadSem.Release(1)
}

// WaitIO waits until the IO limit allows the specified number of bytes.
// Requests larger than one second of budget are split into chunks.
func (c *Controller) WaitIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return ctx.Err()
	}
	burst := c.ioLimiter.Burst()
	for bytes > 0 {
		n := min(bytes, burst)
		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}
