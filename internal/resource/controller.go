package resource

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrTransferTooLarge is returned when a single transfer exceeds the IO burst.
var ErrTransferTooLarge = errors.New("resource: transfer larger than io burst")

// Config holds resource limits.
type Config struct {
	// MaxInFlight is the maximum number of concurrent transfers.
	// If 0, unlimited.
	MaxInFlight int64

	// IOLimitBytesPerSec is the maximum IO throughput.
	// If 0, unlimited.
	IOLimitBytesPerSec int64

	// IOBurstBytes is the token bucket size. It bounds the largest single
	// transfer. If 0, defaults to one second of IOLimitBytesPerSec.
	IOBurstBytes int
}

// Controller limits concurrent transfers and IO throughput.
type Controller struct {
	cfg Config

	inflightSem *semaphore.Weighted // nil if unlimited
	inflight    atomic.Int64

	ioLimiter *rate.Limiter // nil if unlimited
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	c := &Controller{cfg: cfg}

	if cfg.MaxInFlight > 0 {
		c.inflightSem = semaphore.NewWeighted(cfg.MaxInFlight)
	}

	if cfg.IOLimitBytesPerSec > 0 {
		burst := cfg.IOBurstBytes
		if burst <= 0 {
			burst = int(cfg.IOLimitBytesPerSec)
		}
		c.cfg.IOBurstBytes = burst
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), burst)
	}

	return c
}

// AcquireTransfer reserves a transfer slot, blocking while all slots are busy.
func (c *Controller) AcquireTransfer(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if c.inflightSem != nil {
		if err := c.inflightSem.Acquire(ctx, 1); err != nil {
			return err
		}
	}
	c.inflight.Add(1)
	return nil
}

// TryAcquireTransfer reserves a transfer slot without blocking.
func (c *Controller) TryAcquireTransfer() bool {
	if c == nil {
		return true
	}
	if c.inflightSem != nil && !c.inflightSem.TryAcquire(1) {
		return false
	}
	c.inflight.Add(1)
	return true
}

// ReleaseTransfer releases a transfer slot.
func (c *Controller) ReleaseTransfer() {
	if c == nil {
		return
	}
	c.inflight.Add(-1)
	if c.inflightSem != nil {
		c.inflightSem.Release(1)
	}
}

// InFlight returns the number of transfers currently holding a slot.
func (c *Controller) InFlight() int64 {
	if c == nil {
		return 0
	}
	return c.inflight.Load()
}

// MaxInFlight returns the configured transfer limit (0 if unlimited).
func (c *Controller) MaxInFlight() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.MaxInFlight
}

// IOBurst returns the largest byte count a single AcquireIO may request, or 0
// if IO is unlimited.
func (c *Controller) IOBurst() int {
	if c == nil || c.ioLimiter == nil {
		return 0
	}
	return c.cfg.IOBurstBytes
}

// AcquireIO waits until the IO limit allows the specified number of bytes.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	if bytes > c.cfg.IOBurstBytes {
		return ErrTransferTooLarge
	}
	return c.ioLimiter.WaitN(ctx, bytes)
}

// TryAcquireIO attempts to acquire IO tokens without blocking.
// Returns true if tokens were acquired, false otherwise.
func (c *Controller) TryAcquireIO(bytes int) bool {
	if c == nil || c.ioLimiter == nil {
		return true
	}
	return c.ioLimiter.AllowN(time.Now(), bytes)
}
