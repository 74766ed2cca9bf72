package disk

import (
	"context"

	"github.com/hupe1980/kcore/internal/resource"
)

// Throttle wraps a Device with a cap on in-flight transfers and a byte-rate
// limit. Waiting for either honours ctx.
type Throttle struct {
	dev Device
	rc  *resource.Controller
}

// NewThrottle limits dev. maxInFlight and bytesPerSec of 0 mean unlimited.
// The token bucket holds one second of bytesPerSec; blocks larger than that
// wait for their tokens in bucket-sized pieces.
func NewThrottle(dev Device, maxInFlight, bytesPerSec int64) *Throttle {
	return &Throttle{
		dev: dev,
		rc: resource.NewController(resource.Config{
			MaxInFlight:        maxInFlight,
			IOLimitBytesPerSec: bytesPerSec,
		}),
	}
}

// Transfer implements Device.
func (t *Throttle) Transfer(ctx context.Context, b Block, write bool) error {
	if err := t.rc.AcquireTransfer(ctx); err != nil {
		return transferError(b, write, err)
	}
	defer t.rc.ReleaseTransfer()

	if err := t.acquireIO(ctx, len(b.Data())); err != nil {
		return transferError(b, write, err)
	}

	return t.dev.Transfer(ctx, b, write)
}

func (t *Throttle) acquireIO(ctx context.Context, n int) error {
	burst := t.rc.IOBurst()
	for n > 0 {
		chunk := n
		if burst > 0 && chunk > burst {
			chunk = burst
		}
		if err := t.rc.AcquireIO(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

// InFlight returns the number of transfers currently in progress.
func (t *Throttle) InFlight() int64 {
	return t.rc.InFlight()
}
