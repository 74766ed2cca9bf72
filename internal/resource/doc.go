// Package resource limits how hard callers may drive a shared device.
//
// A Controller governs two resources:
//
//   - Transfers: a weighted semaphore caps concurrent in-flight transfers
//   - IO: a token bucket caps throughput in bytes per second
//
// # Usage
//
//	rc := resource.NewController(resource.Config{
//	    MaxInFlight:        8,
//	    IOLimitBytesPerSec: 64 << 20,
//	})
//
//	if err := rc.AcquireTransfer(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseTransfer()
//
//	if err := rc.AcquireIO(ctx, len(block)); err != nil {
//	    return err
//	}
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully; they become no-ops. This
// allows optional limiting without nil checks everywhere.
package resource
