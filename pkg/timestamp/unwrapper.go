// Package timestamp turns the 16-bit rolling counter carried by every
// BlueST notification into a monotonically increasing value.
package timestamp

import "sync"

// Unwrapper is safe for concurrent use.
type Unwrapper struct {
	mu      sync.Mutex
	lastRaw uint16
	epoch   uint32
}

// Unwrap returns epoch + raw, advancing the epoch by 0x10000 whenever raw is
// smaller than the previous value.
func (u *Unwrapper) Unwrap(raw uint16) uint32 {
	u.mu.Lock()
	defer u.mu.Unlock()

	if raw < u.lastRaw {
		u.epoch += 0x10000
	}
	u.lastRaw = raw
	return u.epoch + uint32(raw)
}

// Reset forgets the accumulated epoch. Used when a device reconnects.
func (u *Unwrapper) Reset() {
	u.mu.Lock()
	u.lastRaw = 0
	u.epoch = 0
	u.mu.Unlock()
}
