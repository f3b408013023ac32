package feature

import (
	"maps"
	"math/bits"
	"sync"

	"github.com/srg/bluest/pkg/bluest"
)

// Constructor builds a fresh decoder. Every Feature gets its own decoder so
// stateful decoders never share state across devices.
type Constructor func() Decoder

// ValidateMask enforces the one-bit-per-feature rule of base masks.
func ValidateMask(mask uint32) error {
	if bits.OnesCount32(mask) != 1 {
		return bluest.Errorf(bluest.InvalidFeatureBitMask, "mask 0x%08X must have exactly one bit set", mask)
	}
	return nil
}

// Registry maps feature masks to constructors. Base masks are single bits
// scanned out of a 32-bit capability mask; extended ids name exactly one
// feature each. Device ids may override the base table.
//
// The registry is read-mostly and safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	base      map[uint32]Constructor
	extended  map[uint32]Constructor
	perDevice map[uint8]map[uint32]Constructor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		base:      make(map[uint32]Constructor),
		extended:  make(map[uint32]Constructor),
		perDevice: make(map[uint8]map[uint32]Constructor),
	}
}

// RegisterBase binds a single-bit mask to a constructor, replacing any
// previous binding.
func (r *Registry) RegisterBase(mask uint32, ctor Constructor) error {
	if err := ValidateMask(mask); err != nil {
		return err
	}
	r.mu.Lock()
	r.base[mask] = ctor
	r.mu.Unlock()
	return nil
}

// RegisterExtended binds an extended feature id to a constructor.
func (r *Registry) RegisterExtended(id uint32, ctor Constructor) {
	r.mu.Lock()
	r.extended[id] = ctor
	r.mu.Unlock()
}

// AddDeviceFeatures installs a device specific table. Every mask is validated
// before any is installed.
func (r *Registry) AddDeviceFeatures(deviceID uint8, table map[uint32]Constructor) error {
	for mask := range table {
		if err := ValidateMask(mask); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	dst, ok := r.perDevice[deviceID]
	if !ok {
		dst = make(map[uint32]Constructor, len(table))
		r.perDevice[deviceID] = dst
	}
	maps.Copy(dst, table)
	return nil
}

// DeviceFeatures returns a copy of the device specific table, or of the base
// table when the device has none.
func (r *Registry) DeviceFeatures(deviceID uint8) map[uint32]Constructor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.perDevice[deviceID]; ok {
		return maps.Clone(t)
	}
	return maps.Clone(r.base)
}

// Lookup resolves a base mask. A device with its own table only sees that
// table.
func (r *Registry) Lookup(deviceID uint8, mask uint32) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.perDevice[deviceID]
	if !ok {
		t = r.base
	}
	c, ok := t[mask]
	return c, ok
}

// LookupExtended resolves an extended feature id.
func (r *Registry) LookupExtended(id uint32) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.extended[id]
	return c, ok
}

// MaskedFeatures is the per-device mask to Feature table kept while building.
// Once a mask is bound to an instance, it is never rebuilt.
type MaskedFeatures map[uint32]*Feature

// ScanMask walks mask from bit 31 down to bit 0. Bits already present in
// known are reused; other set bits with a registered constructor are
// instantiated and recorded in known. Unregistered bits are skipped.
// The returned slice holds the features of every set bit that resolved,
// most significant first, and the subset that was newly created.
func (r *Registry) ScanMask(deviceID uint8, mask uint32, known MaskedFeatures) (all, created []*Feature) {
	for bit := 31; bit >= 0; bit-- {
		m := uint32(1) << uint(bit)
		if mask&m == 0 {
			continue
		}
		if f, ok := known[m]; ok {
			all = append(all, f)
			continue
		}
		ctor, ok := r.Lookup(deviceID, m)
		if !ok {
			continue
		}
		f := New(m, ctor())
		known[m] = f
		all = append(all, f)
		created = append(created, f)
	}
	return all, created
}

// DefaultRegistry returns a new registry holding the standard BlueST features.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for mask, ctor := range standardBase {
		// standard masks are single bits by construction
		_ = r.RegisterBase(mask, ctor)
	}
	for id, ctor := range standardExtended {
		r.RegisterExtended(id, ctor)
	}
	return r
}
