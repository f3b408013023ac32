// Package feature holds the BlueST feature model: the decoder contract, the
// live per-device Feature instance, the mask registry and the concrete
// decoders.
package feature

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/srg/bluest/internal/listeners"
	"github.com/srg/bluest/pkg/bluest"
)

// DefaultHistorySize is the number of recent samples each Feature retains.
const DefaultHistorySize = 64

// Extracted is the result of decoding one feature out of a payload. Sample is
// nil when the bytes were consumed without producing a sample yet, as when a
// fragmented message is still being reassembled.
type Extracted struct {
	Sample   *Sample
	Consumed int
}

// Decoder parses the bytes of one feature out of a characteristic payload.
// Extract fails with bluest.ErrInsufficientData when fewer bytes than the
// layout requires remain after offset.
type Decoder interface {
	Descriptor() *Descriptor
	Extract(timestamp uint32, data []byte, offset int) (Extracted, error)
}

// FramedDecoder marks decoders that consume whole notifications. Their
// payloads carry no timestamp prefix.
type FramedDecoder interface {
	Decoder
	Framed()
}

// Owner is the device side of a Feature: it performs link operations and
// runs listener callbacks off the notification path.
type Owner interface {
	ReadFeature(ctx context.Context, f *Feature) (*Sample, error)
	WriteFeature(ctx context.Context, f *Feature, data []byte) error
	Dispatch(name string, task func())
}

// Listener receives feature updates.
type Listener interface {
	OnUpdate(f *Feature, s *Sample)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(f *Feature, s *Sample)

func (fn ListenerFunc) OnUpdate(f *Feature, s *Sample) { fn(f, s) }

// Feature is a live decoder instance bound to one device.
type Feature struct {
	mask    uint32
	decoder Decoder

	mu        sync.RWMutex
	owner     Owner
	handle    uint16
	bound     bool
	enabled   bool
	notifying bool
	listeners listeners.Set[Listener]

	last    atomic.Pointer[Sample]
	history mpmc.RichOverlappedRingBuffer[Sample]
	dropped atomic.Uint64
}

// New wraps decoder into a Feature identified by mask.
func New(mask uint32, decoder Decoder) *Feature {
	return &Feature{
		mask:    mask,
		decoder: decoder,
		history: mpmc.NewOverlappedRingBuffer[Sample](DefaultHistorySize),
	}
}

func (f *Feature) Name() string            { return f.decoder.Descriptor().Name }
func (f *Feature) Mask() uint32            { return f.mask }
func (f *Feature) Decoder() Decoder        { return f.decoder }
func (f *Feature) Descriptor() *Descriptor { return f.decoder.Descriptor() }
func (f *Feature) LastSample() *Sample     { return f.last.Load() }
func (f *Feature) DroppedSamples() uint64  { return f.dropped.Load() }
func (f *Feature) String() string          { return fmt.Sprintf("%s[0x%08X]", f.Name(), f.mask) }

// DecoderAs returns the feature decoder as T.
func DecoderAs[T Decoder](f *Feature) (T, bool) {
	d, ok := f.decoder.(T)
	return d, ok
}

// ----------------------------
// Binding
// ----------------------------

// Attach binds the feature to its owning device. The owner is cleared by Detach.
func (f *Feature) Attach(owner Owner) {
	f.mu.Lock()
	f.owner = owner
	f.mu.Unlock()
}

// Detach drops the owner reference and every link related flag.
func (f *Feature) Detach() {
	f.mu.Lock()
	f.owner = nil
	f.bound = false
	f.handle = 0
	f.enabled = false
	f.notifying = false
	f.mu.Unlock()
}

// Owner returns the owning device, or nil.
func (f *Feature) Owner() Owner {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.owner
}

// BindCharacteristic records the handle of the characteristic that owns the feature.
func (f *Feature) BindCharacteristic(handle uint16) {
	f.mu.Lock()
	f.handle = handle
	f.bound = true
	f.mu.Unlock()
}

// Characteristic returns the bound characteristic handle.
func (f *Feature) Characteristic() (uint16, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.handle, f.bound
}

func (f *Feature) SetEnabled(enabled bool) {
	f.mu.Lock()
	f.enabled = enabled
	f.mu.Unlock()
}

func (f *Feature) Enabled() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.enabled
}

func (f *Feature) SetNotifying(notifying bool) {
	f.mu.Lock()
	f.notifying = notifying
	f.mu.Unlock()
}

func (f *Feature) Notifying() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.notifying
}

// ----------------------------
// Listeners
// ----------------------------

func (f *Feature) AddListener(l Listener)    { f.listeners.Add(l) }
func (f *Feature) RemoveListener(l Listener) { f.listeners.Remove(l) }
func (f *Feature) RemoveListeners()          { f.listeners.Clear() }

// ----------------------------
// Updates
// ----------------------------

// Update decodes the feature at offset and stores the resulting sample.
// It returns the number of bytes consumed. When notify is set, listeners
// are scheduled through the owner and never run on the caller goroutine.
func (f *Feature) Update(timestamp uint32, data []byte, offset int, notify bool) (int, error) {
	ext, err := f.decoder.Extract(timestamp, data, offset)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", f.Name(), err)
	}
	if ext.Sample == nil {
		return ext.Consumed, nil
	}

	s := ext.Sample
	f.last.Store(s)
	if n, err := f.history.EnqueueM(*s); err == nil && n > 0 {
		f.dropped.Add(uint64(n))
	}

	if notify {
		f.notify(s)
	}
	return ext.Consumed, nil
}

func (f *Feature) notify(s *Sample) {
	owner := f.Owner()
	for _, l := range f.listeners.Snapshot() {
		l := l
		task := func() { l.OnUpdate(f, s) }
		if owner != nil {
			owner.Dispatch(f.Name(), task)
		} else {
			go task()
		}
	}
}

// DrainSamples removes and returns the retained samples, oldest first.
func (f *Feature) DrainSamples() []Sample {
	var out []Sample
	for !f.history.IsEmpty() {
		s, err := f.history.Dequeue()
		if err != nil {
			break
		}
		out = append(out, s)
	}
	return out
}

// ----------------------------
// Link operations
// ----------------------------

// Read asks the owning device to read the feature characteristic.
func (f *Feature) Read(ctx context.Context) (*Sample, error) {
	owner := f.Owner()
	if owner == nil {
		return nil, bluest.Errorf(bluest.InvalidOperation, "feature %q is not attached to a device", f.Name())
	}
	return owner.ReadFeature(ctx, f)
}

// Write asks the owning device to write data to the feature characteristic.
func (f *Feature) Write(ctx context.Context, data []byte) error {
	owner := f.Owner()
	if owner == nil {
		return bluest.Errorf(bluest.InvalidOperation, "feature %q is not attached to a device", f.Name())
	}
	return owner.WriteFeature(ctx, f, data)
}
