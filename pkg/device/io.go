package device

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/bluest/internal/radio"
	"github.com/srg/bluest/pkg/bluest"
	"github.com/srg/bluest/pkg/feature"
	"github.com/srg/bluest/pkg/numconv"
)

// timestampSize is the length of the 16-bit tick prefix of base and
// extended payloads.
const timestampSize = 2

// ----------------------------
// Link access
// ----------------------------

// linkChar returns the live link and the characteristic bound to handle.
func (d *Device) linkChar(handle uint16) (radio.Peripheral, radio.Characteristic, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.state != StateConnected || d.link == nil {
		return nil, nil, invalidOperation("device %s is not connected", d.address)
	}
	c, ok := d.chars[handle]
	if !ok {
		return nil, nil, invalidOperation("device %s has no characteristic 0x%04X", d.address, handle)
	}
	return d.link, c, nil
}

// featureChar checks that f belongs to d and is usable, then resolves its
// characteristic.
func (d *Device) featureChar(f *feature.Feature) (radio.Peripheral, radio.Characteristic, error) {
	if owner, ok := f.Owner().(*Device); !ok || owner != d {
		return nil, nil, invalidOperation("feature %q is not handled by %s", f.Name(), d.address)
	}
	if !f.Enabled() {
		return nil, nil, invalidOperation("feature %q is not enabled", f.Name())
	}
	handle, ok := f.Characteristic()
	if !ok {
		return nil, nil, invalidOperation("feature %q has no characteristic", f.Name())
	}
	return d.linkChar(handle)
}

// writeChar writes data to the characteristic at handle, with a response
// when the characteristic supports it.
func (d *Device) writeChar(ctx context.Context, handle uint16, data []byte) error {
	link, c, err := d.linkChar(handle)
	if err != nil {
		return err
	}
	return d.write(ctx, link, c, data)
}

func (d *Device) write(ctx context.Context, link radio.Peripheral, c radio.Characteristic, data []byte) error {
	p := c.Properties()
	if !p.Has(radio.PropWrite) && !p.Has(radio.PropWriteNoResponse) {
		return invalidOperation("characteristic %s is not writable", c.UUID())
	}
	if err := link.Write(ctx, c, data, p.Has(radio.PropWrite)); err != nil {
		return d.fail(link, "write", err)
	}
	return nil
}

// subscribe turns notifications on for c unless they already are.
func (d *Device) subscribe(ctx context.Context, c radio.Characteristic) error {
	d.subMu.Lock()
	defer d.subMu.Unlock()

	link, c, err := d.linkChar(c.Handle())
	if err != nil {
		return err
	}
	if !c.Properties().Has(radio.PropNotify) && !c.Properties().Has(radio.PropIndicate) {
		return invalidOperation("characteristic %s cannot notify", c.UUID())
	}
	handle := c.Handle()
	d.mu.RLock()
	done := d.subscribed[handle]
	d.mu.RUnlock()
	if done {
		return nil
	}

	if err := link.Subscribe(ctx, c, func(data []byte) { d.onNotification(handle, data) }); err != nil {
		return d.fail(link, "subscribe", err)
	}
	d.mu.Lock()
	if d.subscribed != nil {
		d.subscribed[handle] = true
	}
	d.mu.Unlock()
	d.logger.WithFields(logrus.Fields{
		"device": d.address,
		"uuid":   c.UUID(),
		"handle": handle,
	}).Debug("Notifications on")
	return nil
}

func (d *Device) unsubscribe(ctx context.Context, c radio.Characteristic) error {
	d.subMu.Lock()
	defer d.subMu.Unlock()

	link, c, err := d.linkChar(c.Handle())
	if err != nil {
		return err
	}
	handle := c.Handle()
	d.mu.RLock()
	active := d.subscribed[handle]
	d.mu.RUnlock()
	if !active {
		return nil
	}

	if err := link.Unsubscribe(ctx, c); err != nil {
		return d.fail(link, "unsubscribe", err)
	}
	d.mu.Lock()
	delete(d.subscribed, handle)
	d.mu.Unlock()
	d.logger.WithFields(logrus.Fields{
		"device": d.address,
		"uuid":   c.UUID(),
		"handle": handle,
	}).Debug("Notifications off")
	return nil
}

// ----------------------------
// Feature operations
// ----------------------------

// ReadFeature reads the characteristic of f and decodes every feature it
// carries. Listeners are not called. It returns the fresh sample of f.
func (d *Device) ReadFeature(ctx context.Context, f *feature.Feature) (*feature.Sample, error) {
	link, c, err := d.featureChar(f)
	if err != nil {
		return nil, err
	}
	if !c.Properties().Has(radio.PropRead) {
		return nil, invalidOperation("feature %q is not readable", f.Name())
	}

	data, err := link.Read(ctx, c)
	if err != nil {
		return nil, d.fail(link, "read", err)
	}
	before := f.LastSample()
	if err := d.updateFeatures(c.Handle(), data, false); err != nil {
		return nil, err
	}
	s := f.LastSample()
	if s == nil || s == before {
		return nil, bluest.Errorf(bluest.InsufficientData, "read of %q produced no sample", f.Name())
	}
	return s, nil
}

// WriteFeature writes data to the characteristic of f.
func (d *Device) WriteFeature(ctx context.Context, f *feature.Feature, data []byte) error {
	link, c, err := d.featureChar(f)
	if err != nil {
		return err
	}
	p := c.Properties()
	if !p.Has(radio.PropWrite) && !p.Has(radio.PropWriteNoResponse) {
		return invalidOperation("feature %q is not writable", f.Name())
	}
	return d.write(ctx, link, c, data)
}

// SendCommand writes data to the configuration characteristic.
func (d *Device) SendCommand(ctx context.Context, data []byte) error {
	d.mu.RLock()
	cmd := d.command
	d.mu.RUnlock()
	if cmd == nil {
		return invalidOperation("device %s has no command characteristic", d.address)
	}
	return d.writeChar(ctx, cmd.Handle(), data)
}

// EnableNotifications asks the node to notify updates of f.
func (d *Device) EnableNotifications(ctx context.Context, f *feature.Feature) error {
	_, c, err := d.featureChar(f)
	if err != nil {
		return err
	}
	if !c.Properties().Has(radio.PropNotify) && !c.Properties().Has(radio.PropIndicate) {
		return invalidOperation("feature %q cannot notify", f.Name())
	}
	if err := d.subscribe(ctx, c); err != nil {
		return err
	}
	f.SetNotifying(true)
	return nil
}

// DisableNotifications stops the updates of f. The characteristic keeps
// notifying while another feature it carries is still notifying.
func (d *Device) DisableNotifications(ctx context.Context, f *feature.Feature) error {
	_, c, err := d.featureChar(f)
	if err != nil {
		return err
	}
	if !f.Notifying() {
		return nil
	}
	f.SetNotifying(false)
	if d.othersNotifying(c.Handle(), f) {
		return nil
	}
	return d.unsubscribe(ctx, c)
}

func (d *Device) othersNotifying(handle uint16, except *feature.Feature) bool {
	d.mu.RLock()
	implemented := d.implemented
	d.mu.RUnlock()
	for _, other := range implemented {
		if other == except || !other.Notifying() {
			continue
		}
		if h, ok := other.Characteristic(); ok && h == handle {
			return true
		}
	}
	return false
}

func (d *Device) NotificationsEnabled(f *feature.Feature) bool {
	owner, ok := f.Owner().(*Device)
	return ok && owner == d && f.Notifying()
}

// WaitForNotifications blocks until a notification arrives or timeout
// elapses. It reports whether one arrived. Notifications received before
// the call do not count.
func (d *Device) WaitForNotifications(timeout time.Duration) bool {
	if !d.IsConnected() {
		return false
	}
	select {
	case <-d.notified:
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-d.notified:
		return true
	case <-timer.C:
		return false
	}
}

// ----------------------------
// Notification path
// ----------------------------

func (d *Device) onNotification(handle uint16, data []byte) {
	defer d.signal()

	d.mu.RLock()
	console := d.console
	d.mu.RUnlock()
	if console != nil && console.owns(handle) {
		console.onData(handle, data)
		return
	}

	if err := d.updateFeatures(handle, data, true); err != nil {
		entry := d.logger.WithFields(logrus.Fields{
			"device": d.address,
			"handle": handle,
			"size":   len(data),
			"error":  err,
		})
		if errors.Is(err, bluest.ErrInsufficientData) {
			entry.Warn("Notification too short for its features")
		} else {
			entry.Error("Notification decoding failed")
		}
	}
}

func (d *Device) signal() {
	select {
	case d.notified <- struct{}{}:
	default:
	}
}

// updateFeatures decodes data into the features carried by the
// characteristic at handle. Base and extended payloads start with a 16-bit
// tick counter; framed decoders take the whole payload.
func (d *Device) updateFeatures(handle uint16, data []byte, notify bool) error {
	d.mu.RLock()
	features := d.handleFeatures[handle]
	d.mu.RUnlock()
	if len(features) == 0 {
		return nil
	}

	var (
		ts      uint32
		tsReady bool
		offset  = timestampSize
	)
	for _, f := range features {
		if _, framed := f.Decoder().(feature.FramedDecoder); framed {
			if _, err := f.Update(0, data, 0, notify); err != nil {
				return err
			}
			continue
		}
		if !tsReady {
			raw, err := numconv.Uint16LE(data, 0)
			if err != nil {
				return err
			}
			ts = d.unwrapper.Unwrap(raw)
			tsReady = true
		}
		n, err := f.Update(ts, data, offset, notify)
		if err != nil {
			return err
		}
		offset += n
	}
	return nil
}
