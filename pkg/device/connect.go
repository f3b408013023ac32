package device

import (
	"context"
	"errors"
	"maps"
	"slices"

	"github.com/sirupsen/logrus"
	"github.com/srg/bluest/internal/groutine"
	"github.com/srg/bluest/internal/radio"
	"github.com/srg/bluest/pkg/advertising"
	"github.com/srg/bluest/pkg/bluest"
	"github.com/srg/bluest/pkg/feature"
	"github.com/srg/bluest/pkg/transport"
)

// mtuAware is implemented by decoders that frame outgoing data.
type mtuAware interface {
	SetMTU(mtu int)
}

// Connect opens the link, negotiates the MTU and binds every BlueST
// characteristic to its features. It only runs from IDLE. externalFeatures
// is merged with the features added by AddExternalFeatures.
func (d *Device) Connect(ctx context.Context, externalFeatures map[string]feature.Constructor) error {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	if s := d.State(); s != StateIdle {
		return invalidOperation("cannot connect %s while %s", d.address, s)
	}

	d.mu.Lock()
	d.implemented = nil
	d.masked = make(feature.MaskedFeatures)
	d.chars = make(map[uint16]radio.Characteristic)
	d.handleFeatures = make(map[uint16][]*feature.Feature)
	d.subscribed = make(map[uint16]bool)
	d.command = nil
	d.console = nil
	d.mtu = transport.DefaultMTU
	d.mu.Unlock()
	d.unwrapper.Reset()
	d.AddExternalFeatures(externalFeatures)

	d.setState(StateConnecting, false)
	d.logger.WithField("device", d.address).Info("Connecting to BlueST device...")

	link, err := d.adapter.Dial(ctx, d.address)
	if err != nil {
		d.setState(StateUnreachable, false)
		d.setState(StateIdle, true)
		return radio.LinkError("dial", err)
	}
	d.mu.Lock()
	d.link = link
	d.mu.Unlock()
	d.watch(link)

	if d.Type() != advertising.Proteus {
		d.negotiateMTU(ctx, link)
	}

	services, err := link.DiscoverServices(ctx)
	if err != nil {
		if isCancellation(err) {
			d.abort(link)
			return err
		}
		return d.fail(link, "discover services", err)
	}
	if len(services) == 0 {
		d.abort(link)
		return bluest.Errorf(bluest.LinkError, "device %s exposes no services", d.address)
	}

	d.bind(services)

	d.mu.RLock()
	features := len(d.implemented)
	alive := d.link == link
	d.mu.RUnlock()
	if !alive {
		return bluest.Errorf(bluest.LinkError, "link to %s lost while connecting", d.address)
	}
	if err := ctx.Err(); err != nil {
		d.abort(link)
		return err
	}
	d.logger.WithFields(logrus.Fields{
		"device":   d.address,
		"mtu":      d.MTU(),
		"features": features,
	}).Info("Connected to BlueST device")

	d.setState(StateConnected, false)
	return nil
}

func (d *Device) negotiateMTU(ctx context.Context, link radio.Peripheral) {
	got, err := link.ExchangeMTU(ctx, transport.MaxMTU)
	if err != nil {
		d.logger.WithFields(logrus.Fields{
			"device": d.address,
			"error":  err,
		}).Warn("MTU exchange failed, keeping the default")
		return
	}
	mtu := transport.AlignMTU(got)
	d.mu.Lock()
	d.mtu = mtu
	d.mu.Unlock()
	d.logger.WithFields(logrus.Fields{
		"device":  d.address,
		"granted": got,
		"mtu":     mtu,
	}).Debug("MTU negotiated")
}

// bind walks the discovered characteristics and builds the implemented
// features. Masks already bound to a feature are reused; the first extended
// or external feature claiming a mask wins.
func (d *Device) bind(services []radio.Service) {
	id := d.Identity()

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, svc := range services {
		chars := svc.Characteristics()
		if feature.IsDebugService(svc.UUID()) {
			d.console = d.buildConsole(chars)
		}

		for _, c := range chars {
			d.logger.WithFields(logrus.Fields{
				"device":     d.address,
				"uuid":       c.UUID(),
				"properties": c.Properties().String(),
				"handle":     c.Handle(),
			}).Debug("Characteristic implemented")

			d.chars[c.Handle()] = c
			kind, mask := feature.Classify(c.UUID())
			switch kind {
			case feature.KindCommand:
				d.command = c
			case feature.KindBase:
				all, created := d.registry.ScanMask(id.DeviceID(), mask, d.masked)
				d.implemented = append(d.implemented, created...)
				d.bindFeatures(c, all)
			case feature.KindExtended:
				if ctor, ok := d.registry.LookupExtended(mask); ok {
					d.bindSingle(c, mask, ctor)
				}
			case feature.KindOther:
				if ctor, ok := d.external[c.UUID()]; ok {
					mask, ok := feature.ExtractMask(c.UUID())
					if !ok {
						// short UUIDs carry no mask
						mask = uint32(c.Handle())
					}
					d.bindSingle(c, mask, ctor)
				}
			}
		}
	}

	d.assignCharacteristics()

	for _, f := range d.implemented {
		f.Attach(d)
		if a, ok := f.Decoder().(mtuAware); ok {
			a.SetMTU(d.mtu)
		}
	}
}

func (d *Device) bindSingle(c radio.Characteristic, mask uint32, ctor feature.Constructor) {
	f, ok := d.masked[mask]
	if ok {
		d.logger.WithFields(logrus.Fields{
			"device":  d.address,
			"uuid":    c.UUID(),
			"feature": f.Name(),
		}).Warn("Feature mask collision, keeping the first feature")
	} else {
		f = feature.New(mask, ctor())
		d.masked[mask] = f
		d.implemented = append(d.implemented, f)
	}
	d.bindFeatures(c, []*feature.Feature{f})
}

func (d *Device) bindFeatures(c radio.Characteristic, features []*feature.Feature) {
	if len(features) == 0 {
		return
	}
	for _, f := range features {
		f.SetEnabled(true)
	}
	d.handleFeatures[c.Handle()] = features
}

// assignCharacteristics gives every feature the characteristic exporting the
// most features among those carrying it.
func (d *Device) assignCharacteristics() {
	for _, f := range d.implemented {
		best := -1
		for _, handle := range slices.Sorted(maps.Keys(d.handleFeatures)) {
			features := d.handleFeatures[handle]
			if len(features) <= best {
				continue
			}
			for _, candidate := range features {
				if candidate == f {
					f.BindCharacteristic(handle)
					best = len(features)
					break
				}
			}
		}
	}
}

// watch turns a link drop reported by the radio into an unexpected disconnect.
func (d *Device) watch(link radio.Peripheral) {
	n, ok := link.(radio.DisconnectNotifier)
	if !ok {
		d.logger.WithField("device", d.address).Debug("Link does not report disconnections")
		return
	}
	gone := n.Disconnected()
	groutine.Go(context.Background(), "device-link-monitor-"+d.address, func(context.Context) {
		<-gone
		d.linkLost(link)
	})
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// abort closes a link that never reached CONNECTED and returns to IDLE.
// It is a no-op when the link was already lost.
func (d *Device) abort(link radio.Peripheral) {
	d.mu.Lock()
	if d.link != link {
		d.mu.Unlock()
		return
	}
	d.link = nil
	d.mu.Unlock()

	_ = link.Disconnect()
	d.release()
	d.setState(StateIdle, false)
	d.logger.WithField("device", d.address).Info("Connection attempt aborted")
}

// fail handles a radio error on link. Anything but a cancelled context is
// treated as a lost link.
func (d *Device) fail(link radio.Peripheral, op string, err error) error {
	if isCancellation(err) {
		return err
	}
	d.logger.WithFields(logrus.Fields{
		"device": d.address,
		"op":     op,
		"error":  err,
	}).Error("BLE link failure")
	d.linkLost(link)
	return radio.LinkError(op, err)
}

// linkLost drives UNREACHABLE then IDLE(unexpected) once per link.
func (d *Device) linkLost(link radio.Peripheral) {
	d.mu.Lock()
	if d.link == nil || d.link != link {
		d.mu.Unlock()
		return
	}
	d.link = nil
	d.mu.Unlock()

	d.logger.WithField("device", d.address).Warn("BlueST device unreachable")
	d.setState(StateUnreachable, false)
	_ = link.Disconnect()
	d.release()
	d.setState(StateIdle, true)
}

// Disconnect closes the link. It reports InvalidOperation when not connected.
func (d *Device) Disconnect(ctx context.Context) error {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	d.mu.Lock()
	link := d.link
	if d.state != StateConnected || link == nil {
		s := d.state
		d.mu.Unlock()
		return invalidOperation("cannot disconnect %s while %s", d.address, s)
	}
	d.link = nil
	d.mu.Unlock()

	d.setState(StateDisconnecting, false)
	err := link.Disconnect()
	d.release()
	d.setState(StateIdle, false)
	d.logger.WithField("device", d.address).Info("Disconnected from BlueST device")

	if err != nil && !radio.IsLinkLost(radio.NormalizeError(err)) {
		return radio.LinkError("disconnect", err)
	}
	return ctx.Err()
}

// Retire moves an IDLE device to the terminal DEAD state. It reports false
// when the device is in any other state.
func (d *Device) Retire() bool {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	d.mu.Lock()
	if d.state != StateIdle && d.state != StateInit {
		d.mu.Unlock()
		return false
	}
	d.mu.Unlock()

	d.setState(StateDead, false)
	return true
}

// release drops the link related bindings. Implemented features stay
// listed but are no longer usable.
func (d *Device) release() {
	d.mu.Lock()
	implemented := d.implemented
	console := d.console
	d.chars = nil
	d.handleFeatures = nil
	d.subscribed = nil
	d.command = nil
	d.console = nil
	d.mu.Unlock()

	for _, f := range implemented {
		f.Detach()
	}
	if console != nil {
		console.release()
	}
}
