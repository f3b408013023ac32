// Package device drives one BlueST node: its connection state machine, the
// binding of characteristics to features and the routing of notifications.
package device

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/bluest/internal/groutine"
	"github.com/srg/bluest/internal/listeners"
	"github.com/srg/bluest/internal/radio"
	"github.com/srg/bluest/pkg/advertising"
	"github.com/srg/bluest/pkg/bluest"
	"github.com/srg/bluest/pkg/feature"
	"github.com/srg/bluest/pkg/timestamp"
	"github.com/srg/bluest/pkg/transport"
)

// Dispatcher runs callbacks off the notification path.
type Dispatcher interface {
	Submit(name string, fn func())
}

// CatalogResolver lists the characteristic UUIDs a V2 node declares for a
// device and firmware id.
type CatalogResolver interface {
	DeclaredCharacteristics(ctx context.Context, deviceID, firmwareID uint8) ([]string, error)
}

// Options configures a Device. Zero values are replaced with defaults.
type Options struct {
	Logger     *logrus.Logger
	Registry   *feature.Registry
	Dispatcher Dispatcher
}

// Device is a BlueST node seen over the air. It is safe for concurrent use.
type Device struct {
	adapter    radio.Adapter
	registry   *feature.Registry
	dispatcher Dispatcher
	logger     *logrus.Logger
	address    string

	// opMu serializes Connect and Disconnect.
	opMu sync.Mutex
	// subMu serializes CCCD changes.
	subMu sync.Mutex

	mu          sync.RWMutex
	state       State
	identity    *advertising.Identity
	rssi        int
	lastRSSI    time.Time
	connectable bool
	mtu         int

	declared       []*feature.Feature
	declaredMasks  feature.MaskedFeatures
	implemented    []*feature.Feature
	masked         feature.MaskedFeatures
	external       map[string]feature.Constructor
	link           radio.Peripheral
	chars          map[uint16]radio.Characteristic
	handleFeatures map[uint16][]*feature.Feature
	subscribed     map[uint16]bool
	command        radio.Characteristic
	console        *DebugConsole

	unwrapper timestamp.Unwrapper
	listeners listeners.Set[Listener]
	notified  chan struct{}
}

// New builds an IDLE device from an advertisement and its decoded identity.
// Features declared by a V1 feature mask are instantiated right away.
func New(adapter radio.Adapter, ad radio.Advertisement, id *advertising.Identity, opts Options) *Device {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Registry == nil {
		opts.Registry = feature.DefaultRegistry()
	}

	d := &Device{
		adapter:       adapter,
		registry:      opts.Registry,
		dispatcher:    opts.Dispatcher,
		logger:        opts.Logger,
		address:       radio.NormalizeAddress(ad.Address()),
		state:         StateIdle,
		identity:      id,
		rssi:          ad.RSSI(),
		lastRSSI:      time.Now(),
		connectable:   ad.Connectable(),
		mtu:           transport.DefaultMTU,
		declaredMasks: make(feature.MaskedFeatures),
		external:      make(map[string]feature.Constructor),
		notified:      make(chan struct{}, 1),
	}

	if mask, ok := id.FeatureMask(); ok {
		_, created := d.registry.ScanMask(id.DeviceID(), mask, d.declaredMasks)
		for _, f := range created {
			f.Attach(d)
			d.logger.WithFields(logrus.Fields{
				"device":  d.address,
				"feature": f.String(),
			}).Debug("Feature declared")
		}
		d.declared = append(d.declared, created...)
	}
	return d
}

// DeclareFromCatalog builds the features a V2 node declares through the
// catalog entry of its device and firmware id. Other protocols are ignored.
func (d *Device) DeclareFromCatalog(ctx context.Context, resolver CatalogResolver) error {
	id := d.Identity()
	fw, ok := id.FirmwareID()
	if !ok || id.Protocol() != advertising.ProtocolV2 {
		return nil
	}
	uuids, err := resolver.DeclaredCharacteristics(ctx, id.DeviceID(), fw)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, uuid := range uuids {
		kind, mask := feature.Classify(uuid)
		switch kind {
		case feature.KindBase:
			_, created := d.registry.ScanMask(id.DeviceID(), mask, d.declaredMasks)
			for _, f := range created {
				f.Attach(d)
			}
			d.declared = append(d.declared, created...)
		case feature.KindExtended:
			if existing, dup := d.declaredMasks[mask]; dup {
				d.logger.WithFields(logrus.Fields{
					"device":  d.address,
					"mask":    mask,
					"feature": existing.Name(),
				}).Warn("Extended feature mask already declared, keeping the first one")
				continue
			}
			ctor, ok := d.registry.LookupExtended(mask)
			if !ok {
				continue
			}
			f := feature.New(mask, ctor())
			f.Attach(d)
			d.declaredMasks[mask] = f
			d.declared = append(d.declared, f)
		}
	}
	return nil
}

// ----------------------------
// Identity
// ----------------------------

func (d *Device) Address() string { return d.address }

func (d *Device) Identity() *advertising.Identity {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.identity
}

func (d *Device) Name() string                 { return d.Identity().Name() }
func (d *Device) TxPower() int                 { return d.Identity().TxPower() }
func (d *Device) IsSleeping() bool             { return d.Identity().Sleeping() }
func (d *Device) Type() advertising.DeviceType { return d.Identity().DeviceType() }

// FriendlyName is the advertised name followed by the last six hex digits of
// the address.
func (d *Device) FriendlyName() string {
	clean := strings.ReplaceAll(d.address, ":", "")
	if len(clean) > 6 {
		clean = clean[len(clean)-6:]
	}
	return d.Name() + " @" + clean
}

// UpdateAdvertisingData replaces the identity with a newer advertisement.
func (d *Device) UpdateAdvertisingData(id *advertising.Identity) {
	d.mu.Lock()
	d.identity = id
	d.mu.Unlock()
}

func (d *Device) UpdateRSSI(rssi int) {
	d.mu.Lock()
	d.rssi = rssi
	d.lastRSSI = time.Now()
	d.mu.Unlock()
}

func (d *Device) RSSI() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rssi
}

func (d *Device) LastRSSIUpdate() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastRSSI
}

func (d *Device) IsConnectable() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connectable
}

// MTU is the usable payload size negotiated on the current link.
func (d *Device) MTU() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.mtu
}

func (d *Device) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

func (d *Device) IsConnected() bool { return d.State() == StateConnected }

func (d *Device) String() string {
	return d.FriendlyName() + " [" + d.State().String() + "]"
}

// ----------------------------
// Features
// ----------------------------

// Features returns the implemented features while connected, the declared
// ones otherwise.
func (d *Device) Features() []*feature.Feature {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.state == StateConnected {
		return append([]*feature.Feature(nil), d.implemented...)
	}
	return append([]*feature.Feature(nil), d.declared...)
}

// FeatureByName returns the first feature with the given name.
func (d *Device) FeatureByName(name string) (*feature.Feature, bool) {
	for _, f := range d.Features() {
		if strings.EqualFold(f.Name(), name) {
			return f, true
		}
	}
	return nil, false
}

// FeaturesOf returns the features of d whose decoder is a T.
func FeaturesOf[T feature.Decoder](d *Device) []*feature.Feature {
	var out []*feature.Feature
	for _, f := range d.Features() {
		if _, ok := feature.DecoderAs[T](f); ok {
			out = append(out, f)
		}
	}
	return out
}

// AddExternalFeatures maps characteristic UUIDs to decoders for features the
// registry does not know. It only affects the next Connect.
func (d *Device) AddExternalFeatures(features map[string]feature.Constructor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for uuid, ctor := range features {
		d.external[radio.NormalizeUUID(uuid)] = ctor
	}
}

// DebugConsole returns the console of a connected node exposing the debug
// service, or nil.
func (d *Device) DebugConsole() *DebugConsole {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.console
}

// ----------------------------
// Listeners
// ----------------------------

func (d *Device) AddListener(l Listener)    { d.listeners.Add(l) }
func (d *Device) RemoveListener(l Listener) { d.listeners.Remove(l) }
func (d *Device) RemoveListeners()          { d.listeners.Clear() }

// Dispatch runs task on the dispatcher, or on a new goroutine without one.
func (d *Device) Dispatch(name string, task func()) {
	if d.dispatcher != nil {
		d.dispatcher.Submit(name, task)
		return
	}
	groutine.Go(context.Background(), name, func(context.Context) { task() })
}

// setState records the new state and tells listeners about CONNECTED and IDLE.
func (d *Device) setState(s State, unexpected bool) {
	d.mu.Lock()
	old := d.state
	d.state = s
	d.mu.Unlock()

	d.logger.WithFields(logrus.Fields{
		"device": d.address,
		"from":   old.String(),
		"state":  s.String(),
	}).Debug("Device state changed")

	for _, l := range d.listeners.Snapshot() {
		l := l
		switch s {
		case StateConnected:
			d.Dispatch("device-connect", func() { l.OnConnect(d) })
		case StateIdle:
			d.Dispatch("device-disconnect", func() { l.OnDisconnect(d, unexpected) })
		}
	}
}

func invalidOperation(format string, args ...any) error {
	return bluest.Errorf(bluest.InvalidOperation, format, args...)
}
