// Package discovery scans for BlueST nodes and keeps the registry of the
// devices seen so far.
package discovery

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/bluest/internal/dispatch"
	"github.com/srg/bluest/internal/groutine"
	"github.com/srg/bluest/internal/listeners"
	"github.com/srg/bluest/internal/radio"
	"github.com/srg/bluest/internal/ringchan"
	"github.com/srg/bluest/pkg/advertising"
	"github.com/srg/bluest/pkg/bluest"
	"github.com/srg/bluest/pkg/device"
	"github.com/srg/bluest/pkg/feature"
)

const (
	DefaultScanTimeout      = 10 * time.Second
	DefaultStopPollInterval = time.Second
	DefaultCatalogTimeout   = 10 * time.Second
	DefaultEventBuffer      = 100
)

// LEDecoder turns a BlueST-LE payload into formatted telemetry JSON.
type LEDecoder interface {
	Decode(ctx context.Context, deviceID, firmwareID, payloadID uint8, payload []byte) (string, error)
}

// Options configures a Manager. Zero values are replaced with defaults.
type Options struct {
	Logger   *logrus.Logger
	Registry *feature.Registry
	// Dispatcher runs listener callbacks. Without one the manager owns a
	// dispatch pool, stopped by Close.
	Dispatcher device.Dispatcher
	// Catalog declares the features of V2 nodes. Optional.
	Catalog device.CatalogResolver
	// LE decodes BlueST-LE payloads. Optional.
	LE LEDecoder

	StopPollInterval time.Duration
	CatalogTimeout   time.Duration
	// ReportInvalidDevices reports undecodable advertisements through
	// OnDeviceDiscovered with a nil device.
	ReportInvalidDevices bool
	AllowList            []string
	BlockList            []string
}

// Manager discovers BlueST nodes. Devices are keyed by MAC address and kept
// until reset; a repeated advertisement updates the known device.
type Manager struct {
	adapter    radio.Adapter
	logger     *logrus.Logger
	registry   *feature.Registry
	dispatcher device.Dispatcher
	ownPool    *dispatch.Pool
	opts       Options

	devices   atomic.Pointer[hashmap.Map[string, *device.Device]]
	events    *ringchan.RingChannel[Event]
	listeners listeners.Set[Listener]

	mu      sync.Mutex
	session *session
}

// session is one running scan.
type session struct {
	stop atomic.Bool
	done chan struct{}
	err  error
}

func New(adapter radio.Adapter, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Registry == nil {
		opts.Registry = feature.DefaultRegistry()
	}
	if opts.StopPollInterval <= 0 {
		opts.StopPollInterval = DefaultStopPollInterval
	}
	if opts.CatalogTimeout <= 0 {
		opts.CatalogTimeout = DefaultCatalogTimeout
	}

	m := &Manager{
		adapter:    adapter,
		logger:     opts.Logger,
		registry:   opts.Registry,
		dispatcher: opts.Dispatcher,
		opts:       opts,
		events:     ringchan.New[Event](DefaultEventBuffer),
	}
	m.devices.Store(hashmap.New[string, *device.Device]())
	if m.dispatcher == nil {
		m.ownPool = dispatch.New(dispatch.DefaultWorkers, dispatch.DefaultQueueDepth, opts.Logger)
		m.ownPool.Start(context.Background())
		m.dispatcher = m.ownPool
	}
	return m
}

// Close stops a running discovery and the owned dispatch pool.
func (m *Manager) Close() error {
	var err error
	if m.IsDiscovering() {
		err = m.StopDiscovery()
	}
	if m.ownPool != nil {
		m.ownPool.Stop()
	}
	return err
}

// Registry returns the feature registry handed to discovered devices.
func (m *Manager) Registry() *feature.Registry { return m.registry }

// AddDeviceFeatures registers a mask table for a device id. Devices
// discovered afterwards use it instead of the base table.
func (m *Manager) AddDeviceFeatures(deviceID uint8, table map[uint32]feature.Constructor) error {
	return m.registry.AddDeviceFeatures(deviceID, table)
}

func (m *Manager) DeviceFeatures(deviceID uint8) map[uint32]feature.Constructor {
	return m.registry.DeviceFeatures(deviceID)
}

// ----------------------------
// Discovery lifecycle
// ----------------------------

// Discover scans for timeout, or until ctx is done, and returns once the
// scan has stopped.
func (m *Manager) Discover(ctx context.Context, timeout time.Duration, passive bool) error {
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	s, err := m.start(passive)
	if err != nil {
		return err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-s.done:
		return s.err
	}
	if err := m.StopDiscovery(); err != nil && !errors.Is(err, bluest.ErrInvalidOperation) {
		return err
	}
	return nil
}

// DiscoverAsync starts a discovery stopped after timeout.
func (m *Manager) DiscoverAsync(timeout time.Duration, passive bool) error {
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	s, err := m.start(passive)
	if err != nil {
		return err
	}
	time.AfterFunc(timeout, func() {
		m.mu.Lock()
		current := m.session == s
		m.mu.Unlock()
		if current {
			_ = m.StopDiscovery()
		}
	})
	return nil
}

// StartDiscovery starts a discovery that runs until StopDiscovery. The
// device registry is cleared first.
func (m *Manager) StartDiscovery(passive bool) error {
	_, err := m.start(passive)
	return err
}

func (m *Manager) start(passive bool) (*session, error) {
	m.mu.Lock()
	if m.session != nil {
		m.mu.Unlock()
		return nil, bluest.Errorf(bluest.InvalidOperation, "discovery already running")
	}
	s := &session{done: make(chan struct{})}
	m.session = s
	m.mu.Unlock()

	m.devices.Store(hashmap.New[string, *device.Device]())
	m.logger.WithField("passive", passive).Info("Starting BlueST discovery...")
	m.notifyDiscoveryChange(true)

	groutine.Go(context.Background(), "discovery-scan", func(ctx context.Context) {
		m.run(ctx, s, passive)
	})
	return s, nil
}

// run drives one scan and polls the stop flag of s.
func (m *Manager) run(parent context.Context, s *session, passive bool) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	scanErr := make(chan error, 1)
	groutine.Go(ctx, "discovery-radio", func(ctx context.Context) {
		scanErr <- m.adapter.Scan(ctx, radio.ScanOptions{Passive: passive}, m.handleAdvertisement)
	})

	ticker := time.NewTicker(m.opts.StopPollInterval)
	defer ticker.Stop()

	var err error
loop:
	for {
		select {
		case <-ticker.C:
			if s.stop.Load() {
				cancel()
				err = <-scanErr
				break loop
			}
		case err = <-scanErr:
			break loop
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		s.err = radio.LinkError("scan", err)
		m.logger.WithError(err).Error("BLE scan failed")
	}

	// a scan ending on its own still reports the end of the discovery
	m.mu.Lock()
	ended := m.session == s
	if ended {
		m.session = nil
	}
	m.mu.Unlock()
	close(s.done)
	if ended {
		m.logger.WithField("device_count", m.devices.Load().Len()).Info("BlueST discovery ended")
		m.notifyDiscoveryChange(false)
	}
}

// StopDiscovery raises the stop flag and waits until the scan acknowledges
// it. It fails with InvalidOperation when no discovery is running.
func (m *Manager) StopDiscovery() error {
	m.mu.Lock()
	s := m.session
	m.session = nil
	m.mu.Unlock()
	if s == nil {
		return bluest.Errorf(bluest.InvalidOperation, "no discovery running")
	}

	s.stop.Store(true)
	<-s.done
	m.logger.WithField("device_count", m.devices.Load().Len()).Info("BlueST discovery stopped")
	m.notifyDiscoveryChange(false)
	return s.err
}

func (m *Manager) IsDiscovering() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}

// ResetDiscovery stops a running discovery and forgets every device that is
// not connected.
func (m *Manager) ResetDiscovery() error {
	var err error
	if m.IsDiscovering() {
		err = m.StopDiscovery()
	}
	m.RemoveUnconnected()
	return err
}

// RemoveUnconnected retires and drops the IDLE devices. Devices that are
// connected or changing state stay registered.
func (m *Manager) RemoveUnconnected() {
	var stale []string
	m.devices.Load().Range(func(addr string, d *device.Device) bool {
		if d.Retire() {
			stale = append(stale, addr)
		}
		return true
	})
	for _, addr := range stale {
		m.devices.Load().Del(addr)
	}
}

// ----------------------------
// Registry
// ----------------------------

// Devices returns the discovered devices sorted by address.
func (m *Manager) Devices() []*device.Device {
	out := make([]*device.Device, 0, m.devices.Load().Len())
	m.devices.Load().Range(func(_ string, d *device.Device) bool {
		out = append(out, d)
		return true
	})
	slices.SortFunc(out, func(a, b *device.Device) int {
		switch {
		case a.Address() < b.Address():
			return -1
		case a.Address() > b.Address():
			return 1
		}
		return 0
	})
	return out
}

func (m *Manager) DeviceByAddress(address string) (*device.Device, bool) {
	return m.devices.Load().Get(radio.NormalizeAddress(address))
}

// DeviceByName returns the first device advertising name. Names are not
// unique and the match is case sensitive.
func (m *Manager) DeviceByName(name string) (*device.Device, bool) {
	for _, d := range m.Devices() {
		if d.Name() == name {
			return d, true
		}
	}
	return nil, false
}

// Events returns the event stream. When nobody reads it the oldest events
// are dropped.
func (m *Manager) Events() <-chan Event { return m.events.C() }

// ----------------------------
// Advertisements
// ----------------------------

func (m *Manager) handleAdvertisement(ad radio.Advertisement) {
	addr := radio.NormalizeAddress(ad.Address())
	if !m.include(addr) {
		return
	}

	id, err := advertising.ParseManufacturerData(ad.LocalName(), ad.TxPowerLevel(), ad.ManufacturerData())
	devices := m.devices.Load()
	dev, existing := devices.Get(addr)
	if err != nil {
		if !existing && m.opts.ReportInvalidDevices {
			m.logger.WithFields(logrus.Fields{
				"address": addr,
				"error":   err,
			}).Debug("Not a BlueST advertisement")
			m.publish(Event{Type: EventInvalid, Address: addr, Err: err})
		}
		return
	}

	if !existing {
		dev, existing = devices.GetOrInsert(addr, device.New(m.adapter, ad, id, device.Options{
			Logger:     m.logger,
			Registry:   m.registry,
			Dispatcher: m.dispatcher,
		}))
	}
	if !existing {
		m.declare(dev)
		m.logger.WithFields(logrus.Fields{
			"device":  dev.Name(),
			"address": addr,
			"rssi":    ad.RSSI(),
			"type":    id.DeviceType().String(),
		}).Info("Discovered BlueST device")
		m.publish(Event{Type: EventNew, Address: addr, Device: dev, Identity: id})
		return
	}

	previous := dev.Identity()
	dev.UpdateRSSI(ad.RSSI())
	dev.UpdateAdvertisingData(id)
	if previous.Equal(id) {
		m.publish(Event{Type: EventUnchanged, Address: addr, Device: dev, Identity: id})
		return
	}
	m.publish(Event{Type: EventUpdated, Address: addr, Device: dev, Identity: id})
}

// declare resolves the catalog features of a new V2 device.
func (m *Manager) declare(d *device.Device) {
	if m.opts.Catalog == nil || d.Identity().Protocol() != advertising.ProtocolV2 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.CatalogTimeout)
	defer cancel()
	if err := d.DeclareFromCatalog(ctx, m.opts.Catalog); err != nil {
		m.logger.WithFields(logrus.Fields{
			"address": d.Address(),
			"error":   err,
		}).Warn("Catalog lookup failed, no declared features")
	}
}

// include applies the allow and block lists.
func (m *Manager) include(addr string) bool {
	for _, blocked := range m.opts.BlockList {
		if radio.NormalizeAddress(blocked) == addr {
			return false
		}
	}
	if len(m.opts.AllowList) == 0 {
		return true
	}
	for _, allowed := range m.opts.AllowList {
		if radio.NormalizeAddress(allowed) == addr {
			return true
		}
	}
	return false
}

// DecodeBlueSTLE formats the telemetry of a BlueST-LE identity.
func (m *Manager) DecodeBlueSTLE(ctx context.Context, id *advertising.Identity) (string, error) {
	if m.opts.LE == nil {
		return "", bluest.Errorf(bluest.InvalidOperation, "no BlueST-LE catalog configured")
	}
	payloadID, ok := id.PayloadID()
	if !ok {
		return "", bluest.Errorf(bluest.InvalidOperation, "%s advertisement carries no BlueST-LE payload", id.Protocol())
	}
	fw, _ := id.FirmwareID()
	msg, err := m.opts.LE.Decode(ctx, id.DeviceID(), fw, payloadID, id.OptionBytes())
	if err != nil {
		m.logger.WithFields(logrus.Fields{
			"device_id":   id.DeviceID(),
			"firmware_id": fw,
			"payload_id":  payloadID,
			"error":       err,
		}).Info("Cannot decode BlueST-LE payload, ignoring advertisement")
		return "", err
	}
	return msg, nil
}

// ----------------------------
// Listeners
// ----------------------------

func (m *Manager) AddListener(l Listener)    { m.listeners.Add(l) }
func (m *Manager) RemoveListener(l Listener) { m.listeners.Remove(l) }
func (m *Manager) RemoveListeners()          { m.listeners.Clear() }

func (m *Manager) notifyDiscoveryChange(enabled bool) {
	for _, l := range m.listeners.Snapshot() {
		l := l
		m.dispatcher.Submit("discovery-change", func() { l.OnDiscoveryChange(m, enabled) })
	}
}

// publish queues ev on the event stream and fans it out to listeners.
func (m *Manager) publish(ev Event) {
	if m.events.ForceSend(ev) {
		m.logger.WithField("address", ev.Address).Debug("Discovery event buffer full, oldest event dropped")
	}
	for _, l := range m.listeners.Snapshot() {
		l := l
		switch ev.Type {
		case EventNew:
			m.dispatcher.Submit("device-discovered", func() { l.OnDeviceDiscovered(m, ev.Device, nil) })
		case EventInvalid:
			m.dispatcher.Submit("device-discovered", func() { l.OnDeviceDiscovered(m, nil, ev.Err) })
		case EventUpdated:
			m.dispatcher.Submit("advertising-updated", func() { l.OnAdvertisingDataUpdated(m, ev.Device, ev.Identity) })
		case EventUnchanged:
			m.dispatcher.Submit("advertising-unchanged", func() { l.OnAdvertisingDataUnchanged(m, ev.Device, ev.Identity) })
		}
	}
}
