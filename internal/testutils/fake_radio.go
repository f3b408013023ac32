//go:build test

package testutils

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/srg/bluest/internal/radio"
)

// ----------------------------
// Characteristics and services
// ----------------------------

// FakeCharacteristic is an in-memory GATT characteristic.
type FakeCharacteristic struct {
	uuid   string
	handle uint16
	props  radio.Property

	mu    sync.Mutex
	value []byte
}

func NewFakeCharacteristic(uuid string, handle uint16, props radio.Property, value []byte) *FakeCharacteristic {
	return &FakeCharacteristic{uuid: radio.NormalizeUUID(uuid), handle: handle, props: props, value: value}
}

func (c *FakeCharacteristic) UUID() string               { return c.uuid }
func (c *FakeCharacteristic) Handle() uint16             { return c.handle }
func (c *FakeCharacteristic) Properties() radio.Property { return c.props }

func (c *FakeCharacteristic) Value() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.value)
}

func (c *FakeCharacteristic) SetValue(v []byte) {
	c.mu.Lock()
	c.value = slices.Clone(v)
	c.mu.Unlock()
}

// FakeService groups fake characteristics.
type FakeService struct {
	uuid  string
	chars []*FakeCharacteristic
}

func (s *FakeService) UUID() string { return s.uuid }

func (s *FakeService) Characteristics() []radio.Characteristic {
	out := make([]radio.Characteristic, len(s.chars))
	for i, c := range s.chars {
		out[i] = c
	}
	return out
}

// ----------------------------
// Peripheral
// ----------------------------

// WriteRecord is one write observed by a FakePeripheral.
type WriteRecord struct {
	UUID         string
	Data         []byte
	WithResponse bool
}

// FakePeripheral is an in-memory radio.Peripheral. Notifications are pushed
// with Notify and delivered on the calling goroutine, as a BLE stack would
// deliver them on its own goroutine.
type FakePeripheral struct {
	address  string
	services []*FakeService

	mu           sync.Mutex
	connected    bool
	negotiated   int
	handlers     map[uint16]radio.NotificationHandler
	subscribes   map[string]int
	unsubscribes map[string]int
	writes       []WriteRecord
	gone         chan struct{}
	goneClosed   bool

	// MTU is the value granted by ExchangeMTU; zero echoes the request.
	MTU int
	// MTUErr makes ExchangeMTU fail.
	MTUErr error
	// ReadErr, WriteErr and SubscribeErr make the corresponding calls fail.
	ReadErr      error
	WriteErr     error
	SubscribeErr error
	// OnWrite, when set, is invoked after every successful write.
	OnWrite func(p *FakePeripheral, c *FakeCharacteristic, data []byte)
}

func NewFakePeripheral(address string, services ...*FakeService) *FakePeripheral {
	return &FakePeripheral{
		address:      radio.NormalizeAddress(address),
		services:     services,
		handlers:     make(map[uint16]radio.NotificationHandler),
		subscribes:   make(map[string]int),
		unsubscribes: make(map[string]int),
		gone:         make(chan struct{}),
	}
}

func (p *FakePeripheral) Address() string { return p.address }

// connect resets the link state for a new dial.
func (p *FakePeripheral) connect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = true
	p.gone = make(chan struct{})
	p.goneClosed = false
	p.handlers = make(map[uint16]radio.NotificationHandler)
}

func (p *FakePeripheral) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return radio.ErrNotConnected
	}
	return nil
}

func (p *FakePeripheral) DiscoverServices(ctx context.Context) ([]radio.Service, error) {
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	out := make([]radio.Service, len(p.services))
	for i, s := range p.services {
		out[i] = s
	}
	return out, nil
}

func (p *FakePeripheral) ExchangeMTU(ctx context.Context, mtu int) (int, error) {
	if err := p.check(ctx); err != nil {
		return 0, err
	}
	if p.MTUErr != nil {
		return 0, p.MTUErr
	}
	granted := mtu
	if p.MTU > 0 {
		granted = p.MTU
	}
	p.mu.Lock()
	p.negotiated = granted
	p.mu.Unlock()
	return granted, nil
}

// NegotiatedMTU returns the last value granted by ExchangeMTU, zero if none.
func (p *FakePeripheral) NegotiatedMTU() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.negotiated
}

func (p *FakePeripheral) fake(c radio.Characteristic) (*FakeCharacteristic, error) {
	fc, ok := c.(*FakeCharacteristic)
	if !ok {
		return nil, fmt.Errorf("%w: foreign characteristic %s", radio.ErrUnsupported, c.UUID())
	}
	return fc, nil
}

func (p *FakePeripheral) Read(ctx context.Context, c radio.Characteristic) ([]byte, error) {
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	if p.ReadErr != nil {
		return nil, p.ReadErr
	}
	fc, err := p.fake(c)
	if err != nil {
		return nil, err
	}
	return fc.Value(), nil
}

func (p *FakePeripheral) Write(ctx context.Context, c radio.Characteristic, data []byte, withResponse bool) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	if p.WriteErr != nil {
		return p.WriteErr
	}
	fc, err := p.fake(c)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.writes = append(p.writes, WriteRecord{UUID: fc.uuid, Data: slices.Clone(data), WithResponse: withResponse})
	hook := p.OnWrite
	p.mu.Unlock()
	if hook != nil {
		hook(p, fc, data)
	}
	return nil
}

func (p *FakePeripheral) Subscribe(ctx context.Context, c radio.Characteristic, h radio.NotificationHandler) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	if p.SubscribeErr != nil {
		return p.SubscribeErr
	}
	p.mu.Lock()
	p.handlers[c.Handle()] = h
	p.subscribes[c.UUID()]++
	p.mu.Unlock()
	return nil
}

func (p *FakePeripheral) Unsubscribe(ctx context.Context, c radio.Characteristic) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	delete(p.handlers, c.Handle())
	p.unsubscribes[c.UUID()]++
	p.mu.Unlock()
	return nil
}

func (p *FakePeripheral) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	p.handlers = make(map[uint16]radio.NotificationHandler)
	if !p.goneClosed {
		p.goneClosed = true
		close(p.gone)
	}
	return nil
}

func (p *FakePeripheral) Disconnected() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gone
}

// Drop simulates a link loss reported by the stack.
func (p *FakePeripheral) Drop() { _ = p.Disconnect() }

func (p *FakePeripheral) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Characteristic finds a characteristic by UUID in any service.
func (p *FakePeripheral) Characteristic(uuid string) *FakeCharacteristic {
	u := radio.NormalizeUUID(uuid)
	for _, s := range p.services {
		for _, c := range s.chars {
			if c.uuid == u {
				return c
			}
		}
	}
	return nil
}

// Notify delivers data to the subscriber of uuid. It reports whether anyone
// was subscribed.
func (p *FakePeripheral) Notify(uuid string, data []byte) bool {
	c := p.Characteristic(uuid)
	if c == nil {
		return false
	}
	p.mu.Lock()
	h := p.handlers[c.handle]
	p.mu.Unlock()
	if h == nil {
		return false
	}
	c.SetValue(data)
	h(slices.Clone(data))
	return true
}

func (p *FakePeripheral) Subscribed(uuid string) bool {
	c := p.Characteristic(uuid)
	if c == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.handlers[c.handle]
	return ok
}

func (p *FakePeripheral) SubscribeCount(uuid string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subscribes[radio.NormalizeUUID(uuid)]
}

func (p *FakePeripheral) UnsubscribeCount(uuid string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unsubscribes[radio.NormalizeUUID(uuid)]
}

func (p *FakePeripheral) Writes() []WriteRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.writes)
}

// ----------------------------
// Advertisement
// ----------------------------

// FakeAdvertisement is a plain radio.Advertisement.
type FakeAdvertisement struct {
	Addr          string
	Name          string
	Manufacturer  []byte
	TxPower       int
	Signal        int
	IsConnectable bool
}

func (a *FakeAdvertisement) Address() string          { return radio.NormalizeAddress(a.Addr) }
func (a *FakeAdvertisement) LocalName() string        { return a.Name }
func (a *FakeAdvertisement) ManufacturerData() []byte { return a.Manufacturer }
func (a *FakeAdvertisement) TxPowerLevel() int        { return a.TxPower }
func (a *FakeAdvertisement) RSSI() int                { return a.Signal }
func (a *FakeAdvertisement) Connectable() bool        { return a.IsConnectable }

// ----------------------------
// Adapter
// ----------------------------

// FakeAdapter serves registered peripherals and replays advertisements.
type FakeAdapter struct {
	mu          sync.Mutex
	peripherals map[string]*FakePeripheral
	ads         []radio.Advertisement
	scans       int
	lastScan    radio.ScanOptions

	// DialErr makes Dial fail.
	DialErr error
	// ScanErr makes Scan fail immediately.
	ScanErr error
	// OnDial, when set, runs after a successful dial, before Dial returns.
	OnDial func(p *FakePeripheral)
}

func NewFakeAdapter() *FakeAdapter {
	return &FakeAdapter{peripherals: make(map[string]*FakePeripheral)}
}

func (a *FakeAdapter) AddPeripheral(p *FakePeripheral) *FakeAdapter {
	a.mu.Lock()
	a.peripherals[p.address] = p
	a.mu.Unlock()
	return a
}

func (a *FakeAdapter) AddAdvertisements(ads ...radio.Advertisement) *FakeAdapter {
	a.mu.Lock()
	a.ads = append(a.ads, ads...)
	a.mu.Unlock()
	return a
}

// Scan delivers every queued advertisement, then blocks until ctx is done.
func (a *FakeAdapter) Scan(ctx context.Context, opts radio.ScanOptions, handler func(radio.Advertisement)) error {
	a.mu.Lock()
	a.scans++
	a.lastScan = opts
	ads := slices.Clone(a.ads)
	scanErr := a.ScanErr
	a.mu.Unlock()

	if scanErr != nil {
		return scanErr
	}
	for _, ad := range ads {
		if ctx.Err() != nil {
			return nil
		}
		handler(ad)
	}
	<-ctx.Done()
	return nil
}

func (a *FakeAdapter) Dial(ctx context.Context, address string) (radio.Peripheral, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.DialErr != nil {
		return nil, a.DialErr
	}
	a.mu.Lock()
	p, ok := a.peripherals[radio.NormalizeAddress(address)]
	a.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no peripheral at %s", address)
	}
	p.connect()
	if a.OnDial != nil {
		a.OnDial(p)
	}
	return p, nil
}

func (a *FakeAdapter) ScanCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scans
}

func (a *FakeAdapter) LastScanOptions() radio.ScanOptions {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastScan
}
