package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/bluest/internal/groutine"
	"github.com/srg/bluest/internal/radio"
)

// syntheticHandleBase numbers characteristics on stacks that expose no ATT
// handles (CoreBluetooth).
const syntheticHandleBase = 0x8000

// characteristic adapts ble.Characteristic.
type characteristic struct {
	c      *ble.Characteristic
	uuid   string
	handle uint16
}

func (c *characteristic) UUID() string               { return c.uuid }
func (c *characteristic) Handle() uint16             { return c.handle }
func (c *characteristic) Properties() radio.Property { return radio.Property(c.c.Property) }

type service struct {
	uuid  string
	chars []radio.Characteristic
}

func (s *service) UUID() string                            { return s.uuid }
func (s *service) Characteristics() []radio.Characteristic { return s.chars }

// Peripheral is a radio.Peripheral over a go-ble client.
type Peripheral struct {
	address string
	client  ble.Client
	logger  *logrus.Logger

	mu    sync.Mutex
	chars map[uint16]*ble.Characteristic

	// writeMu serializes writes, go-ble clients are not safe for concurrent ATT requests
	writeMu sync.Mutex

	closeOnce    sync.Once
	disconnected chan struct{}
}

func newPeripheral(address string, client ble.Client, logger *logrus.Logger) *Peripheral {
	p := &Peripheral{
		address:      radio.NormalizeAddress(address),
		client:       client,
		logger:       logger,
		chars:        make(map[uint16]*ble.Characteristic),
		disconnected: make(chan struct{}),
	}

	// Monitor the go-ble client Disconnected() channel when the platform has one
	if notifier, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		groutine.Go(context.Background(), "ble-connection-monitor", func(ctx context.Context) {
			select {
			case <-notifier.Disconnected():
				logger.WithField("address", p.address).Warn("BLE stack reported disconnection")
				p.markDisconnected()
			case <-p.disconnected:
			}
		})
	} else {
		logger.Debug("Client does not support Disconnected() channel")
	}
	return p
}

func (p *Peripheral) Address() string { return p.address }

// Disconnected is closed once the link is gone, whatever the cause.
func (p *Peripheral) Disconnected() <-chan struct{} { return p.disconnected }

func (p *Peripheral) markDisconnected() {
	p.closeOnce.Do(func() { close(p.disconnected) })
}

type result[T any] struct {
	v   T
	err error
}

// call runs fn and gives up when ctx is done first. go-ble requests take no
// context; an abandoned request finishes in the background.
func call[T any](ctx context.Context, p *Peripheral, name string, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	select {
	case <-p.disconnected:
		return zero, radio.ErrNotConnected
	default:
	}

	done := make(chan result[T], 1)
	groutine.Go(ctx, name, func(context.Context) {
		v, err := fn()
		done <- result[T]{v: v, err: radio.NormalizeError(err)}
	})
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-p.disconnected:
		return zero, radio.ErrNotConnected
	}
}

func call0(ctx context.Context, p *Peripheral, name string, fn func() error) error {
	_, err := call(ctx, p, name, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

// DiscoverServices runs a full profile discovery.
func (p *Peripheral) DiscoverServices(ctx context.Context) ([]radio.Service, error) {
	profile, err := call(ctx, p, "ble-discover", func() (*ble.Profile, error) {
		return p.client.DiscoverProfile(true)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover profile: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.chars)
	next := uint16(syntheticHandleBase)

	services := make([]radio.Service, 0, len(profile.Services))
	for _, bs := range profile.Services {
		svc := &service{uuid: radio.NormalizeUUID(bs.UUID.String())}
		for _, bc := range bs.Characteristics {
			handle := bc.ValueHandle
			if handle == 0 {
				handle = next
				next++
			}
			p.chars[handle] = bc
			svc.chars = append(svc.chars, &characteristic{
				c:      bc,
				uuid:   radio.NormalizeUUID(bc.UUID.String()),
				handle: handle,
			})
		}
		services = append(services, svc)
	}

	p.logger.WithFields(logrus.Fields{
		"address":  p.address,
		"services": len(services),
	}).Debug("Profile discovered successfully")
	return services, nil
}

func (p *Peripheral) lookup(c radio.Characteristic) (*ble.Characteristic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	bc, ok := p.chars[c.Handle()]
	if !ok {
		return nil, fmt.Errorf("characteristic %s (handle 0x%04X) not discovered", c.UUID(), c.Handle())
	}
	return bc, nil
}

// ExchangeMTU requests mtu and returns the value the peer agreed to.
func (p *Peripheral) ExchangeMTU(ctx context.Context, mtu int) (int, error) {
	return call(ctx, p, "ble-mtu", func() (int, error) {
		return p.client.ExchangeMTU(mtu)
	})
}

func (p *Peripheral) Read(ctx context.Context, c radio.Characteristic) ([]byte, error) {
	bc, err := p.lookup(c)
	if err != nil {
		return nil, err
	}
	return call(ctx, p, "ble-read", func() ([]byte, error) {
		return p.client.ReadCharacteristic(bc)
	})
}

func (p *Peripheral) Write(ctx context.Context, c radio.Characteristic, data []byte, withResponse bool) error {
	bc, err := p.lookup(c)
	if err != nil {
		return err
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return call0(ctx, p, "ble-write", func() error {
		return p.client.WriteCharacteristic(bc, data, !withResponse)
	})
}

// Subscribe enables notifications, or indications when the characteristic
// can only indicate.
func (p *Peripheral) Subscribe(ctx context.Context, c radio.Characteristic, h radio.NotificationHandler) error {
	bc, err := p.lookup(c)
	if err != nil {
		return err
	}
	indicate := !c.Properties().Has(radio.PropNotify)
	return call0(ctx, p, "ble-subscribe", func() error {
		return p.client.Subscribe(bc, indicate, func(data []byte) { h(data) })
	})
}

func (p *Peripheral) Unsubscribe(ctx context.Context, c radio.Characteristic) error {
	bc, err := p.lookup(c)
	if err != nil {
		return err
	}
	indicate := !c.Properties().Has(radio.PropNotify)
	return call0(ctx, p, "ble-unsubscribe", func() error {
		return p.client.Unsubscribe(bc, indicate)
	})
}

// Disconnect cancels the connection. It is safe to call more than once.
func (p *Peripheral) Disconnect() error {
	select {
	case <-p.disconnected:
		return nil
	default:
	}
	p.logger.WithField("address", p.address).Info("Disconnecting BLE device...")
	err := radio.NormalizeError(p.client.CancelConnection())
	p.markDisconnected()
	if err != nil {
		p.logger.WithField("error", err).Warn("BLE device disconnected with errors")
	}
	return err
}
