// Package goble implements the radio capabilities on top of go-ble.
package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/bluest/internal/radio"
	"github.com/srg/bluest/pkg/advertising"
)

// DeviceFactory creates the platform ble.Device (can be overridden in tests)
var DeviceFactory = newPlatformDevice

// Adapter is a radio.Adapter backed by one go-ble device, created on first use.
type Adapter struct {
	logger *logrus.Logger

	once   sync.Once
	dev    ble.Device
	devErr error
}

func NewAdapter(logger *logrus.Logger) *Adapter {
	if logger == nil {
		logger = logrus.New()
	}
	return &Adapter{logger: logger}
}

func (a *Adapter) device() (ble.Device, error) {
	a.once.Do(func() {
		dev, err := DeviceFactory()
		if err != nil {
			a.devErr = fmt.Errorf("failed to create BLE device: %w", radio.NormalizeError(err))
			return
		}
		ble.SetDefaultDevice(dev)
		a.dev = dev
	})
	return a.dev, a.devErr
}

// Scan reports advertisements until ctx is done. go-ble always scans
// actively, so ScanOptions.Passive only gets logged.
func (a *Adapter) Scan(ctx context.Context, opts radio.ScanOptions, handler func(radio.Advertisement)) error {
	dev, err := a.device()
	if err != nil {
		return err
	}
	if opts.Passive {
		a.logger.Debug("Passive scan not supported by go-ble, scanning actively")
	}
	err = dev.Scan(ctx, opts.AllowDuplicates, func(adv ble.Advertisement) {
		handler(&advertisement{adv: adv})
	})
	return radio.NormalizeError(err)
}

// Dial connects to address. The returned peripheral has not discovered its
// services yet.
func (a *Adapter) Dial(ctx context.Context, address string) (radio.Peripheral, error) {
	dev, err := a.device()
	if err != nil {
		return nil, err
	}
	a.logger.WithField("address", address).Debug("Dialing BLE device...")
	client, err := dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, radio.NormalizeError(err))
	}
	return newPeripheral(address, client, a.logger), nil
}

// Stop releases the platform device.
func (a *Adapter) Stop() error {
	if a.dev == nil {
		return nil
	}
	return a.dev.Stop()
}

// advertisement adapts ble.Advertisement.
type advertisement struct {
	adv ble.Advertisement
}

func (a *advertisement) Address() string          { return radio.NormalizeAddress(a.adv.Addr().String()) }
func (a *advertisement) LocalName() string        { return a.adv.LocalName() }
func (a *advertisement) ManufacturerData() []byte { return a.adv.ManufacturerData() }
func (a *advertisement) RSSI() int                { return a.adv.RSSI() }
func (a *advertisement) Connectable() bool        { return a.adv.Connectable() }

// go-ble reports a missing tx power level as 127
const txPowerUnsupported = 127

func (a *advertisement) TxPowerLevel() int {
	if p := a.adv.TxPowerLevel(); p != txPowerUnsupported {
		return p
	}
	return advertising.NoTxPower
}
