// Package radio declares the capabilities the SDK needs from a BLE stack.
// Implementations live in sub-packages; tests use an in-memory fake.
package radio

import (
	"context"
	"strings"
)

// Property is the GATT characteristic property bit set.
type Property uint8

const (
	PropBroadcast       Property = 0x01
	PropRead            Property = 0x02
	PropWriteNoResponse Property = 0x04
	PropWrite           Property = 0x08
	PropNotify          Property = 0x10
	PropIndicate        Property = 0x20
)

func (p Property) Has(flag Property) bool { return p&flag != 0 }

func (p Property) String() string {
	var parts []string
	for _, f := range []struct {
		flag Property
		name string
	}{
		{PropBroadcast, "Broadcast"},
		{PropRead, "Read"},
		{PropWriteNoResponse, "WriteWithoutResponse"},
		{PropWrite, "Write"},
		{PropNotify, "Notify"},
		{PropIndicate, "Indicate"},
	} {
		if p.Has(f.flag) {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}

// Characteristic is a discovered GATT characteristic. UUID is normalized.
type Characteristic interface {
	UUID() string
	Handle() uint16
	Properties() Property
}

// Service is a discovered GATT service.
type Service interface {
	UUID() string
	Characteristics() []Characteristic
}

// Advertisement is one received advertising report.
type Advertisement interface {
	Address() string
	LocalName() string
	ManufacturerData() []byte
	TxPowerLevel() int
	RSSI() int
	Connectable() bool
}

// ScanOptions tunes a scan.
type ScanOptions struct {
	AllowDuplicates bool
	Passive         bool
}

// NotificationHandler receives the raw value of a notification.
type NotificationHandler func(data []byte)

// Peripheral is a dialled remote device.
type Peripheral interface {
	Address() string
	DiscoverServices(ctx context.Context) ([]Service, error)
	ExchangeMTU(ctx context.Context, mtu int) (int, error)
	Read(ctx context.Context, c Characteristic) ([]byte, error)
	Write(ctx context.Context, c Characteristic, data []byte, withResponse bool) error
	Subscribe(ctx context.Context, c Characteristic, h NotificationHandler) error
	Unsubscribe(ctx context.Context, c Characteristic) error
	Disconnect() error
}

// DisconnectNotifier is implemented by peripherals able to report link loss.
// The channel is closed once, whatever the cause.
type DisconnectNotifier interface {
	Disconnected() <-chan struct{}
}

// Adapter is the local BLE controller.
type Adapter interface {
	Scan(ctx context.Context, opts ScanOptions, handler func(Advertisement)) error
	Dial(ctx context.Context, address string) (Peripheral, error)
}

// NormalizeUUID lowercases uuid and strips dashes.
func NormalizeUUID(uuid string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(uuid)), "-", "")
}

// NormalizeAddress upper-cases a MAC style address.
func NormalizeAddress(addr string) string {
	return strings.ToUpper(strings.TrimSpace(addr))
}
