//go:build test

package testutils

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/srg/bluest/internal/radio"
	"github.com/srg/bluest/pkg/feature"
)

const (
	// FeatureServiceUUID hosts the base and extended feature characteristics.
	FeatureServiceUUID = "00000000000111e19ab40002a5d5c51b"
	// ConfigServiceUUID hosts the command characteristic.
	ConfigServiceUUID = "00000000000f11e19ab40002a5d5c51b"
)

// CharacteristicConfig describes one fake characteristic.
type CharacteristicConfig struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties,omitempty"` // e.g. "read,write,notify"
	Value      []byte `json:"value,omitempty"`
}

// ServiceConfig describes one fake service.
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// DeviceProfileConfig is the GATT profile of a fake peripheral.
type DeviceProfileConfig struct {
	Address  string          `json:"address"`
	Services []ServiceConfig `json:"services"`
}

// PeripheralDeviceBuilder builds a FakePeripheral from a GATT profile.
type PeripheralDeviceBuilder struct {
	profile DeviceProfileConfig
	mtu     int
}

func NewPeripheralDeviceBuilder() *PeripheralDeviceBuilder {
	return &PeripheralDeviceBuilder{profile: DeviceProfileConfig{Address: "C0:FF:EE:00:00:01"}}
}

func (b *PeripheralDeviceBuilder) WithAddress(addr string) *PeripheralDeviceBuilder {
	b.profile.Address = addr
	return b
}

// WithMTU sets the MTU the peripheral grants on exchange.
func (b *PeripheralDeviceBuilder) WithMTU(mtu int) *PeripheralDeviceBuilder {
	b.mtu = mtu
	return b
}

func (b *PeripheralDeviceBuilder) WithService(uuid string) *PeripheralDeviceBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{UUID: uuid})
	return b
}

// WithCharacteristic adds a characteristic to the last added service.
func (b *PeripheralDeviceBuilder) WithCharacteristic(uuid, properties string, value []byte) *PeripheralDeviceBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}
	last := &b.profile.Services[len(b.profile.Services)-1]
	last.Characteristics = append(last.Characteristics, CharacteristicConfig{
		UUID:       uuid,
		Properties: properties,
		Value:      value,
	})
	return b
}

// WithBaseFeatures adds a notifying base feature characteristic declaring mask
// to the feature service, creating the service when needed.
func (b *PeripheralDeviceBuilder) WithBaseFeatures(mask uint32) *PeripheralDeviceBuilder {
	return b.inService(FeatureServiceUUID, feature.BaseUUID(mask), "read,notify")
}

// WithExtendedFeature adds a notifying, writable extended feature characteristic.
func (b *PeripheralDeviceBuilder) WithExtendedFeature(id uint32) *PeripheralDeviceBuilder {
	return b.inService(FeatureServiceUUID, feature.ExtendedUUID(id), "read,write,notify")
}

// WithDebugConsole adds the debug service with its stdin/out and stderr characteristics.
func (b *PeripheralDeviceBuilder) WithDebugConsole() *PeripheralDeviceBuilder {
	b.inService(feature.DebugServiceUUID, feature.DebugStdInOutUUID, "read,write-no-response,notify")
	return b.inService(feature.DebugServiceUUID, feature.DebugStdErrUUID, "read,notify")
}

func (b *PeripheralDeviceBuilder) WithCommand() *PeripheralDeviceBuilder {
	return b.inService(ConfigServiceUUID, feature.CommandUUID, "read,write,notify")
}

func (b *PeripheralDeviceBuilder) inService(service, uuid, props string) *PeripheralDeviceBuilder {
	for i := range b.profile.Services {
		if radio.NormalizeUUID(b.profile.Services[i].UUID) == service {
			s := &b.profile.Services[i]
			s.Characteristics = append(s.Characteristics, CharacteristicConfig{UUID: uuid, Properties: props})
			return b
		}
	}
	return b.WithService(service).WithCharacteristic(uuid, props, nil)
}

// FromJSON replaces the profile. Panics on invalid JSON as this is test setup.
func (b *PeripheralDeviceBuilder) FromJSON(jsonStrFmt string, args ...any) *PeripheralDeviceBuilder {
	var config DeviceProfileConfig
	if err := json.Unmarshal([]byte(fmt.Sprintf(jsonStrFmt, args...)), &config); err != nil {
		panic(fmt.Sprintf("PeripheralDeviceBuilder.FromJSON: failed to unmarshal: %v", err))
	}
	if config.Address == "" {
		config.Address = b.profile.Address
	}
	b.profile = config
	return b
}

// Profile returns the accumulated profile.
func (b *PeripheralDeviceBuilder) Profile() DeviceProfileConfig { return b.profile }

// Build creates the peripheral. Handles are assigned in declaration order.
func (b *PeripheralDeviceBuilder) Build() *FakePeripheral {
	var handle uint16 = 0x0010
	services := make([]*FakeService, 0, len(b.profile.Services))
	for _, sc := range b.profile.Services {
		s := &FakeService{uuid: radio.NormalizeUUID(sc.UUID)}
		for _, cc := range sc.Characteristics {
			s.chars = append(s.chars, NewFakeCharacteristic(cc.UUID, handle, ParseProperties(cc.Properties), cc.Value))
			handle += 2
		}
		services = append(services, s)
	}
	p := NewFakePeripheral(b.profile.Address, services...)
	p.MTU = b.mtu
	return p
}

// ParseProperties converts a comma separated property list. An empty list
// means read, write and notify.
func ParseProperties(props string) radio.Property {
	if strings.TrimSpace(props) == "" {
		return radio.PropRead | radio.PropWrite | radio.PropNotify
	}
	var p radio.Property
	for _, name := range strings.Split(props, ",") {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "broadcast":
			p |= radio.PropBroadcast
		case "read":
			p |= radio.PropRead
		case "write-no-response", "write_without_response", "writenr":
			p |= radio.PropWriteNoResponse
		case "write":
			p |= radio.PropWrite
		case "notify":
			p |= radio.PropNotify
		case "indicate":
			p |= radio.PropIndicate
		default:
			panic(fmt.Sprintf("ParseProperties: unknown property %q", name))
		}
	}
	return p
}
