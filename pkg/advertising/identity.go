// Package advertising decodes the BlueST manufacturer specific data carried
// by advertisements into an Identity.
package advertising

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/srg/bluest/pkg/bluest"
	"github.com/srg/bluest/pkg/numconv"
)

// Protocol is the BlueST advertising protocol version.
type Protocol uint8

const (
	ProtocolV1  Protocol = 0x01
	ProtocolV2  Protocol = 0x02
	ProtocolVLE Protocol = 0x03
)

func (p Protocol) String() string {
	switch p {
	case ProtocolV1:
		return "V1"
	case ProtocolV2:
		return "V2"
	case ProtocolVLE:
		return "VLE"
	default:
		return fmt.Sprintf("Protocol(%d)", uint8(p))
	}
}

const (
	// NoName is reported when the advertisement carries no complete local name.
	NoName = "NO_NAME"
	// NoTxPower is reported when the advertisement carries no tx power level.
	NoTxPower = -1

	// STMicroelectronics company identifier as it appears on air (little-endian).
	companyIDLow  = 0x30
	companyIDHigh = 0x00
	companyIDSize = 2

	lengthV1      = 7
	lengthV1MAC   = 13
	lengthV2      = 9
	lengthV2MAC   = 15
	lengthVLEMin  = 8
	lengthVLEMax  = 30
	macSize       = 6
	optionBytesV2 = 3
)

// Identity is the decoded, immutable content of a BlueST advertisement.
// Optional fields are exposed with a presence flag.
type Identity struct {
	name       string
	txPower    int
	mac        string
	hasMAC     bool
	deviceType DeviceType
	deviceID   uint8
	firmwareID uint8
	payloadID  uint8
	protocol   Protocol
	mask       uint32
	options    []byte
	sleeping   bool
	raw        []byte
}

// Parse builds an Identity from the advertising records of one discovery event.
func Parse(records []Record) (*Identity, error) {
	name := NoName
	txPower := NoTxPower
	var manufacturer []byte
	found := false

	for _, r := range records {
		switch r.Type {
		case TypeCompleteLocalName:
			name = string(r.Value)
		case TypeTxPowerLevel:
			if len(r.Value) > 0 {
				txPower = int(int8(r.Value[0]))
			}
		case TypeManufacturerData:
			manufacturer = r.Value
			found = true
		}
	}

	if !found {
		return nil, bluest.Errorf(bluest.InvalidAdvertisingData, "missing manufacturer specific data")
	}
	return ParseManufacturerData(name, txPower, manufacturer)
}

// ParseManufacturerData decodes the manufacturer specific bytes (type byte
// already stripped) of an advertisement.
func ParseManufacturerData(name string, txPower int, data []byte) (*Identity, error) {
	length := len(data) + 1
	if !allowedLength(length) {
		return nil, bluest.Errorf(bluest.UnsupportedPayloadLength, "manufacturer data length %d not allowed", length)
	}

	var offset int
	switch {
	case data[0] == byte(ProtocolV1):
		offset = 0
	case data[0] == companyIDLow && data[1] == companyIDHigh:
		offset = companyIDSize
	default:
		return nil, bluest.Errorf(bluest.UnknownManufacturerID, "manufacturer id 0x%02X%02X not recognized", data[1], data[0])
	}

	id := &Identity{
		name:    name,
		txPower: txPower,
		raw:     bytes.Clone(data),
	}

	version, err := numconv.Uint8(data, offset)
	if err != nil {
		return nil, truncated(err)
	}
	if version < uint8(ProtocolV1) || version > uint8(ProtocolVLE) {
		return nil, bluest.Errorf(bluest.UnsupportedProtocolVersion, "version %d not in [%d..%d]", version, ProtocolV1, ProtocolVLE)
	}
	id.protocol = Protocol(version)

	if id.deviceID, err = numconv.Uint8(data, offset+1); err != nil {
		return nil, truncated(err)
	}
	if id.deviceType, err = ResolveDeviceType(id.deviceID); err != nil {
		return nil, err
	}
	id.sleeping = id.deviceID&0x80 == 0 && id.deviceID&0x40 != 0

	tail := offset + 2
	switch id.protocol {
	case ProtocolV1:
		if id.mask, err = numconv.Uint32BE(data, tail); err != nil {
			return nil, truncated(err)
		}
	case ProtocolV2:
		if err = numconv.Need(data, tail, 1+optionBytesV2); err != nil {
			return nil, truncated(err)
		}
		id.firmwareID = data[tail]
		id.options = bytes.Clone(data[tail+1 : tail+1+optionBytesV2])
	case ProtocolVLE:
		if err = numconv.Need(data, tail, 2); err != nil {
			return nil, truncated(err)
		}
		id.firmwareID = data[tail]
		id.payloadID = data[tail+1]
		id.options = bytes.Clone(data[tail+2:])
	}

	if length == lengthV1MAC || length == lengthV2MAC {
		id.mac = formatMAC(data[len(data)-macSize:])
		id.hasMAC = true
	}
	return id, nil
}

func allowedLength(n int) bool {
	switch n {
	case lengthV1, lengthV1MAC, lengthV2, lengthV2MAC:
		return true
	}
	return n >= lengthVLEMin && n <= lengthVLEMax
}

func truncated(err error) error {
	return &bluest.Error{Kind: bluest.InvalidAdvertisingData, Msg: "truncated manufacturer data", Err: err}
}

func formatMAC(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02X", v)
	}
	return strings.Join(parts, ":")
}

func (i *Identity) Name() string           { return i.name }
func (i *Identity) TxPower() int           { return i.txPower }
func (i *Identity) DeviceType() DeviceType { return i.deviceType }
func (i *Identity) DeviceID() uint8        { return i.deviceID }
func (i *Identity) Protocol() Protocol     { return i.protocol }
func (i *Identity) Sleeping() bool         { return i.sleeping }

// MAC returns the address embedded in the payload, when present.
func (i *Identity) MAC() (string, bool) { return i.mac, i.hasMAC }

// FeatureMask is only present for V1 advertisements.
func (i *Identity) FeatureMask() (uint32, bool) {
	return i.mask, i.protocol == ProtocolV1
}

// FirmwareID is present for V2 and VLE advertisements.
func (i *Identity) FirmwareID() (uint8, bool) {
	return i.firmwareID, i.protocol != ProtocolV1
}

// PayloadID is only present for VLE advertisements.
func (i *Identity) PayloadID() (uint8, bool) {
	return i.payloadID, i.protocol == ProtocolVLE
}

// OptionBytes returns a copy of the option bytes. It is nil for V1.
func (i *Identity) OptionBytes() []byte {
	return bytes.Clone(i.options)
}

// ManufacturerData returns a copy of the raw bytes the identity was decoded from.
func (i *Identity) ManufacturerData() []byte {
	return bytes.Clone(i.raw)
}

// Equal reports whether both identities were decoded from the same name and
// manufacturer bytes.
func (i *Identity) Equal(other *Identity) bool {
	if i == nil || other == nil {
		return i == other
	}
	return i.name == other.name && i.txPower == other.txPower && bytes.Equal(i.raw, other.raw)
}

func (i *Identity) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s protocol=%s type=%s device_id=0x%02X", i.name, i.protocol, i.deviceType, i.deviceID)
	switch i.protocol {
	case ProtocolV1:
		fmt.Fprintf(&b, " mask=0x%08X", i.mask)
	case ProtocolV2:
		fmt.Fprintf(&b, " fw=0x%02X options=% X", i.firmwareID, i.options)
	case ProtocolVLE:
		fmt.Fprintf(&b, " fw=0x%02X payload=0x%02X options=% X", i.firmwareID, i.payloadID, i.options)
	}
	if i.hasMAC {
		fmt.Fprintf(&b, " mac=%s", i.mac)
	}
	if i.sleeping {
		b.WriteString(" sleeping")
	}
	return b.String()
}

// EncodeV1 builds the manufacturer bytes of a V1 advertisement. mac may be nil.
func EncodeV1(deviceID uint8, mask uint32, mac []byte) []byte {
	out := []byte{byte(ProtocolV1), deviceID}
	out = numconv.AppendUint32BE(out, mask)
	return append(out, mac...)
}

// EncodeV2 builds the manufacturer bytes of a V2 advertisement. mac may be nil.
func EncodeV2(deviceID, firmwareID uint8, options [3]byte, mac []byte) []byte {
	out := []byte{companyIDLow, companyIDHigh, byte(ProtocolV2), deviceID, firmwareID}
	out = append(out, options[:]...)
	return append(out, mac...)
}

// EncodeVLE builds the manufacturer bytes of a VLE advertisement.
func EncodeVLE(deviceID, firmwareID, payloadID uint8, options []byte) []byte {
	out := []byte{companyIDLow, companyIDHigh, byte(ProtocolVLE), deviceID, firmwareID, payloadID}
	return append(out, options...)
}
