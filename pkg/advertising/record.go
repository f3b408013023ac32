package advertising

import (
	"fmt"

	"github.com/srg/bluest/pkg/bluest"
)

// AD structure type codes used by the decoder.
const (
	TypeFlags             uint8 = 0x01
	TypeIncomplete16Bit   uint8 = 0x02
	TypeComplete16Bit     uint8 = 0x03
	TypeIncomplete128Bit  uint8 = 0x06
	TypeComplete128Bit    uint8 = 0x07
	TypeShortLocalName    uint8 = 0x08
	TypeCompleteLocalName uint8 = 0x09
	TypeTxPowerLevel      uint8 = 0x0A
	TypeServiceData16Bit  uint8 = 0x16
	TypeManufacturerData  uint8 = 0xFF
)

var typeDescriptions = map[uint8]string{
	TypeFlags:             "Flags",
	TypeIncomplete16Bit:   "Incomplete 16b Services",
	TypeComplete16Bit:     "Complete 16b Services",
	TypeIncomplete128Bit:  "Incomplete 128b Services",
	TypeComplete128Bit:    "Complete 128b Services",
	TypeShortLocalName:    "Short Local Name",
	TypeCompleteLocalName: "Complete Local Name",
	TypeTxPowerLevel:      "Tx Power",
	TypeServiceData16Bit:  "16b Service Data",
	TypeManufacturerData:  "Manufacturer",
}

// Record is one advertising structure: a type code, a human readable
// description and the raw value with the length and type bytes stripped.
type Record struct {
	Type        uint8
	Description string
	Value       []byte
}

// NewRecord builds a Record, filling the description from the type code.
func NewRecord(adType uint8, value []byte) Record {
	return Record{Type: adType, Description: Describe(adType), Value: value}
}

// Describe returns the description of an AD type code.
func Describe(adType uint8) string {
	if d, ok := typeDescriptions[adType]; ok {
		return d
	}
	return fmt.Sprintf("0x%02X", adType)
}

// ParseRecords splits a raw advertising or scan response payload into records.
// A zero length byte terminates the payload early, as padding does.
func ParseRecords(raw []byte) ([]Record, error) {
	var records []Record
	for i := 0; i < len(raw); {
		n := int(raw[i])
		if n == 0 {
			break
		}
		if i+1+n > len(raw) {
			return nil, bluest.Errorf(bluest.InvalidAdvertisingData, "AD structure at %d declares %d bytes, %d left", i, n, len(raw)-i-1)
		}
		value := make([]byte, n-1)
		copy(value, raw[i+2:i+1+n])
		records = append(records, NewRecord(raw[i+1], value))
		i += 1 + n
	}
	return records, nil
}
