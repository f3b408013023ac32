package advertising

import (
	"fmt"

	"github.com/srg/bluest/pkg/bluest"
)

// DeviceType is the board family a device id resolves to.
type DeviceType uint8

const (
	Generic          DeviceType = 0x00
	STEVAL_WESU1     DeviceType = 0x01
	STEVAL_STLKT01V1 DeviceType = 0x02
	STEVAL_BCNKT01V1 DeviceType = 0x03
	STEVAL_IDB008VX  DeviceType = 0x04
	STEVAL_BCN002V1B DeviceType = 0x05
	STEVAL_MKSBOX1V1 DeviceType = 0x06
	B_L475E_IOT01A   DeviceType = 0x07
	STEVAL_STWINKT1  DeviceType = 0x08
	STEVAL_STWINKT1B DeviceType = 0x09
	B_L4S5I_IOT01A   DeviceType = 0x0A
	B_U585I_IOT02A   DeviceType = 0x0B
	STEVAL_ASTRA1B   DeviceType = 0x0C
	STEVAL_MKBOXPRO  DeviceType = 0x0D
	STEVAL_STWINBX1  DeviceType = 0x0E
	Proteus          DeviceType = 0x0F
	Nucleo           DeviceType = 0x80
)

var deviceTypeNames = map[DeviceType]string{
	Generic:          "GENERIC",
	STEVAL_WESU1:     "STEVAL_WESU1",
	STEVAL_STLKT01V1: "STEVAL_STLKT01V1",
	STEVAL_BCNKT01V1: "STEVAL_BCNKT01V1",
	STEVAL_IDB008VX:  "STEVAL_IDB008VX",
	STEVAL_BCN002V1B: "STEVAL_BCN002V1B",
	STEVAL_MKSBOX1V1: "STEVAL_MKSBOX1V1",
	B_L475E_IOT01A:   "B_L475E_IOT01A",
	STEVAL_STWINKT1:  "STEVAL_STWINKT1",
	STEVAL_STWINKT1B: "STEVAL_STWINKT1B",
	B_L4S5I_IOT01A:   "B_L4S5I_IOT01A",
	B_U585I_IOT02A:   "B_U585I_IOT02A",
	STEVAL_ASTRA1B:   "STEVAL_ASTRA1B",
	STEVAL_MKBOXPRO:  "STEVAL_MKBOXPRO",
	STEVAL_STWINBX1:  "STEVAL_STWINBX1",
	Proteus:          "PROTEUS",
	Nucleo:           "NUCLEO",
}

func (t DeviceType) String() string {
	if n, ok := deviceTypeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("DeviceType(0x%02X)", uint8(t))
}

// isGenericID reports whether id falls in the custom or reserved ranges
// that all resolve to Generic.
func isGenericID(id uint8) bool {
	return (id >= 0x10 && id <= 0x7F) || id >= 0x81
}

// ResolveDeviceType maps a raw device id to its DeviceType.
func ResolveDeviceType(id uint8) (DeviceType, error) {
	if isGenericID(id) {
		return Generic, nil
	}
	t := DeviceType(id)
	if _, ok := deviceTypeNames[t]; !ok {
		return Generic, bluest.Errorf(bluest.UnknownDeviceType, "device id 0x%02X", id)
	}
	return t, nil
}
