package feature

import (
	"fmt"
	"strconv"
	"strings"
)

// CharacteristicKind classifies a characteristic by its UUID.
type CharacteristicKind int

const (
	KindOther CharacteristicKind = iota
	KindBase
	KindExtended
	KindDebugStdInOut
	KindDebugStdErr
	KindCommand
)

func (k CharacteristicKind) String() string {
	switch k {
	case KindBase:
		return "base"
	case KindExtended:
		return "extended"
	case KindDebugStdInOut:
		return "debug-stdinout"
	case KindDebugStdErr:
		return "debug-stderr"
	case KindCommand:
		return "command"
	default:
		return "other"
	}
}

// BlueST UUIDs, normalized: lowercase hex without dashes.
const (
	baseSuffix     = "000111e1ac360002a5d5c51b"
	extendedSuffix = "000211e1ac360002a5d5c51b"

	DebugServiceUUID  = "00000000000e11e19ab40002a5d5c51b"
	DebugStdInOutUUID = "00000001000e11e1ac360002a5d5c51b"
	DebugStdErrUUID   = "00000002000e11e1ac360002a5d5c51b"
	CommandUUID       = "00000002000f11e1ac360002a5d5c51b"
)

// NormalizeUUID lowercases a UUID and strips dashes, braces and a 0x prefix.
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(strings.TrimSpace(uuid))
	u = strings.TrimPrefix(u, "0x")
	return strings.NewReplacer("-", "", "{", "", "}", "").Replace(u)
}

// FormatUUID renders a normalized 128-bit UUID in the dashed 8-4-4-4-12 form.
func FormatUUID(uuid string) string {
	u := NormalizeUUID(uuid)
	if len(u) != 32 {
		return u
	}
	return u[0:8] + "-" + u[8:12] + "-" + u[12:16] + "-" + u[16:20] + "-" + u[20:32]
}

// BaseUUID returns the characteristic UUID declaring the base features in mask.
func BaseUUID(mask uint32) string {
	return fmt.Sprintf("%08x%s", mask, baseSuffix)
}

// ExtendedUUID returns the characteristic UUID of the extended feature id.
func ExtendedUUID(id uint32) string {
	return fmt.Sprintf("%08x%s", id, extendedSuffix)
}

// Classify returns the kind of a characteristic and, for base and extended
// characteristics, the mask carried in its first 32 bits.
func Classify(uuid string) (CharacteristicKind, uint32) {
	u := NormalizeUUID(uuid)
	switch u {
	case DebugStdInOutUUID:
		return KindDebugStdInOut, 0
	case DebugStdErrUUID:
		return KindDebugStdErr, 0
	case CommandUUID:
		return KindCommand, 0
	}
	mask, ok := ExtractMask(u)
	if !ok {
		return KindOther, 0
	}
	switch u[8:] {
	case baseSuffix:
		return KindBase, mask
	case extendedSuffix:
		return KindExtended, mask
	}
	return KindOther, 0
}

// ExtractMask returns the first 32 bits of a 128-bit UUID.
func ExtractMask(uuid string) (uint32, bool) {
	u := NormalizeUUID(uuid)
	if len(u) != 32 {
		return 0, false
	}
	mask, err := strconv.ParseUint(u[:8], 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(mask), true
}

// IsDebugService reports whether uuid is the BlueST debug service.
func IsDebugService(uuid string) bool {
	return NormalizeUUID(uuid) == DebugServiceUUID
}
