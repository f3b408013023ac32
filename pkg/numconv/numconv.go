// Package numconv decodes and encodes the fixed-width numbers found in
// BlueST payloads. Every reader checks bounds and fails with
// bluest.ErrInsufficientData instead of panicking.
package numconv

import (
	"encoding/binary"
	"math"

	"github.com/srg/bluest/pkg/bluest"
)

// Need verifies that n bytes are available in data starting at off.
func Need(data []byte, off, n int) error {
	if off < 0 || n < 0 || len(data)-off < n {
		return bluest.Errorf(bluest.InsufficientData, "need %d bytes at offset %d, have %d", n, off, max(len(data)-off, 0))
	}
	return nil
}

func Uint8(data []byte, off int) (uint8, error) {
	if err := Need(data, off, 1); err != nil {
		return 0, err
	}
	return data[off], nil
}

func Int8(data []byte, off int) (int8, error) {
	v, err := Uint8(data, off)
	return int8(v), err
}

func Uint16LE(data []byte, off int) (uint16, error) {
	if err := Need(data, off, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(data[off:]), nil
}

func Int16LE(data []byte, off int) (int16, error) {
	v, err := Uint16LE(data, off)
	return int16(v), err
}

func Uint32LE(data []byte, off int) (uint32, error) {
	if err := Need(data, off, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data[off:]), nil
}

func Int32LE(data []byte, off int) (int32, error) {
	v, err := Uint32LE(data, off)
	return int32(v), err
}

// Float32LE reads an IEEE-754 single precision value.
func Float32LE(data []byte, off int) (float32, error) {
	v, err := Uint32LE(data, off)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func Uint16BE(data []byte, off int) (uint16, error) {
	if err := Need(data, off, 2); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(data[off:]), nil
}

func Uint32BE(data []byte, off int) (uint32, error) {
	if err := Need(data, off, 4); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(data[off:]), nil
}

// ----------------------------
// Encoders
// ----------------------------

func AppendUint16LE(b []byte, v uint16) []byte { return binary.LittleEndian.AppendUint16(b, v) }
func AppendUint32LE(b []byte, v uint32) []byte { return binary.LittleEndian.AppendUint32(b, v) }
func AppendUint16BE(b []byte, v uint16) []byte { return binary.BigEndian.AppendUint16(b, v) }
func AppendUint32BE(b []byte, v uint32) []byte { return binary.BigEndian.AppendUint32(b, v) }

func AppendInt16LE(b []byte, v int16) []byte { return AppendUint16LE(b, uint16(v)) }
func AppendInt32LE(b []byte, v int32) []byte { return AppendUint32LE(b, uint32(v)) }

func AppendFloat32LE(b []byte, v float32) []byte {
	return AppendUint32LE(b, math.Float32bits(v))
}
