package feature

import (
	"github.com/srg/bluest/pkg/bluest"
	"github.com/srg/bluest/pkg/numconv"
)

// column is one value as it sits on the wire. scale divides the raw value;
// zero means 1.
type column struct {
	wire  FieldType
	scale float64
}

func wireSize(t FieldType) int {
	switch t {
	case FieldInt8, FieldUInt8:
		return 1
	case FieldInt16, FieldUInt16:
		return 2
	case FieldInt32, FieldUInt32, FieldFloat:
		return 4
	default:
		return 0
	}
}

func readColumn(data []byte, off int, c column) (float64, error) {
	var v float64
	switch c.wire {
	case FieldInt8:
		x, err := numconv.Int8(data, off)
		if err != nil {
			return 0, err
		}
		v = float64(x)
	case FieldUInt8:
		x, err := numconv.Uint8(data, off)
		if err != nil {
			return 0, err
		}
		v = float64(x)
	case FieldInt16:
		x, err := numconv.Int16LE(data, off)
		if err != nil {
			return 0, err
		}
		v = float64(x)
	case FieldUInt16:
		x, err := numconv.Uint16LE(data, off)
		if err != nil {
			return 0, err
		}
		v = float64(x)
	case FieldInt32:
		x, err := numconv.Int32LE(data, off)
		if err != nil {
			return 0, err
		}
		v = float64(x)
	case FieldUInt32:
		x, err := numconv.Uint32LE(data, off)
		if err != nil {
			return 0, err
		}
		v = float64(x)
	case FieldFloat:
		x, err := numconv.Float32LE(data, off)
		if err != nil {
			return 0, err
		}
		v = float64(x)
	default:
		return 0, bluest.Errorf(bluest.InvalidOperation, "column type %s is not numeric", c.wire)
	}
	if c.scale != 0 {
		v /= c.scale
	}
	return v, nil
}

// fixed decodes a constant-size sequence of little-endian numbers.
type fixed struct {
	desc *Descriptor
	cols []column
	size int
}

func newFixed(desc *Descriptor, cols ...column) fixed {
	n := 0
	for _, c := range cols {
		n += wireSize(c.wire)
	}
	return fixed{desc: desc, cols: cols, size: n}
}

func (d fixed) Descriptor() *Descriptor { return d.desc }

// Size is the number of payload bytes one sample takes.
func (d fixed) Size() int { return d.size }

func (d fixed) Extract(timestamp uint32, data []byte, offset int) (Extracted, error) {
	if err := numconv.Need(data, offset, d.size); err != nil {
		return Extracted{}, err
	}
	values := make([]float64, len(d.cols))
	off := offset
	for i, c := range d.cols {
		v, err := readColumn(data, off, c)
		if err != nil {
			return Extracted{}, err
		}
		values[i] = v
		off += wireSize(c.wire)
	}
	return Extracted{
		Sample:   &Sample{Timestamp: timestamp, Values: values, Descriptor: d.desc},
		Consumed: d.size,
	}, nil
}

func bounded(min, max float64) *Range { return &Range{Min: min, Max: max} }
