package feature

import (
	"fmt"
	"strconv"
	"strings"
)

// FieldType is the wire type a field is decoded from.
type FieldType int

const (
	FieldFloat FieldType = iota
	FieldInt8
	FieldUInt8
	FieldInt16
	FieldUInt16
	FieldInt32
	FieldUInt32
	FieldString
	FieldJSON
)

func (t FieldType) String() string {
	switch t {
	case FieldFloat:
		return "Float"
	case FieldInt8:
		return "Int8"
	case FieldUInt8:
		return "UInt8"
	case FieldInt16:
		return "Int16"
	case FieldUInt16:
		return "UInt16"
	case FieldInt32:
		return "Int32"
	case FieldUInt32:
		return "UInt32"
	case FieldString:
		return "String"
	case FieldJSON:
		return "JSON"
	default:
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
}

// Range bounds a numeric field.
type Range struct {
	Min float64
	Max float64
}

// Field describes one value of a sample.
type Field struct {
	Name  string
	Unit  string
	Type  FieldType
	Range *Range
}

// Descriptor is the static description of a feature. It is shared read-only
// by every instance of the same decoder.
type Descriptor struct {
	Name   string
	Fields []Field
}

// FieldIndex returns the position of the named field, or -1.
func (d *Descriptor) FieldIndex(name string) int {
	for i, f := range d.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Sample is one immutable decoded update.
type Sample struct {
	Timestamp  uint32
	Values     []float64
	Text       string
	Descriptor *Descriptor
}

// Value returns the value of the named field.
func (s *Sample) Value(name string) (float64, bool) {
	if s == nil || s.Descriptor == nil {
		return 0, false
	}
	i := s.Descriptor.FieldIndex(name)
	if i < 0 || i >= len(s.Values) {
		return 0, false
	}
	return s.Values[i], true
}

// At returns the i-th value, or false when the sample holds fewer values.
func (s *Sample) At(i int) (float64, bool) {
	if s == nil || i < 0 || i >= len(s.Values) {
		return 0, false
	}
	return s.Values[i], true
}

func (s *Sample) String() string {
	if s == nil {
		return "<no sample>"
	}
	var b strings.Builder
	name := ""
	if s.Descriptor != nil {
		name = s.Descriptor.Name
	}
	fmt.Fprintf(&b, "%s(%d):", name, s.Timestamp)
	if s.Text != "" {
		b.WriteString(" ")
		b.WriteString(s.Text)
		return b.String()
	}
	for i, v := range s.Values {
		label, unit := fmt.Sprintf("#%d", i), ""
		if s.Descriptor != nil && i < len(s.Descriptor.Fields) {
			label, unit = s.Descriptor.Fields[i].Name, s.Descriptor.Fields[i].Unit
		}
		fmt.Fprintf(&b, " %s: %s", label, strconv.FormatFloat(v, 'f', -1, 64))
		if unit != "" {
			fmt.Fprintf(&b, " %s", unit)
		}
	}
	return b.String()
}
