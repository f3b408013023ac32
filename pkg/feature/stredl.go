package feature

import "fmt"

const stredlRegisters = 8

var stredlDesc = func() *Descriptor {
	d := &Descriptor{Name: "STREDL"}
	for i := 1; i <= stredlRegisters; i++ {
		d.Fields = append(d.Fields, Field{Name: fmt.Sprintf("Register_%d", i), Type: FieldUInt8, Range: bounded(0, 0xFF)})
	}
	return d
}()

// STREDL exposes the eight machine learning core registers of the sensor.
type STREDL struct{ fixed }

func NewSTREDL() Decoder {
	cols := make([]column, stredlRegisters)
	for i := range cols {
		cols[i] = column{wire: FieldUInt8}
	}
	return &STREDL{newFixed(stredlDesc, cols...)}
}

// Register returns register n, 1-based.
func (*STREDL) Register(s *Sample, n int) (uint8, bool) {
	v, ok := s.At(n - 1)
	return uint8(v), ok
}
