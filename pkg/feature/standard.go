package feature

import "github.com/srg/bluest/pkg/numconv"

// Base feature masks.
const (
	MaskSwitch              uint32 = 0x20000000
	MaskMicLevel            uint32 = 0x04000000
	MaskProximity           uint32 = 0x02000000
	MaskLuminosity          uint32 = 0x01000000
	MaskAccelerometer       uint32 = 0x00800000
	MaskGyroscope           uint32 = 0x00400000
	MaskMagnetometer        uint32 = 0x00200000
	MaskPressure            uint32 = 0x00100000
	MaskHumidity            uint32 = 0x00080000
	MaskTemperature         uint32 = 0x00040000
	MaskBattery             uint32 = 0x00020000
	MaskTemperature2        uint32 = 0x00010000
	MaskCompass             uint32 = 0x00000040
	MaskMotionIntensity     uint32 = 0x00000020
	MaskActivityRecognition uint32 = 0x00000010
	MaskCarryPosition       uint32 = 0x00000008
	MaskProximityGesture    uint32 = 0x00000004
	MaskMemsGesture         uint32 = 0x00000002
	MaskPedometer           uint32 = 0x00000001
)

// Extended feature ids.
const (
	ExtSTREDL               uint32 = 0x14
	ExtNEAIAnomalyDetection uint32 = 0x19
	ExtPnPLike              uint32 = 0x1B
)

var standardBase = map[uint32]Constructor{
	MaskSwitch:              NewSwitch,
	MaskMicLevel:            NewMicLevel,
	MaskProximity:           NewProximity,
	MaskLuminosity:          NewLuminosity,
	MaskAccelerometer:       NewAccelerometer,
	MaskGyroscope:           NewGyroscope,
	MaskMagnetometer:        NewMagnetometer,
	MaskPressure:            NewPressure,
	MaskHumidity:            NewHumidity,
	MaskTemperature:         NewTemperature,
	MaskBattery:             NewBattery,
	MaskTemperature2:        NewTemperature,
	MaskCompass:             NewCompass,
	MaskMotionIntensity:     NewMotionIntensity,
	MaskActivityRecognition: NewActivityRecognition,
	MaskCarryPosition:       NewCarryPosition,
	MaskProximityGesture:    NewProximityGesture,
	MaskMemsGesture:         NewMemsGesture,
	MaskPedometer:           NewPedometer,
}

var standardExtended = map[uint32]Constructor{
	ExtSTREDL:               NewSTREDL,
	ExtNEAIAnomalyDetection: NewNEAIAnomalyDetection,
	ExtPnPLike:              NewPnPLike,
}

// ----------------------------
// Environmental
// ----------------------------

var (
	temperatureDesc = &Descriptor{Name: "Temperature", Fields: []Field{
		{Name: "Temperature", Unit: "°C", Type: FieldFloat, Range: bounded(-100, 100)},
	}}
	humidityDesc = &Descriptor{Name: "Humidity", Fields: []Field{
		{Name: "Humidity", Unit: "%", Type: FieldFloat, Range: bounded(0, 100)},
	}}
	pressureDesc = &Descriptor{Name: "Pressure", Fields: []Field{
		{Name: "Pressure", Unit: "mBar", Type: FieldFloat, Range: bounded(0, 2000)},
	}}
	luminosityDesc = &Descriptor{Name: "Luminosity", Fields: []Field{
		{Name: "Luminosity", Unit: "Lux", Type: FieldUInt16, Range: bounded(0, 1000)},
	}}
	proximityDesc = &Descriptor{Name: "Proximity", Fields: []Field{
		{Name: "Proximity", Unit: "mm", Type: FieldUInt16, Range: bounded(0, 0xFFFF)},
	}}
)

func NewTemperature() Decoder { return newFixed(temperatureDesc, column{wire: FieldInt16, scale: 10}) }
func NewHumidity() Decoder    { return newFixed(humidityDesc, column{wire: FieldUInt16, scale: 10}) }
func NewPressure() Decoder    { return newFixed(pressureDesc, column{wire: FieldInt32, scale: 100}) }
func NewLuminosity() Decoder  { return newFixed(luminosityDesc, column{wire: FieldUInt16}) }
func NewProximity() Decoder   { return newFixed(proximityDesc, column{wire: FieldUInt16}) }

// ----------------------------
// Inertial
// ----------------------------

func axes(name, unit string, limit float64, typ FieldType) *Descriptor {
	return &Descriptor{Name: name, Fields: []Field{
		{Name: "X", Unit: unit, Type: typ, Range: bounded(-limit, limit)},
		{Name: "Y", Unit: unit, Type: typ, Range: bounded(-limit, limit)},
		{Name: "Z", Unit: unit, Type: typ, Range: bounded(-limit, limit)},
	}}
}

var (
	accelerometerDesc = axes("Accelerometer", "mg", 2000, FieldInt16)
	gyroscopeDesc     = axes("Gyroscope", "dps", 2000, FieldFloat)
	magnetometerDesc  = axes("Magnetometer", "mGa", 2000, FieldInt16)
	compassDesc       = &Descriptor{Name: "Compass", Fields: []Field{
		{Name: "Angle", Unit: "°", Type: FieldFloat, Range: bounded(0, 360)},
	}}
)

func NewAccelerometer() Decoder {
	c := column{wire: FieldInt16}
	return newFixed(accelerometerDesc, c, c, c)
}

func NewGyroscope() Decoder {
	c := column{wire: FieldInt16, scale: 10}
	return newFixed(gyroscopeDesc, c, c, c)
}

func NewMagnetometer() Decoder {
	c := column{wire: FieldInt16}
	return newFixed(magnetometerDesc, c, c, c)
}

func NewCompass() Decoder { return newFixed(compassDesc, column{wire: FieldUInt16, scale: 100}) }

// ----------------------------
// Power and inputs
// ----------------------------

// BatteryStatus is the charger state reported by the Battery feature.
type BatteryStatus uint8

const (
	BatteryLowBattery         BatteryStatus = 0x00
	BatteryDischarging        BatteryStatus = 0x01
	BatteryPluggedNotCharging BatteryStatus = 0x02
	BatteryCharging           BatteryStatus = 0x03
	BatteryUnknown            BatteryStatus = 0xFF
)

func (s BatteryStatus) String() string {
	switch s {
	case BatteryLowBattery:
		return "Low battery"
	case BatteryDischarging:
		return "Discharging"
	case BatteryPluggedNotCharging:
		return "Plugged not charging"
	case BatteryCharging:
		return "Charging"
	default:
		return "Unknown"
	}
}

var batteryDesc = &Descriptor{Name: "Battery", Fields: []Field{
	{Name: "Level", Unit: "%", Type: FieldFloat, Range: bounded(0, 100)},
	{Name: "Voltage", Unit: "V", Type: FieldFloat, Range: bounded(-10, 10)},
	{Name: "Current", Unit: "mA", Type: FieldInt16, Range: bounded(-0x8000, 0x7FFF)},
	{Name: "Status", Type: FieldUInt8, Range: bounded(0, 0xFF)},
}}

// Battery decodes level, voltage, current and charger status.
type Battery struct{ fixed }

func NewBattery() Decoder {
	return &Battery{newFixed(batteryDesc,
		column{wire: FieldInt16, scale: 10},
		column{wire: FieldInt16, scale: 1000},
		column{wire: FieldInt16},
		column{wire: FieldUInt8},
	)}
}

// Status returns the charger state of a Battery sample.
func (*Battery) Status(s *Sample) BatteryStatus {
	v, ok := s.At(3)
	if !ok {
		return BatteryUnknown
	}
	return BatteryStatus(uint8(v))
}

var switchDesc = &Descriptor{Name: "Switch", Fields: []Field{
	{Name: "Status", Type: FieldUInt8, Range: bounded(0, 1)},
}}

func NewSwitch() Decoder { return newFixed(switchDesc, column{wire: FieldUInt8}) }

var micLevelDesc = &Descriptor{Name: "MicLevel", Fields: []Field{
	{Name: "Mic", Unit: "dB", Type: FieldUInt8, Range: bounded(0, 128)},
}}

// MicLevel reports one level per microphone; the number of microphones is
// the number of bytes left in the payload.
type MicLevel struct{}

func NewMicLevel() Decoder { return MicLevel{} }

func (MicLevel) Descriptor() *Descriptor { return micLevelDesc }

func (MicLevel) Extract(timestamp uint32, data []byte, offset int) (Extracted, error) {
	if err := numconv.Need(data, offset, 1); err != nil {
		return Extracted{}, err
	}
	values := make([]float64, 0, len(data)-offset)
	for _, b := range data[offset:] {
		values = append(values, float64(b))
	}
	return Extracted{
		Sample:   &Sample{Timestamp: timestamp, Values: values, Descriptor: micLevelDesc},
		Consumed: len(values),
	}, nil
}

// ----------------------------
// Motion algorithms
// ----------------------------

var (
	motionIntensityDesc = &Descriptor{Name: "MotionIntensity", Fields: []Field{
		{Name: "Intensity", Type: FieldUInt8, Range: bounded(0, 10)},
	}}
	pedometerDesc = &Descriptor{Name: "Pedometer", Fields: []Field{
		{Name: "Steps", Type: FieldUInt32, Range: bounded(0, 1<<32-1)},
		{Name: "Frequency", Unit: "steps/min", Type: FieldUInt16, Range: bounded(0, 0xFFFF)},
	}}
)

func NewMotionIntensity() Decoder { return newFixed(motionIntensityDesc, column{wire: FieldUInt8}) }

func NewPedometer() Decoder {
	return newFixed(pedometerDesc, column{wire: FieldUInt32}, column{wire: FieldUInt16})
}
