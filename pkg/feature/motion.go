package feature

import "github.com/srg/bluest/pkg/numconv"

// Gesture is the value reported by ProximityGesture.
type Gesture uint8

const (
	GestureUnknown Gesture = iota
	GestureTap
	GestureLeft
	GestureRight
	GestureError
)

var gestureNames = [...]string{"UNKNOWN", "TAP", "LEFT", "RIGHT", "ERROR"}

func (g Gesture) String() string {
	if int(g) < len(gestureNames) {
		return gestureNames[g]
	}
	return "ERROR"
}

var proximityGestureDesc = &Descriptor{Name: "Gesture", Fields: []Field{
	{Name: "Gesture", Type: FieldUInt8, Range: bounded(0, float64(GestureError))},
}}

// ProximityGesture reports gestures detected by the proximity sensor.
type ProximityGesture struct{ fixed }

func NewProximityGesture() Decoder {
	return &ProximityGesture{newFixed(proximityGestureDesc, column{wire: FieldUInt8})}
}

// Gesture decodes a ProximityGesture sample. Anything outside the known codes,
// and a missing sample, is GestureError.
func (*ProximityGesture) Gesture(s *Sample) Gesture {
	v, ok := s.At(0)
	if !ok || v < 0 || v > float64(GestureRight) {
		return GestureError
	}
	return Gesture(v)
}

// MemsGestureKind is the value reported by MemsGesture.
type MemsGestureKind uint8

const (
	MemsGestureUnknown MemsGestureKind = iota
	MemsGesturePickUp
	MemsGestureGlance
	MemsGestureWakeUp
	MemsGestureError
)

var memsGestureNames = [...]string{"UNKNOWN", "PICK_UP", "GLANCE", "WAKE_UP", "ERROR"}

func (g MemsGestureKind) String() string {
	if int(g) < len(memsGestureNames) {
		return memsGestureNames[g]
	}
	return "ERROR"
}

var memsGestureDesc = &Descriptor{Name: "MemsGesture", Fields: []Field{
	{Name: "Gesture", Type: FieldUInt8, Range: bounded(0, float64(MemsGestureError))},
}}

type MemsGesture struct{ fixed }

func NewMemsGesture() Decoder {
	return &MemsGesture{newFixed(memsGestureDesc, column{wire: FieldUInt8})}
}

func (*MemsGesture) Gesture(s *Sample) MemsGestureKind {
	v, ok := s.At(0)
	if !ok || v < 0 || v > float64(MemsGestureWakeUp) {
		return MemsGestureError
	}
	return MemsGestureKind(v)
}

// Position is the value reported by CarryPosition.
type Position uint8

const (
	PositionUnknown Position = iota
	PositionOnDesk
	PositionInHand
	PositionNearHead
	PositionShirtPocket
	PositionTrousersPocket
	PositionArmSwing
	PositionError
)

var positionNames = [...]string{
	"UNKNOWN", "ON_DESK", "IN_HAND", "NEAR_HEAD", "SHIRT_POCKET", "TROUSERS_POCKET", "ARM_SWING", "ERROR",
}

func (p Position) String() string {
	if int(p) < len(positionNames) {
		return positionNames[p]
	}
	return "ERROR"
}

var carryPositionDesc = &Descriptor{Name: "CarryPosition", Fields: []Field{
	{Name: "Position", Type: FieldUInt8, Range: bounded(0, float64(PositionError))},
}}

type CarryPosition struct{ fixed }

func NewCarryPosition() Decoder {
	return &CarryPosition{newFixed(carryPositionDesc, column{wire: FieldUInt8})}
}

func (*CarryPosition) Position(s *Sample) Position {
	v, ok := s.At(0)
	if !ok || v < 0 || v > float64(PositionArmSwing) {
		return PositionError
	}
	return Position(v)
}

// Activity is the value reported by ActivityRecognition.
type Activity uint8

const (
	ActivityNone Activity = iota
	ActivityStationary
	ActivityWalking
	ActivityFastWalking
	ActivityJogging
	ActivityBiking
	ActivityDriving
	ActivityStairs
	ActivityAdultInCar
	ActivityError
)

var activityNames = [...]string{
	"NO_ACTIVITY", "STATIONARY", "WALKING", "FASTWALKING", "JOGGING", "BIKING", "DRIVING", "STAIRS", "ADULT_IN_CAR", "ERROR",
}

func (a Activity) String() string {
	if int(a) < len(activityNames) {
		return activityNames[a]
	}
	return "ERROR"
}

var activityDesc = &Descriptor{Name: "ActivityRecognition", Fields: []Field{
	{Name: "Activity", Type: FieldUInt8, Range: bounded(0, float64(ActivityError))},
	{Name: "Algorithm", Type: FieldUInt8, Range: bounded(0, 0xFF)},
}}

// ActivityRecognition carries an activity code optionally followed by the
// id of the algorithm that produced it.
type ActivityRecognition struct{}

func NewActivityRecognition() Decoder { return ActivityRecognition{} }

func (ActivityRecognition) Descriptor() *Descriptor { return activityDesc }

func (ActivityRecognition) Extract(timestamp uint32, data []byte, offset int) (Extracted, error) {
	activity, err := numconv.Uint8(data, offset)
	if err != nil {
		return Extracted{}, err
	}
	values := []float64{float64(activity)}
	if algo, err := numconv.Uint8(data, offset+1); err == nil {
		values = append(values, float64(algo))
	}
	return Extracted{
		Sample:   &Sample{Timestamp: timestamp, Values: values, Descriptor: activityDesc},
		Consumed: len(values),
	}, nil
}

func (ActivityRecognition) Activity(s *Sample) Activity {
	v, ok := s.At(0)
	if !ok || v < 0 || v > float64(ActivityAdultInCar) {
		return ActivityError
	}
	return Activity(v)
}

// Algorithm returns the algorithm id, if the sample carried one.
func (ActivityRecognition) Algorithm(s *Sample) (uint8, bool) {
	v, ok := s.At(1)
	return uint8(v), ok
}
