package feature

import (
	"context"
	"fmt"

	"github.com/srg/bluest/pkg/bluest"
	"github.com/srg/bluest/pkg/numconv"
)

// Phase of the anomaly detection engine.
type Phase uint8

const (
	PhaseIdle        Phase = 0x00
	PhaseLearning    Phase = 0x01
	PhaseDetection   Phase = 0x02
	PhaseIdleTrained Phase = 0x03
	PhaseBusy        Phase = 0x04
	PhaseNone        Phase = 0xFF
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseLearning:
		return "LEARNING"
	case PhaseDetection:
		return "DETECTION"
	case PhaseIdleTrained:
		return "IDLE_TRAINED"
	case PhaseBusy:
		return "BUSY"
	case PhaseNone:
		return "NONE"
	default:
		return fmt.Sprintf("Phase(0x%02X)", uint8(p))
	}
}

// State of the anomaly detection library.
type State uint8

const (
	StateOK                  State = 0x00
	StateInitNotCalled       State = 0x7B
	StateBoardError          State = 0x7C
	StateKnowledgeError      State = 0x7D
	StateNotEnoughLearning   State = 0x7E
	StateMinimalLearningDone State = 0x7F
	StateUnknownError        State = 0x80
	StateNone                State = 0xFF
)

func (s State) String() string {
	switch s {
	case StateOK:
		return "OK"
	case StateInitNotCalled:
		return "INIT_NOT_CALLED"
	case StateBoardError:
		return "BOARD_ERROR"
	case StateKnowledgeError:
		return "KNOWLEDGE_ERROR"
	case StateNotEnoughLearning:
		return "NOT_ENOUGH_LEARNING"
	case StateMinimalLearningDone:
		return "MINIMAL_LEARNING_DONE"
	case StateUnknownError:
		return "UNKNOWN_ERROR"
	case StateNone:
		return "NONE"
	default:
		return fmt.Sprintf("State(0x%02X)", uint8(s))
	}
}

// Status is the detection verdict.
type Status uint8

const (
	StatusNormal  Status = 0x00
	StatusAnomaly Status = 0x01
	StatusNone    Status = 0xFF
)

func (s Status) String() string {
	switch s {
	case StatusNormal:
		return "NORMAL"
	case StatusAnomaly:
		return "ANOMALY"
	case StatusNone:
		return "NONE"
	default:
		return fmt.Sprintf("Status(0x%02X)", uint8(s))
	}
}

// NEAICommand drives the anomaly detection engine.
type NEAICommand uint8

const (
	NEAIStop   NEAICommand = 0x00
	NEAILearn  NEAICommand = 0x01
	NEAIDetect NEAICommand = 0x02
	NEAIReset  NEAICommand = 0xFF
)

const (
	neaiReserved = 2
	neaiValues   = 5
)

var neaiDesc = &Descriptor{Name: "NEAIAnomalyDetection", Fields: []Field{
	{Name: "Phase", Type: FieldUInt8},
	{Name: "State", Type: FieldUInt8},
	{Name: "Progress", Type: FieldUInt8, Range: bounded(0, 100)},
	{Name: "Status", Type: FieldUInt8},
	{Name: "Similarity", Type: FieldUInt8, Range: bounded(0, 100)},
}}

// NEAIAnomalyDetection decodes the NanoEdge AI anomaly detection state. Two
// reserved bytes follow the timestamp before the five state bytes.
type NEAIAnomalyDetection struct{}

func NewNEAIAnomalyDetection() Decoder { return NEAIAnomalyDetection{} }

func (NEAIAnomalyDetection) Descriptor() *Descriptor { return neaiDesc }

func (NEAIAnomalyDetection) Extract(timestamp uint32, data []byte, offset int) (Extracted, error) {
	if err := numconv.Need(data, offset, neaiReserved+neaiValues); err != nil {
		return Extracted{}, err
	}
	values := make([]float64, neaiValues)
	for i := range values {
		values[i] = float64(data[offset+neaiReserved+i])
	}
	return Extracted{
		Sample:   &Sample{Timestamp: timestamp, Values: values, Descriptor: neaiDesc},
		Consumed: neaiReserved + neaiValues,
	}, nil
}

func neaiByte(s *Sample, i int) (uint8, bool) {
	v, ok := s.At(i)
	return uint8(v), ok
}

func (NEAIAnomalyDetection) Phase(s *Sample) Phase {
	if v, ok := neaiByte(s, 0); ok {
		return Phase(v)
	}
	return PhaseNone
}

func (NEAIAnomalyDetection) State(s *Sample) State {
	if v, ok := neaiByte(s, 1); ok {
		return State(v)
	}
	return StateNone
}

func (NEAIAnomalyDetection) Progress(s *Sample) (uint8, bool) { return neaiByte(s, 2) }

func (NEAIAnomalyDetection) Status(s *Sample) Status {
	if v, ok := neaiByte(s, 3); ok {
		return Status(v)
	}
	return StatusNone
}

func (NEAIAnomalyDetection) Similarity(s *Sample) (uint8, bool) { return neaiByte(s, 4) }

// EncodeNEAICommand packs cmd followed by a zero uint32.
func EncodeNEAICommand(cmd NEAICommand) []byte {
	return numconv.AppendUint32LE([]byte{byte(cmd)}, 0)
}

// SendNEAICommand writes cmd to an anomaly detection feature.
func SendNEAICommand(ctx context.Context, f *Feature, cmd NEAICommand) error {
	if _, ok := DecoderAs[NEAIAnomalyDetection](f); !ok {
		return bluest.Errorf(bluest.InvalidOperation, "%s is not an anomaly detection feature", f.Name())
	}
	return f.Write(ctx, EncodeNEAICommand(cmd))
}
