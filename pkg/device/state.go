package device

import "fmt"

// State is the connection status of a Device.
type State int

const (
	StateInit State = iota
	// StateIdle means the device advertises and waits for a connection.
	StateIdle
	StateConnecting
	StateConnected
	StateDisconnecting
	// StateUnreachable means the link dropped without a disconnect request.
	StateUnreachable
	// StateDead is terminal: the device left the discovery registry.
	StateDead
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateDisconnecting:
		return "DISCONNECTING"
	case StateUnreachable:
		return "UNREACHABLE"
	case StateDead:
		return "DEAD"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Listener is told when a device reaches CONNECTED or returns to IDLE.
// Callbacks run on the dispatch pool; order across listeners is not
// guaranteed.
type Listener interface {
	OnConnect(d *Device)
	OnDisconnect(d *Device, unexpected bool)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Connect    func(d *Device)
	Disconnect func(d *Device, unexpected bool)
}

func (l *ListenerFuncs) OnConnect(d *Device) {
	if l.Connect != nil {
		l.Connect(d)
	}
}

func (l *ListenerFuncs) OnDisconnect(d *Device, unexpected bool) {
	if l.Disconnect != nil {
		l.Disconnect(d, unexpected)
	}
}
