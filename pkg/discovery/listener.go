package discovery

import (
	"github.com/srg/bluest/pkg/advertising"
	"github.com/srg/bluest/pkg/device"
)

// Listener is told about discovery progress. Callbacks run on the dispatch
// pool; order across listeners is not guaranteed.
type Listener interface {
	OnDiscoveryChange(m *Manager, enabled bool)
	// OnDeviceDiscovered reports a new node. When its advertisement could not
	// be decoded, d is nil and err says why.
	OnDeviceDiscovered(m *Manager, d *device.Device, err error)
	OnAdvertisingDataUpdated(m *Manager, d *device.Device, id *advertising.Identity)
	OnAdvertisingDataUnchanged(m *Manager, d *device.Device, id *advertising.Identity)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	DiscoveryChange func(m *Manager, enabled bool)
	Discovered      func(m *Manager, d *device.Device, err error)
	Updated         func(m *Manager, d *device.Device, id *advertising.Identity)
	Unchanged       func(m *Manager, d *device.Device, id *advertising.Identity)
}

func (l *ListenerFuncs) OnDiscoveryChange(m *Manager, enabled bool) {
	if l.DiscoveryChange != nil {
		l.DiscoveryChange(m, enabled)
	}
}

func (l *ListenerFuncs) OnDeviceDiscovered(m *Manager, d *device.Device, err error) {
	if l.Discovered != nil {
		l.Discovered(m, d, err)
	}
}

func (l *ListenerFuncs) OnAdvertisingDataUpdated(m *Manager, d *device.Device, id *advertising.Identity) {
	if l.Updated != nil {
		l.Updated(m, d, id)
	}
}

func (l *ListenerFuncs) OnAdvertisingDataUnchanged(m *Manager, d *device.Device, id *advertising.Identity) {
	if l.Unchanged != nil {
		l.Unchanged(m, d, id)
	}
}

// EventType marks what an Event reports.
type EventType int

const (
	EventNew EventType = iota
	EventUpdated
	EventUnchanged
	EventInvalid
)

func (t EventType) String() string {
	switch t {
	case EventNew:
		return "new"
	case EventUpdated:
		return "updated"
	case EventUnchanged:
		return "unchanged"
	case EventInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Event is the channel form of the listener callbacks.
type Event struct {
	Type     EventType
	Address  string
	Device   *device.Device
	Identity *advertising.Identity
	Err      error
}
