package feature

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/srg/bluest/pkg/bluest"
	"github.com/srg/bluest/pkg/transport"
)

const pnplDevicesKey = "devices"

var pnplDesc = &Descriptor{Name: "PnPLike", Fields: []Field{
	{Name: "PnPLike", Type: FieldJSON},
}}

// PnPLDevice is the device status carried by a PnPLike message.
type PnPLDevice struct {
	BoardID      *int             `json:"board_id,omitempty"`
	FirmwareID   *int             `json:"fw_id,omitempty"`
	SerialNumber *string          `json:"sn,omitempty"`
	Components   []map[string]any `json:"components"`
}

type pnplResponse struct {
	Devices []PnPLDevice `json:"devices"`
}

// PnPLike exchanges JSON documents framed by the transport protocol. A
// sample is produced only when a message is complete; its Text holds the
// JSON document.
type PnPLike struct {
	proto *transport.Protocol
}

func NewPnPLike() Decoder {
	return &PnPLike{proto: transport.New(transport.DefaultMTU)}
}

func (*PnPLike) Framed() {}

func (*PnPLike) Descriptor() *Descriptor { return pnplDesc }

// SetMTU adjusts the size of outgoing frames to the negotiated link MTU.
func (p *PnPLike) SetMTU(mtu int) { p.proto.SetMTU(mtu) }

// Transport exposes the framing session, mostly for its counters.
func (p *PnPLike) Transport() *transport.Protocol { return p.proto }

func (p *PnPLike) Extract(timestamp uint32, data []byte, offset int) (Extracted, error) {
	if offset > len(data) {
		return Extracted{}, bluest.Errorf(bluest.InsufficientData, "offset %d beyond %d bytes", offset, len(data))
	}
	frame := data[offset:]
	msg, done, err := p.proto.Decapsulate(frame)
	if err != nil {
		return Extracted{}, err
	}
	if !done {
		return Extracted{Consumed: len(frame)}, nil
	}
	if !json.Valid([]byte(msg)) {
		return Extracted{}, fmt.Errorf("pnpl message is not valid JSON (%d bytes)", len(msg))
	}
	return Extracted{
		Sample:   &Sample{Timestamp: timestamp, Text: msg, Descriptor: pnplDesc},
		Consumed: len(frame),
	}, nil
}

// DeviceStatus parses a PnPLike sample. A document with a "devices" array
// yields its first device; any other object is treated as a single component.
func (*PnPLike) DeviceStatus(s *Sample) (*PnPLDevice, error) {
	if s == nil || s.Text == "" {
		return nil, bluest.Errorf(bluest.InsufficientData, "empty pnpl sample")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s.Text), &obj); err != nil {
		return nil, fmt.Errorf("decode pnpl message: %w", err)
	}
	if _, ok := obj[pnplDevicesKey]; ok {
		var resp pnplResponse
		if err := json.Unmarshal([]byte(s.Text), &resp); err != nil {
			return nil, fmt.Errorf("decode pnpl devices: %w", err)
		}
		if len(resp.Devices) == 0 {
			return nil, nil
		}
		return &resp.Devices[0], nil
	}
	var component map[string]any
	if err := json.Unmarshal([]byte(s.Text), &component); err != nil {
		return nil, fmt.Errorf("decode pnpl component: %w", err)
	}
	return &PnPLDevice{Components: []map[string]any{component}}, nil
}

// SendPnPLCommand frames command and writes it to a PnPLike feature one
// frame at a time.
func SendPnPLCommand(ctx context.Context, f *Feature, command string) error {
	p, ok := DecoderAs[*PnPLike](f)
	if !ok {
		return bluest.Errorf(bluest.InvalidOperation, "%s is not a PnPLike feature", f.Name())
	}
	return p.proto.Send(ctx, command, f.Write)
}
