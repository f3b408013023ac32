// Package transport implements the BlueST fragmentation protocol used to carry
// textual messages over MTU bounded characteristic writes and notifications.
//
// Frame layout:
//
//	START      [0x00][len_hi][len_lo][payload]
//	START_END  [0x20][len_hi][len_lo][payload]
//	MIDDLE     [0x40][payload]
//	END        [0x80][payload]
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/srg/bluest/pkg/bluest"
	"github.com/srg/bluest/pkg/numconv"
)

// FrameKind is the first byte of every frame.
type FrameKind byte

const (
	FrameStart    FrameKind = 0x00
	FrameStartEnd FrameKind = 0x20
	FrameMiddle   FrameKind = 0x40
	FrameEnd      FrameKind = 0x80
)

func (k FrameKind) String() string {
	switch k {
	case FrameStart:
		return "START"
	case FrameStartEnd:
		return "START_END"
	case FrameMiddle:
		return "MIDDLE"
	case FrameEnd:
		return "END"
	default:
		return fmt.Sprintf("FrameKind(0x%02X)", byte(k))
	}
}

const (
	DefaultMTU = 20
	MaxMTU     = 255
	// STM32L4BurstSize is the write granularity of STM32L4 targets; negotiated
	// MTUs are rounded down to a multiple of it.
	STM32L4BurstSize = 8
	// MinMTU leaves room for the START header plus one payload byte.
	MinMTU = 4

	headerSize      = 1
	startHeaderSize = 3
)

var (
	// ErrOutOfSequence is returned when a MIDDLE or END frame arrives with
	// no message in progress.
	ErrOutOfSequence = errors.New("transport: frame out of sequence")
	// ErrUnknownFrame is returned for an unrecognised frame kind.
	ErrUnknownFrame = errors.New("transport: unknown frame kind")
	// ErrMessageInFlight is returned by Send while another message is being written.
	ErrMessageInFlight = bluest.Errorf(bluest.InvalidOperation, "transport: message already in flight")
)

// AlignMTU rounds a negotiated MTU down to the STM32L4 burst size, bounded by
// [DefaultMTU, MaxMTU].
func AlignMTU(mtu int) int {
	mtu = min(mtu, MaxMTU)
	mtu -= mtu % STM32L4BurstSize
	return max(mtu, DefaultMTU)
}

// Encapsulate splits message into frames no larger than mtu bytes.
func Encapsulate(message string, mtu int) ([][]byte, error) {
	if mtu < MinMTU {
		return nil, bluest.Errorf(bluest.InvalidOperation, "mtu %d below minimum %d", mtu, MinMTU)
	}
	msg := []byte(message)
	if len(msg) > 0xFFFF {
		return nil, bluest.Errorf(bluest.InvalidOperation, "message of %d bytes exceeds 16-bit length prefix", len(msg))
	}

	header := func(kind FrameKind, chunk []byte) []byte {
		frame := make([]byte, 0, startHeaderSize+len(chunk))
		frame = append(frame, byte(kind))
		frame = numconv.AppendUint16BE(frame, uint16(len(msg)))
		return append(frame, chunk...)
	}

	if len(msg) <= mtu-startHeaderSize {
		return [][]byte{header(FrameStartEnd, msg)}, nil
	}

	frames := [][]byte{header(FrameStart, msg[:mtu-startHeaderSize])}
	rest := msg[mtu-startHeaderSize:]
	for len(rest) > mtu-headerSize {
		frame := append([]byte{byte(FrameMiddle)}, rest[:mtu-headerSize]...)
		frames = append(frames, frame)
		rest = rest[mtu-headerSize:]
	}
	frames = append(frames, append([]byte{byte(FrameEnd)}, rest...))
	return frames, nil
}

// Stats holds reassembly counters for the message in progress or the last
// completed one.
type Stats struct {
	ReceivedBytes   int
	ReceivedPackets int
	DeclaredLength  int
}

// Protocol is one transport session: an outbound path allowing a single
// message in flight and an inbound reassembly buffer.
type Protocol struct {
	mu      sync.Mutex
	mtu     int
	buf     []byte
	started bool
	stats   Stats

	sending atomic.Bool
}

// New creates a session for the given MTU; values below MinMTU select DefaultMTU.
func New(mtu int) *Protocol {
	if mtu < MinMTU {
		mtu = DefaultMTU
	}
	return &Protocol{mtu: mtu}
}

func (p *Protocol) MTU() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mtu
}

func (p *Protocol) SetMTU(mtu int) {
	if mtu < MinMTU {
		return
	}
	p.mu.Lock()
	p.mtu = mtu
	p.mu.Unlock()
}

// Encapsulate splits message using the session MTU.
func (p *Protocol) Encapsulate(message string) ([][]byte, error) {
	return Encapsulate(message, p.MTU())
}

// Send encapsulates message and hands every frame to write, in order. A
// second Send while one is running fails with ErrMessageInFlight.
func (p *Protocol) Send(ctx context.Context, message string, write func(ctx context.Context, frame []byte) error) error {
	if !p.sending.CompareAndSwap(false, true) {
		return ErrMessageInFlight
	}
	defer p.sending.Store(false)

	frames, err := p.Encapsulate(message)
	if err != nil {
		return err
	}
	for i, frame := range frames {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := write(ctx, frame); err != nil {
			return fmt.Errorf("write frame %d/%d: %w", i+1, len(frames), err)
		}
	}
	return nil
}

// Decapsulate feeds one received frame into the reassembly buffer. It returns
// the message and true once a START_END or END frame completes it.
func (p *Protocol) Decapsulate(frame []byte) (string, bool, error) {
	if len(frame) == 0 {
		return "", false, bluest.Errorf(bluest.InsufficientData, "empty frame")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	kind := FrameKind(frame[0])
	payload := frame[headerSize:]

	switch kind {
	case FrameStart, FrameStartEnd:
		declared, err := numconv.Uint16BE(frame, headerSize)
		if err != nil {
			p.resetLocked()
			return "", false, err
		}
		payload = frame[startHeaderSize:]
		p.buf = append(p.buf[:0], payload...)
		p.started = true
		p.stats = Stats{ReceivedBytes: len(payload), ReceivedPackets: 1, DeclaredLength: int(declared)}
	case FrameMiddle, FrameEnd:
		if !p.started {
			return "", false, fmt.Errorf("%w: %s", ErrOutOfSequence, kind)
		}
		p.buf = append(p.buf, payload...)
		p.stats.ReceivedBytes += len(payload)
		p.stats.ReceivedPackets++
	default:
		return "", false, fmt.Errorf("%w: 0x%02X", ErrUnknownFrame, frame[0])
	}

	if kind != FrameStartEnd && kind != FrameEnd {
		return "", false, nil
	}

	msg := p.buf
	if n := len(msg); n > 0 && msg[n-1] == 0 {
		msg = msg[:n-1]
		p.stats.ReceivedBytes--
	}
	out := string(msg)
	p.buf = p.buf[:0]
	p.started = false
	return out, true, nil
}

// Stats returns the reassembly counters.
func (p *Protocol) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Reset drops any partially reassembled message.
func (p *Protocol) Reset() {
	p.mu.Lock()
	p.resetLocked()
	p.mu.Unlock()
}

func (p *Protocol) resetLocked() {
	p.buf = p.buf[:0]
	p.started = false
	p.stats = Stats{}
}
