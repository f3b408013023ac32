package device

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"github.com/srg/bluest/internal/listeners"
	"github.com/srg/bluest/internal/radio"
	"github.com/srg/bluest/pkg/feature"
)

// DefaultConsoleBufferSize is the capacity of each console output buffer.
const DefaultConsoleBufferSize = 4096

// DebugListener receives console traffic. Callbacks run on the device
// dispatcher.
type DebugListener interface {
	OnStdout(c *DebugConsole, msg string)
	OnStderr(c *DebugConsole, msg string)
	OnStdinSent(c *DebugConsole, msg string, err error)
}

// DebugConsole is the text channel of a node exposing the debug service.
// Output notifications are kept in ring buffers until read; when a buffer
// is full the excess bytes are dropped and counted.
type DebugConsole struct {
	device   *Device
	stdinout radio.Characteristic
	stderr   radio.Characteristic

	stdoutBuf *ringbuffer.RingBuffer
	stderrBuf *ringbuffer.RingBuffer

	droppedStdout atomic.Uint64
	droppedStderr atomic.Uint64
	closed        atomic.Bool

	listeners listeners.Set[DebugListener]
}

// buildConsole returns nil unless both debug characteristics are present.
// Called with d.mu held.
func (d *Device) buildConsole(chars []radio.Characteristic) *DebugConsole {
	c := &DebugConsole{
		device:    d,
		stdoutBuf: ringbuffer.New(DefaultConsoleBufferSize),
		stderrBuf: ringbuffer.New(DefaultConsoleBufferSize),
	}
	for _, ch := range chars {
		switch kind, _ := feature.Classify(ch.UUID()); kind {
		case feature.KindDebugStdInOut:
			c.stdinout = ch
		case feature.KindDebugStdErr:
			c.stderr = ch
		}
	}
	if c.stdinout == nil || c.stderr == nil {
		d.logger.WithField("device", d.address).Warn("Debug service is incomplete, console disabled")
		return nil
	}
	d.logger.WithField("device", d.address).Debug("Debug console available")
	return c
}

func (c *DebugConsole) AddListener(l DebugListener)    { c.listeners.Add(l) }
func (c *DebugConsole) RemoveListener(l DebugListener) { c.listeners.Remove(l) }

// Enable subscribes to the stdout and stderr characteristics.
func (c *DebugConsole) Enable(ctx context.Context) error {
	if err := c.device.subscribe(ctx, c.stdinout); err != nil {
		return err
	}
	return c.device.subscribe(ctx, c.stderr)
}

// Disable stops stdout and stderr notifications.
func (c *DebugConsole) Disable(ctx context.Context) error {
	if err := c.device.unsubscribe(ctx, c.stdinout); err != nil {
		return err
	}
	return c.device.unsubscribe(ctx, c.stderr)
}

// Write sends msg to the node stdin, split into MTU sized writes. It returns
// the number of bytes sent.
func (c *DebugConsole) Write(ctx context.Context, msg string) (int, error) {
	if c.closed.Load() {
		return 0, invalidOperation("debug console of %s is closed", c.device.address)
	}
	mtu := c.device.MTU()
	data := []byte(msg)
	sent := 0
	var err error
	for sent < len(data) {
		end := min(sent+mtu, len(data))
		if err = c.device.writeChar(ctx, c.stdinout.Handle(), data[sent:end]); err != nil {
			break
		}
		sent = end
	}

	for _, l := range c.listeners.Snapshot() {
		l := l
		c.device.Dispatch("debug-stdin", func() { l.OnStdinSent(c, msg, err) })
	}
	return sent, err
}

// ReadStdout moves buffered stdout bytes into p. It never blocks.
func (c *DebugConsole) ReadStdout(p []byte) int { return tryRead(c.stdoutBuf, p) }

// ReadStderr moves buffered stderr bytes into p. It never blocks.
func (c *DebugConsole) ReadStderr(p []byte) int { return tryRead(c.stderrBuf, p) }

// Dropped returns the stdout and stderr bytes lost to full buffers.
func (c *DebugConsole) Dropped() (stdout, stderr uint64) {
	return c.droppedStdout.Load(), c.droppedStderr.Load()
}

func tryRead(buf *ringbuffer.RingBuffer, p []byte) int {
	n, err := buf.TryRead(p)
	if err != nil {
		return 0
	}
	return n
}

// owns reports whether handle is one of the console characteristics.
func (c *DebugConsole) owns(handle uint16) bool {
	return handle == c.stdinout.Handle() || handle == c.stderr.Handle()
}

func (c *DebugConsole) onData(handle uint16, data []byte) {
	if c.closed.Load() {
		return
	}
	isErr := handle == c.stderr.Handle()
	buf, dropped, name := c.stdoutBuf, &c.droppedStdout, "stdout"
	if isErr {
		buf, dropped, name = c.stderrBuf, &c.droppedStderr, "stderr"
	}

	written, err := buf.Write(data)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsFull) && !errors.Is(err, ringbuffer.ErrTooMuchDataToWrite) {
		c.device.logger.WithField("device", c.device.address).Warnf("debug %s buffer write error: %v", name, err)
	}
	if written < len(data) {
		lost := len(data) - written
		dropped.Add(uint64(lost))
		c.device.logger.WithFields(logrus.Fields{
			"device":   c.device.address,
			"stream":   name,
			"received": len(data),
			"dropped":  lost,
		}).Warn("Debug console buffer overflow")
	}

	msg := string(data)
	for _, l := range c.listeners.Snapshot() {
		l := l
		if isErr {
			c.device.Dispatch("debug-stderr", func() { l.OnStderr(c, msg) })
		} else {
			c.device.Dispatch("debug-stdout", func() { l.OnStdout(c, msg) })
		}
	}
}

// release closes the console once the link is gone.
func (c *DebugConsole) release() {
	c.closed.Store(true)
	c.listeners.Clear()
}
