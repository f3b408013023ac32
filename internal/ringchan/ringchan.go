// Package ringchan provides a bounded channel that never blocks producers:
// when full, the oldest queued element makes room for the new one.
package ringchan

import (
	"sync"
	"sync/atomic"
)

// RingChannel is a bounded FIFO with overwrite-oldest semantics. Readers may
// range over C(); Receive and TryReceive additionally count processed items.
type RingChannel[T any] struct {
	ch chan T

	// closeMu orders Close against in-flight sends.
	closeMu sync.RWMutex
	closed  bool

	metrics metrics
}

// New returns a RingChannel holding up to capacity elements.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the receive side. Reads through it are not counted as processed.
func (rc *RingChannel[T]) C() <-chan T { return rc.ch }

// TrySend queues v if there is room. It returns false when the channel is
// full or closed.
func (rc *RingChannel[T]) TrySend(v T) bool {
	rc.closeMu.RLock()
	defer rc.closeMu.RUnlock()
	if rc.closed {
		return false
	}
	select {
	case rc.ch <- v:
		rc.metrics.written.Add(1)
		return true
	default:
		return false
	}
}

// ForceSend queues v, evicting the oldest elements until it fits. It reports
// whether anything was evicted. Sending on a closed channel is a no-op.
func (rc *RingChannel[T]) ForceSend(v T) (evicted bool) {
	rc.closeMu.RLock()
	defer rc.closeMu.RUnlock()
	if rc.closed {
		rc.metrics.errors.Add(1)
		return false
	}
	for {
		select {
		case rc.ch <- v:
			rc.metrics.written.Add(1)
			return evicted
		default:
		}
		select {
		case <-rc.ch:
			rc.metrics.overwritten.Add(1)
			evicted = true
		default:
		}
	}
}

// Receive blocks until a value is available. ok is false once the channel is
// closed and drained.
func (rc *RingChannel[T]) Receive() (v T, ok bool) {
	v, ok = <-rc.ch
	if ok {
		rc.metrics.processed.Add(1)
	}
	return v, ok
}

// TryReceive returns the next value without blocking.
func (rc *RingChannel[T]) TryReceive() (v T, ok bool) {
	select {
	case v, ok = <-rc.ch:
		if ok {
			rc.metrics.processed.Add(1)
		}
		return v, ok
	default:
		return v, false
	}
}

func (rc *RingChannel[T]) Len() int { return len(rc.ch) }
func (rc *RingChannel[T]) Cap() int { return cap(rc.ch) }

// Close stops accepting values. Queued values stay readable. Close is
// idempotent.
func (rc *RingChannel[T]) Close() {
	rc.closeMu.Lock()
	defer rc.closeMu.Unlock()
	if rc.closed {
		return
	}
	rc.closed = true
	close(rc.ch)
}

// Metrics is a point-in-time copy of the channel counters.
type Metrics struct {
	Processed   int64
	Written     int64
	Overwritten int64
	Errors      int64
}

type metrics struct {
	processed   atomic.Int64
	written     atomic.Int64
	overwritten atomic.Int64
	errors      atomic.Int64
}

// GetMetrics returns the current counters. Errors counts sends after Close.
func (rc *RingChannel[T]) GetMetrics() Metrics {
	return Metrics{
		Processed:   rc.metrics.processed.Load(),
		Written:     rc.metrics.written.Load(),
		Overwritten: rc.metrics.overwritten.Load(),
		Errors:      rc.metrics.errors.Load(),
	}
}
