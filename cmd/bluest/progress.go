package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/srg/bluest/internal/groutine"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter keeps one status line updated with a countdown and a
// counter, e.g. "Scanning (7s, 3 nodes)".
//
//	p := NewProgressPrinter(w, "Scanning", 10*time.Second)
//	p.Start()
//	defer p.Stop()
//
// A ProgressPrinter is single-use.
type ProgressPrinter struct {
	w        io.Writer
	prefix   string
	duration time.Duration
	count    atomic.Int64

	startTime time.Time
	stopOnce  sync.Once
	stopChan  chan struct{}
	done      chan struct{}
}

// NewProgressPrinter counts down from duration. A zero duration counts up.
func NewProgressPrinter(w io.Writer, prefix string, duration time.Duration) *ProgressPrinter {
	return &ProgressPrinter{
		w:        w,
		prefix:   prefix,
		duration: duration,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Inc bumps the counter shown next to the time.
func (p *ProgressPrinter) Inc() { p.count.Add(1) }

func (p *ProgressPrinter) Start() {
	p.startTime = time.Now()
	p.print()
	groutine.Go(context.Background(), "progress-printer", func(context.Context) {
		defer close(p.done)
		ticker := time.NewTicker(progressUpdateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopChan:
				return
			case <-ticker.C:
				p.print()
			}
		}
	})
}

func (p *ProgressPrinter) seconds() int {
	elapsed := time.Since(p.startTime)
	if p.duration <= 0 {
		return int(elapsed.Seconds())
	}
	remaining := p.duration - elapsed
	if remaining <= 0 {
		return 0
	}
	// Round to the nearest second, 3.7s -> 4s
	return int(remaining.Seconds() + 0.5)
}

func (p *ProgressPrinter) print() {
	fmt.Fprintf(p.w, "\r%s (%ds, %d nodes)   ", p.prefix, p.seconds(), p.count.Load())
}

// Stop clears the line. Safe to call more than once.
func (p *ProgressPrinter) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
		<-p.done
		fmt.Fprint(p.w, clearLineSequence)
	})
}
