// Package groutine starts named goroutines. The name is attached as a pprof
// label and stored in the context so logs and profiles can be correlated.
package groutine

import (
	"context"
	"fmt"
	"runtime/debug"
	"runtime/pprof"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// PanicHandler receives a recovered panic value together with its stack.
type PanicHandler func(name string, recovered any, stack []byte)

// Go runs fn on a new goroutine labelled name. A nil parent means
// context.Background().
//
//	groutine.Go(ctx, "disconnect-monitor", func(ctx context.Context) {
//	    <-ctx.Done()
//	})
func Go(parent context.Context, name string, fn func(ctx context.Context)) {
	GoSafe(parent, name, fn, nil)
}

// GoSafe is Go with panic capture. A panic in fn is recovered and passed to
// onPanic; with a nil onPanic it is re-raised.
func GoSafe(parent context.Context, name string, fn func(ctx context.Context), onPanic PanicHandler) {
	if parent == nil {
		parent = context.Background()
	}
	go pprof.Do(parent, pprof.Labels("goroutine_name", name), func(ctx context.Context) {
		if onPanic != nil {
			defer func() {
				if r := recover(); r != nil {
					onPanic(name, r, debug.Stack())
				}
			}()
		}
		fn(context.WithValue(ctx, goroutineNameKey, name))
	})
}

// Name returns the goroutine name stored by Go, or "".
func Name(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(goroutineNameKey).(string)
	return s
}

// PanicError converts a recovered value into an error.
func PanicError(name string, recovered any) error {
	if err, ok := recovered.(error); ok {
		return fmt.Errorf("goroutine %q panicked: %w", name, err)
	}
	return fmt.Errorf("goroutine %q panicked: %v", name, recovered)
}
