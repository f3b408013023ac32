package groutine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoPropagatesName(t *testing.T) {
	got := make(chan string, 1)
	Go(nil, "worker-1", func(ctx context.Context) { got <- Name(ctx) })

	select {
	case name := <-got:
		assert.Equal(t, "worker-1", name)
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
}

func TestGoSafeRecoversPanic(t *testing.T) {
	type report struct {
		name string
		err  error
	}
	got := make(chan report, 1)
	GoSafe(context.Background(), "boom", func(context.Context) {
		panic(errors.New("kaput"))
	}, func(name string, r any, stack []byte) {
		assert.NotEmpty(t, stack)
		got <- report{name: name, err: PanicError(name, r)}
	})

	select {
	case r := <-got:
		assert.Equal(t, "boom", r.name)
		require.Error(t, r.err)
		assert.Contains(t, r.err.Error(), "kaput")
	case <-time.After(time.Second):
		t.Fatal("panic was not reported")
	}
}

func TestNameWithoutValue(t *testing.T) {
	assert.Empty(t, Name(context.Background()))
	assert.Empty(t, Name(nil)) //nolint:staticcheck
}
