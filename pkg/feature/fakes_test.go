package feature_test

import (
	"context"
	"sync"

	"github.com/srg/bluest/pkg/feature"
)

// recordingOwner runs dispatched tasks inline and records writes.
type recordingOwner struct {
	mu       sync.Mutex
	writes   [][]byte
	tasks    []string
	readErr  error
	writeErr error
}

func (o *recordingOwner) ReadFeature(_ context.Context, f *feature.Feature) (*feature.Sample, error) {
	if o.readErr != nil {
		return nil, o.readErr
	}
	return f.LastSample(), nil
}

func (o *recordingOwner) WriteFeature(_ context.Context, _ *feature.Feature, data []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.writeErr != nil {
		return o.writeErr
	}
	o.writes = append(o.writes, append([]byte(nil), data...))
	return nil
}

func (o *recordingOwner) Dispatch(name string, task func()) {
	o.mu.Lock()
	o.tasks = append(o.tasks, name)
	o.mu.Unlock()
	task()
}

func (o *recordingOwner) Writes() [][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([][]byte(nil), o.writes...)
}
