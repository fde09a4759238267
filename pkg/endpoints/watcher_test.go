package endpoints

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daz23456/workflow-sub005/pkg/registry"
)

type fakeDiscoverer struct {
	batches [][]registry.WorkflowResource
	idx     int
}

func (f *fakeDiscoverer) DiscoverWorkflows(_ context.Context, _ string) ([]registry.WorkflowResource, error) {
	if f.idx >= len(f.batches) {
		return f.batches[len(f.batches)-1], nil
	}
	b := f.batches[f.idx]
	f.idx++
	return b, nil
}

func (f *fakeDiscoverer) GetWorkflowByName(_ context.Context, name, _ string) (*registry.WorkflowResource, error) {
	for _, batch := range f.batches {
		for _, w := range batch {
			if w.Metadata.Name == name {
				return &w, nil
			}
		}
	}
	return nil, nil
}

type countingVersioner struct {
	calls int
	err   error
}

func (c *countingVersioner) CreateVersionIfChanged(_ context.Context, _ registry.WorkflowResource) (bool, error) {
	c.calls++
	return false, c.err
}

func TestWatcher_AddedWorkflowFiresReconciliationAndThreeEndpointsExist(t *testing.T) {
	disco := &fakeDiscoverer{batches: [][]registry.WorkflowResource{
		{},
		{{Metadata: registry.ObjectMeta{Name: "W1"}}},
	}}
	reg := New()
	versioner := &countingVersioner{}
	w := NewWatcher(disco, reg, versioner, nil)

	w.tick(context.Background())
	assert.Nil(t, reg.Endpoints("W1"))

	w.tick(context.Background())
	require.NotNil(t, reg.Endpoints("W1"))
	assert.Len(t, reg.Endpoints("W1"), 3)
}

func TestWatcher_VersionFailureDoesNotAbortIteration(t *testing.T) {
	disco := &fakeDiscoverer{batches: [][]registry.WorkflowResource{
		{{Metadata: registry.ObjectMeta{Name: "A"}}, {Metadata: registry.ObjectMeta{Name: "B"}}},
	}}
	reg := New()
	versioner := &countingVersioner{err: errors.New("boom")}
	w := NewWatcher(disco, reg, versioner, nil)

	w.tick(context.Background())
	assert.Equal(t, 2, versioner.calls)
}

func TestWatcher_RunStopsOnContextCancel(t *testing.T) {
	disco := &fakeDiscoverer{batches: [][]registry.WorkflowResource{{}}}
	reg := New()
	versioner := &countingVersioner{}
	w := NewWatcher(disco, reg, versioner, nil).WithPollInterval(5 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop after context cancellation")
	}
}
