package discovery

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/daz23456/workflow-sub005/pkg/registry"
)

func TestDiscoveryCache(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Discovery Cache Suite")
}

type fakeClient struct {
	workflows [][]registry.WorkflowResource
	calls     int32
	err       error
}

func (f *fakeClient) ListWorkflows(_ context.Context, _ string) ([]registry.WorkflowResource, error) {
	n := atomic.AddInt32(&f.calls, 1) - 1
	if f.err != nil {
		return nil, f.err
	}
	if int(n) >= len(f.workflows) {
		return f.workflows[len(f.workflows)-1], nil
	}
	return f.workflows[n], nil
}

func (f *fakeClient) ListWorkflowTasks(_ context.Context, _ string) ([]registry.WorkflowTaskResource, error) {
	return nil, nil
}

func named(names ...string) []registry.WorkflowResource {
	out := make([]registry.WorkflowResource, 0, len(names))
	for _, n := range names {
		out = append(out, registry.WorkflowResource{Metadata: registry.ObjectMeta{Name: n}})
	}
	return out
}

var _ = Describe("Cache", func() {
	It("fires one change event when a workflow is added", func() {
		client := &fakeClient{workflows: [][]registry.WorkflowResource{named(), named("W1")}}
		cache := New(client, time.Millisecond, nil)

		var events []ChangeEvent
		cache.OnWorkflowsChanged(func(e ChangeEvent) { events = append(events, e) })

		_, err := cache.DiscoverWorkflows(context.Background(), "")
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(BeEmpty())

		time.Sleep(2 * time.Millisecond)
		_, err = cache.DiscoverWorkflows(context.Background(), "")
		Expect(err).NotTo(HaveOccurred())

		Expect(events).To(HaveLen(1))
		Expect(events[0].Added).To(Equal([]string{"W1"}))
		Expect(events[0].Removed).To(BeEmpty())
	})

	It("treats nil namespace and \"default\" as distinct cache keys", func() {
		client := &fakeClient{workflows: [][]registry.WorkflowResource{named("A"), named("B")}}
		cache := New(client, time.Minute, nil)

		all, err := cache.DiscoverWorkflows(context.Background(), "")
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(1))

		def, err := cache.DiscoverWorkflows(context.Background(), "default")
		Expect(err).NotTo(HaveOccurred())
		Expect(def).To(HaveLen(1))
		Expect(def[0].Metadata.Name).To(Equal("B"))
	})

	It("serves stale data without invalidating the cache on registry error", func() {
		client := &fakeClient{workflows: [][]registry.WorkflowResource{named("A")}}
		cache := New(client, time.Millisecond, nil)

		first, err := cache.DiscoverWorkflows(context.Background(), "ns")
		Expect(err).NotTo(HaveOccurred())
		Expect(first).To(HaveLen(1))

		client.err = context.DeadlineExceeded
		time.Sleep(2 * time.Millisecond)

		_, err = cache.DiscoverWorkflows(context.Background(), "ns")
		Expect(err).To(HaveOccurred())

		client.err = nil
		second, err := cache.DiscoverWorkflows(context.Background(), "ns")
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(HaveLen(1))
	})

	It("is a cache hit just inside the TTL and a miss just outside it", func() {
		client := &fakeClient{workflows: [][]registry.WorkflowResource{named("A"), named("A", "B")}}
		ttl := 40 * time.Millisecond
		cache := New(client, ttl, nil)

		_, err := cache.DiscoverWorkflows(context.Background(), "ns")
		Expect(err).NotTo(HaveOccurred())
		Expect(atomic.LoadInt32(&client.calls)).To(Equal(int32(1)))

		time.Sleep(ttl - 10*time.Millisecond)
		data, err := cache.DiscoverWorkflows(context.Background(), "ns")
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(HaveLen(1))
		Expect(atomic.LoadInt32(&client.calls)).To(Equal(int32(1)))

		time.Sleep(20 * time.Millisecond)
		data, err = cache.DiscoverWorkflows(context.Background(), "ns")
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(HaveLen(2))
		Expect(atomic.LoadInt32(&client.calls)).To(Equal(int32(2)))
	})

	It("GetWorkflowByName scans the cached list and returns nil on absence", func() {
		client := &fakeClient{workflows: [][]registry.WorkflowResource{named("A", "B")}}
		cache := New(client, time.Minute, nil)

		found, err := cache.GetWorkflowByName(context.Background(), "B", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).NotTo(BeNil())
		Expect(found.Metadata.Name).To(Equal("B"))

		missing, err := cache.GetWorkflowByName(context.Background(), "C", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(missing).To(BeNil())
	})
})
